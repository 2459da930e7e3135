// Package config reads the TOML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/bobuk/gcalbook/internal/policy"
)

const DefaultFilename = ".gcalbook.toml"

// Duration accepts Go duration strings such as "10m" or "1h30m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	General GeneralConfig `toml:"general"`
	Google  GoogleConfig  `toml:"google"`
	CalDAV  CalDAVConfig  `toml:"caldav"`
	Hours   HoursConfig   `toml:"hours"`
	Booking BookingConfig `toml:"booking"`
	Session SessionConfig `toml:"session"`
	Server  ServerConfig  `toml:"server"`
	Tracing TracingConfig `toml:"tracing"`

	dir string
}

type GeneralConfig struct {
	// VerbosityLevel goes from 0 (errors only) to 5 (everything).
	VerbosityLevel int    `toml:"verbosity_level"`
	Production     bool   `toml:"production"`
	Timezone       string `toml:"timezone"`
	// Provider is one of google, caldav or memory.
	Provider    string `toml:"provider"`
	CalendarID  string `toml:"calendar_id"`
	AccountName string `toml:"account_name"`
	DBPath      string `toml:"db_path"`
}

type GoogleConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURL  string `toml:"redirect_url"`
}

type CalDAVConfig struct {
	ServerURL    string `toml:"server_url"`
	Username     string `toml:"username"`
	Password     string `toml:"password"`
	CalendarPath string `toml:"calendar_path"`
}

type HoursConfig struct {
	Open           string   `toml:"open"`
	Close          string   `toml:"close"`
	ClosedWeekdays []string `toml:"closed_weekdays"`
	Holidays       []string `toml:"holidays"`
}

type BookingConfig struct {
	DefaultDuration  Duration `toml:"default_duration"`
	Step             Duration `toml:"step"`
	MaxProbe         int      `toml:"max_probe"`
	TicketTTL        Duration `toml:"ticket_ttl"`
	LookupHorizon    Duration `toml:"lookup_horizon"`
	SearchHorizon    Duration `toml:"search_horizon"`
	SerializeCommits bool     `toml:"serialize_commits"`
	Services         []string `toml:"services"`
	DefaultService   string   `toml:"default_service"`
}

type SessionConfig struct {
	// Backend is one of memory, sqlite or redis.
	Backend       string   `toml:"backend"`
	RedisAddr     string   `toml:"redis_addr"`
	RedisPassword string   `toml:"redis_password"`
	RedisDB       int      `toml:"redis_db"`
	RedisPrefix   string   `toml:"redis_prefix"`
	Retention     Duration `toml:"retention"`
}

type ServerConfig struct {
	Addr          string   `toml:"addr"`
	RatePerMinute int      `toml:"rate_per_minute"`
	RateBurst     int      `toml:"rate_burst"`
	SweepInterval Duration `toml:"sweep_interval"`
}

type TracingConfig struct {
	Endpoint    string `toml:"endpoint"`
	Insecure    bool   `toml:"insecure"`
	ServiceName string `toml:"service_name"`
}

func Default() *Config {
	return &Config{
		General: GeneralConfig{
			VerbosityLevel: 1,
			Timezone:       "Europe/Rome",
			Provider:       "google",
			CalendarID:     "primary",
			AccountName:    "default",
			DBPath:         ".gcalbook.db",
		},
		Google: GoogleConfig{
			RedirectURL: "urn:ietf:wg:oauth:2.0:oob",
		},
		Hours: HoursConfig{
			Open:           "09:00",
			Close:          "17:00",
			ClosedWeekdays: []string{"saturday", "sunday"},
			Holidays:       []string{"01-01", "12-08", "12-24", "12-25", "12-26"},
		},
		Booking: BookingConfig{
			DefaultDuration: Duration{time.Hour},
			Step:            Duration{time.Hour},
			MaxProbe:        10,
			TicketTTL:       Duration{10 * time.Minute},
			LookupHorizon:   Duration{90 * 24 * time.Hour},
			SearchHorizon:   Duration{14 * 24 * time.Hour},
			DefaultService:  "General Consultation",
		},
		Session: SessionConfig{
			Backend:     "sqlite",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "gcalbook:",
			Retention:   Duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Addr:          ":8080",
			RatePerMinute: 60,
			RateBurst:     10,
			SweepInterval: Duration{time.Minute},
		},
		Tracing: TracingConfig{
			ServiceName: "gcalbook",
		},
	}
}

// Load reads filename from the current directory, then from
// $HOME/.config/gcalbook/.
func Load(filename string) (*Config, error) {
	dir := ""
	data, err := os.ReadFile(filename)
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		dir = filepath.Join(home, ".config", "gcalbook")
		data, err = os.ReadFile(filepath.Join(dir, filepath.Base(filename)))
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.dir = dir
	return cfg, nil
}

// Parse decodes data over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.General.VerbosityLevel < 0 || c.General.VerbosityLevel > 5 {
		errs = append(errs, fmt.Errorf("general.verbosity_level must be between 0 and 5, got %d", c.General.VerbosityLevel))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	switch c.General.Provider {
	case "google":
		if c.Google.ClientID == "" || c.Google.ClientSecret == "" {
			errs = append(errs, errors.New("google.client_id and google.client_secret are required for the google provider"))
		}
	case "caldav":
		if c.CalDAV.ServerURL == "" {
			errs = append(errs, errors.New("caldav.server_url is required for the caldav provider"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("general.provider must be google, caldav or memory, got %q", c.General.Provider))
	}

	switch c.Session.Backend {
	case "memory", "sqlite":
	case "redis":
		if c.Session.RedisAddr == "" {
			errs = append(errs, errors.New("session.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("session.backend must be memory, sqlite or redis, got %q", c.Session.Backend))
	}

	b := c.Booking
	if b.DefaultDuration.Duration <= 0 {
		errs = append(errs, errors.New("booking.default_duration must be positive"))
	}
	if b.Step.Duration <= 0 {
		errs = append(errs, errors.New("booking.step must be positive"))
	}
	if b.MaxProbe <= 0 {
		errs = append(errs, errors.New("booking.max_probe must be positive"))
	}
	if b.TicketTTL.Duration <= 0 {
		errs = append(errs, errors.New("booking.ticket_ttl must be positive"))
	}
	if b.LookupHorizon.Duration <= 0 || b.SearchHorizon.Duration <= 0 {
		errs = append(errs, errors.New("booking horizons must be positive"))
	}
	if c.Server.RatePerMinute < 0 || c.Server.RateBurst < 0 {
		errs = append(errs, errors.New("server rate limits must not be negative"))
	}

	if len(errs) == 0 {
		if _, err := c.Policy(); err != nil {
			errs = append(errs, fmt.Errorf("hours: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.General.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid general.timezone %q: %w", c.General.Timezone, err)
	}
	return loc, nil
}

func (c *Config) Policy() (*policy.Policy, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	return policy.New(c.Hours.Open, c.Hours.Close, c.Hours.ClosedWeekdays, c.Hours.Holidays, loc)
}

// DBPath resolves a relative database path against the directory the
// config file was found in.
func (c *Config) DBPath() string {
	if c.dir == "" || filepath.IsAbs(c.General.DBPath) {
		return c.General.DBPath
	}
	return filepath.Join(c.dir, c.General.DBPath)
}
