package calendar

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
)

var ErrNoToken = errors.New("no token stored for account")

func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	if redirectURL == "" {
		redirectURL = "urn:ietf:wg:oauth:2.0:oob"
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirectURL,
		Scopes:       []string{gcal.CalendarScope},
	}
}

// TokenStore keeps one OAuth token per account in the tokens table.
type TokenStore struct {
	db *sql.DB
}

func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db}
}

func (s *TokenStore) Load(accountName string) (*oauth2.Token, error) {
	var tokenJSON []byte
	err := s.db.QueryRow("SELECT token FROM tokens WHERE account_name = ?", accountName).Scan(&tokenJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("error retrieving token from database: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(tokenJSON, &token); err != nil {
		return nil, fmt.Errorf("error unmarshaling token: %w", err)
	}
	return &token, nil
}

func (s *TokenStore) Save(accountName string, token *oauth2.Token) error {
	tokenJSON, err := json.Marshal(token)
	if err != nil {
		return err
	}
	_, err = s.db.Exec("INSERT OR REPLACE INTO tokens (account_name, token) VALUES (?, ?)", accountName, tokenJSON)
	return err
}

// Authorize runs the copy-paste authorization flow: the consent URL is
// written to out and the code is read from in.
func Authorize(ctx context.Context, config *oauth2.Config, in io.Reader, out io.Writer) (*oauth2.Token, error) {
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(out, "Go to the following link in your browser then type the "+
		"authorization code: \n%v\n", authURL)

	var authCode string
	if _, err := fmt.Fscan(in, &authCode); err != nil {
		return nil, fmt.Errorf("unable to read authorization code: %w", err)
	}

	tok, err := config.Exchange(ctx, strings.TrimSpace(authCode))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	return tok, nil
}

// Client returns an HTTP client for accountName. Refreshed tokens are
// written back to the store as they are issued.
func Client(ctx context.Context, config *oauth2.Config, store *TokenStore, accountName string) (*http.Client, error) {
	token, err := store.Load(accountName)
	if err != nil {
		return nil, err
	}

	src := &savingSource{
		base:    config.TokenSource(ctx, token),
		store:   store,
		account: accountName,
		last:    token.AccessToken,
	}
	// Refresh up front so an expired or revoked grant fails here rather
	// than on the first booking.
	if _, err := src.Token(); err != nil {
		return nil, fmt.Errorf("error refreshing token for account %s: %w", accountName, err)
	}
	return oauth2.NewClient(ctx, src), nil
}

type savingSource struct {
	base    oauth2.TokenSource
	store   *TokenStore
	account string

	mu   sync.Mutex
	last string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := s.store.Save(s.account, tok); err != nil {
			return nil, fmt.Errorf("error saving refreshed token: %w", err)
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}
