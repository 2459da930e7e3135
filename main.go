package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/bobuk/gcalbook/internal/config"
)

const usage = `Usage: gcalbook [-config file] <command> [options]

Commands:
  init        create or migrate the local database
  authorize   connect the Google account named in the config
  book        book an appointment
  move        move your upcoming appointment
  cancel      cancel your upcoming appointment
  confirm     accept or reject a proposed slot
  slots       list free slots on a day
  parse       check how a date/time expression is understood
  list        list upcoming appointments and tickets
  cleanup     purge expired confirmation tickets
  serve       run the HTTP API`

func main() {
	configFile := flag.String("config", config.DefaultFilename, "path to the configuration file")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fatalf("Error reading config file: %v", err)
	}

	command, args := flag.Arg(0), flag.Args()[1:]
	switch command {
	case "init":
		err = initDatabase(cfg)
	case "authorize":
		err = authorizeAccount(cfg)
	case "book":
		err = bookAppointment(cfg, args)
	case "move":
		err = moveAppointment(cfg, args)
	case "cancel":
		err = cancelAppointment(cfg, args)
	case "confirm":
		err = confirmTicket(cfg, args)
	case "slots":
		err = listSlots(cfg, args)
	case "parse":
		err = parseExpression(cfg, args)
	case "list":
		err = listAppointments(cfg, args)
	case "cleanup":
		err = cleanupTickets(cfg, args)
	case "serve":
		err = serve(cfg, args)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		fatalf("❌ %v", err)
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
