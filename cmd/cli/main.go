// Command evd is a command-line client for the EventDesk backend.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/eventdesk/internal/app"
	"github.com/and161185/eventdesk/internal/config"
	"github.com/and161185/eventdesk/internal/httpclient"
	"github.com/and161185/eventdesk/internal/logger"
)

func usage() {
	fmt.Fprintf(os.Stderr, `evd CLI
Usage:
  evd [-config file] [-api URL] [-v] <cmd> [args]

Commands:
  version
  login      -e <email> [-p <password>]            (saves the session)
  logout
  whoami
  signup     -e <email> -name <full name> -p <password> [-phone N]
             (-student -student-id ID | -national-id ID)
  events     [-past]
  event      -id <event id>
  enroll     -id <event id>
  my         [-all]                                (my registrations)
  cancel     -id <registration id>
  admin list
  admin create -title T -desc D -date YYYY-MM-DD -time HH:MM -deadline YYYY-MM-DDTHH:MM
               [-location L] [-capacity N] [-image URL]
  admin update -id <event id> [same flags as create, only the given ones change]
  admin delete -id <event id> [-yes]
  admin registrants -id <event id>
`)
	os.Exit(2)
}

var (
	version   = "dev"
	buildDate = "unknown"
)

// errUsage makes main print usage instead of an error line.
var errUsage = errors.New("usage")

// main resolves configuration, wires the client and dispatches the subcommand.
func main() {
	// global flags
	cfgPath := flag.String("config", "", "YAML config file")
	apiURL := flag.String("api", "", "backend base URL (overrides config)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)
	if cmd == "version" {
		fmt.Printf("evd %s (%s)\n", version, buildDate)
		return
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fail(err)
	}
	if *apiURL != "" {
		cfg.APIURL = strings.TrimRight(*apiURL, "/")
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log, err := logger.New(level, cfg.Log.Format)
	if err != nil {
		fail(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, closeStore, err := app.New(ctx, cfg, log)
	if err != nil {
		fail(err)
	}
	defer closeStore()

	c := newCLI(a, os.Stdin, os.Stdout)
	if err := c.run(ctx, cmd, flag.Args()[1:]); err != nil {
		log.Debug("command failed", zap.String("cmd", cmd), zap.Error(err))
		closeStore()
		cancel()
		if errors.Is(err, errUsage) {
			usage()
		}
		fail(err)
	}
}

// ---- helpers ----

type cli struct {
	app    *app.App
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
}

func newCLI(a *app.App, in io.Reader, out io.Writer) *cli {
	return &cli{app: a, in: bufio.NewReader(in), out: out, errOut: os.Stderr}
}

func (c *cli) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	return fs
}

// prompt writes q and reads one line.
func (c *cli) prompt(q string) (string, error) {
	fmt.Fprint(c.out, q)
	line, err := c.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// shown carries the text to print for a failure while keeping the cause for errors.Is.
type shown struct {
	msg string
	err error
}

func (s *shown) Error() string { return s.msg }
func (s *shown) Unwrap() error { return s.err }

func show(err error, fallback string) error {
	return &shown{msg: httpclient.Message(err, fallback), err: err}
}

// describe renders err for the terminal.
func describe(err error) string {
	var s *shown
	if errors.As(err, &s) {
		return s.msg
	}
	return httpclient.Message(err, err.Error())
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", describe(err))
	os.Exit(1)
}
