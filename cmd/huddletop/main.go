// ABOUTME: CLI entrypoint for huddletop, the live terminal viewer for a huddled board.
// ABOUTME: Wires the SSE stream client into a Bubble Tea program with signal handling.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/oklog/ulid/v2"

	"github.com/2389-research/huddle/tui"
)

var version = "dev"

// config holds all CLI configuration parsed from flags, environment
// fallbacks, and the positional board ID.
type config struct {
	serverURL   string
	user        string
	token       string
	showVersion bool
	boardArg    string
}

func main() {
	// Load .env without clobbering variables already in the environment, so
	// one file can configure both the server and this viewer.
	_ = godotenv.Load()

	cfg := parseFlags()

	if cfg.showVersion {
		fmt.Printf("huddletop %s\n", version)
		os.Exit(0)
	}

	os.Exit(run(cfg))
}

// parseFlags parses command-line flags and returns a populated config.
// Flag defaults come from HUDDLE_* environment variables.
func parseFlags() config {
	var cfg config

	fs := flag.NewFlagSet("huddletop", flag.ContinueOnError)
	fs.StringVar(&cfg.serverURL, "server", envOrDefault("HUDDLE_SERVER", "http://127.0.0.1:7780"), "huddled server base URL")
	fs.StringVar(&cfg.user, "user", os.Getenv("HUDDLE_USER"), "User name shown to other participants")
	fs.StringVar(&cfg.token, "token", os.Getenv("HUDDLE_TOKEN"), "Bearer token for servers requiring auth")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: huddletop [options] <board-id>\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if fs.NArg() > 0 {
		cfg.boardArg = fs.Arg(0)
	}

	return cfg
}

// run connects to the board and drives the TUI until quit.
// Returns an exit code: 0 for success, 1 for failure.
func run(cfg config) int {
	if cfg.boardArg == "" {
		fmt.Fprintln(os.Stderr, "error: board ID required (use huddletop <board-id>)")
		return 1
	}

	boardID, err := parseBoardID(cfg.boardArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	user := resolveUser(cfg.user)
	if user == "" {
		fmt.Fprintln(os.Stderr, "error: user name required (set -user or HUDDLE_USER)")
		return 1
	}

	client := tui.NewClient(cfg.serverURL, user, cfg.token)
	model := tui.NewAppModel(client, boardID, user)

	p := tea.NewProgram(model, tea.WithAltScreen())

	// The stream client runs beside the program, pushing frames in through
	// p.Send. Quitting the TUI cancels the stream.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx, boardID, p.Send)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	return 0
}

// parseBoardID validates the positional board argument as a ULID.
func parseBoardID(arg string) (ulid.ULID, error) {
	id, err := ulid.Parse(strings.TrimSpace(arg))
	if err != nil {
		return ulid.ULID{}, fmt.Errorf("bad board ID %q: %w", arg, err)
	}
	return id, nil
}

// resolveUser picks the display identity: explicit flag or HUDDLE_USER
// first, then the OS login name.
func resolveUser(flagUser string) string {
	if u := strings.TrimSpace(flagUser); u != "" {
		return u
	}
	return strings.TrimSpace(os.Getenv("USER"))
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
