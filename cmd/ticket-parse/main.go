// Command ticket-parse runs saved OCR text through the store parsers and
// prints the detection scores and the parsed ticket as JSON.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/grocery-tracker/internal/logging"
	"github.com/zombor/grocery-tracker/internal/parser"
)

type output struct {
	Detection parser.Confirmation  `json:"detection"`
	Ticket    *parser.ParsedTicket `json:"ticket"`
}

func main() {
	fs := ff.NewFlagSet("ticket-parse")
	var (
		input         = fs.StringLong("file", "-", "OCR text file to parse ('-' reads stdin)")
		forceParser   = fs.StringLong("parser", "", "Parser key to use instead of detection")
		detectConfirm = fs.Float64Long("detect-confirm-threshold", parser.DefaultConfirmThreshold, "Store detection score below which the store must be confirmed")
		listParsers   = fs.BoolLong("list", "List registered parsers and exit")
		logLevel      = fs.StringLong("log-level", "warn", "Log level: debug, info, warn or error")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("TICKET_PARSE"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := logging.SetupLogger(os.Stderr, *logLevel, "text"); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	registry := parser.NewDefaultRegistry(parser.RegistryConfig{ConfirmThreshold: *detectConfirm})
	if *listParsers {
		for _, id := range registry.Parsers() {
			fmt.Printf("%-12s %s\n", id.Key, id.DisplayName)
		}
		return
	}

	if err := run(os.Stdout, registry, *input, *forceParser); err != nil {
		slog.Error("Failed to parse ticket", "file", *input, "error", err)
		os.Exit(1)
	}
}

func run(w io.Writer, registry *parser.Registry, path, forceParser string) error {
	var (
		text []byte
		err  error
	)
	if path == "-" {
		text, err = io.ReadAll(os.Stdin)
	} else {
		text, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	ticket, err := registry.Parse(string(text), forceParser)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(output{
		Detection: registry.DetectWithConfirmation(string(text)),
		Ticket:    ticket,
	})
}
