// ingest runs statement files through the canonicalization pipeline for one account.
//
// Usage:
//
//	USE_MEMORY_STORE=true go run ./cmd/ingest -account acct-123 statements/oct.csv
//	go run ./cmd/ingest -account acct-123 -json gs://statements-inbox/acct-123/oct.pdf
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"strings"

	"github.com/castlemilk/pfinance/statements/internal/app"
	"github.com/castlemilk/pfinance/statements/internal/config"
	"github.com/castlemilk/pfinance/statements/internal/logger"
	"github.com/castlemilk/pfinance/statements/internal/pipeline"
)

func main() {
	accountID := flag.String("account", "", "account the statements belong to (required)")
	asJSON := flag.Bool("json", false, "print full results as JSON")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: ingest -account ID [-json] FILE|gs://BUCKET/OBJECT ...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *accountID == "" || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := app.Build(ctx, cfg, log, flag.Args()...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise")
	}
	defer a.Close()

	files := make([]pipeline.FileInput, 0, flag.NArg())
	for _, loc := range flag.Args() {
		data, err := a.ReadInput(ctx, loc)
		if err != nil {
			log.Fatal().Err(err).Str("input", loc).Msg("failed to read statement")
		}
		name := path.Base(strings.TrimPrefix(loc, "gs://"))
		files = append(files, pipeline.FileInput{
			Name:      name,
			Ext:       path.Ext(name),
			Data:      data,
			AccountID: *accountID,
		})
	}

	res, err := a.Pipeline.ProcessBatch(ctx, files)
	if err != nil {
		log.Fatal().Err(err).Msg("ingest failed")
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			log.Fatal().Err(err).Msg("encode results")
		}
		return
	}

	failed := false
	for _, f := range res.Files {
		fmt.Printf("%s: %s (strategy=%s)\n", f.File, f.Stats.Summary(), orNone(f.Stats.ParseStrategyUsed))
		for _, w := range f.Stats.Warnings {
			fmt.Printf("  warning %s %s: %s\n", w.RowContext, w.Reason, w.Detail)
		}
		for _, e := range f.Stats.Errors {
			fmt.Printf("  error   %s %s: %s\n", e.RowContext, e.Reason, e.Detail)
			failed = true
		}
	}
	if res.Ambiguities > 0 {
		fmt.Printf("%d ambiguous duplicate matches were resolved by date and id\n", res.Ambiguities)
	}
	if failed {
		os.Exit(1)
	}
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
