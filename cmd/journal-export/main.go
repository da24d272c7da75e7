// Command journal-export writes the reservation journal to an Excel workbook.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"

	"bookflow/internal/calendar"
	"bookflow/internal/journal"
)

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	var (
		dbPath  = flag.String("db", getenv("BOOKFLOW_DB_PATH", "data/bookflow.db"), "journal database path")
		outPath = flag.String("out", "journal.xlsx", "output workbook")
		fromStr = flag.String("from", "", "first day to include, YYYY-MM-DD (default: 30 days ago)")
		toStr   = flag.String("to", "", "last day to include, YYYY-MM-DD (default: today)")
	)
	flag.Parse()

	now := time.Now().UTC()
	to := calendar.Date(now.Year(), now.Month(), now.Day()).AddDate(0, 0, 1)
	if *toStr != "" {
		d, err := calendar.ParseDate(*toStr)
		if err != nil {
			logger.Fatal().Err(err).Msg("bad -to date")
		}
		to = d.AddDate(0, 0, 1)
	}
	from := to.AddDate(0, 0, -31)
	if *fromStr != "" {
		d, err := calendar.ParseDate(*fromStr)
		if err != nil {
			logger.Fatal().Err(err).Msg("bad -from date")
		}
		from = d
	}
	if !from.Before(to) {
		logger.Fatal().Str("from", from.Format(calendar.DateLayout)).Str("to", to.Format(calendar.DateLayout)).
			Msg("empty date range")
	}

	db, err := journal.NewDB(*dbPath, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open journal error")
	}
	defer db.Close()

	f, err := os.Create(*outPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("create output error")
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := db.ExportXLSX(ctx, f, from, to); err != nil {
		logger.Error().Err(err).Msg("export failed")
		return
	}
	logger.Info().Str("file", *outPath).Msg("journal exported")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
