// Command import loads a hymnal JSON file into the SQLite database.
//
// Usage:
//
//	go run ./cmd/import -json data/hymnal.json -db data/hymnal.db
//
// This tool:
// 1. Creates/opens the SQLite database
// 2. Runs migrations to ensure schema is current
// 3. Parses the hymnal JSON file
// 4. Imports all hymns in a single transaction
//
// The import is all-or-nothing: the first duplicate hymn number aborts and
// rolls back the whole batch. To reimport, delete the database file first.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/openhymnal/hymnal-api/internal/database"
)

func main() {
	// Parse command line flags
	jsonPath := flag.String("json", "data/hymnal.json", "Path to hymnal JSON file")
	dbPath := flag.String("db", "data/hymnal.db", "Path to SQLite database")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	// Setup logger
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))

	// Run import
	if err := run(*jsonPath, *dbPath, logger); err != nil {
		logger.Error("import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("import complete")
}

func run(jsonPath, dbPath string, logger *slog.Logger) error {
	ctx := context.Background()
	startTime := time.Now()

	// =========================================================================
	// Step 1: Read and parse JSON
	// =========================================================================
	logger.Info("reading JSON file", slog.String("path", jsonPath))

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return fmt.Errorf("read JSON file: %w", err)
	}

	var importData database.ImportData
	if err := json.Unmarshal(data, &importData); err != nil {
		return fmt.Errorf("parse JSON: %w", err)
	}

	logger.Info("parsed JSON",
		slog.Int("hymns", len(importData.Hymns)),
		slog.String("source", importData.Metadata.Source),
		slog.String("generated_at", importData.Metadata.GeneratedAt),
	)

	// =========================================================================
	// Step 2: Open database and run migrations
	// =========================================================================
	logger.Info("opening database", slog.String("path", dbPath))

	db, err := database.Open(database.DefaultConfig(dbPath), logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	migrated, err := db.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("migrations complete", slog.Int("applied", migrated))

	// =========================================================================
	// Step 3: Import hymns in a transaction
	// =========================================================================
	logger.Info("starting import")

	var stats ImportStats
	err = db.WithTx(ctx, func(tx *database.Tx) error {
		return importHymns(ctx, tx, importData.Hymns, logger, &stats)
	})
	if err != nil {
		return fmt.Errorf("import data: %w", err)
	}

	// =========================================================================
	// Step 4: Verify import
	// =========================================================================
	count, err := db.CountHymns(ctx)
	if err != nil {
		return fmt.Errorf("count hymns: %w", err)
	}

	dbStats, err := db.GetHymnStats(ctx)
	if err != nil {
		return fmt.Errorf("hymn stats: %w", err)
	}

	elapsed := time.Since(startTime)

	logger.Info("import verified",
		slog.Int("hymns", count),
		slog.Int("verses", dbStats.TotalVerses),
		slog.Int("lowest_number", dbStats.LowestNumber),
		slog.Int("highest_number", dbStats.HighestNumber),
		slog.Duration("elapsed", elapsed),
	)

	// Print summary
	fmt.Println()
	fmt.Println("=== Import Summary ===")
	fmt.Printf("Hymns imported:    %d\n", stats.Hymns)
	fmt.Printf("Verses imported:   %d\n", stats.Verses)
	fmt.Printf("Hymns w/o verses:  %d\n", stats.EmptyHymns)
	fmt.Printf("Time elapsed:      %v\n", elapsed.Round(time.Millisecond))

	return nil
}

// ImportStats tracks import statistics.
type ImportStats struct {
	Hymns      int
	Verses     int
	EmptyHymns int
}

// importHymns imports all hymns within a single transaction.
func importHymns(ctx context.Context, tx *database.Tx, hymns []database.HymnInput, logger *slog.Logger, stats *ImportStats) error {
	for i := range hymns {
		in := &hymns[i]

		if err := in.Validate(); err != nil {
			return fmt.Errorf("invalid hymn %d (number %d): %w", i+1, in.Number, err)
		}

		if _, err := tx.CreateHymn(ctx, in); err != nil {
			return fmt.Errorf("create hymn %d (number %d): %w", i+1, in.Number, err)
		}

		stats.Hymns++
		stats.Verses += len(in.HymnContent)
		if len(in.HymnContent) == 0 {
			stats.EmptyHymns++
		}

		// Progress logging every 50 hymns
		if (i+1)%50 == 0 {
			logger.Debug("import progress",
				slog.Int("hymn", i+1),
				slog.Int("total", len(hymns)),
			)
		}
	}

	return nil
}
