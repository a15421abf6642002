// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	sessionvault "github.com/poiesic/sessionvault"
	"github.com/poiesic/sessionvault/blobstore"
	"github.com/urfave/cli/v2"
)

func main() {
	dbFlag := &cli.StringFlag{
		Name:     "db",
		Aliases:  []string{"d"},
		Usage:    "Path to the vault database directory",
		Required: true,
	}
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to a TOML configuration file",
	}

	app := &cli.App{
		Name:  "sessionvault",
		Usage: "Storage engine for multimedia session recordings",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "sessions",
				Usage:  "List stored sessions",
				Action: sessionsCommand,
				Flags: []cli.Flag{
					dbFlag,
					configFlag,
					&cli.StringFlag{
						Name:    "search",
						Aliases: []string{"s"},
						Usage:   "Filter sessions by name, category or notes",
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Show blob store and session statistics",
				Action: statsCommand,
				Flags:  []cli.Flag{dbFlag, configFlag},
			},
			{
				Name:   "gc",
				Usage:  "Reclaim unreferenced blobs",
				Action: gcCommand,
				Flags: []cli.Flag{
					dbFlag,
					configFlag,
					&cli.BoolFlag{
						Name:  "quiet",
						Usage: "Suppress progress output",
					},
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a session and release its blob references",
				ArgsUsage: "<session-id>",
				Action:    deleteCommand,
				Flags:     []cli.Flag{dbFlag, configFlag},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// openVault opens the vault named by the --db flag, honoring --config.
func openVault(c *cli.Context) (*sessionvault.Vault, error) {
	opts := []sessionvault.VaultOption{}
	if path := c.String("config"); path != "" {
		cfg, err := sessionvault.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sessionvault.WithConfig(cfg))
	}

	vault, err := sessionvault.Open(c.String("db"), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open vault: %w", err)
	}
	return vault, nil
}

func sessionsCommand(c *cli.Context) error {
	ctx := context.Background()

	vault, err := openVault(c)
	if err != nil {
		return err
	}
	defer vault.Close()

	metas, err := vault.Sessions().SearchSessions(ctx, c.String("search"))
	if err != nil {
		return fmt.Errorf("listing sessions failed: %w", err)
	}

	if len(metas) == 0 {
		fmt.Println("no sessions found")
		return nil
	}

	for _, meta := range metas {
		summary := meta.Summarize()
		line := fmt.Sprintf("%s  %s  started %s",
			summary.ID, summary.Name, summary.StartTime.Local().Format(time.RFC3339))
		if summary.EndTime.IsZero() {
			line += "  (recording)"
		} else {
			line += fmt.Sprintf("  duration %s", time.Duration(summary.DurationMs)*time.Millisecond)
		}
		if summary.Category != "" {
			line += "  [" + summary.Category + "]"
		}
		fmt.Println(line)
		fmt.Printf("    screenshot chunks: %d  audio chunks: %d  video: %v  notes: %v\n",
			summary.ScreenshotChunks, summary.AudioChunks, summary.HasVideo, summary.HasNotes)
	}
	return nil
}

func statsCommand(c *cli.Context) error {
	ctx := context.Background()

	vault, err := openVault(c)
	if err != nil {
		return err
	}
	defer vault.Close()

	count, err := vault.Sessions().SessionCount(ctx)
	if err != nil {
		return fmt.Errorf("counting sessions failed: %w", err)
	}

	stats, err := vault.Blobs().Stats(ctx)
	if err != nil {
		return fmt.Errorf("collecting blob stats failed: %w", err)
	}

	fmt.Printf("sessions:              %d\n", count)
	fmt.Printf("unique blobs:          %d\n", stats.TotalBlobs)
	fmt.Printf("stored bytes:          %d\n", stats.TotalBytes)
	fmt.Printf("dedup savings (bytes): %d\n", stats.DedupSavingsBytes)
	fmt.Printf("avg references/blob:   %.2f\n", stats.AverageReferencesPerBlob)
	return nil
}

func gcCommand(c *cli.Context) error {
	ctx := context.Background()

	vault, err := openVault(c)
	if err != nil {
		return err
	}
	defer vault.Close()

	var progress blobstore.GCProgress
	if !c.Bool("quiet") {
		progress = func(scanned, deleted int) {
			fmt.Fprintf(os.Stderr, "scanned %d blobs, deleted %d\n", scanned, deleted)
		}
	}

	result, err := vault.Blobs().CollectGarbage(ctx, progress)
	if err != nil {
		return fmt.Errorf("garbage collection failed: %w", err)
	}

	fmt.Printf("scanned %d blobs in %s\n", result.Scanned, result.Duration.Round(time.Millisecond))
	fmt.Printf("deleted %d blobs, freed %d bytes\n", result.Deleted, result.FreedBytes)
	if len(result.Errs) > 0 {
		fmt.Printf("%d blobs could not be reclaimed\n", len(result.Errs))
	}
	return nil
}

func deleteCommand(c *cli.Context) error {
	ctx := context.Background()

	sessionID := c.Args().First()
	if sessionID == "" {
		return fmt.Errorf("session ID argument is required")
	}

	vault, err := openVault(c)
	if err != nil {
		return err
	}
	defer vault.Close()

	if err := vault.Sessions().DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("deleting session failed: %w", err)
	}

	flushCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := vault.Sessions().Flush(flushCtx); err != nil {
		return fmt.Errorf("waiting for deletes failed: %w", err)
	}

	fmt.Printf("session %s deleted\n", sessionID)
	return nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
