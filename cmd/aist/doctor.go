package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/ai-session-tree/internal/config"
	"github.com/Zuo-Peng/ai-session-tree/internal/index"
	"github.com/Zuo-Peng/ai-session-tree/internal/scan"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Self-check: verify root, config, DB, FTS5, and show stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup()
			if err != nil {
				return err
			}

			fmt.Println("=== Config ===")
			if p, err := config.Path(); err == nil {
				if _, err := os.Stat(p); err == nil {
					fmt.Printf("  File: %s (OK)\n", p)
				} else {
					fmt.Printf("  File: %s (not present, using defaults)\n", p)
				}
			}
			fmt.Printf("  Workers: %d  Max line bytes: %d  Log level: %s\n", cfg.Workers, cfg.MaxLineBytes, cfg.LogLevel)

			fmt.Println("\n=== Root ===")
			checkDir("Claude", cfg.ClaudeRoot)

			fmt.Println("\n=== File Scan ===")
			sessions, err := scan.ScanRoot(cfg.ClaudeRoot)
			if err != nil {
				fmt.Printf("  scan error: %v\n", err)
			} else {
				nested, legacy := 0, 0
				for _, s := range sessions {
					for _, sub := range s.Subagents {
						if sub.Layout == scan.LayoutNested {
							nested++
						} else {
							legacy++
						}
					}
				}
				fmt.Printf("  Sessions:           %d\n", len(sessions))
				fmt.Printf("  Subagents (nested): %d\n", nested)
				fmt.Printf("  Subagents (legacy): %d\n", legacy)
			}

			fmt.Println("\n=== Database ===")
			fmt.Printf("  Path: %s\n", cfg.DBPath)
			if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
				fmt.Println("  Status: NOT FOUND (run 'aist index' first)")
				return nil
			}

			db, err := index.OpenDB(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			sessionCount, err := db.SessionCount()
			if err != nil {
				return fmt.Errorf("count sessions: %w", err)
			}
			chunkCount, err := db.ChunkCount()
			if err != nil {
				return fmt.Errorf("count chunks: %w", err)
			}
			fmt.Printf("  Sessions: %d\n", sessionCount)
			fmt.Printf("  Chunks:   %d\n", chunkCount)

			fmt.Println("\n=== FTS5 ===")
			ftsCount, err := db.FTSCount()
			if err != nil {
				fmt.Printf("  FTS5 error: %v\n", err)
			} else {
				fmt.Printf("  FTS5 entries: %d\n", ftsCount)
				if ftsCount == chunkCount {
					fmt.Println("  Status: OK (synced)")
				} else {
					fmt.Printf("  Status: MISMATCH (chunks=%d, fts=%d)\n", chunkCount, ftsCount)
				}
			}

			if info, err := os.Stat(cfg.DBPath); err == nil {
				fmt.Printf("\n=== DB Size: %.1f MB ===\n", float64(info.Size())/1024/1024)
			}
			return nil
		},
	}
}

func checkDir(name, path string) {
	if info, err := os.Stat(path); err != nil {
		fmt.Printf("  %s: %s (NOT FOUND)\n", name, path)
	} else if !info.IsDir() {
		fmt.Printf("  %s: %s (NOT A DIRECTORY)\n", name, path)
	} else {
		fmt.Printf("  %s: %s (OK)\n", name, path)
	}
}
