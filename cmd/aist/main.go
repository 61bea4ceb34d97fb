package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Zuo-Peng/ai-session-tree/internal/config"
	"github.com/Zuo-Peng/ai-session-tree/internal/index"
	"github.com/Zuo-Peng/ai-session-tree/internal/logging"
	"github.com/Zuo-Peng/ai-session-tree/internal/reconstruct"
)

var version = "dev"

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	verbose bool
	workers int
}

var flags globals

func main() {
	rootCmd := &cobra.Command{
		Use:           "aist",
		Short:         "AI Session Tree - rebuild Claude Code transcripts into conversation trees",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Debug logging")
	rootCmd.PersistentFlags().IntVar(&flags.workers, "workers", 0, "Parallel transcript workers (0 = config or CPU count)")

	rootCmd.AddCommand(treeCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(indexCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(previewCmd())
	rootCmd.AddCommand(openCmd())
	rootCmd.AddCommand(doctorCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the config and builds the logger from it and the global flags.
func setup() (*config.Config, *log.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if flags.workers > 0 {
		cfg.Workers = flags.workers
	}
	return cfg, logging.New(cfg.LogLevel, flags.verbose), nil
}

func reconstructOptions(cfg *config.Config, logger *log.Logger) reconstruct.Options {
	return reconstruct.Options{
		Workers:      cfg.Workers,
		MaxLineBytes: cfg.MaxLineBytes,
		Logger:       logger,
	}
}

func indexOptions(cfg *config.Config, logger *log.Logger) index.Options {
	return index.Options{
		Workers:      cfg.Workers,
		MaxLineBytes: cfg.MaxLineBytes,
		Logger:       logger,
	}
}

// openDB opens the index and refreshes it from the transcript root.
func openDB(cfg *config.Config, logger *log.Logger, refresh bool) (*index.DB, error) {
	db, err := index.OpenDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if refresh {
		if _, err := index.IndexAll(db, cfg.ClaudeRoot, indexOptions(cfg, logger)); err != nil {
			logger.Warn("auto index failed", "err", err)
		}
	}
	return db, nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 100
}
