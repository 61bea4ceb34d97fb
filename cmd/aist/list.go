package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/ai-session-tree/internal/render"
)

func listCmd() *cobra.Command {
	var limit int
	var noIndex bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List indexed sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			db, err := openDB(cfg, logger, !noIndex)
			if err != nil {
				return err
			}
			defer db.Close()

			rows, err := db.ListSessions(limit)
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			if len(rows) == 0 {
				fmt.Fprintln(os.Stderr, "No sessions indexed.")
				return nil
			}

			table := tablewriter.NewTable(os.Stdout)
			table.Header([]string{"Session", "Updated", "Repo", "Branch", "Agents", "Warn", "In", "Out", "Ctx", "Summary"})
			for _, s := range rows {
				table.Append([]string{
					s.SessionKey,
					s.UpdatedAt,
					s.RepoCwd,
					s.GitBranch,
					strconv.Itoa(s.Subagents),
					strconv.Itoa(s.Warnings),
					render.FormatTokens(s.InputTokens + s.CacheReadTokens + s.CacheCreationTokens),
					render.FormatTokens(s.OutputTokens),
					render.FormatTokens(s.ContextWindow),
					runewidth.Truncate(tsvField(s.Summary), 60, "…"),
				})
			}
			return table.Render()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Max sessions (0 = no limit)")
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "Skip refreshing the index first")

	return cmd
}
