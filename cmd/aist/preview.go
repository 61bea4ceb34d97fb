package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/ai-session-tree/internal/render"
)

func previewCmd() *cobra.Command {
	var hitChunkID, context, width int
	var query string

	cmd := &cobra.Command{
		Use:   "preview <sessionKey>",
		Short: "Preview indexed chunks around a search hit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			db, err := openDB(cfg, logger, false)
			if err != nil {
				return err
			}
			defer db.Close()

			out, _, err := render.Preview(db, args[0], render.PreviewOptions{
				HitChunkID: hitChunkID,
				Context:    context,
				Width:      width,
				Query:      query,
			})
			if err != nil {
				return err
			}

			fmt.Print(out)
			return nil
		},
	}

	cmd.Flags().IntVar(&hitChunkID, "hit", -1, "Chunk ID to highlight")
	cmd.Flags().IntVar(&context, "context", 10, "Chunks before/after hit to show (-1 = all)")
	cmd.Flags().IntVar(&width, "width", 0, "Wrap width (0 = no wrap)")
	cmd.Flags().StringVar(&query, "query", "", "Search query for keyword highlighting")

	return cmd
}
