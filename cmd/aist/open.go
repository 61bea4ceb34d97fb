package main

import (
	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/ai-session-tree/internal/open"
)

func openCmd() *cobra.Command {
	var chunkID int

	cmd := &cobra.Command{
		Use:   "open <sessionKey>",
		Short: "Open the transcript in $EDITOR at a chunk's line",
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

			return open.OpenSession(db, args[0], chunkID)
		},
	}

	cmd.Flags().IntVar(&chunkID, "chunk", -1, "Chunk ID to jump to")
	cmd.Flags().IntVar(&chunkID, "hit", -1, "Alias for --chunk")
	_ = cmd.Flags().MarkHidden("hit")

	return cmd
}
