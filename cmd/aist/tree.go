package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/ai-session-tree/internal/reconstruct"
	"github.com/Zuo-Peng/ai-session-tree/internal/render"
	"github.com/Zuo-Peng/ai-session-tree/internal/scan"
)

// loadSession reconstructs the transcript at path with its subagents.
func loadSession(path string) (*reconstruct.Result, error) {
	cfg, logger, err := setup()
	if err != nil {
		return nil, err
	}
	s, err := scan.Open("", path)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	logger.Debug("reconstructing", "path", path, "subagents", len(s.Subagents))
	return reconstruct.ReconstructFiles(s, reconstructOptions(cfg, logger))
}

func treeCmd() *cobra.Command {
	var steps, warnings, plain bool
	var width int

	cmd := &cobra.Command{
		Use:   "tree <file.jsonl>",
		Short: "Show a transcript as a conversation tree with its subagents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := loadSession(args[0])
			if err != nil {
				return err
			}
			if width == 0 {
				width = terminalWidth()
			}
			return render.Tree(os.Stdout, res, render.TreeOptions{
				Width:    width,
				Steps:    steps,
				Warnings: warnings,
				Plain:    plain || !isTerminal(os.Stdout),
			})
		},
	}

	cmd.Flags().BoolVar(&steps, "steps", false, "List semantic steps under AI turns")
	cmd.Flags().BoolVar(&warnings, "warnings", false, "Print reconstruction warnings")
	cmd.Flags().BoolVar(&plain, "plain", false, "Disable colors")
	cmd.Flags().IntVar(&width, "width", 0, "Line width (0 = terminal width)")

	return cmd
}
