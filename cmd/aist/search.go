package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/ai-session-tree/internal/search"
)

const (
	sColorReset   = "\033[0m"
	sColorBoldRed = "\033[1;31m"
	sColorBlue    = "\033[1;34m"
	sColorGreen   = "\033[1;32m"
	sColorYellow  = "\033[33m"
	sColorDim     = "\033[2m"
)

func colorizeKind(kind string) string {
	switch kind {
	case "user":
		return sColorBlue + kind + sColorReset
	case "ai":
		return sColorGreen + kind + sColorReset
	case "system":
		return sColorYellow + kind + sColorReset
	default:
		return sColorDim + kind + sColorReset
	}
}

func colorizeSnippet(snippet string) string {
	snippet = strings.ReplaceAll(snippet, ">>>", sColorBoldRed)
	snippet = strings.ReplaceAll(snippet, "<<<", sColorReset)
	return snippet
}

func tsvField(s string) string {
	s = strings.ReplaceAll(s, "\t", " ")
	return strings.ReplaceAll(s, "\n", " ")
}

func searchCmd() *cobra.Command {
	var kind, since string
	var limit int
	var all, noIndex, color bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search across indexed conversation chunks",
		Long: `Search indexed chunks using FTS5 (substring match for CJK queries).
Output is TSV for fzf integration:
  sessionKey, chunkId, updatedAt, kind, agent, repo, summary, snippet

Example shell function:
  aistf() {
    aist search --color "$*" | fzf \
      --ansi \
      --delimiter='\t' --with-nth=3.. \
      --preview 'aist preview {1} --hit {2} --context 5 --query {q}' \
      --preview-window=right:60%:wrap \
      --bind 'enter:execute(aist open {1} --chunk {2})'
  }`,
		Args: cobra.MinimumNArgs(1),
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

			results, err := search.Search(db, search.Options{
				Query:   strings.Join(args, " "),
				Kind:    kind,
				Since:   since,
				Limit:   limit,
				AllHits: all,
			})
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(os.Stderr, "No results found.")
				return nil
			}

			color = color || isTerminal(os.Stdout)
			for _, r := range results {
				snippet := tsvField(r.Snippet)
				updated, k := r.UpdatedAt, r.Kind
				if color {
					snippet = colorizeSnippet(snippet)
					updated = sColorDim + updated + sColorReset
					k = colorizeKind(k)
				} else {
					snippet = strings.NewReplacer(">>>", "", "<<<", "").Replace(snippet)
				}
				agent := r.Subagent
				if agent == "" {
					agent = "-"
				}
				repo := r.RepoCwd
				if repo == "" {
					repo = "-"
				}
				// first two fields stay plain for fzf {1} {2}
				fmt.Printf("%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.SessionKey, r.ChunkID, updated, k, agent, repo, tsvField(r.Summary), snippet)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Filter by chunk kind (user/ai/system/compact)")
	cmd.Flags().StringVar(&since, "since", "", "Filter sessions updated since date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 100, "Max results")
	cmd.Flags().BoolVar(&all, "all", false, "Show every matching chunk, not just the best per session")
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "Skip refreshing the index first")
	cmd.Flags().BoolVar(&color, "color", false, "Force ANSI colors")

	return cmd
}
