package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/ai-session-tree/internal/chunk"
	"github.com/Zuo-Peng/ai-session-tree/internal/reconstruct"
	"github.com/Zuo-Peng/ai-session-tree/internal/render"
)

type toolRow struct {
	agent string
	x     chunk.ToolExecution
}

func collectTools(cs []chunk.Chunk, agent string, out []toolRow) []toolRow {
	for _, c := range cs {
		ai, ok := c.(*chunk.AIChunk)
		if !ok {
			continue
		}
		for _, x := range ai.ToolExecutions {
			out = append(out, toolRow{agent: agent, x: x})
		}
		for _, p := range ai.Processes {
			out = collectTools(p.Chunks, p.SubagentID, out)
		}
	}
	return out
}

// sessionActivity merges the main stream's activity with that of every
// subagent process, linked or orphaned.
func sessionActivity(res *reconstruct.Result) chunk.Activity {
	var total chunk.Activity
	total.Merge(res.Activity)
	var walk func(cs []chunk.Chunk)
	walk = func(cs []chunk.Chunk) {
		for _, c := range cs {
			ai, ok := c.(*chunk.AIChunk)
			if !ok {
				continue
			}
			for _, p := range ai.Processes {
				total.Merge(p.Activity)
				walk(p.Chunks)
			}
		}
	}
	walk(res.Chunks)
	for _, p := range res.Orphans {
		total.Merge(p.Activity)
		walk(p.Chunks)
	}
	return total
}

type toolCount struct {
	name  string
	calls int
}

// toolCounts orders a tools summary by calls, most used first.
func toolCounts(tools map[string]int) []toolCount {
	out := make([]toolCount, 0, len(tools))
	for name, n := range tools {
		out = append(out, toolCount{name, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].calls != out[j].calls {
			return out[i].calls > out[j].calls
		}
		return out[i].name < out[j].name
	})
	return out
}

func printSummary(res *reconstruct.Result) error {
	a := sessionActivity(res)
	if len(a.Tools) == 0 {
		fmt.Fprintln(os.Stderr, "No tool executions.")
		return nil
	}
	table := tablewriter.NewTable(os.Stdout)
	table.Header([]string{"Tool", "Calls"})
	table.Configure(func(c *tablewriter.Config) {
		c.Row.Alignment.PerColumn = []tw.Align{tw.AlignLeft, tw.AlignRight}
	})
	for _, tc := range toolCounts(a.Tools) {
		table.Append([]string{tc.name, strconv.Itoa(tc.calls)})
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Printf("files read: %d  files modified: %d  commands: %d\n", len(a.FilesRead), len(a.FilesModified), len(a.Commands))
	fmt.Printf("tokens: in %s  out %s  cache read %s  cache write %s  context %s\n",
		render.FormatTokens(a.Usage.InputTokens), render.FormatTokens(a.Usage.OutputTokens),
		render.FormatTokens(a.Usage.CacheReadTokens), render.FormatTokens(a.Usage.CacheCreationTokens),
		render.FormatTokens(a.ContextWindow))
	return nil
}

func toolsCmd() *cobra.Command {
	var pendingOnly, summary bool

	cmd := &cobra.Command{
		Use:   "tools <file.jsonl>",
		Short: "List tool executions with durations and status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := loadSession(args[0])
			if err != nil {
				return err
			}
			if summary {
				return printSummary(res)
			}

			rows := collectTools(res.Chunks, "", nil)
			for _, p := range res.Orphans {
				rows = collectTools(p.Chunks, p.SubagentID, rows)
			}
			if len(rows) == 0 {
				fmt.Fprintln(os.Stderr, "No tool executions.")
				return nil
			}

			table := tablewriter.NewTable(os.Stdout)
			table.Header([]string{"Agent", "Tool", "ID", "Start", "Duration", "Status"})
			table.Configure(func(c *tablewriter.Config) {
				c.Row.Alignment.PerColumn = []tw.Align{
					tw.AlignLeft, tw.AlignLeft, tw.AlignLeft, tw.AlignLeft, tw.AlignRight, tw.AlignLeft,
				}
			})
			for _, r := range rows {
				if pendingOnly && r.x.Resolved() {
					continue
				}
				agent := r.agent
				if agent == "" {
					agent = "main"
				}
				start := "-"
				if !r.x.Start.IsZero() {
					start = r.x.Start.Local().Format("15:04:05")
				}
				dur := "-"
				if d, ok := r.x.Duration(); ok {
					dur = formatDuration(d)
				}
				table.Append([]string{agent, r.x.ToolName, r.x.ToolUseID, start, dur, toolStatus(r.x)})
			}
			return table.Render()
		},
	}

	cmd.Flags().BoolVar(&pendingOnly, "pending", false, "Only show executions without a result")
	cmd.Flags().BoolVar(&summary, "summary", false, "Show calls per tool, file activity and token usage instead")

	return cmd
}

func toolStatus(x chunk.ToolExecution) string {
	switch {
	case !x.Resolved():
		return "pending"
	case x.Result.IsError:
		return "error"
	default:
		return "ok"
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
	}
	return d.Round(100 * time.Millisecond).String()
}
