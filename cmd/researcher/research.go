package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mohammad-safakhou/researcher/internal/helpers"
	"github.com/mohammad-safakhou/researcher/internal/research"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func researchCmd(cfgPath *string) *cobra.Command {
	var (
		noLLMPlanner bool
		forceBrowser bool
		asJSON       bool
	)
	cmd := &cobra.Command{
		Use:   "research <query>",
		Short: "Run one research task and print its progress and conclusion",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.close()

			orch, err := a.orchestrator(orchestratorOptions{forceBrowser: forceBrowser, noLLMPlanner: noLLMPlanner})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var printer eventPrinter
			if !asJSON {
				printer.w = out
			}

			var g errgroup.Group
			g.Go(func() error {
				for ev := range orch.Progress() {
					printer.progress(ev)
				}
				return nil
			})
			g.Go(func() error {
				for ev := range orch.Results() {
					printer.result(ev)
				}
				return nil
			})

			task, runErr := runOnce(ctx, orch, strings.Join(args, " "))
			closeErr := orch.Close()
			_ = g.Wait()
			if runErr != nil {
				return runErr
			}
			if closeErr != nil {
				return closeErr
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(task)
			}
			printSummary(out, task)
			if task.Status == research.StatusFailed {
				return fmt.Errorf("research failed: %s", task.Error)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noLLMPlanner, "no-llm-planner", false, "plan with the deterministic planner only")
	cmd.Flags().BoolVar(&forceBrowser, "browser", false, "search through the browser for every sub-query")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the final task as JSON")
	return cmd
}

// runOnce starts query and waits for it. An interrupt cancels the task and
// still waits for its terminal state.
func runOnce(ctx context.Context, orch *research.Orchestrator, query string) (*research.ResearchTask, error) {
	id, err := orch.StartResearch(ctx, query)
	if err != nil {
		return nil, err
	}
	task, err := orch.Wait(ctx, id)
	if err == nil {
		return task, nil
	}
	if ctx.Err() == nil {
		return nil, err
	}
	_ = orch.Cancel(id)
	return orch.Wait(context.Background(), id)
}

// eventPrinter writes one line per event; a nil writer discards them.
type eventPrinter struct {
	w io.Writer
}

func (p eventPrinter) progress(ev research.ProgressEvent) {
	if p.w == nil || ev.CurrentOperation == "" {
		return
	}
	fmt.Fprintf(p.w, "[%3.0f%%] %-10s %s\n", ev.Percentage, ev.PhaseLabel, ev.CurrentOperation)
}

func (p eventPrinter) result(ev research.ResultEvent) {
	if p.w == nil {
		return
	}
	fmt.Fprintf(p.w, "       found   %s (%s)\n", helpers.CleanText(ev.Result.Title), ev.Result.URL)
}

func printSummary(w io.Writer, task *research.ResearchTask) {
	fmt.Fprintf(w, "\nStatus: %s", task.Status)
	if task.Degraded {
		fmt.Fprint(w, " (degraded)")
	}
	fmt.Fprintln(w)
	if task.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", task.Error)
	}
	for _, warning := range task.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warning)
	}
	if task.Conclusion != "" {
		fmt.Fprintf(w, "\n%s\n", task.Conclusion)
	}
	if len(task.Results) == 0 {
		return
	}
	citations := make([]helpers.Citation, 0, len(task.Results))
	for i, r := range task.Results {
		citations = append(citations, helpers.Citation{
			Index:    i + 1,
			Title:    r.Title,
			URL:      r.URL,
			Snippet:  r.Content,
			Accessed: r.ScrapedAt,
			Excerpt:  r.Excerpt,
		})
	}
	fmt.Fprintln(w, "\nSources:")
	for _, line := range helpers.FormatCitations(citations, helpers.WithMaxSnippetLength(120)) {
		fmt.Fprintln(w, line)
	}
}
