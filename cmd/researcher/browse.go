package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/researcher/internal/browser"
	"github.com/mohammad-safakhou/researcher/internal/navigator"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func browseCmd(cfgPath *string) *cobra.Command {
	var (
		startURL      string
		headless      bool
		maxIterations int
		vision        bool
	)
	cmd := &cobra.Command{
		Use:   "browse <goal>",
		Short: "Let the language model drive the browser toward a goal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.close()
			if a.llm == nil {
				return errors.New("browse requires a language model (llm.api_key)")
			}

			opts := a.launchOptions()
			if cmd.Flags().Changed("headless") {
				opts.Headless = headless
			}
			goal := strings.Join(args, " ")
			return browser.WithSession(ctx, a.cfg.Browser, opts, a.logger, func(s *browser.Session) error {
				if startURL != "" {
					if err := s.Navigate(ctx, startURL); err != nil {
						return err
					}
				}
				nav := &navigator.Navigator{
					Browser:       s,
					LLM:           a.llm,
					MaxIterations: maxIterations,
					Vision:        vision,
					Logger:        a.logger,
				}
				outcome, err := nav.ExecuteTask(ctx, goal)
				if err != nil {
					return err
				}
				a.logger.Info("Goal reached.", zap.Int("iterations", outcome.Iterations), zap.Int("actions", len(outcome.Actions)))
				fmt.Fprintln(cmd.OutOrStdout(), outcome.Message)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&startURL, "url", "", "page to open before the first step")
	cmd.Flags().BoolVar(&headless, "headless", true, "run the browser without a window (default browser.headless)")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", navigator.DefaultMaxIterations, "step budget")
	cmd.Flags().BoolVar(&vision, "vision", false, "attach a screenshot to every page state")
	return cmd
}
