package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var (
		configPath string
		runID      string
		recent     int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show inference token usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()

			// Run detail view
			if runID != "" {
				reqs, err := a.tracker.RunRequests(ctx, runID)
				if err != nil {
					return err
				}
				if len(reqs) == 0 {
					fmt.Println("No inference calls found for run.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "#\tTIME\tSTAGE\tMODEL\tPROMPT\tCOMPLETION\tTOTAL")
				for _, r := range reqs {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%d\n",
						r.Seq, r.CreatedAt.Format("2006-01-02T15:04:05"), r.Stage, r.Model, r.PromptTokens, r.CompletionTokens, r.TotalTokens)
				}
				return w.Flush()
			}

			if recent > 0 {
				recs, err := a.tracker.Recent(ctx, recent)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tRUN\tSTAGE\tMODEL\tTOTAL")
				for _, r := range recs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
						r.CreatedAt.Format("2006-01-02T15:04:05"), r.RunID, r.Stage, r.Model, r.TotalTokens)
				}
				return w.Flush()
			}

			summaries, err := a.tracker.Summary(ctx)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("No usage data found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tSTAGE\tREQUESTS\tPROMPT\tCOMPLETION\tTOTAL")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n",
					s.Model, s.Stage, s.RequestCount, s.TotalPrompt, s.TotalCompletion, s.TotalTokens)
			}
			return w.Flush()
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&runID, "run-id", "", "show the inference calls of one generation run")
	cmd.Flags().IntVar(&recent, "recent", 0, "list the N most recent inference calls")
	return cmd
}
