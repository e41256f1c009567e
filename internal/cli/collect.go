package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/collector"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/cronguard"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/model"
	"github.com/spf13/cobra"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect daily provider costs",
	Long: `Collect one day of provider costs for every team with an admin key, or for a
single team with --team. The date defaults to yesterday in the collector timezone.`,
	RunE: runCollect,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate alert thresholds and notify on breaches",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(checkCmd)

	collectCmd.Flags().String("team", "", "Collect a single team")
	collectCmd.Flags().String("date", "", "Date to collect (YYYY-MM-DD)")
	collectCmd.Flags().Bool("once", false, "Skip if the daily collection already ran for this date")
}

func runCollect(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	teamID, _ := cmd.Flags().GetString("team")
	dateFlag, _ := cmd.Flags().GetString("date")
	once, _ := cmd.Flags().GetBool("once")

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	date := time.Now().In(loc).AddDate(0, 0, -1)
	if dateFlag != "" {
		date, err = model.ParseDate(dateFlag, loc)
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", dateFlag, err)
		}
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	coll, err := a.collector()
	if err != nil {
		return err
	}

	if teamID != "" {
		result, err := coll.CollectTeam(cmd.Context(), teamID, date)
		if err != nil {
			return err
		}
		printCollection([]collector.TeamOutcome{{TeamID: teamID, Result: result}})
		return nil
	}

	var summary *collector.Summary
	work := func(ctx context.Context) error {
		var runErr error
		summary, runErr = coll.CollectAll(ctx, date)
		return runErr
	}

	if once {
		outcome, err := a.guard().RunOnce(cmd.Context(), cronguard.JobDailyCollection, cronguard.DailyKey(date), work)
		if summary != nil {
			printCollection(summary.Teams)
		}
		if err != nil {
			return err
		}
		if outcome.Skipped {
			fmt.Printf("Daily collection for %s already ran at %s\n",
				outcome.DateKey, outcome.ExecutedAt.Format(time.RFC3339))
		}
		return nil
	}

	err = work(cmd.Context())
	if summary != nil {
		printCollection(summary.Teams)
		fmt.Printf("\n%d succeeded, %d failed, %d skipped (no admin key)\n",
			summary.Succeeded, summary.Failed, summary.Skipped)
	}
	return err
}

func printCollection(outcomes []collector.TeamOutcome) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "TEAM\tDATE\tPAGES\tRECORDS\tUPSERTED\tSTATUS\n")
	for _, o := range outcomes {
		if o.Result == nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\tFAILED: %s\n", o.TeamID, o.Error)
			continue
		}
		status := "ok"
		if o.Result.Partial {
			status = "PARTIAL"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			o.TeamID, o.Result.Date, o.Result.Pages, o.Result.Count, o.Result.Upserted, status)
	}
	w.Flush()
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	eval, err := a.evaluator()
	if err != nil {
		return err
	}

	result, err := eval.Evaluate(cmd.Context())
	if err != nil {
		return fmt.Errorf("evaluate thresholds: %w", err)
	}

	fmt.Printf("Checked:   %d\n", result.Checked)
	fmt.Printf("Breaches:  %d\n", result.Breaches)
	fmt.Printf("Throttled: %d\n", result.Throttled)
	fmt.Printf("Failed:    %d\n", result.Failed)
	return nil
}
