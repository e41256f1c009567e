package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/model"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/report"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build or send the weekly spend report",
	Long: `Build a team's weekly spend report by project and line item, compared with
the week before. With --send, email the report to every team with a report address.`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().String("team", "", "Team to report on")
	reportCmd.Flags().String("week", "", "Any date in the week to report (default: last full week)")
	reportCmd.Flags().StringP("format", "f", "text", "Output format (text, json, html)")
	reportCmd.Flags().Bool("send", false, "Email reports to all teams instead of printing")
}

func runReport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	teamID, _ := cmd.Flags().GetString("team")
	weekFlag, _ := cmd.Flags().GetString("week")
	format, _ := cmd.Flags().GetString("format")
	send, _ := cmd.Flags().GetBool("send")

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	weekStart := model.WeekStart(time.Now().In(loc)).AddDate(0, 0, -7)
	if weekFlag != "" {
		day, err := model.ParseDate(weekFlag, loc)
		if err != nil {
			return fmt.Errorf("invalid --week %q: %w", weekFlag, err)
		}
		weekStart = model.WeekStart(day)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	gen := a.reporter()

	if send {
		summary, err := gen.SendAll(cmd.Context(), weekStart)
		if summary != nil {
			fmt.Printf("Week of %s: %d sent, %d failed, %d skipped\n",
				summary.WeekStart, summary.Sent, summary.Failed, summary.Skipped)
		}
		return err
	}

	if teamID == "" {
		return fmt.Errorf("--team is required unless --send is set")
	}

	r, err := gen.Build(cmd.Context(), teamID, weekStart)
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}

	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "html":
		body, err := report.RenderHTML(r)
		if err != nil {
			return err
		}
		fmt.Println(body)
		return nil
	}

	printReport(r)
	return nil
}

func printReport(r *report.Report) {
	fmt.Printf("=== %s ===\n", report.Subject(r))
	fmt.Printf("Period: %s to %s\n\n", r.WeekStart, r.WeekEnd)
	fmt.Printf("Total Cost:     $%s\n", r.Total.StringFixed(2))
	fmt.Printf("Previous Week:  $%s\n", r.PreviousTotal.StringFixed(2))
	fmt.Printf("Change:         %s%%\n", r.ChangePct.StringFixed(1))
	if r.Unattributed.IsPositive() {
		fmt.Printf("Unattributed:   $%s\n", r.Unattributed.StringFixed(2))
	}

	if len(r.Projects) > 0 {
		fmt.Printf("\nBy Project:\n")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "  PROJECT\tCOST\tPREVIOUS\tSHARE\n")
		for _, p := range r.Projects {
			fmt.Fprintf(w, "  %s\t$%s\t$%s\t%s%%\n",
				p.Name, p.Cost.StringFixed(2), p.Previous.StringFixed(2), p.SharePct.StringFixed(1))
		}
		w.Flush()
	}

	if len(r.LineItems) > 0 {
		fmt.Printf("\nTop Line Items:\n")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "  LINE ITEM\tMODEL\tCOST\n")
		for _, li := range r.LineItems {
			m := li.Model
			if m == "" {
				m = "-"
			}
			fmt.Fprintf(w, "  %s\t%s\t$%s\n", li.LineItem, m, li.Cost.StringFixed(2))
		}
		w.Flush()
	}

	if len(r.Insights) > 0 {
		fmt.Printf("\nInsights:\n")
		for _, s := range r.Insights {
			fmt.Printf("  - %s\n", s)
		}
	}
}
