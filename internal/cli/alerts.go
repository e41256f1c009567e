package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/model"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Manage project spend alert rules",
}

var alertsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or update a project's alert rule",
	RunE:  runAlertsSet,
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alert rules",
	RunE:  runAlertsList,
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.AddCommand(alertsSetCmd)
	alertsCmd.AddCommand(alertsListCmd)

	alertsSetCmd.Flags().String("project", "", "Project ID")
	alertsSetCmd.Flags().StringP("type", "t", "daily", "Threshold type (daily, weekly)")
	alertsSetCmd.Flags().String("threshold", "", "Threshold in USD")
	alertsSetCmd.Flags().StringSlice("channels", nil, "Channels to notify (email, slack, webhook); empty means all configured")
	alertsSetCmd.Flags().Bool("disabled", false, "Store the rule disabled")
	_ = alertsSetCmd.MarkFlagRequired("project")
	_ = alertsSetCmd.MarkFlagRequired("threshold")
}

func runAlertsSet(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	projectID, _ := cmd.Flags().GetString("project")
	thresholdType, _ := cmd.Flags().GetString("type")
	thresholdRaw, _ := cmd.Flags().GetString("threshold")
	channelNames, _ := cmd.Flags().GetStringSlice("channels")
	disabled, _ := cmd.Flags().GetBool("disabled")

	threshold, err := decimal.NewFromString(thresholdRaw)
	if err != nil {
		return fmt.Errorf("invalid --threshold %q: %w", thresholdRaw, err)
	}

	var channels []model.Channel
	for _, name := range channelNames {
		c := model.Channel(strings.ToLower(strings.TrimSpace(name)))
		if !c.Valid() {
			return fmt.Errorf("unknown channel %q", name)
		}
		channels = append(channels, c)
	}

	store, err := initStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	project, err := store.GetProject(cmd.Context(), projectID)
	if err != nil {
		return fmt.Errorf("get project: %w", err)
	}

	rule := &model.AlertRule{
		ProjectID:      project.ID,
		ThresholdType:  model.ThresholdType(thresholdType),
		ThresholdValue: threshold,
		Enabled:        !disabled,
		Channels:       channels,
	}
	if err := store.SetAlertRule(cmd.Context(), rule); err != nil {
		return err
	}

	fmt.Printf("Alert rule set:\n")
	fmt.Printf("  ID:        %s\n", rule.ID)
	fmt.Printf("  Project:   %s\n", project.Name)
	fmt.Printf("  Type:      %s\n", rule.ThresholdType)
	fmt.Printf("  Threshold: $%s\n", threshold.StringFixed(2))
	fmt.Printf("  Channels:  %s\n", formatChannels(channels))
	fmt.Printf("  Enabled:   %t\n", rule.Enabled)

	return nil
}

func runAlertsList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := initStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	rules, err := store.ListAlertRules(cmd.Context())
	if err != nil {
		return fmt.Errorf("list alert rules: %w", err)
	}

	if len(rules) == 0 {
		fmt.Println("No alert rules configured. Use 'asg alerts set' to create one.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "PROJECT\tTYPE\tTHRESHOLD\tCHANNELS\tENABLED\tLAST ALERT\n")
	for _, r := range rules {
		last := "-"
		if r.LastAlertSentAt != nil {
			last = r.LastAlertSentAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t$%s\t%s\t%t\t%s\n",
			r.ProjectName, r.ThresholdType, r.ThresholdValue.StringFixed(2),
			formatChannels(r.Channels), r.Enabled, last)
	}
	w.Flush()

	return nil
}

func formatChannels(channels []model.Channel) string {
	if len(channels) == 0 {
		return "all"
	}
	names := make([]string, len(channels))
	for i, c := range channels {
		names[i] = string(c)
	}
	return strings.Join(names, ",")
}
