package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/model"
	"github.com/spf13/cobra"
)

var teamsCmd = &cobra.Command{
	Use:   "teams",
	Short: "Manage teams and their provider admin keys",
}

var teamsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a team",
	RunE:  runTeamsAdd,
}

var teamsSetKeyCmd = &cobra.Command{
	Use:   "set-key",
	Short: "Store a team's provider admin key",
	Long: `Encrypt and store a team's provider admin key. The key is checked against the
provider by resolving the organization it belongs to.`,
	RunE: runTeamsSetKey,
}

var teamsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List teams",
	RunE:  runTeamsList,
}

func init() {
	rootCmd.AddCommand(teamsCmd)
	teamsCmd.AddCommand(teamsAddCmd)
	teamsCmd.AddCommand(teamsSetKeyCmd)
	teamsCmd.AddCommand(teamsListCmd)

	teamsAddCmd.Flags().StringP("name", "n", "", "Team name")
	teamsAddCmd.Flags().String("report-email", "", "Weekly report recipient")
	teamsAddCmd.Flags().String("admin-key", "", "Provider admin key (or ASG_ADMIN_KEY)")
	_ = teamsAddCmd.MarkFlagRequired("name")

	teamsSetKeyCmd.Flags().String("team", "", "Team ID")
	teamsSetKeyCmd.Flags().String("admin-key", "", "Provider admin key (or ASG_ADMIN_KEY)")
	_ = teamsSetKeyCmd.MarkFlagRequired("team")
}

func adminKeyFlag(cmd *cobra.Command) string {
	key, _ := cmd.Flags().GetString("admin-key")
	if key == "" {
		key = os.Getenv("ASG_ADMIN_KEY")
	}
	return key
}

func runTeamsAdd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	name, _ := cmd.Flags().GetString("name")
	reportEmail, _ := cmd.Flags().GetString("report-email")
	adminKey := adminKeyFlag(cmd)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	team := &model.Team{Name: name, ReportEmail: reportEmail}
	if err := a.store.CreateTeam(cmd.Context(), team); err != nil {
		return fmt.Errorf("create team: %w", err)
	}

	fmt.Printf("Team created:\n")
	fmt.Printf("  ID:    %s\n", team.ID)
	fmt.Printf("  Name:  %s\n", team.Name)

	if adminKey == "" {
		fmt.Println("No admin key stored. Use 'asg teams set-key' before collecting costs.")
		return nil
	}
	return storeAdminKey(cmd, a, team.ID, adminKey)
}

func runTeamsSetKey(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	teamID, _ := cmd.Flags().GetString("team")
	adminKey := adminKeyFlag(cmd)
	if adminKey == "" {
		return fmt.Errorf("--admin-key or ASG_ADMIN_KEY is required")
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.store.GetTeam(cmd.Context(), teamID); err != nil {
		return fmt.Errorf("get team: %w", err)
	}
	return storeAdminKey(cmd, a, teamID, adminKey)
}

func storeAdminKey(cmd *cobra.Command, a *app, teamID, adminKey string) error {
	orgID, err := a.client.FetchOrganizationID(cmd.Context(), adminKey)
	if err != nil {
		return fmt.Errorf("verify admin key: %w", err)
	}

	sealed, err := a.creds.Seal(adminKey)
	if err != nil {
		return fmt.Errorf("encrypt admin key: %w", err)
	}

	if err := a.store.UpdateTeamCredential(cmd.Context(), teamID, orgID, sealed); err != nil {
		return fmt.Errorf("store admin key: %w", err)
	}

	fmt.Printf("Admin key stored for organization %s\n", orgID)
	return nil
}

func runTeamsList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := initStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	teams, err := store.ListTeams(cmd.Context())
	if err != nil {
		return fmt.Errorf("list teams: %w", err)
	}

	if len(teams) == 0 {
		fmt.Println("No teams configured. Use 'asg teams add' to create one.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tNAME\tPROVIDER\tORGANIZATION\tADMIN KEY\tREPORT EMAIL\n")
	for _, t := range teams {
		key := "-"
		if t.EncryptedAdminKey != "" {
			key = "set"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Name, t.Provider, dash(t.OrganizationID), key, dash(t.ReportEmail))
	}
	w.Flush()

	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
