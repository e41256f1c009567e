package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/model"
	"github.com/spf13/cobra"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage internal projects and their upstream project ids",
}

var projectsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a project, optionally bound to an upstream project id",
	RunE:  runProjectsAdd,
}

var projectsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that an upstream project id is reachable with the team's admin key",
	RunE:  runProjectsValidate,
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a team's projects",
	RunE:  runProjectsList,
}

func init() {
	rootCmd.AddCommand(projectsCmd)
	projectsCmd.AddCommand(projectsAddCmd)
	projectsCmd.AddCommand(projectsValidateCmd)
	projectsCmd.AddCommand(projectsListCmd)

	for _, c := range []*cobra.Command{projectsAddCmd, projectsValidateCmd, projectsListCmd} {
		c.Flags().String("team", "", "Team ID")
		_ = c.MarkFlagRequired("team")
	}

	projectsAddCmd.Flags().StringP("name", "n", "", "Project name")
	projectsAddCmd.Flags().String("external-id", "", "Upstream project id")
	projectsAddCmd.Flags().Bool("skip-validation", false, "Do not check the upstream project id")
	_ = projectsAddCmd.MarkFlagRequired("name")

	projectsValidateCmd.Flags().String("external-id", "", "Upstream project id")
	_ = projectsValidateCmd.MarkFlagRequired("external-id")
}

func runProjectsAdd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	teamID, _ := cmd.Flags().GetString("team")
	name, _ := cmd.Flags().GetString("name")
	externalID, _ := cmd.Flags().GetString("external-id")
	skip, _ := cmd.Flags().GetBool("skip-validation")

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	project := &model.Project{TeamID: teamID, Name: name}
	if externalID != "" {
		if !skip {
			credential, err := a.creds.AdminCredential(cmd.Context(), teamID)
			if err != nil {
				return err
			}
			if res := a.client.ValidateProjectID(cmd.Context(), credential, externalID); !res.Valid {
				return fmt.Errorf("project id %s: %s", externalID, res.Error)
			}
		}
		project.ExternalProjectID = &externalID
	}

	if err := a.store.CreateProject(cmd.Context(), project); err != nil {
		return fmt.Errorf("create project: %w", err)
	}

	fmt.Printf("Project created:\n")
	fmt.Printf("  ID:       %s\n", project.ID)
	fmt.Printf("  Name:     %s\n", project.Name)
	if project.ExternalProjectID != nil {
		fmt.Printf("  Upstream: %s\n", *project.ExternalProjectID)
	}
	return nil
}

func runProjectsValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	teamID, _ := cmd.Flags().GetString("team")
	externalID, _ := cmd.Flags().GetString("external-id")

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	credential, err := a.creds.AdminCredential(cmd.Context(), teamID)
	if err != nil {
		return err
	}

	res := a.client.ValidateProjectID(cmd.Context(), credential, externalID)
	if !res.Valid {
		return fmt.Errorf("%s", res.Error)
	}
	fmt.Printf("%s is valid\n", externalID)
	return nil
}

func runProjectsList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	teamID, _ := cmd.Flags().GetString("team")

	store, err := initStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	projects, err := store.ListProjects(cmd.Context(), teamID)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}

	if len(projects) == 0 {
		fmt.Println("No projects configured. Use 'asg projects add' to create one.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tNAME\tUPSTREAM PROJECT\n")
	for _, p := range projects {
		upstream := "-"
		if p.ExternalProjectID != nil {
			upstream = *p.ExternalProjectID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Name, upstream)
	}
	w.Flush()

	return nil
}
