package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var pricingCmd = &cobra.Command{
	Use:   "pricing",
	Short: "Inspect the model pricing catalog",
}

var pricingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List providers and their model pricing",
	RunE:  runPricingList,
}

var pricingResolveCmd = &cobra.Command{
	Use:   "resolve <provider> <line-item>",
	Short: "Show which model a billing line item resolves to",
	Args:  cobra.ExactArgs(2),
	RunE:  runPricingResolve,
}

func init() {
	rootCmd.AddCommand(pricingCmd)
	pricingCmd.AddCommand(pricingListCmd)
	pricingCmd.AddCommand(pricingResolveCmd)
}

func runPricingList(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	catalog, err := initCatalog(cfg)
	if err != nil {
		return err
	}

	providers := catalog.Providers()
	if len(providers) == 0 {
		fmt.Println("No pricing loaded. Check pricing directory in config.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "PROVIDER\tMODEL\tINPUT ($/1M)\tOUTPUT ($/1M)\tCACHED INPUT ($/1M)\n")

	for _, p := range providers {
		for _, m := range catalog.Models(p) {
			cached := "-"
			if m.CachedInputPerMillion > 0 {
				cached = fmt.Sprintf("$%.2f", m.CachedInputPerMillion)
			}
			fmt.Fprintf(w, "%s\t%s\t$%.2f\t$%.2f\t%s\n",
				p, m.Model,
				m.InputPerMillion, m.OutputPerMillion,
				cached,
			)
		}
	}
	w.Flush()

	return nil
}

func runPricingResolve(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	catalog, err := initCatalog(cfg)
	if err != nil {
		return err
	}

	model, ok := catalog.ResolveModel(args[0], args[1])
	if !ok {
		fmt.Printf("%q does not match a known %s model\n", args[1], args[0])
		return nil
	}
	fmt.Println(model)
	return nil
}
