package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"retailcopilot/internal/nlsql"
)

// selfcheckCmd reports the template catalog's construction-time audit.
var selfcheckCmd = &cobra.Command{
	Use:   "selfcheck",
	Short: "Audit the SQL template catalog",
	Long: `Renders every catalog template against representative probe questions and
reports the fraction that is structurally well formed, before and after
normalization. Useful after editing execution settings.`,
	RunE: runSelfcheck,
}

func runSelfcheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	report := nlsql.NewCatalog(cfg.Execution.CostRatio).Report()

	fmt.Printf("probes:          %d\n", report.Probes)
	fmt.Printf("raw well-formed: %.0f%%\n", report.RawRate*100)
	fmt.Printf("normalized:      %.0f%%\n", report.NormalizedRate*100)
	if report.NormalizedRate < 1.0 {
		return fmt.Errorf("catalog check failed: %.0f%% of normalized templates are well formed", report.NormalizedRate*100)
	}
	return nil
}
