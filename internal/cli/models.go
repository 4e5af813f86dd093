package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models in the catalog",
	Long: `List the models declared in the catalog, with their inlet type and
parameters.

Examples:
  kineticfit models
  kineticfit models --catalog liver.yaml`,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	cat, err := loadCatalog()
	if err != nil {
		return err
	}

	for _, m := range cat.Models {
		fmt.Printf("%s  %s (%s inlet)\n", m.ID, m.LongName, m.Inlet)
		for _, p := range m.Parameters {
			fmt.Printf("    %-6s %-30s default %g, range [%g, %g] %s\n",
				p.ShortName, p.LongName, p.Default, p.Lower, p.Upper, p.Units)
		}
	}
	return nil
}
