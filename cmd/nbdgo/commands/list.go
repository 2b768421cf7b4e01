package commands

import (
	"fmt"
	"os"

	"github.com/marmos91/nbdgo/internal/cli/output"
	"github.com/marmos91/nbdgo/pkg/config"
	"github.com/spf13/cobra"
)

var listOutput string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List exports defined in the configuration",
	Long: `List the exports defined in the configuration file, along with
their plugin type, filter chain, and read-only status.

This reads configuration only; it does not require the server to be
running. Use 'nbdgo dial <address> --export <name>' to probe one
export on a running server.

Examples:
  # List configured exports
  nbdgo list

  # List as JSON
  nbdgo list --output json`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

type exportSummary struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Plugin      string   `json:"plugin" yaml:"plugin"`
	Filters     []string `json:"filters,omitempty" yaml:"filters,omitempty"`
	ReadOnly    bool     `json:"read_only" yaml:"read_only"`
	Default     bool     `json:"default,omitempty" yaml:"default,omitempty"`
}

func runList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(listOutput)
	if err != nil {
		return err
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	summaries := make([]exportSummary, 0, len(cfg.Exports))
	for name, exp := range cfg.Exports {
		filters := make([]string, 0, len(exp.Filters))
		for _, f := range exp.Filters {
			filters = append(filters, f.Type)
		}
		summaries = append(summaries, exportSummary{
			Name:        name,
			Description: exp.Description,
			Plugin:      exp.Plugin.Type,
			Filters:     filters,
			ReadOnly:    exp.ReadOnly,
			Default:     name == cfg.DefaultExport,
		})
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, summaries)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, summaries)
	default:
		printExportsTable(summaries)
		return nil
	}
}

func printExportsTable(summaries []exportSummary) {
	if len(summaries) == 0 {
		fmt.Println("No exports configured.")
		return
	}

	fmt.Println("NAME            PLUGIN   READ-ONLY  DEFAULT  DESCRIPTION")
	for _, s := range summaries {
		readOnly := "no"
		if s.ReadOnly {
			readOnly = "yes"
		}
		isDefault := ""
		if s.Default {
			isDefault = "*"
		}
		fmt.Printf("%-15s %-8s %-10s %-8s %s\n", s.Name, s.Plugin, readOnly, isDefault, s.Description)
	}
}
