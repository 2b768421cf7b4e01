package config

import (
	"os"

	"github.com/marmos91/nbdgo/internal/cli/output"
	"github.com/marmos91/nbdgo/pkg/config"
	"github.com/spf13/cobra"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the resolved configuration",
	Long: `Display the current nbdgo configuration, after defaults and
environment variable overrides are applied.

By default outputs YAML format. Use --output to change format.

Examples:
  # Show resolved config as YAML
  nbdgo config show

  # Show as JSON
  nbdgo config show --output json

  # Show a specific config file
  nbdgo config show --config /etc/nbdgo/config.yaml`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, cfg)
	default:
		return output.PrintYAML(os.Stdout, cfg)
	}
}
