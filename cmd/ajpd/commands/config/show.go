package config

import (
	"encoding/json"
	"fmt"

	"github.com/marmos91/ajpd/pkg/config"
	"github.com/spf13/cobra"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Long: `Display the configuration after defaults and environment overrides
have been applied.

Examples:
  ajpd config show
  ajpd config show --output json`,
	RunE: runShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
}

func runShow(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	out := cmd.OutOrStdout()
	switch showOutput {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Fprintln(out, string(data))
	case "yaml":
		data, err := config.RenderYAML(cfg)
		if err != nil {
			return err
		}
		fmt.Fprint(out, data)
	default:
		return fmt.Errorf("unknown output format %q (use yaml or json)", showOutput)
	}
	return nil
}
