package config

import (
	"fmt"

	"github.com/marmos91/ajpd/pkg/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration the same way "ajpd start" does and report
whether it is valid. Environment overrides are applied.`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	a := cfg.Adapters.AJP
	endpoint := fmt.Sprintf("%s:%d", a.Address, a.Port)
	if a.Transport.Type == "unix" {
		endpoint = a.Unix.Path
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid (ajp %s %s)\n", a.Transport.Type, endpoint)
	return nil
}
