package config

import (
	"fmt"

	"github.com/marmos91/ajpd/pkg/config"
	"github.com/spf13/cobra"
)

var (
	initForce bool
	initPath  string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a commented configuration file holding the default settings.

By default the file goes to $XDG_CONFIG_HOME/ajpd/config.yaml
(~/.config/ajpd/config.yaml). An existing file is left untouched unless
--force is given.

Examples:
  ajpd config init
  ajpd config init --path /etc/ajpd/config.yaml --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing config file")
	initCmd.Flags().StringVarP(&initPath, "path", "p", "", "Write the config file to this path")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := initPath
	if path != "" {
		if err := config.InitConfigToPath(path, initForce); err != nil {
			return err
		}
	} else {
		var err error
		if path, err = config.InitConfig(initForce); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
	fmt.Fprintf(cmd.OutOrStdout(), "Start the server with: ajpd start --config %s\n", path)
	return nil
}
