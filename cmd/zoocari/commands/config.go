package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/zoocari/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and check the configuration",
}

var configPrintCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cli.PrintSuccess(os.Stdout, "%s is valid", configPath)
		if !cfg.Generation.Local.Enabled() && !cfg.Generation.Cloud.Enabled() {
			cli.PrintWarning(os.Stdout, "no generation provider is enabled")
		}
		if cfg.Safety.Moderation.Local.Enabled() || cfg.Safety.Moderation.Cloud.Enabled() {
			return nil
		}
		cli.PrintWarning(os.Stdout, "no moderation provider is enabled, output moderation is off")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configPrintCmd)
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)
}
