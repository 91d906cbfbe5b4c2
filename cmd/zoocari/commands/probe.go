package commands

import (
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/haivivi/zoocari/cmd/zoocari/internal/app"
	"github.com/haivivi/zoocari/pkg/cli"
	"github.com/haivivi/zoocari/pkg/fallback"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check the local providers",
	Long: `Check every configured local provider once and print whether it is
available. Capabilities without a local provider go straight to the cloud
and are not listed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := outputFormat()
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		caps := make([]fallback.Capability, 0, len(a.Probes))
		for c := range a.Probes {
			caps = append(caps, c)
		}
		slices.Sort(caps)

		statuses := make(map[fallback.Capability]fallback.Status, len(caps))
		for _, c := range caps {
			p := a.Probes[c]
			p.Available(ctx)
			statuses[c] = p.Status()
		}
		if f != cli.FormatText {
			return cli.Output(os.Stdout, statuses, f)
		}
		if len(caps) == 0 {
			cli.PrintWarning(os.Stdout, "no local providers configured")
			return nil
		}
		for _, c := range caps {
			st := statuses[c]
			if st.Error != "" {
				cli.PrintWarning(os.Stdout, "%-10s %-12s %s: %s", c, st.Provider, st.State, st.Error)
				continue
			}
			cli.PrintSuccess(os.Stdout, "%-10s %-12s %s", c, st.Provider, st.State)
		}
		return nil
	},
}

func init() {
	probeCmd.Flags().StringVarP(&formatOutput, "format", "o", "text", "output format: text, json or yaml")
	rootCmd.AddCommand(probeCmd)
}
