package commands

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/haivivi/zoocari/cmd/zoocari/internal/build"
	"github.com/haivivi/zoocari/pkg/cli"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := outputFormat()
		if err != nil {
			return err
		}
		if f != cli.FormatText {
			return cli.Output(os.Stdout, build.Get(), f)
		}
		fmt.Println(build.String())
		if IsVerbose() {
			fmt.Printf("  go:     %s\n", runtime.Version())
			fmt.Printf("  config: %s\n", configPath)
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().StringVarP(&formatOutput, "format", "o", "text", "output format: text, json or yaml")
	rootCmd.AddCommand(versionCmd)
}
