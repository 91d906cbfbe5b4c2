package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/zoocari/pkg/cli"
	"github.com/haivivi/zoocari/pkg/config"
)

const defaultConfigPath = "zoocari.yaml"

var (
	// Global flags
	verbose    bool
	configPath string
	logFormat  string

	// formatOutput is bound by the commands that print structured output.
	formatOutput string
)

var rootCmd = &cobra.Command{
	Use:   "zoocari",
	Short: "Zoo assistant for kids",
	Long: `zoocari - answers children's questions about zoo animals.

It grounds answers in a knowledge base of animal facts, keeps every
exchange behind a safety gate and speaks answers back in a friendly voice.
Local model servers are preferred; hosted providers take over when a local
server is down.

The configuration file is read from --config, $ZOOCARI_CONFIG or
./zoocari.yaml, in that order. A missing file yields the defaults.

Examples:
  # Index the knowledge base and serve the API
  zoocari ingest animals.jsonl
  zoocari serve --addr :8000

  # Ask from the terminal
  zoocari ask "What do lions eat?"`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogger()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	def := os.Getenv("ZOOCARI_CONFIG")
	if def == "" {
		def = defaultConfigPath
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", def, "configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
}

func setupLogger() error {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	var h slog.Handler
	switch logFormat {
	case "", "text":
		h = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("unknown log format %q", logFormat)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

// loadConfig loads the configuration named by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	slog.Debug("config loaded", "path", configPath)
	return cfg, nil
}

// outputFormat parses the --format flag.
func outputFormat() (cli.Format, error) {
	return cli.ParseFormat(formatOutput)
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}
