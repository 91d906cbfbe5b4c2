package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/zoocari/cmd/zoocari/internal/app"
	"github.com/haivivi/zoocari/pkg/cli"
	"github.com/haivivi/zoocari/pkg/knowledge"
)

var (
	ingestSelect    string
	ingestChunkSize int
	ingestDryRun    bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Add knowledge-base documents to the index",
	Long: `Read animal documents, chunk them into passages, embed them and save
the index snapshot.

Files hold a JSON array, a JSON object or JSON Lines. Each document needs a
text field (text, content or body) and may carry animal, title and url.
Use --select to pick documents out of other shapes with a jq expression.
Re-ingesting a document replaces its passages.`,
	Example: `  zoocari ingest animals.jsonl
  zoocari ingest --select '.data[]' export.json
  zoocari ingest --dry-run animals.jsonl`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var records []knowledge.Record
		var size int64
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			size += int64(len(data))
			rs, err := knowledge.ParseRecords(ctx, data, ingestSelect)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			slog.Debug("ingest: parsed", "file", path, "records", len(rs))
			records = append(records, rs...)
		}
		passages := knowledge.Passages(records, ingestChunkSize)
		if ingestDryRun {
			cli.PrintSuccess(os.Stdout, "%d records, %d passages (dry run), read %s", len(records), len(passages), cli.FormatBytes(size))
			return nil
		}
		if len(passages) == 0 {
			cli.PrintWarning(os.Stdout, "no documents with text found")
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		k, err := app.OpenKnowledge(ctx, cfg, nil)
		if err != nil {
			return err
		}
		defer k.Close()
		if err := k.Index.Add(ctx, passages...); err != nil {
			return err
		}
		if err := k.Save(ctx); err != nil {
			return err
		}
		cli.PrintSuccess(os.Stdout, "indexed %d passages from %d records (%d total)", len(passages), len(records), k.Index.Len())
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSelect, "select", "", "jq expression selecting documents")
	ingestCmd.Flags().IntVar(&ingestChunkSize, "chunk-size", knowledge.DefaultChunkSize, "passage length in characters")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "parse and chunk without indexing")
	rootCmd.AddCommand(ingestCmd)
}
