package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haivivi/zoocari/cmd/zoocari/internal/app"
	"github.com/haivivi/zoocari/pkg/assistant"
	"github.com/haivivi/zoocari/pkg/cli"
)

const cardWidth = 80

var askSession string

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask one question from the terminal",
	Long: `Ask one question and print the answer with its sources and
follow-up suggestions. Pass --session to continue a conversation.`,
	Example: `  zoocari ask "How long do elephants live?"
  zoocari ask --format json "Why are flamingos pink?"`,
	Args: cobra.MinimumNArgs(1),
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

		reply, err := a.Assistant.Chat(ctx, askSession, strings.Join(args, " "))
		if err != nil {
			return err
		}
		if f != cli.FormatText {
			return cli.Output(os.Stdout, reply, f)
		}
		fmt.Println(renderReply(reply, cardWidth))
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&askSession, "session", "", "session id to continue")
	askCmd.Flags().StringVarP(&formatOutput, "format", "o", "text", "output format: text, json or yaml")
	rootCmd.AddCommand(askCmd)
}

func renderReply(r *assistant.Reply, width int) string {
	status := cli.FormatConfidence(r.Confidence)
	if r.Rejected {
		status = "declined"
	}
	card := cli.Card{
		Styles:   cli.NewStyles(cli.DefaultTheme),
		Title:    "Zoocari",
		Status:   status,
		Sections: []cli.Section{{Lines: []string{r.Text}}},
	}

	var sources []string
	for _, s := range r.Sources {
		line := s.Label
		if s.Title != "" {
			line += " " + s.Title
		}
		if s.Locator != "" {
			line += " (" + s.Locator + ")"
		}
		sources = append(sources, line)
	}
	card.Sections = append(card.Sections, cli.Section{Label: "Sources", Lines: sources})

	var questions []string
	for _, q := range r.Followups {
		questions = append(questions, "• "+q)
	}
	card.Sections = append(card.Sections, cli.Section{Label: "Try asking", Lines: questions})

	var timings []string
	for _, t := range []struct {
		name string
		ms   *int64
	}{
		{"retrieval", r.Timings.RetrievalMS},
		{"generation", r.Timings.GenerationMS},
		{"total", r.Timings.TotalMS},
	} {
		if t.ms != nil {
			timings = append(timings, t.name+" "+cli.FormatDuration(*t.ms))
		}
	}
	if len(timings) > 0 {
		card.Sections = append(card.Sections, cli.Section{Lines: []string{card.Styles.Help.Render(strings.Join(timings, "  "))}})
	}
	return card.Render(width)
}
