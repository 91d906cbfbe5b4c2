package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/haivivi/zoocari/pkg/genx"
	"github.com/haivivi/zoocari/pkg/session"

	_ "embed"
)

//go:embed persona.gotmpl
var defaultPersonaTpl string

var defaultPersona = template.Must(template.New("persona").Parse(defaultPersonaTpl))

// ParsePersona parses a persona template, as accepted by WithPersona.
func ParsePersona(text string) (*template.Template, error) {
	t, err := template.New("persona").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("assistant: parse persona: %w", err)
	}
	return t, nil
}

// SystemPrompt renders the persona instructions around the retrieved
// grounding text.
func (a *Assistant) SystemPrompt(grounding string) (string, error) {
	var sb strings.Builder
	err := a.persona.Execute(&sb, struct {
		Park    string
		Context string
	}{a.park, strings.TrimSpace(grounding)})
	if err != nil {
		return "", fmt.Errorf("assistant: render persona: %w", err)
	}
	return sb.String(), nil
}

// conversation returns the recorded turns of the session followed by
// message. A history that cannot be read is logged and left out.
func (a *Assistant) conversation(ctx context.Context, sessionID, message string) []genx.Message {
	var msgs []genx.Message
	if a.sessions != nil && sessionID != "" {
		turns, err := a.sessions.History(ctx, sessionID, a.history)
		if err != nil {
			slog.Warn("assistant: history unavailable", "session", sessionID, "err", err)
		}
		for _, t := range turns {
			role := genx.RoleUser
			if t.Role == session.RoleAssistant {
				role = genx.RoleModel
			}
			msgs = append(msgs, genx.Message{Role: role, Content: t.Content})
		}
	}
	return append(msgs, genx.Message{Role: genx.RoleUser, Content: message})
}
