package cli

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestCardRender(t *testing.T) {
	c := Card{
		Styles: NewStyles(DefaultTheme),
		Title:  "Zoocari",
		Status: "ok",
		Sections: []Section{
			{Lines: []string{"Lions sleep up to twenty hours a day, mostly in the shade of big trees on the savanna."}},
			{Label: "Sources", Lines: []string{"[1] Lion"}},
			{Label: "Empty"},
		},
	}
	out := c.Render(40)

	for _, want := range []string{"Zoocari", "[ok]", "Sources", "[1] Lion", "╭", "╯"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Empty") {
		t.Fatalf("empty section rendered:\n%s", out)
	}
	for _, line := range strings.Split(out, "\n") {
		if w := lipgloss.Width(line); w > 40 {
			t.Fatalf("line %q is %d wide", line, w)
		}
	}
}
