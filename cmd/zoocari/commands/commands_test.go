package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/haivivi/zoocari/pkg/assistant"
	"github.com/haivivi/zoocari/pkg/knowledge"
	"github.com/haivivi/zoocari/pkg/timing"
)

func runCmd(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	verbose = false
	formatOutput = "text"
	logFormat = "text"

	rootCmd.SetArgs(args)
	err := rootCmd.Execute()

	wOut.Close()
	wErr.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	var outBuf, errBuf bytes.Buffer
	outBuf.ReadFrom(rOut)
	errBuf.ReadFrom(rErr)

	stdout = outBuf.String()
	stderr = errBuf.String()
	if err != nil {
		exitCode = 1
		if stderr == "" {
			stderr = err.Error()
		}
	}

	resetFlags(rootCmd)
	return
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		f.Changed = false
		f.Value.Set(f.DefValue)
	})
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// writeTestFile writes a file to a temp dir and returns its path.
func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersion(t *testing.T) {
	stdout, _, code := runCmd(t, "version")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stdout, "zoocari") {
		t.Fatalf("expected 'zoocari', got: %s", stdout)
	}
}

func TestVersionJSON(t *testing.T) {
	stdout, _, code := runCmd(t, "version", "--format", "json")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stdout, `"version"`) {
		t.Fatalf("expected JSON, got: %s", stdout)
	}
}

func TestVersionBadFormat(t *testing.T) {
	_, stderr, code := runCmd(t, "version", "--format", "xml")
	if code == 0 {
		t.Fatal("expected non-zero exit")
	}
	if !strings.Contains(stderr, "unsupported output format") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestConfigPrintMasksSecrets(t *testing.T) {
	path := writeTestFile(t, "zoocari.yaml", `
park:
  name: Test Zoo
generation:
  cloud:
    api_key: sk-abcdefghijklmnop
`)
	stdout, stderr, code := runCmd(t, "--config", path, "config", "print")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if strings.Contains(stdout, "sk-abcdefghijklmnop") {
		t.Fatalf("secret leaked:\n%s", stdout)
	}
	for _, want := range []string{"sk-a****mnop", "Test Zoo"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("missing %q in:\n%s", want, stdout)
		}
	}
}

func TestConfigCheckInvalid(t *testing.T) {
	path := writeTestFile(t, "zoocari.yaml", "storage:\n  backend: floppy\n")
	_, stderr, code := runCmd(t, "--config", path, "config", "check")
	if code == 0 {
		t.Fatal("expected non-zero exit")
	}
	if !strings.Contains(stderr, "unknown storage backend") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestIngestDryRun(t *testing.T) {
	path := writeTestFile(t, "animals.jsonl", `{"animal":"Lion","title":"Lion","text":"Lions live in prides."}
{"animal":"Zebra","title":"Zebra","text":"Every zebra has its own stripes."}
{"animal":"Ghost","title":"Nothing here"}
`)
	stdout, stderr, code := runCmd(t, "ingest", "--dry-run", path)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "2 records, 2 passages (dry run)") {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestIngestDryRunSelect(t *testing.T) {
	path := writeTestFile(t, "export.json", `{"data":[
  {"species":"Elephant","content":"Elephants flap their ears to keep cool."}
]}`)
	stdout, stderr, code := runCmd(t, "ingest", "--dry-run", "--select", ".data[]", path)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "1 records, 1 passages") {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestIngestMissingFile(t *testing.T) {
	_, _, code := runCmd(t, "ingest", "--dry-run", filepath.Join(t.TempDir(), "missing.json"))
	if code == 0 {
		t.Fatal("expected non-zero exit")
	}
}

func TestRenderReply(t *testing.T) {
	total := int64(1500)
	out := renderReply(&assistant.Reply{
		Text:       "Lions eat meat like zebras and antelopes.",
		Sources:    []knowledge.Source{{Label: "[1]", Title: "Lion", Tags: []string{knowledge.TagKB}}},
		Followups:  []string{"Where do lions sleep?"},
		Confidence: 0.82,
		Timings:    timing.ComponentTimings{TotalMS: &total},
	}, 60)

	for _, want := range []string{"Lions eat meat", "Sources", "[1] Lion", "Try asking", "Where do lions sleep?", "high", "total"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}
