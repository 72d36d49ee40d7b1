package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

func memoryConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "store:\n  backend: memory\nlog:\n  level: error\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestExportAllOnEmptyStore(t *testing.T) {
	out, err := execute(t, "export", "--config", memoryConfig(t))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	var all struct {
		TotalSessions int `json:"totalSessions"`
	}
	if err := json.Unmarshal([]byte(out), &all); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if all.TotalSessions != 0 {
		t.Fatalf("expected empty export, got %d", all.TotalSessions)
	}
}

func TestExportRejectsBadFormats(t *testing.T) {
	path := memoryConfig(t)
	if _, err := execute(t, "export", "--config", path, "--format", "csv"); err == nil {
		t.Fatalf("expected csv export of every session to fail")
	}
	if _, err := execute(t, "export", "abc", "--config", path, "--format", "xml"); err == nil {
		t.Fatalf("expected unknown format to fail")
	}
	if _, err := execute(t, "export", "missing", "--config", path); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSweepCommand(t *testing.T) {
	out, err := execute(t, "sweep", "--config", memoryConfig(t))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if !strings.Contains(out, "removed 0 students and 0 answers") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestSeedNeedsPostgres(t *testing.T) {
	if _, err := execute(t, "seed", "--config", memoryConfig(t), "--dir", t.TempDir()); err == nil {
		t.Fatalf("expected seed without postgres to fail")
	}
}

func TestLoaderChainFallsThrough(t *testing.T) {
	first := memory.NewStaticQuestionnaireLoader(map[string]domain.Questionnaire{"a": {Title: "A"}})
	second := memory.NewStaticQuestionnaireLoader(map[string]domain.Questionnaire{"b": {Title: "B"}})
	chain := loaderChain{first, second}

	q, err := chain.LoadQuestionnaire(context.Background(), "b")
	if err != nil || q.Title != "B" {
		t.Fatalf("expected B, got %+v %v", q, err)
	}
	if _, err := chain.LoadQuestionnaire(context.Background(), "c"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOpenBackendDefaultsToMemory(t *testing.T) {
	var cfg config.Config
	cfg.Quiz.QuestionnaireDir = filepath.Join(t.TempDir(), "nope")
	b, err := openBackend(context.Background(), cfg, slog.Default())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()
	if _, ok := b.store.(*memory.DocumentStore); !ok {
		t.Fatalf("expected memory store, got %T", b.store)
	}
	q, err := b.questionnaires.GetQuestionnaire(context.Background(), "sample")
	if err != nil || len(q.Questions) == 0 {
		t.Fatalf("expected built-in sample, got %+v %v", q, err)
	}
	if err := b.stateFor("c1").Save(context.Background(), "k", "v"); err != nil {
		t.Fatalf("save state: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("debug") != slog.LevelDebug || parseLevel("WARN") != slog.LevelWarn || parseLevel("") != slog.LevelInfo {
		t.Fatalf("unexpected level parsing")
	}
}

func TestStartFailsWhenPortIsTaken(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	_, port, _ := net.SplitHostPort(ln.Addr().String())

	if err := runServer(context.Background(), memoryConfig(t), port); err == nil || !strings.Contains(err.Error(), "listen on") {
		t.Fatalf("expected listen error, got %v", err)
	}
}
