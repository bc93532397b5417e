package agentloop

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestRedactSecrets(t *testing.T) {
	t.Setenv("SERVICE_TOKEN", "tok-1234567890")
	t.Setenv("DB_PASSWORD", "hunter22")
	t.Setenv("DEBUG_SECRET", "1")
	t.Setenv("PLAIN_VALUE", "not-a-secret-at-all")

	got := RedactSecrets("token tok-1234567890 pw hunter22 flag 1 plain not-a-secret-at-all")
	for _, want := range []string{"[REDACTED:SERVICE_TOKEN]", "[REDACTED:DB_PASSWORD]", "flag 1", "not-a-secret-at-all"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
	if strings.Contains(got, "hunter22") || strings.Contains(got, "tok-1234567890") {
		t.Errorf("secret leaked: %q", got)
	}
}

func TestFilterEnvironmentDropsSecrets(t *testing.T) {
	t.Setenv("MY_API_KEY", "abcdefgh")
	t.Setenv("MY_SETTING", "on")
	env := strings.Join(filterEnvironment(), "\n")
	if strings.Contains(env, "MY_API_KEY=") {
		t.Error("sensitive variable passed to child")
	}
	if !strings.Contains(env, "MY_SETTING=on") {
		t.Error("ordinary variable dropped")
	}
}

func TestLocalReadFileWindow(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("a\nb\nc\nd\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	env := NewLocalExecutionEnvironment(dir)

	tests := []struct {
		offset, limit int
		want          string
	}{
		{0, 0, "1 | a\n2 | b\n3 | c\n4 | d\n"},
		{2, 2, "2 | b\n3 | c\n"},
		{4, 10, "4 | d\n"},
		{9, 1, ""},
	}
	for _, tt := range tests {
		got, err := env.ReadFile("f.txt", tt.offset, tt.limit)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("ReadFile(offset=%d, limit=%d) = %q, want %q", tt.offset, tt.limit, got, tt.want)
		}
	}
}

func TestLocalListDirectoryDepth(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a", "b", "deep.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	env := NewLocalExecutionEnvironment(dir)

	shallow, err := env.ListDirectory(".", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(shallow) != 1 || shallow[0].Path != "a" || !shallow[0].IsDir {
		t.Errorf("depth 1 = %+v", shallow)
	}

	deep, err := env.ListDirectory(".", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(deep) != 3 || deep[2].Path != filepath.Join("a", "b", "deep.txt") || deep[2].Size != 1 {
		t.Errorf("depth 3 = %+v", deep)
	}
}

func TestLocalExecCommandCancelled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	env := NewLocalExecutionEnvironment(t.TempDir())
	if _, err := env.ExecCommand(ctx, "sleep 5", 0, "", nil); err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestLocalExecCommandEnvAndDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	dir := t.TempDir()
	env := NewLocalExecutionEnvironment(dir)
	res, err := env.ExecCommand(context.Background(), "echo $GREETING; pwd", 5000, "", map[string]string{"GREETING": "hi"})
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	if len(lines) != 2 || lines[0] != "hi" {
		t.Fatalf("stdout = %q", res.Stdout)
	}
	resolved, _ := filepath.EvalSymlinks(dir)
	if lines[1] != dir && lines[1] != resolved {
		t.Errorf("pwd = %q, want %q", lines[1], dir)
	}
}
