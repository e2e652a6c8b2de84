package common

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	return path
}

func TestLoadEnvFileMissingIsNoOp(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Fatalf("missing file must be a no-op, got %v", err)
	}
}

func TestLoadEnvFileSetsVariables(t *testing.T) {
	path := writeEnvFile(t, "ENVTEST_PLAIN=value\nENVTEST_SPACED =  padded  \n")
	t.Setenv("ENVTEST_PLAIN", "")
	os.Unsetenv("ENVTEST_PLAIN")
	t.Setenv("ENVTEST_SPACED", "")
	os.Unsetenv("ENVTEST_SPACED")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	if got := os.Getenv("ENVTEST_PLAIN"); got != "value" {
		t.Fatalf("ENVTEST_PLAIN=%q", got)
	}
	if got := os.Getenv("ENVTEST_SPACED"); got != "padded" {
		t.Fatalf("ENVTEST_SPACED=%q want trimmed value", got)
	}
}

func TestLoadEnvFilePreservesExistingVariables(t *testing.T) {
	path := writeEnvFile(t, "ENVTEST_KEEP=from-file\n")
	t.Setenv("ENVTEST_KEEP", "from-process")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	if got := os.Getenv("ENVTEST_KEEP"); got != "from-process" {
		t.Fatalf("existing variable was overwritten: %q", got)
	}
}

func TestLoadEnvFileStripsQuotes(t *testing.T) {
	path := writeEnvFile(t, "ENVTEST_DQ=\"double quoted\"\nENVTEST_SQ='single quoted'\n")
	t.Setenv("ENVTEST_DQ", "")
	os.Unsetenv("ENVTEST_DQ")
	t.Setenv("ENVTEST_SQ", "")
	os.Unsetenv("ENVTEST_SQ")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	if got := os.Getenv("ENVTEST_DQ"); got != "double quoted" {
		t.Fatalf("ENVTEST_DQ=%q", got)
	}
	if got := os.Getenv("ENVTEST_SQ"); got != "single quoted" {
		t.Fatalf("ENVTEST_SQ=%q", got)
	}
}

func TestLoadEnvFileSkipsCommentsAndJunkLines(t *testing.T) {
	path := writeEnvFile(t, "# comment\n\nno-equals-sign\n=no-key\nENVTEST_OK=yes\n")
	t.Setenv("ENVTEST_OK", "")
	os.Unsetenv("ENVTEST_OK")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	if got := os.Getenv("ENVTEST_OK"); got != "yes" {
		t.Fatalf("ENVTEST_OK=%q", got)
	}
}

func TestLoadEnvFileDirectoryFailsOnRead(t *testing.T) {
	err := LoadEnvFile(t.TempDir())
	if err == nil {
		t.Fatal("expected an error when the path is a directory")
	}
	if !strings.Contains(err.Error(), "env file") {
		t.Fatalf("unexpected error %v", err)
	}
}

func FuzzLoadEnvFileRobustness(f *testing.F) {
	f.Add("A=1\n")
	f.Add("# comment only\n")
	f.Add("==weird==\nKEY='v'\n")
	f.Add(strings.Repeat("K=v\n", 100))
	f.Fuzz(func(t *testing.T, content string) {
		path := filepath.Join(t.TempDir(), ".env")
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Skip()
		}
		if err := LoadEnvFile(path); err != nil {
			if !strings.Contains(err.Error(), "open env file:") && !strings.Contains(err.Error(), "read env file:") {
				t.Fatalf("unexpected error class: %v", err)
			}
		}
	})
}
