package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestImportsAny(t *testing.T) {
	pred := ImportsAny("net/http", "pokeindex/internal/infra")
	cases := []struct {
		in   string
		want bool
	}{
		{"net/http", true},
		{"net/http/httptest", true},
		{"net/httpx", false},
		{"pokeindex/internal/infra/blob/s3", true},
		{"pokeindex/internal/genealogy", false},
	}
	for _, c := range cases {
		if got := pred(c.in); got != c.want {
			t.Fatalf("ImportsAny(%q)=%v want %v", c.in, got, c.want)
		}
	}
	if !Either(StorageImportForbidden, TransportImportForbidden)("database/sql") {
		t.Fatalf("Either should match storage imports")
	}
}

func TestInternalImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"pokeindex/internal/catalog", true},
		{"pokeindex/pkg/domain", false},
	}
	for _, c := range cases {
		if got := InternalImportForbidden(c.in); got != c.want {
			t.Fatalf("InternalImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

// TestAssertNoDirectImports ignores test files and directories.
func TestAssertNoDirectImports(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("x.go", "package tmp\nimport \"fmt\"\nfunc X(){fmt.Println(1)}")
	write("x_test.go", "package tmp\nimport \"net/http\"\nvar _ = http.MethodGet")
	if err := os.Mkdir(filepath.Join(dir, "nested.go"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	AssertNoDirectImports(t, dir, TransportImportForbidden, "test files are ignored")
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	src := "package tmp\nimport (\n\t\"database/sql\"\n\t\"strings\"\n)\nvar _ = sql.ErrNoRows\nvar _ = strings.ToLower"
	if err := os.WriteFile(filepath.Join(dir, "store.go"), []byte(src), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	viols, err := directImportViolations(dir, StorageImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || viols[0] != "database/sql (in store.go)" {
		t.Fatalf("unexpected violations %v", viols)
	}
	rec := &recordingFatal{}
	failIfDirectViolations(rec, "pure package", viols)
	if rec.msg == "" {
		t.Fatalf("expected failure message")
	}
	if _, err := directImportViolations(filepath.Join(dir, "missing"), StorageImportForbidden); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}
