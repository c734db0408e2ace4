package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// run invokes the CLI against an isolated database and config location.
func run(t *testing.T, db string, args ...string) (int, string, string) {
	t.Helper()
	for _, key := range []string{
		"TODOSAFE_DB", "TODOSAFE_LOCK_TIMEOUT", "TODOSAFE_BACKUP_COUNT",
		"TODOSAFE_CACHE", "TODOSAFE_DRY_RUN", "TODOSAFE_DEBUG",
	} {
		t.Setenv(key, "")
	}

	full := []string{"todosafe"}
	if len(args) > 0 {
		full = append(full, args[0])
		full = append(full, "-config", filepath.Join(filepath.Dir(db), "absent.yaml"), "-db", db)
		full = append(full, args[1:]...)
	}

	var stdout, stderr bytes.Buffer
	code := Run(full, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func testDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "todo.json")
}

func TestRunNoArgs(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := Run([]string{"todosafe"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Commands:") {
		t.Fatalf("expected usage on stderr, got %q", stderr.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := Run([]string{"todosafe", "bogus"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
}

func TestVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := Run([]string{"todosafe", "version"}, &stdout, &stderr); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(stdout.String(), "todosafe") {
		t.Fatalf("unexpected version output: %q", stdout.String())
	}
}

func TestAddAndList(t *testing.T) {
	db := testDB(t)

	code, out, errOut := run(t, db, "add", "buy", "milk")
	if code != 0 {
		t.Fatalf("add failed (%d): %s", code, errOut)
	}
	if !strings.Contains(out, "Added todo 1: buy milk") {
		t.Fatalf("unexpected add output: %q", out)
	}

	code, out, _ = run(t, db, "list")
	if code != 0 {
		t.Fatalf("list failed: %d", code)
	}
	if !strings.Contains(out, "buy milk") {
		t.Fatalf("todo missing from list: %q", out)
	}
}

func TestAddMissingText(t *testing.T) {
	code, _, errOut := run(t, testDB(t), "add")
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(errOut, "missing todo text") {
		t.Fatalf("unexpected stderr: %q", errOut)
	}
}

func TestAddInvalidDueDate(t *testing.T) {
	code, _, errOut := run(t, testDB(t), "add", "-due", "tomorrow", "task")
	if code != 1 {
		t.Fatalf("expected exit 1 for domain error, got %d (%s)", code, errOut)
	}
}

func TestDoneUndoneFlow(t *testing.T) {
	db := testDB(t)
	run(t, db, "add", "task")

	code, out, _ := run(t, db, "done", "1")
	if code != 0 || !strings.Contains(out, "marked done") {
		t.Fatalf("done: %d %q", code, out)
	}

	// Done todos are hidden by default, shown with --all.
	_, out, _ = run(t, db, "list")
	if strings.Contains(out, "task") {
		t.Fatalf("done todo still listed: %q", out)
	}
	_, out, _ = run(t, db, "list", "-all")
	if !strings.Contains(out, "[x]") || !strings.Contains(out, "task") {
		t.Fatalf("done todo missing from -all: %q", out)
	}

	code, out, _ = run(t, db, "undone", "1")
	if code != 0 || !strings.Contains(out, "marked pending") {
		t.Fatalf("undone: %d %q", code, out)
	}
}

func TestNotFoundExitCode(t *testing.T) {
	db := testDB(t)
	run(t, db, "add", "only one")

	code, _, errOut := run(t, db, "done", "99")
	if code != 1 {
		t.Fatalf("expected exit 1, got %d (%s)", code, errOut)
	}
	if !strings.Contains(errOut, "99") {
		t.Fatalf("expected the id in the error: %q", errOut)
	}
}

func TestInvalidIDExitCode(t *testing.T) {
	code, _, errOut := run(t, testDB(t), "done", "abc")
	if code != 2 {
		t.Fatalf("expected exit 2 for usage error, got %d (%s)", code, errOut)
	}
}

func TestRenameAndDue(t *testing.T) {
	db := testDB(t)
	run(t, db, "add", "old name")

	code, out, _ := run(t, db, "rename", "1", "new", "name")
	if code != 0 || !strings.Contains(out, "new name") {
		t.Fatalf("rename: %d %q", code, out)
	}

	code, out, _ = run(t, db, "due", "1", "2030-05-01")
	if code != 0 || !strings.Contains(out, "2030-05-01") {
		t.Fatalf("due: %d %q", code, out)
	}

	code, out, _ = run(t, db, "due", "-clear", "1")
	if code != 0 || !strings.Contains(out, "cleared") {
		t.Fatalf("due -clear: %d %q", code, out)
	}
}

func TestDeleteAndClearDone(t *testing.T) {
	db := testDB(t)
	run(t, db, "add", "a")
	run(t, db, "add", "b")
	run(t, db, "add", "c")
	run(t, db, "done", "2")
	run(t, db, "done", "3")

	code, out, _ := run(t, db, "clear-done", "-dry-run")
	if code != 0 || !strings.Contains(out, "Would delete 2") {
		t.Fatalf("dry run: %d %q", code, out)
	}
	_, out, _ = run(t, db, "list", "-all")
	if !strings.Contains(out, "b") || !strings.Contains(out, "c") {
		t.Fatalf("dry run deleted records: %q", out)
	}

	code, out, _ = run(t, db, "clear-done")
	if code != 0 || !strings.Contains(out, "Deleted 2") {
		t.Fatalf("clear-done: %d %q", code, out)
	}

	code, _, _ = run(t, db, "delete", "1")
	if code != 0 {
		t.Fatalf("delete: %d", code)
	}
	_, out, _ = run(t, db, "list", "-all")
	if !strings.Contains(out, "No todos") {
		t.Fatalf("expected empty list, got %q", out)
	}
}

func TestBackupsAndRestore(t *testing.T) {
	db := testDB(t)
	run(t, db, "add", "first")
	run(t, db, "add", "second")

	code, out, _ := run(t, db, "backups")
	if code != 0 {
		t.Fatalf("backups: %d", code)
	}
	names := strings.Fields(strings.TrimSpace(out))
	if len(names) == 0 {
		t.Fatalf("expected at least one backup, got %q", out)
	}

	code, _, errOut := run(t, db, "restore", names[0])
	if code != 0 {
		t.Fatalf("restore: %d (%s)", code, errOut)
	}
	_, out, _ = run(t, db, "list")
	if strings.Contains(out, "second") {
		t.Fatalf("restore did not roll back: %q", out)
	}
}

func TestValidateAndRepair(t *testing.T) {
	db := testDB(t)
	run(t, db, "add", "healthy")

	code, out, _ := run(t, db, "validate")
	if code != 0 || !strings.Contains(out, "valid") {
		t.Fatalf("validate healthy: %d %q", code, out)
	}

	if err := os.WriteFile(db, []byte(`[{"id":1,"text":"kept"},{"id":2,"te`), 0o600); err != nil {
		t.Fatalf("corrupt: %v", err)
	}

	code, out, _ = run(t, db, "validate")
	if code != 1 || !strings.Contains(out, "invalid") {
		t.Fatalf("validate corrupt: %d %q", code, out)
	}

	code, out, _ = run(t, db, "repair")
	if code != 0 || !strings.Contains(out, "1 record(s) kept") {
		t.Fatalf("repair: %d %q", code, out)
	}
	if _, err := os.Stat(db + ".recovered"); err != nil {
		t.Fatalf("expected .recovered sidecar: %v", err)
	}

	code, _, _ = run(t, db, "validate")
	if code != 0 {
		t.Fatalf("expected valid after repair, got %d", code)
	}
}

func TestCorruptFileExitCode(t *testing.T) {
	db := testDB(t)
	if err := os.WriteFile(db, []byte("{{{"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	code, _, errOut := run(t, db, "list")
	if code != 3 {
		t.Fatalf("expected exit 3 for storage error, got %d (%s)", code, errOut)
	}
}

func TestInitNonInteractive(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "todosafe.yaml")

	var stdout, stderr bytes.Buffer
	code := Run([]string{"todosafe", "init", "-config", cfgPath, "-no-interactive"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("init: %d (%s)", code, stderr.String())
	}
	if _, err := os.Stat(cfgPath); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	// A second init without -force refuses to clobber.
	stdout.Reset()
	stderr.Reset()
	code = Run([]string{"todosafe", "init", "-config", cfgPath, "-no-interactive"}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("expected refusal, got %d", code)
	}
	if !strings.Contains(stderr.String(), "already exists") {
		t.Fatalf("unexpected stderr: %q", stderr.String())
	}

	code = Run([]string{"todosafe", "init", "-config", cfgPath, "-no-interactive", "-force"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("init -force: %d", code)
	}
}
