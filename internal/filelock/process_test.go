package filelock

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// The helper process re-executes the test binary so that contention happens
// between real OS processes rather than goroutines.
const (
	helperEnv      = "FILELOCK_HELPER_PROCESS"
	helperResource = "FILELOCK_HELPER_RESOURCE"
	helperJournal  = "FILELOCK_HELPER_JOURNAL"
)

func TestHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}

	resource := os.Getenv(helperResource)
	journal := os.Getenv(helperJournal)

	opts := Options{Retries: 500, MinTimeout: 5 * time.Millisecond, MaxTimeout: 25 * time.Millisecond}
	h, err := Acquire(context.Background(), resource, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "acquire: %v\n", err)
		os.Exit(2)
	}

	appendLine := func(s string) {
		f, err := os.OpenFile(journal, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			os.Exit(3)
		}
		_, _ = fmt.Fprintf(f, "%s %d\n", s, os.Getpid())
		_ = f.Close()
	}

	appendLine("enter")
	time.Sleep(30 * time.Millisecond)
	appendLine("exit")

	if err := h.Release(); err != nil {
		fmt.Fprintf(os.Stderr, "release: %v\n", err)
		os.Exit(4)
	}
	os.Exit(0)
}

func TestCrossProcessMutualExclusion(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns subprocesses")
	}

	dir := t.TempDir()
	resource := filepath.Join(dir, "auth", "standard.json")
	journal := filepath.Join(dir, "journal.log")

	const workers = 4
	cmds := make([]*exec.Cmd, workers)
	for i := range cmds {
		cmd := exec.Command(os.Args[0], "-test.run=^TestHelperProcess$")
		cmd.Env = append(os.Environ(),
			helperEnv+"=1",
			helperResource+"="+resource,
			helperJournal+"="+journal,
		)
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			t.Fatalf("failed to start helper: %v", err)
		}
		cmds[i] = cmd
	}
	for _, cmd := range cmds {
		if err := cmd.Wait(); err != nil {
			t.Errorf("helper failed: %v", err)
		}
	}

	f, err := os.Open(journal)
	if err != nil {
		t.Fatalf("journal missing: %v", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	if len(lines) != 2*workers {
		t.Fatalf("journal has %d lines, want %d:\n%s", len(lines), 2*workers, strings.Join(lines, "\n"))
	}
	// Every enter must be immediately followed by the same process's exit.
	for i := 0; i < len(lines); i += 2 {
		enter, exit := strings.Fields(lines[i]), strings.Fields(lines[i+1])
		if enter[0] != "enter" || exit[0] != "exit" || enter[1] != exit[1] {
			t.Fatalf("critical sections overlapped:\n%s", strings.Join(lines, "\n"))
		}
	}

	if _, err := os.Stat(MarkerPath(resource)); !os.IsNotExist(err) {
		t.Error("marker left behind after all helpers released")
	}
}
