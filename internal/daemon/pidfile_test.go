package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestWritePID_ReadPID(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "dir")

	if err := WritePID(dir); err != nil {
		t.Fatalf("WritePID: %v", err)
	}
	pid, err := ReadPID(dir)
	if err != nil {
		t.Fatalf("ReadPID: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("ReadPID got %d, want %d", pid, os.Getpid())
	}
	if _, err := os.Stat(filepath.Join(dir, pidFilename+".tmp")); !os.IsNotExist(err) {
		t.Error("temporary PID file left behind")
	}
}

func TestReadPID_Invalid(t *testing.T) {
	for _, content := range []string{"not-a-number", "-4", ""} {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, pidFilename), []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if _, err := ReadPID(dir); err == nil {
			t.Errorf("ReadPID(%q): expected error", content)
		}
	}

	if _, err := ReadPID(t.TempDir()); err == nil {
		t.Error("expected error reading nonexistent PID file")
	}
}

func TestRemovePID(t *testing.T) {
	dir := t.TempDir()
	if err := WritePID(dir); err != nil {
		t.Fatalf("WritePID: %v", err)
	}
	if err := RemovePID(dir); err != nil {
		t.Fatalf("RemovePID: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, pidFilename)); !os.IsNotExist(err) {
		t.Error("PID file still exists after RemovePID")
	}
	if err := RemovePID(dir); err != nil {
		t.Fatalf("RemovePID on nonexistent file: %v", err)
	}
}

func TestIsRunning(t *testing.T) {
	dir := t.TempDir()
	if IsRunning(dir) {
		t.Error("IsRunning returned true with no PID file")
	}
	if err := WritePID(dir); err != nil {
		t.Fatalf("WritePID: %v", err)
	}
	if !IsRunning(dir) {
		t.Error("IsRunning returned false for our own PID")
	}
}

func TestAcquirePID_LiveProcess(t *testing.T) {
	dir := t.TempDir()
	// The test binary's parent is alive for the duration of the test.
	parent := os.Getppid()
	if err := os.WriteFile(filepath.Join(dir, pidFilename), []byte(strconv.Itoa(parent)), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := AcquirePID(dir); err == nil {
		t.Fatal("AcquirePID should refuse while another live process holds the file")
	}
}

func TestAcquirePID_ReplacesStaleOrOwn(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, pidFilename), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := AcquirePID(dir); err != nil {
		t.Fatalf("AcquirePID over unreadable file: %v", err)
	}
	// Re-acquiring our own PID is fine.
	if err := AcquirePID(dir); err != nil {
		t.Fatalf("AcquirePID twice: %v", err)
	}
	if pid, _ := ReadPID(dir); pid != os.Getpid() {
		t.Errorf("PID = %d, want %d", pid, os.Getpid())
	}
}
