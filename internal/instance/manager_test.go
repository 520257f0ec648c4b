package instance

import (
	"os"
	"path/filepath"
	"testing"
)

func TestManager_AcquireLock_SecondAcquireFails(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "overcode.pid")

	first := NewManager(pidPath, 8080)
	if err := first.AcquireLock(); err != nil {
		t.Fatalf("first AcquireLock: %v", err)
	}
	defer first.ReleaseLock()

	second := NewManager(pidPath, 8080)
	if err := second.AcquireLock(); err == nil {
		t.Fatal("expected second AcquireLock to fail while first holds the lock")
	}
}

func TestManager_ReleaseLock_AllowsReacquire(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "overcode.pid")

	m := NewManager(pidPath, 8080)
	if err := m.AcquireLock(); err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if err := m.ReleaseLock(); err != nil {
		t.Fatalf("ReleaseLock: %v", err)
	}

	again := NewManager(pidPath, 8080)
	if err := again.AcquireLock(); err != nil {
		t.Fatalf("expected reacquire to succeed after release, got: %v", err)
	}
	again.ReleaseLock()
}

func TestManager_WriteReadRemovePIDFile(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "overcode.pid")
	m := NewManager(pidPath, 8080)

	if err := m.WritePIDFile(os.Getpid(), 8080, dir, "overcode/0.1"); err != nil {
		t.Fatalf("WritePIDFile: %v", err)
	}

	data, err := m.ReadPIDFile()
	if err != nil {
		t.Fatalf("ReadPIDFile: %v", err)
	}
	if data.PID != os.Getpid() || data.Port != 8080 {
		t.Fatalf("unexpected pid file contents: %+v", data)
	}

	if err := m.RemovePIDFile(); err != nil {
		t.Fatalf("RemovePIDFile: %v", err)
	}
	if _, err := m.ReadPIDFile(); !os.IsNotExist(err) {
		t.Fatalf("expected pid file to be gone, got err=%v", err)
	}
}

func TestManager_CheckExistingInstance_NoFileReturnsNil(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(filepath.Join(dir, "overcode.pid"), 8080)

	info, err := m.CheckExistingInstance()
	if err != nil {
		t.Fatalf("CheckExistingInstance: %v", err)
	}
	if info != nil {
		t.Fatalf("expected nil info with no pid file, got %+v", info)
	}
}

func TestManager_CheckExistingInstance_StalePIDIsCleanedUp(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "overcode.pid")
	m := NewManager(pidPath, 8080)

	// A PID that is extremely unlikely to be running.
	if err := m.WritePIDFile(1<<30, 8080, dir, "overcode/0.1"); err != nil {
		t.Fatalf("WritePIDFile: %v", err)
	}

	info, err := m.CheckExistingInstance()
	if err != nil {
		t.Fatalf("CheckExistingInstance: %v", err)
	}
	if info != nil {
		t.Fatalf("expected stale pid file to be treated as no instance, got %+v", info)
	}
	if _, err := m.ReadPIDFile(); !os.IsNotExist(err) {
		t.Fatalf("expected stale pid file to be removed")
	}
}
