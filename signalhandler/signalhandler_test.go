package signalhandler

import (
	"context"
	"runtime"
	"syscall"
	"testing"
	"time"
)

func TestGetOptimalProcs(t *testing.T) {
	got := GetOptimalProcs()
	if got < 1 {
		t.Errorf("GetOptimalProcs() = %d, want >= 1", got)
	}
	if got > runtime.NumCPU() {
		t.Errorf("GetOptimalProcs() = %d, more than %d CPUs", got, runtime.NumCPU())
	}
}

func TestSetupHandlerCancelsOnSignal(t *testing.T) {
	ctx, cancel := SetupHandler(context.Background())
	defer cancel()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("failed to signal self: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context was not cancelled after SIGTERM")
	}
}

func TestSetupHandlerParentCancel(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := SetupHandler(parent)
	defer cancel()

	cancelParent()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled with its parent")
	}
}
