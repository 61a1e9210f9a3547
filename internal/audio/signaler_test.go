package audio

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"testing"
	"time"
)

func TestProcessSignaler_InvalidPID(t *testing.T) {
	s := NewProcessSignaler("ffmpeg")
	for _, pid := range []int{0, -1} {
		if err := s.Interrupt(context.Background(), pid); !errors.Is(err, ErrUsage) {
			t.Errorf("Expected ErrUsage for pid %d, got: %v", pid, err)
		}
	}
}

func TestProcessSignaler_RefusesForeignProcess(t *testing.T) {
	s := NewProcessSignaler("ffmpeg", "/usr/local/bin/audiobridge")

	err := s.Interrupt(context.Background(), os.Getpid())
	if !errors.Is(err, ErrUsage) {
		t.Errorf("Expected test binary to be refused, got: %v", err)
	}
}

func TestProcessSignaler_InterruptsAllowedProcess(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}

	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start sleep: %v", err)
	}
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	if err := NewProcessSignaler("sleep").Interrupt(context.Background(), cmd.Process.Pid); err != nil {
		cmd.Process.Kill()
		t.Fatalf("Expected no error, got: %v", err)
	}

	select {
	case err := <-exited:
		if !interruptedExit(err) {
			t.Errorf("Expected sleep to die from SIGINT, got: %v", err)
		}
	case <-time.After(5 * time.Second):
		cmd.Process.Kill()
		t.Fatal("Process did not exit after SIGINT")
	}
}

func TestProcessSignaler_ExitedProcess(t *testing.T) {
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("true not available")
	}

	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Fatalf("Failed to run true: %v", err)
	}

	err := NewProcessSignaler("true").Interrupt(context.Background(), cmd.Process.Pid)
	if !errors.Is(err, ErrNotRecording) {
		t.Errorf("Expected ErrNotRecording for reaped pid, got: %v", err)
	}
}
