package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

// ProcessSignaler stops a recording owned by another process, identified
// only by its pid. It refuses to signal processes that are not recorders.
type ProcessSignaler struct {
	allowed []string
}

// NewProcessSignaler creates a signaler that only interrupts processes whose
// executable name is one of names.
func NewProcessSignaler(names ...string) *ProcessSignaler {
	allowed := make([]string, 0, len(names))
	for _, name := range names {
		if name = filepath.Base(strings.TrimSpace(name)); name != "" && name != "." {
			allowed = append(allowed, name)
		}
	}
	return &ProcessSignaler{allowed: allowed}
}

// Interrupt sends SIGINT to pid so the recorder there finalizes its file.
func (s *ProcessSignaler) Interrupt(ctx context.Context, pid int) error {
	if pid <= 0 {
		return fmt.Errorf("%w: invalid pid %d", ErrUsage, pid)
	}

	exists, err := process.PidExistsWithContext(ctx, int32(pid))
	if err != nil {
		return fmt.Errorf("%w: check pid %d: %w", ErrBackend, pid, err)
	}
	if !exists {
		return fmt.Errorf("%w: no process with pid %d", ErrNotRecording, pid)
	}

	if len(s.allowed) > 0 {
		proc, err := process.NewProcessWithContext(ctx, int32(pid))
		if err != nil {
			return fmt.Errorf("%w: no process with pid %d", ErrNotRecording, pid)
		}
		name, err := proc.NameWithContext(ctx)
		if err != nil {
			return fmt.Errorf("%w: read name of pid %d: %w", ErrBackend, pid, err)
		}
		if !s.isAllowed(name) {
			return fmt.Errorf("%w: pid %d is %q, not a recorder", ErrUsage, pid, name)
		}
	}

	slog.Debug("Sending SIGINT to recorder", "pid", pid)
	if err := unix.Kill(pid, unix.SIGINT); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("%w: process %d exited", ErrNotRecording, pid)
		}
		return fmt.Errorf("%w: signal pid %d: %w", ErrBackend, pid, err)
	}
	return nil
}

func (s *ProcessSignaler) isAllowed(name string) bool {
	for _, allowed := range s.allowed {
		// the kernel truncates comm to 15 bytes
		if name == allowed || (len(name) == 15 && strings.HasPrefix(allowed, name)) {
			return true
		}
	}
	return false
}
