package audio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/audiolibrelab/audiobridge/internal/config"
)

const stderrTailLines = 20

// FFmpegSpawner records an endpoint by running ffmpeg against the sound
// server's capture interface.
type FFmpegSpawner struct {
	cfg       config.RecorderConfig
	logWriter io.Writer
}

// NewFFmpegSpawner creates a spawner from the recorder configuration.
// ffmpeg's stderr is copied to logWriter when it is not nil.
func NewFFmpegSpawner(cfg config.RecorderConfig, logWriter io.Writer) *FFmpegSpawner {
	if logWriter == nil {
		logWriter = io.Discard
	}
	return &FFmpegSpawner{cfg: cfg, logWriter: logWriter}
}

// Spawn starts ffmpeg in its own process group, so a terminal Ctrl-C reaches
// only this program and the capture is stopped through the normal path.
// The process is not bound to ctx: a recording outlives the request that
// started it.
func (s *FFmpegSpawner) Spawn(ctx context.Context, ep Endpoint, outputPath string) (CaptureProcess, error) {
	binary, err := exec.LookPath(s.cfg.FFmpegBinary)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	args := s.buildArgs(ep, outputPath)
	slog.Info("Starting FFmpeg capture", "command", binary+" "+strings.Join(args, " "))

	cmd := exec.Command(binary, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	pr, pw := io.Pipe()
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		return nil, fmt.Errorf("failed to start FFmpeg: %w", err)
	}

	proc := &ffmpegProcess{cmd: cmd, stderr: pw, done: make(chan struct{})}
	go proc.readOutput(pr, s.logWriter)

	return proc, nil
}

// buildArgs assembles the ffmpeg command line for one capture.
func (s *FFmpegSpawner) buildArgs(ep Endpoint, outputPath string) []string {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "warning",
		"-f", s.cfg.InputFormat,
		"-i", captureInput(ep, s.cfg.InputFormat),
		"-ac", strconv.Itoa(s.cfg.Channels),
		"-ar", strconv.Itoa(s.cfg.SampleRate),
		"-c:a", s.cfg.Codec,
	}

	if s.cfg.Bitrate != "" {
		args = append(args, "-b:a", s.cfg.Bitrate)
	}

	return append(args, "-y", outputPath)
}

// captureInput returns the ffmpeg input name for an endpoint. Recording a
// playback device on PulseAudio means recording its monitor source.
func captureInput(ep Endpoint, inputFormat string) string {
	switch inputFormat {
	case "pulse":
		if ep.Direction == DirectionOutput && !strings.HasSuffix(ep.UID, ".monitor") {
			return ep.UID + ".monitor"
		}
		return ep.UID
	case "avfoundation":
		return ":" + ep.Name
	default:
		return ep.UID
	}
}

// ffmpegProcess adapts an exec.Cmd to CaptureProcess
type ffmpegProcess struct {
	cmd    *exec.Cmd
	stderr *io.PipeWriter
	done   chan struct{}

	tailMutex sync.Mutex
	tail      []string
}

func (p *ffmpegProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *ffmpegProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func (p *ffmpegProcess) Kill() error {
	return p.cmd.Process.Kill()
}

func (p *ffmpegProcess) Wait() error {
	err := p.cmd.Wait()
	p.stderr.Close()
	<-p.done
	return err
}

// Diagnostics returns the last lines ffmpeg wrote to stderr
func (p *ffmpegProcess) Diagnostics() string {
	p.tailMutex.Lock()
	defer p.tailMutex.Unlock()
	return strings.Join(p.tail, "\n")
}

// readOutput logs stderr line by line and keeps a short tail for errors
func (p *ffmpegProcess) readOutput(pipe io.Reader, logWriter io.Writer) {
	defer close(p.done)

	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()
		fmt.Fprintln(logWriter, line)
		slog.Debug("FFmpeg output", "stream", "stderr", "line", line)

		p.tailMutex.Lock()
		p.tail = append(p.tail, line)
		if len(p.tail) > stderrTailLines {
			p.tail = p.tail[len(p.tail)-stderrTailLines:]
		}
		p.tailMutex.Unlock()
	}
	// drain so ffmpeg never blocks on a full pipe after a scanner error
	io.Copy(io.Discard, pipe)
}

// interruptedExit reports whether ffmpeg ended because it was told to stop.
// ffmpeg exits with 255 after a handled SIGINT.
func interruptedExit(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	if exitErr.ExitCode() == 255 {
		return true
	}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		sig := status.Signal()
		return sig == syscall.SIGINT || sig == syscall.SIGKILL || sig == syscall.SIGTERM
	}
	return false
}
