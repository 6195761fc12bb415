package acp

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/agentwire/opencode-go/internal/procattr"
)

// transport is the framed byte stream the client speaks JSON-RPC over.
// The production implementation is processManager; tests substitute an
// in-memory pipe.
type transport interface {
	// WriteJSON marshals v and writes it as a single newline-terminated
	// frame. Safe for concurrent use.
	WriteJSON(v any) error
	// ReadLine blocks until one frame is available. Returns io.EOF when
	// the peer closes the stream.
	ReadLine() ([]byte, error)
	// Stop tears the stream down and releases resources.
	Stop() error
}

const (
	// maxLineSize bounds a single frame read from the agent.
	maxLineSize = 10 * 1024 * 1024

	gracefulStopTimeout = 500 * time.Millisecond
	killWaitTimeout     = 2 * time.Second
)

// processManager spawns the agent binary and exposes its stdio as a
// newline-delimited JSON frame stream.
type processManager struct {
	config Config

	mu      sync.Mutex
	writeMu sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	reader  *bufio.Reader
	encoder *json.Encoder
	started bool
	stopped bool
}

func newProcessManager(config Config) *processManager {
	return &processManager{config: config}
}

// buildArgs assembles the agent command line from the configuration.
func (pm *processManager) buildArgs() []string {
	args := append([]string{}, pm.config.BinaryArgs...)
	if pm.config.CWD != "" {
		cwd := pm.config.CWD
		if abs, err := filepath.Abs(cwd); err == nil {
			cwd = abs
		}
		args = append(args, "--cwd", cwd)
	}
	return args
}

// Start resolves the binary and spawns it. A binary that cannot be
// found yields a ProcessError with exit code 127, matching shell
// convention.
func (pm *processManager) Start() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.started {
		return ErrAlreadyStarted
	}

	path, err := exec.LookPath(pm.config.BinaryPath)
	if err != nil {
		return &ProcessError{
			Message:  fmt.Sprintf("agent binary %q not found", pm.config.BinaryPath),
			ExitCode: 127,
			Cause:    err,
		}
	}

	cmd := exec.Command(path, pm.buildArgs()...)
	cmd.Env = os.Environ()
	for k, v := range pm.config.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	procattr.Set(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &ProcessError{Message: "failed to open stdin pipe", Cause: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &ProcessError{Message: "failed to open stdout pipe", Cause: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &ProcessError{Message: "failed to open stderr pipe", Cause: err}
	}

	if err := cmd.Start(); err != nil {
		return &ProcessError{Message: "failed to start agent process", Cause: err}
	}

	pm.cmd = cmd
	pm.stdin = stdin
	pm.reader = bufio.NewReaderSize(stdout, 64*1024)
	pm.encoder = json.NewEncoder(stdin)
	pm.started = true

	go pm.drainStderr(stderr)

	return nil
}

// drainStderr forwards agent stderr to the configured handler, or
// discards it. The agent's own logging goes here; it is not part of
// the protocol.
func (pm *processManager) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		if pm.config.StderrHandler != nil {
			pm.config.StderrHandler(scanner.Bytes())
		}
	}
}

func (pm *processManager) WriteJSON(v any) error {
	pm.writeMu.Lock()
	defer pm.writeMu.Unlock()
	if pm.encoder == nil {
		return ErrNotStarted
	}
	return pm.encoder.Encode(v)
}

// ReadLine returns the next newline-terminated frame. A frame beyond
// maxLineSize is consumed off the stream, logged and skipped, so one
// runaway line never buffers unbounded memory or takes the session
// down.
func (pm *processManager) ReadLine() ([]byte, error) {
	if pm.reader == nil {
		return nil, ErrNotStarted
	}
	for {
		frame, err := pm.readFrame()
		if err != nil {
			return nil, err
		}
		if frame == nil {
			// Oversized frame was dropped; move on to the next one.
			continue
		}
		return frame, nil
	}
}

// readFrame assembles one frame from bounded reader fills. It reports
// an oversized frame as nil after discarding the rest of its bytes.
func (pm *processManager) readFrame() ([]byte, error) {
	var frame []byte
	for {
		chunk, err := pm.reader.ReadSlice('\n')
		frame = append(frame, chunk...)
		switch {
		case err == nil:
			if len(frame) > maxLineSize {
				slog.Warn("dropping oversized frame from agent", "bytes", len(frame))
				return nil, nil
			}
			return frame, nil
		case errors.Is(err, bufio.ErrBufferFull):
			if len(frame) > maxLineSize {
				slog.Warn("dropping oversized frame from agent", "bytes", len(frame))
				return nil, pm.skipToNewline()
			}
		case errors.Is(err, io.EOF) && len(frame) > 0:
			return frame, nil
		default:
			return nil, err
		}
	}
}

// skipToNewline discards input through the end of the current frame.
func (pm *processManager) skipToNewline() error {
	for {
		_, err := pm.reader.ReadSlice('\n')
		switch {
		case err == nil:
			return nil
		case errors.Is(err, bufio.ErrBufferFull):
		default:
			return err
		}
	}
}

// Stop closes stdin so the agent can exit on its own, then escalates
// to SIGTERM and finally SIGKILL on the whole process group.
func (pm *processManager) Stop() error {
	pm.mu.Lock()
	if !pm.started || pm.stopped {
		pm.mu.Unlock()
		return nil
	}
	pm.stopped = true
	cmd := pm.cmd
	stdin := pm.stdin
	pm.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-done:
		return nil
	case <-time.After(gracefulStopTimeout):
	}

	procattr.TerminateGroup(cmd)
	select {
	case <-done:
		return nil
	case <-time.After(killWaitTimeout):
	}

	procattr.KillGroup(cmd)
	<-done
	return nil
}
