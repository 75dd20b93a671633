// Package supervisor runs one short-lived child process per request and
// turns its exit status and output into a single Outcome.
package supervisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scriptbridge/sb-broker/internal/hostdir"
	"github.com/scriptbridge/sb-broker/internal/protocol"
)

// Kind classifies an Outcome.
type Kind int

const (
	// Success: exit 0 and stdout is a JSON document.
	Success Kind = iota
	// RawSuccess: exit 0 but stdout is not JSON.
	RawSuccess
	// Failure: the child could not run or exited non-zero.
	Failure
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case RawSuccess:
		return "raw_success"
	default:
		return "failure"
	}
}

// Outcome is the single result of one Run.
type Outcome struct {
	Kind    Kind
	Value   json.RawMessage // Success
	Text    string          // RawSuccess
	Message string          // Failure
}

// Reply returns the value to send back to the extension.
func (o Outcome) Reply() any {
	switch o.Kind {
	case Success:
		return o.Value
	case RawSuccess:
		return protocol.RawReply{Response: o.Text}
	default:
		return protocol.ErrorReply{Error: o.Message}
	}
}

func failure(format string, args ...any) Outcome {
	return Outcome{Kind: Failure, Message: fmt.Sprintf(format, args...)}
}

// killWaitDelay bounds how long Wait keeps draining pipes after the child
// exits or is killed, in case a grandchild inherited them.
const killWaitDelay = 2 * time.Second

// Options tune a Runner.
type Options struct {
	// Timeout bounds each child's lifetime. Zero means unbounded.
	Timeout time.Duration
	// MaxOutput caps captured bytes per stream. Zero uses the default.
	MaxOutput int
}

// Runner spawns host scripts.
type Runner struct {
	opts   Options
	logger *zap.Logger
}

// New creates a Runner.
func New(opts Options, logger *zap.Logger) *Runner {
	return &Runner{opts: opts, logger: logger}
}

// Run executes def with payload on stdin and reports exactly one Outcome.
func (r *Runner) Run(ctx context.Context, def hostdir.Definition, payload json.RawMessage) Outcome {
	if def.ScriptPath == "" {
		return failure("Script not found: (empty path)")
	}
	if _, err := os.Stat(def.ScriptPath); err != nil {
		return failure("Script not found: %s", def.ScriptPath)
	}

	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	var cmd *exec.Cmd
	if def.Interpreter != "" {
		cmd = exec.CommandContext(ctx, def.Interpreter, def.ScriptPath)
	} else {
		cmd = exec.CommandContext(ctx, def.ScriptPath)
	}
	cmd.SysProcAttr = sysProcAttr()
	cmd.Cancel = func() error { return killTree(cmd.Process) }
	cmd.WaitDelay = killWaitDelay

	// exec closes the child's stdin once the reader is drained.
	cmd.Stdin = bytes.NewReader(payload)
	stdout := newLimitedBuffer(r.opts.MaxOutput)
	stderr := newLimitedBuffer(r.opts.MaxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return failure("Failed to start script: %v", err)
	}
	r.logger.Debug("script started",
		zap.String("host", def.HostName),
		zap.Int("pid", cmd.Process.Pid))

	err := cmd.Wait()
	duration := time.Since(start)

	// A descendant left running can hold stdout open past the child's exit.
	// Wait then gives up on the pipes, but what was written is kept.
	if cmd.ProcessState != nil && cmd.ProcessState.Success() {
		if err != nil {
			r.logger.Warn("script exited but its output was still held open",
				zap.String("host", def.HostName),
				zap.Duration("duration", duration),
				zap.Error(err))
			err = nil
		}
	} else if ctxErr := ctx.Err(); ctxErr != nil {
		r.logger.Warn("script killed",
			zap.String("host", def.HostName),
			zap.Duration("duration", duration),
			zap.Error(ctxErr))
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return failure("Script execution timed out after %s", r.opts.Timeout)
		}
		return failure("Script execution cancelled")
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return failure("Script execution failed: %v", err)
		}
		r.logger.Info("script failed",
			zap.String("host", def.HostName),
			zap.Int("exit_code", exitErr.ExitCode()),
			zap.Duration("duration", duration))
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = fmt.Sprintf("exited with code %d", exitErr.ExitCode())
		}
		return failure("Script execution failed: %s", msg)
	}

	r.logger.Debug("script finished",
		zap.String("host", def.HostName),
		zap.Duration("duration", duration),
		zap.Int("stdout_bytes", len(stdout.Bytes())))

	out := bytes.TrimSpace(stdout.Bytes())
	if !stdout.truncated && len(out) > 0 && json.Valid(out) {
		return Outcome{Kind: Success, Value: json.RawMessage(append([]byte(nil), out...))}
	}
	return Outcome{Kind: RawSuccess, Text: stdout.String()}
}
