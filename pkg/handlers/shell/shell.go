// Package shell provides a reference registry.Handler that runs a job's
// payload as a shell command. It demonstrates the Decode/Invoke contract
// real deployments implement for their own job types, adapted from the
// source's ShellRunner onto the Handler/Registry model.
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"taskforge/pkg/logstore"
	"taskforge/pkg/registry"

	"go.uber.org/zap"
)

// Command is the decoded payload shape: job_data is expected to be this
// struct encoded as JSON.
type Command struct {
	Path string   `json:"path"`
	Args []string `json:"args"`
	// Timeout bounds a single invocation; zero means no extra deadline
	// beyond the caller's context.
	Timeout time.Duration `json:"timeout"`
}

// Handler runs Command payloads via os/exec, optionally persisting
// captured stdout/stderr through a logstore.Store.
type Handler struct {
	logs logstore.Store
	log  *zap.Logger
}

func New(logs logstore.Store, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{logs: logs, log: log}
}

func (h *Handler) Decode(data []byte) (any, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("shell: decode command: %w", err)
	}
	if cmd.Path == "" {
		return nil, fmt.Errorf("shell: command path must not be empty")
	}
	return cmd, nil
}

func (h *Handler) Invoke(ctx context.Context, payload any, jobID int64) error {
	cmd, ok := payload.(Command)
	if !ok {
		return fmt.Errorf("shell: unexpected payload type %T", payload)
	}

	runCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	execCmd := exec.CommandContext(runCtx, cmd.Path, cmd.Args...)
	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr
	execCmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	runErr := execCmd.Run()

	if h.logs != nil {
		attempt := registry.AttemptFromContext(ctx)
		combined := append(append([]byte("STDOUT:\n"), stdout.Bytes()...), append([]byte("\nSTDERR:\n"), stderr.Bytes()...)...)
		if ref, storeErr := h.logs.Store(ctx, jobID, attempt, combined); storeErr != nil {
			h.log.Warn("shell: failed to persist job output", zap.Int64("job_id", jobID), zap.Error(storeErr))
		} else {
			h.log.Debug("shell: persisted job output", zap.Int64("job_id", jobID), zap.String("reference", ref))
		}
	}

	if runErr != nil {
		return fmt.Errorf("shell: command %q failed: %w (stderr: %s)", cmd.Path, runErr, stderr.String())
	}
	return nil
}
