// Package runner executes external processes synchronously, logging every
// command before it runs.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// ErrCommandFailed is returned when an external command exits non-zero.
var ErrCommandFailed = errors.New("command failed")

// Runner runs external commands.
type Runner struct {
	log zerolog.Logger
}

// New creates a runner that logs through the given logger.
func New(log zerolog.Logger) *Runner {
	return &Runner{log: log}
}

// Run executes a command, streaming its output to the current process. A
// non-zero exit is reported as ErrCommandFailed carrying the command text.
func (r *Runner) Run(ctx context.Context, name string, args ...string) error {
	cmdline := commandText(name, args)
	r.log.Info().Str("command", cmdline).Msg("executing")

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCommandFailed, cmdline, err)
	}
	return nil
}

// RunBestEffort executes a command like Run but downgrades a failure to a
// warning, reporting success as a boolean. Used for steps where a non-zero
// exit must not abort the orchestration.
func (r *Runner) RunBestEffort(ctx context.Context, name string, args ...string) bool {
	if err := r.Run(ctx, name, args...); err != nil {
		r.log.Warn().Err(err).Msg("command failed, continuing")
		return false
	}
	return true
}

// Capture executes a command and returns its trimmed standard output.
func (r *Runner) Capture(ctx context.Context, name string, args ...string) (string, error) {
	cmdline := commandText(name, args)
	r.log.Info().Str("command", cmdline).Msg("executing")

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrCommandFailed, cmdline, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// RunPipeline executes an ordered list of process stages with each stage's
// stdout piped into the next stage's stdin. The last stage's stdout goes to
// out, and its exit status decides the pipeline result; earlier stage
// failures are logged but do not override it.
func (r *Runner) RunPipeline(ctx context.Context, out io.Writer, stages ...[]string) error {
	if len(stages) == 0 {
		return errors.New("pipeline requires at least one stage")
	}

	cmdline := pipelineText(stages)
	r.log.Info().Str("command", cmdline).Msg("executing")

	cmds := make([]*exec.Cmd, len(stages))
	for i, stage := range stages {
		if len(stage) == 0 {
			return errors.New("pipeline stage is empty")
		}
		cmds[i] = exec.CommandContext(ctx, stage[0], stage[1:]...)
		cmds[i].Stderr = os.Stderr
	}
	for i := 1; i < len(cmds); i++ {
		pipe, err := cmds[i-1].StdoutPipe()
		if err != nil {
			return fmt.Errorf("failed to connect pipeline stages: %w", err)
		}
		cmds[i].Stdin = pipe
	}
	cmds[len(cmds)-1].Stdout = out

	for i, cmd := range cmds {
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("%w: %s: failed to start stage %d: %v", ErrCommandFailed, cmdline, i+1, err)
		}
	}

	var last error
	for i, cmd := range cmds {
		err := cmd.Wait()
		if i == len(cmds)-1 {
			last = err
		} else if err != nil {
			r.log.Warn().Err(err).Str("stage", commandText(stages[i][0], stages[i][1:])).Msg("pipeline stage failed")
		}
	}
	if last != nil {
		return fmt.Errorf("%w: %s: %v", ErrCommandFailed, cmdline, last)
	}
	return nil
}

// RunPipelineToFile runs a pipeline with the last stage's stdout written to
// the named file.
func (r *Runner) RunPipelineToFile(ctx context.Context, path string, stages ...[]string) error {
	f, err := os.Create(path) // #nosec G304 - controlled output path
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	runErr := r.RunPipeline(ctx, f, stages...)
	if err := f.Close(); err != nil && runErr == nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	return runErr
}

func commandText(name string, args []string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

func pipelineText(stages [][]string) string {
	parts := make([]string, len(stages))
	for i, stage := range stages {
		parts[i] = strings.Join(stage, " ")
	}
	return strings.Join(parts, " | ")
}
