// Package dbt runs the dbt CLI as an opaque build step.
package dbt

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// Runner invokes dbt in a project directory.
type Runner struct {
	Executable  string // default "dbt"
	ProjectDir  string
	ProfilesDir string // optional; passed as --profiles-dir
	Env         []string
	Logger      *slog.Logger
}

// Result is the outcome of one dbt invocation.
type Result struct {
	Args     []string
	ExitCode int
	Output   []string // combined stdout and stderr lines
}

// Build runs `dbt build` with extra arguments (e.g. --select). Each output
// line is logged as it arrives. A non-zero exit fails with an error carrying
// the last output lines.
func (r *Runner) Build(ctx context.Context, extra ...string) (*Result, error) {
	return r.Run(ctx, append([]string{"build"}, extra...)...)
}

// Run invokes dbt with args.
func (r *Runner) Run(ctx context.Context, args ...string) (*Result, error) {
	exe := r.Executable
	if exe == "" {
		exe = "dbt"
	}
	if r.ProjectDir != "" {
		if st, err := os.Stat(r.ProjectDir); err != nil || !st.IsDir() {
			return nil, fmt.Errorf("dbt: project directory %q not found", r.ProjectDir)
		}
	}
	if r.ProfilesDir != "" {
		args = append(args, "--profiles-dir", r.ProfilesDir)
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Dir = r.ProjectDir
	cmd.Env = append(os.Environ(), r.Env...)

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	res := &Result{Args: args}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sc := bufio.NewScanner(pr)
		sc.Buffer(make([]byte, 64<<10), 1<<20)
		for sc.Scan() {
			line := string(bytes.TrimRight(sc.Bytes(), "\r"))
			res.Output = append(res.Output, line)
			logger.Info("dbt", "line", line)
		}
		_, _ = io.Copy(io.Discard, pr)
	}()

	logger.Info("running dbt", "executable", exe, "args", strings.Join(args, " "), "dir", r.ProjectDir)
	err := cmd.Run()
	_ = pw.Close()
	wg.Wait()

	if err == nil {
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, fmt.Errorf("dbt %s exited with code %d: %s", args[0], res.ExitCode, tail(res.Output, 5))
	}
	return res, fmt.Errorf("dbt: %w", err)
}

func tail(lines []string, n int) string {
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
