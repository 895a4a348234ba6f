package dbt

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDBT writes a shell script standing in for the dbt executable.
func fakeDBT(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script executables need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "dbt")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestBuild(t *testing.T) {
	project := t.TempDir()
	r := &Runner{
		Executable: fakeDBT(t, `echo "args: $*"; echo "cwd: $(pwd)"; echo "target: $DBT_TARGET"`),
		ProjectDir: project,
		Env:        []string{"DBT_TARGET=prod"},
	}

	res, err := r.Build(t.Context(), "--select", "stg_schedule")
	require.NoError(t, err)
	require.Len(t, res.Output, 3)
	assert.Equal(t, "args: build --select stg_schedule", res.Output[0])
	resolved, err := filepath.EvalSymlinks(project)
	require.NoError(t, err)
	assert.Contains(t, res.Output[1], resolved)
	assert.Equal(t, "target: prod", res.Output[2])
	assert.Zero(t, res.ExitCode)
}

func TestBuild_Failure(t *testing.T) {
	r := &Runner{Executable: fakeDBT(t, "echo 'Compilation Error in model x' >&2\nexit 2\n")}

	res, err := r.Build(t.Context())
	require.Error(t, err)
	assert.Equal(t, 2, res.ExitCode)
	assert.Contains(t, err.Error(), "exited with code 2")
	assert.Contains(t, err.Error(), "Compilation Error in model x")
}

func TestBuild_ProfilesDir(t *testing.T) {
	r := &Runner{Executable: fakeDBT(t, `echo "$*"`), ProfilesDir: "/etc/dbt"}
	res, err := r.Build(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"build --profiles-dir /etc/dbt"}, res.Output)
}

func TestRun_MissingProject(t *testing.T) {
	r := &Runner{Executable: "dbt", ProjectDir: filepath.Join(t.TempDir(), "nope")}
	_, err := r.Build(t.Context())
	assert.ErrorContains(t, err, "project directory")
}

func TestRun_MissingExecutable(t *testing.T) {
	r := &Runner{Executable: filepath.Join(t.TempDir(), "no-dbt")}
	_, err := r.Build(t.Context())
	assert.ErrorContains(t, err, "dbt:")
}
