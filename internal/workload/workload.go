// Package workload manages files and restarts of the proxy workload.
package workload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/sourceplane/edgeroute/internal/faults"
)

// Workload is the proxy process whose configuration is managed
type Workload interface {
	CanConnect(ctx context.Context) bool
	Push(ctx context.Context, path string, data []byte) error
	Pull(ctx context.Context, path string) ([]byte, error)
	Remove(ctx context.Context, path string) error
	List(ctx context.Context, dir string) ([]string, error)
	Restart(ctx context.Context) error
}

// Local is a workload whose filesystem is mounted under Root
type Local struct {
	Root           string
	RestartCommand string
	Stdout         io.Writer
	Stderr         io.Writer
	DryRun         bool

	// OnRestart replaces RestartCommand when set
	OnRestart func(ctx context.Context) error
}

// NewLocal creates a local workload rooted at root
func NewLocal(root, restartCommand string, stdout, stderr io.Writer, dryRun bool) *Local {
	return &Local{
		Root:           root,
		RestartCommand: restartCommand,
		Stdout:         stdout,
		Stderr:         stderr,
		DryRun:         dryRun,
	}
}

// CanConnect reports whether the workload root is reachable
func (l *Local) CanConnect(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	info, err := os.Stat(l.Root)
	return err == nil && info.IsDir()
}

// Push writes data to path, creating parent directories
func (l *Local) Push(ctx context.Context, path string, data []byte) error {
	if err := l.check(ctx, "push"); err != nil {
		return err
	}
	full := l.resolve(path)
	if l.DryRun {
		fmt.Fprintf(l.out(), "  push %s (%d bytes)\n", path, len(data))
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Pull reads path; a missing file returns an error matching fs.ErrNotExist
func (l *Local) Pull(ctx context.Context, path string) ([]byte, error) {
	if err := l.check(ctx, "pull"); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(l.resolve(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// Remove deletes path; removing a missing file is not an error
func (l *Local) Remove(ctx context.Context, path string) error {
	if err := l.check(ctx, "remove"); err != nil {
		return err
	}
	if l.DryRun {
		fmt.Fprintf(l.out(), "  remove %s\n", path)
		return nil
	}
	if err := os.Remove(l.resolve(path)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// List returns the sorted file names in dir; a missing dir is empty
func (l *Local) List(ctx context.Context, dir string) ([]string, error) {
	if err := l.check(ctx, "list"); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(l.resolve(dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Restart restarts the proxy process
func (l *Local) Restart(ctx context.Context) error {
	if err := l.check(ctx, "restart"); err != nil {
		return err
	}
	if l.OnRestart != nil {
		return l.OnRestart(ctx)
	}
	if l.RestartCommand == "" {
		return nil
	}
	if l.DryRun {
		fmt.Fprintf(l.out(), "  restart: %s\n", l.RestartCommand)
		return nil
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", l.RestartCommand)
	cmd.Dir = l.Root
	cmd.Stdout = l.out()
	cmd.Stderr = l.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = io.Discard
	}
	if err := cmd.Run(); err != nil {
		return &faults.WorkloadUnreachable{Op: "restart", Err: err}
	}
	return nil
}

func (l *Local) check(ctx context.Context, op string) error {
	if !l.CanConnect(ctx) {
		return &faults.WorkloadUnreachable{Op: op, Err: fmt.Errorf("root %s not available", l.Root)}
	}
	return nil
}

func (l *Local) resolve(path string) string {
	return filepath.Join(l.Root, filepath.Clean("/"+path))
}

func (l *Local) out() io.Writer {
	if l.Stdout == nil {
		return io.Discard
	}
	return l.Stdout
}
