package process

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	domainerrors "github.com/core-tools/hsu-desk/pkg/errors"
	"github.com/core-tools/hsu-desk/pkg/logging"
)

type ExecutionConfig struct {
	// Command is the argument vector; the first element is the executable
	Command          []string      `yaml:"command"`
	Environment      []string      `yaml:"environment,omitempty"`
	WorkingDirectory string        `yaml:"working_directory,omitempty"`
	WaitDelay        time.Duration `yaml:"wait_delay,omitempty"`
}

// Child is a spawned process whose stdout and stderr are merged into Output.
type Child struct {
	Process *os.Process
	// Output must be drained by the caller and is closed by CloseOutput
	Output io.ReadCloser

	cmd       *exec.Cmd
	closeOnce sync.Once
}

func (c *Child) Pid() int {
	return c.Process.Pid
}

// Wait blocks until the process exits and returns its exit code.
// A non-zero exit is reported through the code, not through err.
func (c *Child) Wait() (int, error) {
	err := c.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// CloseOutput releases the read end of the output pipe. Safe to call more than once.
func (c *Child) CloseOutput() {
	c.closeOnce.Do(func() {
		c.Output.Close()
	})
}

// Spawn starts the command described by execution. The child is not bound to
// any context: it lives until it exits or is terminated.
func Spawn(execution ExecutionConfig, id string, logger logging.Logger) (*Child, error) {
	if err := ValidateExecutionConfig(execution); err != nil {
		logger.Errorf("Execution configuration validation failed, id: %s, error: %v", id, err)
		return nil, domainerrors.NewSpawnError("invalid execution configuration", err).WithContext("id", id)
	}

	executable := resolveExecutable(execution.Command[0], execution.WorkingDirectory)

	logger.Debugf("Executing process: id: %s, executable: '%s', args: %v, working directory: '%s'",
		id, executable, execution.Command[1:], execution.WorkingDirectory)

	cmd := exec.Command(executable, execution.Command[1:]...)
	cmd.Dir = execution.WorkingDirectory
	cmd.Env = append(os.Environ(), execution.Environment...)
	cmd.WaitDelay = execution.WaitDelay

	setupProcessAttributes(cmd)

	// One pipe for both streams keeps the lines in the order the child wrote them
	reader, writer, err := os.Pipe()
	if err != nil {
		return nil, domainerrors.NewSpawnError("failed to create output pipe", err).WithContext("id", id)
	}
	cmd.Stdout = writer
	cmd.Stderr = writer

	if err := cmd.Start(); err != nil {
		reader.Close()
		writer.Close()
		return nil, domainerrors.NewSpawnError("failed to start the process", err).
			WithContext("id", id).
			WithContext("executable", execution.Command[0])
	}
	// The child holds its own copy now; ours must go so the reader sees EOF
	writer.Close()

	logger.Infof("Successfully executed process, id: %s, PID: %d", id, cmd.Process.Pid)

	return &Child{
		Process: cmd.Process,
		Output:  reader,
		cmd:     cmd,
	}, nil
}

// resolveExecutable prefers an executable sitting in the working directory
// over a PATH lookup, which is how the units' commands are written.
func resolveExecutable(name, workDir string) string {
	if workDir == "" || filepath.IsAbs(name) || filepath.Base(name) != name {
		return name
	}
	candidates := []string{name}
	if runtime.GOOS == "windows" && filepath.Ext(name) == "" {
		candidates = append(candidates, name+".exe", name+".bat", name+".cmd")
	}
	for _, candidate := range candidates {
		path := filepath.Join(workDir, candidate)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			if runtime.GOOS == "windows" || info.Mode()&0111 != 0 {
				return path
			}
		}
	}
	return name
}
