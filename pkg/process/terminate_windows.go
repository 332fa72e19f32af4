//go:build windows

package process

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"strings"

	domainerrors "github.com/core-tools/hsu-desk/pkg/errors"
	"github.com/core-tools/hsu-desk/pkg/logging"
)

// taskkill exit code when no process matched the filter
const taskkillNotFound = 128

// ErrNoConsole is returned because windowless children share no console with
// the supervisor, so Ctrl+Break cannot reach them.
var ErrNoConsole = errors.New("process has no console to deliver Ctrl+Break to")

func SendTerminationSignal(pid int) error {
	return ErrNoConsole
}

// ForceKill terminates pid and its child processes
func ForceKill(pid int) error {
	cmd := exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid))
	setupProcessAttributes(cmd)
	if err := cmd.Run(); err == nil {
		return nil
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// KillByImageName kills every process with the given image name, e.g. "java.exe".
// Reports whether anything matched.
func KillByImageName(ctx context.Context, image string, logger logging.Logger) (bool, error) {
	if err := ValidateImageName(image); err != nil {
		return false, err
	}
	if !strings.Contains(image, ".") {
		image += ".exe"
	}

	cmd := exec.CommandContext(ctx, "taskkill", "/F", "/IM", image)
	setupProcessAttributes(cmd)
	out, err := cmd.CombinedOutput()
	if err == nil {
		logger.Infof("Killed processes by image name, image: %s", image)
		return true, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == taskkillNotFound {
		return false, nil
	}
	return false, domainerrors.NewProcessError("kill by image name failed", err).
		WithContext("image", image).
		WithContext("output", strings.TrimSpace(string(out)))
}
