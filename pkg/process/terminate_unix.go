//go:build !windows

package process

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"syscall"

	domainerrors "github.com/core-tools/hsu-desk/pkg/errors"
	"github.com/core-tools/hsu-desk/pkg/logging"
)

// SendTerminationSignal sends SIGTERM to the process group of pid
func SendTerminationSignal(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

// ForceKill sends SIGKILL to the process group of pid
func ForceKill(pid int) error {
	err := syscall.Kill(-pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

// KillByImageName kills every process whose executable name matches image.
// A ".exe" suffix is dropped so the same unit definitions work on every OS.
// Reports whether anything matched.
func KillByImageName(ctx context.Context, image string, logger logging.Logger) (bool, error) {
	if err := ValidateImageName(image); err != nil {
		return false, err
	}
	name := strings.TrimSuffix(image, ".exe")

	cmd := exec.CommandContext(ctx, "pkill", "-KILL", "-x", name)
	out, err := cmd.CombinedOutput()
	if err == nil {
		logger.Infof("Killed processes by image name, image: %s", name)
		return true, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		// pkill: no process matched
		return false, nil
	}
	return false, domainerrors.NewProcessError("kill by image name failed", err).
		WithContext("image", name).
		WithContext("output", strings.TrimSpace(string(out)))
}
