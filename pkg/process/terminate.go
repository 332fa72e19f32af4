package process

import (
	"context"
	"time"

	"github.com/core-tools/hsu-desk/pkg/errors"
	"github.com/core-tools/hsu-desk/pkg/logging"
)

// Time allowed for a process to disappear after a force kill
const forceKillWait = 5 * time.Second

// Terminate stops the process pid whose exit is signalled by closing exited.
// It sends the graceful termination signal, waits up to graceful, then force
// kills the process tree and waits for the exit to be observed.
func Terminate(ctx context.Context, pid int, exited <-chan struct{}, graceful time.Duration, logger logging.Logger) error {
	select {
	case <-exited:
		return nil
	default:
	}

	if graceful > 0 {
		if err := SendTerminationSignal(pid); err != nil {
			logger.Debugf("Graceful termination signal not delivered, pid: %d, error: %v", pid, err)
		} else {
			logger.Debugf("Termination signal sent, pid: %d, waiting up to %v", pid, graceful)
			timer := time.NewTimer(graceful)
			select {
			case <-exited:
				timer.Stop()
				return nil
			case <-timer.C:
				logger.Warnf("Process did not exit within %v, force killing, pid: %d", graceful, pid)
			case <-ctx.Done():
				timer.Stop()
				logger.Warnf("Stop cancelled, force killing, pid: %d", pid)
			}
		}
	}

	if err := ForceKill(pid); err != nil {
		logger.Warnf("Force kill reported an error, pid: %d, error: %v", pid, err)
	}

	timer := time.NewTimer(forceKillWait)
	defer timer.Stop()
	select {
	case <-exited:
		return nil
	case <-timer.C:
		return errors.NewTimeoutError("process did not exit after kill", nil).WithContext("pid", pid)
	}
}
