package process

import (
	"os"
	"strings"

	"github.com/core-tools/hsu-desk/pkg/errors"
)

// ValidateExecutionConfig validates execution configuration
func ValidateExecutionConfig(config ExecutionConfig) error {
	if len(config.Command) == 0 || strings.TrimSpace(config.Command[0]) == "" {
		return errors.NewValidationError("command line is required", nil)
	}

	// An empty working directory means inherit the supervisor's
	if config.WorkingDirectory != "" {
		if info, err := os.Stat(config.WorkingDirectory); err != nil {
			return errors.NewValidationError("working directory not accessible: "+config.WorkingDirectory, err)
		} else if !info.IsDir() {
			return errors.NewValidationError("working directory is not a directory: "+config.WorkingDirectory, nil)
		}
	}

	for _, env := range config.Environment {
		if !strings.Contains(env, "=") {
			return errors.NewValidationError("invalid environment variable format: "+env, nil)
		}
	}

	if config.WaitDelay < 0 {
		return errors.NewValidationError("wait delay cannot be negative", nil)
	}

	return nil
}

// ValidateImageName checks an image name used for kill-by-name. It must be a
// bare file name so it can never match more than the intended executable.
func ValidateImageName(image string) error {
	if strings.TrimSpace(image) == "" {
		return errors.NewValidationError("image name cannot be empty", nil)
	}
	if strings.ContainsAny(image, `/\*?"`) {
		return errors.NewValidationError("image name must be a bare executable name: "+image, nil)
	}
	return nil
}
