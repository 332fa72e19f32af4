package processfile

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"unicode"

	"github.com/core-tools/hsu-desk/pkg/errors"
	"github.com/core-tools/hsu-desk/pkg/logging"
)

const DefaultAppName = "hsu-desk"

// DefaultUnitsFileName is the units file looked up next to the executable.
const DefaultUnitsFileName = "srpconf.json"

// ProcessFileConfig holds configuration for the files the supervisor keeps on disk
type ProcessFileConfig struct {
	// Base directory for PID files and logs. If empty, uses OS-appropriate default
	BaseDirectory string

	ServiceContext ServiceContext

	AppName string

	// Create subdirectory for the app
	UseSubdirectory bool
}

// ServiceContext defines the context in which the supervisor runs
type ServiceContext string

const (
	// UserService runs inside a user login; the default for a desktop supervisor
	UserService ServiceContext = "user"

	// SessionService keeps files in volatile per-session storage
	SessionService ServiceContext = "session"
)

// ProcessFileManager generates and manages the on-disk files for supervised units
type ProcessFileManager struct {
	config ProcessFileConfig
	logger logging.Logger
}

func NewProcessFileManager(config ProcessFileConfig, logger logging.Logger) *ProcessFileManager {
	if config.AppName == "" {
		config.AppName = DefaultAppName
	}
	if config.ServiceContext == "" {
		config.ServiceContext = UserService
	}
	return &ProcessFileManager{
		config: config,
		logger: logger,
	}
}

// FileStem turns a unit name such as "Main Centrifugo" into "main-centrifugo".
func FileStem(unitName string) string {
	var sb strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(unitName) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			sb.WriteByte('-')
			lastDash = true
		}
	}
	stem := strings.TrimSuffix(sb.String(), "-")
	if stem == "" {
		return "unit"
	}
	return stem
}

// GeneratePIDFilePath generates the PID file path for the given unit
func (m *ProcessFileManager) GeneratePIDFilePath(unitName string) string {
	return filepath.Join(m.runDirectory(), FileStem(unitName)+".pid")
}

// WritePIDFile records the pid of a running unit
func (m *ProcessFileManager) WritePIDFile(unitName string, pid int) error {
	pidFilePath := m.GeneratePIDFilePath(unitName)
	m.logger.Debugf("Writing PID file, unit: %s, pid: %d, path: %s", unitName, pid, pidFilePath)

	if err := EnsureDirectory(filepath.Dir(pidFilePath)); err != nil {
		return err
	}

	if err := os.WriteFile(pidFilePath, []byte(fmt.Sprintf("%d\n", pid)), 0644); err != nil {
		m.logger.Errorf("Failed to write PID file, unit: %s, path: %s, error: %v", unitName, pidFilePath, err)
		return errors.NewIOError("failed to write PID file", err).WithContext("pid_file", pidFilePath).WithContext("pid", pid)
	}
	return nil
}

// ReadPIDFile returns the pid recorded for the unit
func (m *ProcessFileManager) ReadPIDFile(unitName string) (int, error) {
	pidFilePath := m.GeneratePIDFilePath(unitName)

	content, err := os.ReadFile(pidFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.NewNotFoundError("PID file not found", err).WithContext("pid_file", pidFilePath)
		}
		return 0, errors.NewIOError("failed to read PID file", err).WithContext("pid_file", pidFilePath)
	}

	pidStr := strings.TrimSpace(string(content))
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return 0, errors.NewValidationError("invalid PID in PID file", err).WithContext("pid_file", pidFilePath).WithContext("content", pidStr)
	}
	return pid, nil
}

// RemovePIDFile deletes the unit's PID file. A missing file is not an error.
func (m *ProcessFileManager) RemovePIDFile(unitName string) error {
	pidFilePath := m.GeneratePIDFilePath(unitName)
	if err := os.Remove(pidFilePath); err != nil && !os.IsNotExist(err) {
		m.logger.Warnf("Failed to remove PID file, unit: %s, path: %s, error: %v", unitName, pidFilePath, err)
		return errors.NewIOError("failed to remove PID file", err).WithContext("pid_file", pidFilePath)
	}
	return nil
}

// GenerateLogDirectoryPath generates the log directory path for the application
func (m *ProcessFileManager) GenerateLogDirectoryPath() string {
	baseDir := m.logBaseDirectory()
	if m.config.UseSubdirectory {
		return filepath.Join(baseDir, m.config.AppName, "logs")
	}
	return filepath.Join(baseDir, "logs")
}

// GenerateUnitLogFilePath generates the log file that mirrors a unit's output
func (m *ProcessFileManager) GenerateUnitLogFilePath(unitName string) string {
	return filepath.Join(m.GenerateLogDirectoryPath(), "units", FileStem(unitName)+".log")
}

func (m *ProcessFileManager) runDirectory() string {
	baseDir := m.config.BaseDirectory
	if baseDir == "" {
		switch m.config.ServiceContext {
		case SessionService:
			baseDir = sessionDirectory()
		default:
			baseDir = userDirectory()
		}
	}
	if m.config.UseSubdirectory {
		baseDir = filepath.Join(baseDir, m.config.AppName)
	}
	return filepath.Join(baseDir, "run")
}

func (m *ProcessFileManager) logBaseDirectory() string {
	if m.config.BaseDirectory != "" {
		return m.config.BaseDirectory
	}
	if m.config.ServiceContext == SessionService {
		return sessionDirectory()
	}
	return userDirectory()
}

func userDirectory() string {
	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			if userProfile := os.Getenv("USERPROFILE"); userProfile != "" {
				localAppData = filepath.Join(userProfile, "AppData", "Local")
			} else {
				localAppData = os.TempDir()
			}
		}
		return localAppData

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return os.TempDir()
		}
		return filepath.Join(homeDir, "Library", "Application Support")

	default:
		if dataHome := os.Getenv("XDG_STATE_HOME"); dataHome != "" {
			return dataHome
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return os.TempDir()
		}
		return filepath.Join(homeDir, ".local", "state")
	}
}

func sessionDirectory() string {
	if runtime.GOOS == "linux" {
		if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
			return runtimeDir
		}
	}
	return os.TempDir()
}

// EnsureDirectory creates dir if needed and checks it is writable
func EnsureDirectory(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return errors.NewIOError("failed to access directory", err).WithContext("directory", dir)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.NewIOError("failed to create directory", err).WithContext("directory", dir)
		}
	} else if !info.IsDir() {
		return errors.NewValidationError("path is not a directory", nil).WithContext("path", dir)
	}

	testFile := filepath.Join(dir, ".write_test")
	file, err := os.Create(testFile)
	if err != nil {
		return errors.NewPermissionError("directory is not writable", err).WithContext("directory", dir)
	}
	file.Close()
	os.Remove(testFile)
	return nil
}

// DefaultUnitsFilePath returns srpconf.json next to the running executable,
// falling back to the working directory when the executable path is unknown
// or lives in a go-build temp directory.
func DefaultUnitsFilePath() string {
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		dir := filepath.Dir(exe)
		if !strings.Contains(dir, "go-build") {
			return filepath.Join(dir, DefaultUnitsFileName)
		}
	}
	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, DefaultUnitsFileName)
	}
	return DefaultUnitsFileName
}

// GetRecommendedProcessFileConfig returns the file layout for a deployment scenario
func GetRecommendedProcessFileConfig(scenario string, appName string) ProcessFileConfig {
	if appName == "" {
		appName = DefaultAppName
	}

	switch strings.ToLower(scenario) {
	case "session":
		return ProcessFileConfig{
			ServiceContext: SessionService,
			AppName:        appName,
		}

	case "development", "dev", "test":
		return ProcessFileConfig{
			BaseDirectory:  filepath.Join(os.TempDir(), appName+"-dev"),
			ServiceContext: UserService,
			AppName:        appName,
		}

	default:
		return ProcessFileConfig{
			ServiceContext:  UserService,
			AppName:         appName,
			UseSubdirectory: true,
		}
	}
}
