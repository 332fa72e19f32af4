package unitconfig

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"

	"github.com/core-tools/hsu-desk/pkg/errors"
	"github.com/core-tools/hsu-desk/pkg/logging"
)

const cronType = "cron"

type processRecord struct {
	Dir             string   `json:"dir"`
	Command         []string `json:"command"`
	KillImage       string   `json:"kill_image,omitempty"`
	EditableCommand bool     `json:"editable_command,omitempty"`
}

type cronRecord struct {
	Type     string `json:"type"`
	URL      string `json:"url"`
	Interval int    `json:"interval"`
}

// rawRecord accepts either persisted shape
type rawRecord struct {
	Type            string   `json:"type"`
	Dir             string   `json:"dir"`
	Command         []string `json:"command"`
	KillImage       string   `json:"kill_image"`
	EditableCommand bool     `json:"editable_command"`
	URL             string   `json:"url"`
	Interval        int      `json:"interval"`
}

// Store persists unit definitions as a JSON object keyed by unit name.
type Store struct {
	path   string
	logger logging.Logger
	mutex  sync.Mutex
}

func NewStore(path string, logger logging.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger,
	}
}

func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted definitions. It always returns a usable set:
//   - file absent: the defaults, which are persisted immediately
//   - file malformed: the defaults and a config_unreadable error; the bad file
//     is kept next to it with a ".corrupt" suffix
//   - file unreadable: the defaults and an io error; nothing is written
func (s *Store) Load() (*Definitions, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Errorf("Failed to read units file, path: %s, error: %v", s.path, err)
			return DefaultDefinitions(), errors.NewIOError("failed to read units file", err).WithContext("path", s.path)
		}
		s.logger.Infof("Units file not found, writing defaults, path: %s", s.path)
		defs := DefaultDefinitions()
		if err := s.save(defs); err != nil {
			return defs, err
		}
		return defs, nil
	}

	defs, parseErr := Decode(data)
	if parseErr == nil {
		s.logger.Debugf("Units file loaded, path: %s, units: %d", s.path, defs.Len())
		return defs, nil
	}

	s.logger.Errorf("Units file is malformed, falling back to defaults, path: %s, error: %v", s.path, parseErr)
	unreadable := errors.NewConfigUnreadableError("units file is malformed, defaults loaded", parseErr).WithContext("path", s.path)

	corruptPath := s.path + ".corrupt"
	if err := os.Rename(s.path, corruptPath); err != nil {
		s.logger.Warnf("Failed to preserve malformed units file, path: %s, error: %v", s.path, err)
	} else {
		unreadable.WithContext("preserved_as", corruptPath)
	}

	defs = DefaultDefinitions()
	if err := s.save(defs); err != nil {
		s.logger.Errorf("Failed to write default units file, path: %s, error: %v", s.path, err)
	}
	return defs, unreadable
}

// Save writes defs through a temp file in the same directory and renames it
// over the target, so a crash never leaves a truncated file behind.
func (s *Store) Save(defs *Definitions) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.save(defs)
}

func (s *Store) save(defs *Definitions) error {
	data, err := Encode(defs)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewIOError("failed to create units file directory", err).WithContext("directory", dir)
	}

	// Skip the write when nothing changed so loads and saves do not touch the file needlessly
	if existing, err := os.ReadFile(s.path); err == nil && bytes.Equal(existing, data) {
		return nil
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return errors.NewIOError("failed to create temp units file", err).WithContext("directory", dir)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return errors.NewIOError("failed to write temp units file", err).WithContext("path", tmpPath)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return errors.NewIOError("failed to sync temp units file", err).WithContext("path", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.NewIOError("failed to close temp units file", err).WithContext("path", tmpPath)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		s.logger.Warnf("Failed to set units file permissions, path: %s, error: %v", tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return errors.NewIOError("failed to replace units file", err).WithContext("path", s.path)
	}

	s.logger.Debugf("Units file saved, path: %s, units: %d", s.path, defs.Len())
	return nil
}

// Encode renders defs in the persisted format: keys sorted, four-space indent, trailing newline.
func Encode(defs *Definitions) ([]byte, error) {
	records := make(map[string]interface{}, defs.Len())
	for _, def := range defs.All() {
		if def.IsCron() {
			records[def.Name] = cronRecord{Type: cronType, URL: def.URL, Interval: def.IntervalSeconds}
			continue
		}
		command := def.CommandLine
		if command == nil {
			command = []string{}
		}
		records[def.Name] = processRecord{
			Dir:             def.WorkingDirectory,
			Command:         command,
			KillImage:       def.KillImage,
			EditableCommand: def.EditableCommand,
		}
	}

	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return nil, errors.NewInternalError("failed to encode unit definitions", err)
	}
	return append(data, '\n'), nil
}

// Decode parses the persisted format and validates every unit.
func Decode(data []byte) (*Definitions, error) {
	var records map[string]rawRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.NewValidationError("units file is not a valid JSON object of units", err)
	}
	if records == nil {
		return nil, errors.NewValidationError("units file must contain a JSON object", nil)
	}

	defs := make([]UnitDefinition, 0, len(records))
	for name, rec := range records {
		def := UnitDefinition{Name: name}
		switch rec.Type {
		case cronType:
			def.Kind = UnitKindCron
			def.URL = rec.URL
			def.IntervalSeconds = rec.Interval
			// Cron records carrying process fields are rejected by validation
			def.WorkingDirectory = rec.Dir
			def.CommandLine = rec.Command
		case "", string(UnitKindProcess):
			def.Kind = UnitKindProcess
			def.WorkingDirectory = rec.Dir
			def.CommandLine = rec.Command
			def.KillImage = rec.KillImage
			def.EditableCommand = rec.EditableCommand
			def.URL = rec.URL
			def.IntervalSeconds = rec.Interval
		default:
			return nil, errors.NewValidationError("unknown unit type: "+rec.Type, nil).WithContext("unit", name)
		}
		defs = append(defs, def)
	}
	return NewDefinitions(defs...)
}
