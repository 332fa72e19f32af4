package unitconfig

import (
	"net/url"
	"sort"
	"strings"

	"github.com/core-tools/hsu-desk/pkg/errors"
)

type UnitKind string

const (
	UnitKindProcess UnitKind = "process"
	UnitKindCron    UnitKind = "cron"
)

// UnitDefinition is the persisted description of one supervised unit.
// Process units use WorkingDirectory and CommandLine; cron units use URL and IntervalSeconds.
type UnitDefinition struct {
	Name string
	Kind UnitKind

	WorkingDirectory string
	CommandLine      []string
	// KillImage, when set, makes stop kill every process with this image name
	// instead of signalling the spawned child.
	KillImage string
	// EditableCommand allows the command line to be overridden at start.
	EditableCommand bool

	URL             string
	IntervalSeconds int
}

func (d UnitDefinition) IsCron() bool {
	return d.Kind == UnitKindCron
}

// Clone returns a copy that shares no slices with d.
func (d UnitDefinition) Clone() UnitDefinition {
	c := d
	if d.CommandLine != nil {
		c.CommandLine = append([]string(nil), d.CommandLine...)
	}
	return c
}

func ValidateDefinition(def UnitDefinition) error {
	if strings.TrimSpace(def.Name) == "" {
		return errors.NewValidationError("unit name cannot be empty", nil)
	}

	switch def.Kind {
	case UnitKindProcess:
		if len(def.CommandLine) == 0 || strings.TrimSpace(def.CommandLine[0]) == "" {
			return errors.NewValidationError("process unit requires a command line", nil).WithContext("unit", def.Name)
		}
		if def.URL != "" || def.IntervalSeconds != 0 {
			return errors.NewValidationError("process unit cannot have url or interval", nil).WithContext("unit", def.Name)
		}
		if def.KillImage != "" && strings.ContainsAny(def.KillImage, `/\*?"`) {
			return errors.NewValidationError("kill image must be a bare executable name", nil).WithContext("unit", def.Name)
		}

	case UnitKindCron:
		if def.IntervalSeconds <= 0 {
			return errors.NewValidationError("cron unit interval must be positive", nil).WithContext("unit", def.Name)
		}
		u, err := url.Parse(def.URL)
		if err != nil {
			return errors.NewValidationError("cron unit url is invalid", err).WithContext("unit", def.Name)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.NewValidationError("cron unit url must be an absolute http(s) url", nil).WithContext("unit", def.Name).WithContext("url", def.URL)
		}
		if len(def.CommandLine) != 0 || def.WorkingDirectory != "" || def.KillImage != "" {
			return errors.NewValidationError("cron unit cannot have a directory or command", nil).WithContext("unit", def.Name)
		}

	default:
		return errors.NewValidationError("unknown unit kind: "+string(def.Kind), nil).WithContext("unit", def.Name)
	}
	return nil
}

// Definitions is an immutable set of unit definitions keyed by name.
type Definitions struct {
	units map[string]UnitDefinition
}

func NewDefinitions(defs ...UnitDefinition) (*Definitions, error) {
	units := make(map[string]UnitDefinition, len(defs))
	for _, def := range defs {
		if err := ValidateDefinition(def); err != nil {
			return nil, err
		}
		if _, dup := units[def.Name]; dup {
			return nil, errors.NewValidationError("duplicate unit name", nil).WithContext("unit", def.Name)
		}
		units[def.Name] = def.Clone()
	}
	return &Definitions{units: units}, nil
}

func (d *Definitions) Get(name string) (UnitDefinition, bool) {
	def, ok := d.units[name]
	if !ok {
		return UnitDefinition{}, false
	}
	return def.Clone(), true
}

func (d *Definitions) Len() int {
	return len(d.units)
}

// Names returns the unit names in sorted order.
func (d *Definitions) Names() []string {
	names := make([]string, 0, len(d.units))
	for name := range d.units {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Definitions) All() []UnitDefinition {
	names := d.Names()
	all := make([]UnitDefinition, len(names))
	for i, name := range names {
		all[i] = d.units[name].Clone()
	}
	return all
}

// With returns a copy of d where def replaces the unit of the same name.
func (d *Definitions) With(def UnitDefinition) (*Definitions, error) {
	if err := ValidateDefinition(def); err != nil {
		return nil, err
	}
	units := make(map[string]UnitDefinition, len(d.units)+1)
	for name, existing := range d.units {
		units[name] = existing
	}
	units[def.Name] = def.Clone()
	return &Definitions{units: units}, nil
}

// Overrides are the values a caller may supply at start time. Nil fields keep the persisted value.
type Overrides struct {
	WorkingDirectory *string
	CommandLine      []string
	URL              *string
	IntervalSeconds  *int
}

func (o Overrides) IsEmpty() bool {
	return o.WorkingDirectory == nil && o.CommandLine == nil && o.URL == nil && o.IntervalSeconds == nil
}

// Apply merges o into def and validates the result.
func (o Overrides) Apply(def UnitDefinition) (UnitDefinition, error) {
	merged := def.Clone()

	switch def.Kind {
	case UnitKindProcess:
		if o.URL != nil || o.IntervalSeconds != nil {
			return UnitDefinition{}, errors.NewValidationError("url and interval apply to cron units only", nil).WithContext("unit", def.Name)
		}
		if o.WorkingDirectory != nil {
			merged.WorkingDirectory = strings.TrimSpace(*o.WorkingDirectory)
		}
		if o.CommandLine != nil {
			if !def.EditableCommand {
				return UnitDefinition{}, errors.NewValidationError("command line of this unit is not editable", nil).WithContext("unit", def.Name)
			}
			merged.CommandLine = append([]string(nil), o.CommandLine...)
		}

	case UnitKindCron:
		if o.WorkingDirectory != nil || o.CommandLine != nil {
			return UnitDefinition{}, errors.NewValidationError("directory and command apply to process units only", nil).WithContext("unit", def.Name)
		}
		if o.URL != nil {
			merged.URL = strings.TrimSpace(*o.URL)
		}
		if o.IntervalSeconds != nil {
			merged.IntervalSeconds = *o.IntervalSeconds
		}
	}

	if err := ValidateDefinition(merged); err != nil {
		return UnitDefinition{}, err
	}
	return merged, nil
}

// ParseCommandLine splits an edited command line on whitespace.
func ParseCommandLine(s string) []string {
	return strings.Fields(s)
}
