package domain

import (
	"context"
	"time"

	"github.com/core-tools/hsu-desk/pkg/unitconfig"
)

// UnitInfo is the externally visible state of one unit
type UnitInfo struct {
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	State     string    `json:"state"`
	PID       int       `json:"pid,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at"`
	LastExit  string    `json:"last_exit,omitempty"`

	WorkingDirectory string   `json:"working_directory,omitempty"`
	CommandLine      []string `json:"command_line,omitempty"`
	KillImage        string   `json:"kill_image,omitempty"`
	EditableCommand  bool     `json:"editable_command,omitempty"`
	URL              string   `json:"url,omitempty"`
	IntervalSeconds  int      `json:"interval_seconds,omitempty"`
}

// Contract is the control surface of the desk supervisor, served over gRPC
// and HTTP and consumed by the CLI.
type Contract interface {
	Status(ctx context.Context) ([]UnitInfo, error)
	Unit(ctx context.Context, name string) (UnitInfo, error)
	Start(ctx context.Context, name string, overrides unitconfig.Overrides) error
	Stop(ctx context.Context, name string) error
	Restart(ctx context.Context, name string, overrides unitconfig.Overrides) error
	ClearLog(ctx context.Context, name string) error
	// Logs returns up to limit of the unit's most recent records; limit <= 0 means all
	Logs(ctx context.Context, name string, limit int) ([]string, error)
}
