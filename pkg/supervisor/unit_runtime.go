package supervisor

import (
	"sync"
	"time"

	"github.com/core-tools/hsu-desk/pkg/cron"
	"github.com/core-tools/hsu-desk/pkg/process"
	"github.com/core-tools/hsu-desk/pkg/unitconfig"
)

type UnitState string

const (
	UnitStateStopped UnitState = "stopped"
	UnitStateRunning UnitState = "running"
	// UnitStateExited means the process ended without being stopped
	UnitStateExited UnitState = "exited"
)

// UnitStatus is a point-in-time snapshot of one unit
type UnitStatus struct {
	Name       string                    `json:"name"`
	Kind       unitconfig.UnitKind       `json:"kind"`
	State      UnitState                 `json:"state"`
	PID        int                       `json:"pid,omitempty"`
	RunID      string                    `json:"run_id,omitempty"`
	StartedAt  time.Time                 `json:"started_at"`
	StoppedAt  time.Time                 `json:"stopped_at"`
	LastExit   string                    `json:"last_exit,omitempty"`
	Definition unitconfig.UnitDefinition `json:"definition"`
}

func (s UnitStatus) IsRunning() bool {
	return s.State == UnitStateRunning
}

// unitRuntime is the live state of one unit. opMutex serializes start, stop
// and restart of the unit; mutex guards the fields, which the exit watcher
// also writes.
type unitRuntime struct {
	name    string
	opMutex sync.Mutex

	mutex     sync.Mutex
	state     UnitState
	child     *process.Child
	poller    *cron.Poller
	exited    chan struct{}
	stopping  bool
	runID     string
	startedAt time.Time
	stoppedAt time.Time
	lastExit  string
}

func newUnitRuntime(name string) *unitRuntime {
	return &unitRuntime{name: name, state: UnitStateStopped}
}

func (rt *unitRuntime) isRunning() bool {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()
	return rt.state == UnitStateRunning
}

func (rt *unitRuntime) snapshot(def unitconfig.UnitDefinition) UnitStatus {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	status := UnitStatus{
		Name:       rt.name,
		Kind:       def.Kind,
		State:      rt.state,
		RunID:      rt.runID,
		StartedAt:  rt.startedAt,
		StoppedAt:  rt.stoppedAt,
		LastExit:   rt.lastExit,
		Definition: def,
	}
	if rt.child != nil && rt.state == UnitStateRunning {
		status.PID = rt.child.Pid()
	}
	return status
}
