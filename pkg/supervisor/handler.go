package supervisor

import (
	"context"

	"github.com/core-tools/hsu-desk/pkg/domain"
	"github.com/core-tools/hsu-desk/pkg/logging"
	"github.com/core-tools/hsu-desk/pkg/unitconfig"
)

// LogReader gives access to the records kept for a unit
type LogReader interface {
	Text(unitName string) []string
}

// NewHandler exposes s as the control contract; logs may be nil when no
// history is kept.
func NewHandler(s *Supervisor, logs LogReader, logger logging.Logger) domain.Contract {
	return &handler{
		supervisor: s,
		logs:       logs,
		logger:     logger,
	}
}

type handler struct {
	supervisor *Supervisor
	logs       LogReader
	logger     logging.Logger
}

func (h *handler) Status(ctx context.Context) ([]domain.UnitInfo, error) {
	statuses := h.supervisor.Status()
	result := make([]domain.UnitInfo, 0, len(statuses))
	for _, status := range statuses {
		result = append(result, ToUnitInfo(status))
	}
	return result, nil
}

func (h *handler) Unit(ctx context.Context, name string) (domain.UnitInfo, error) {
	status, err := h.supervisor.UnitStatus(name)
	if err != nil {
		return domain.UnitInfo{}, err
	}
	return ToUnitInfo(status), nil
}

func (h *handler) Start(ctx context.Context, name string, overrides unitconfig.Overrides) error {
	h.logger.Debugf("Start requested, unit: %s", name)
	return h.supervisor.Start(ctx, name, overrides)
}

func (h *handler) Stop(ctx context.Context, name string) error {
	h.logger.Debugf("Stop requested, unit: %s", name)
	return h.supervisor.Stop(ctx, name)
}

func (h *handler) Restart(ctx context.Context, name string, overrides unitconfig.Overrides) error {
	h.logger.Debugf("Restart requested, unit: %s", name)
	return h.supervisor.Restart(ctx, name, overrides)
}

func (h *handler) ClearLog(ctx context.Context, name string) error {
	return h.supervisor.ClearLog(name)
}

func (h *handler) Logs(ctx context.Context, name string, limit int) ([]string, error) {
	if _, err := h.supervisor.UnitStatus(name); err != nil {
		return nil, err
	}
	if h.logs == nil {
		return []string{}, nil
	}
	lines := h.logs.Text(name)
	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return lines, nil
}

// ToUnitInfo flattens a status snapshot into its wire form
func ToUnitInfo(status UnitStatus) domain.UnitInfo {
	def := status.Definition
	return domain.UnitInfo{
		Name:             status.Name,
		Kind:             string(status.Kind),
		State:            string(status.State),
		PID:              status.PID,
		RunID:            status.RunID,
		StartedAt:        status.StartedAt,
		StoppedAt:        status.StoppedAt,
		LastExit:         status.LastExit,
		WorkingDirectory: def.WorkingDirectory,
		CommandLine:      def.CommandLine,
		KillImage:        def.KillImage,
		EditableCommand:  def.EditableCommand,
		URL:              def.URL,
		IntervalSeconds:  def.IntervalSeconds,
	}
}
