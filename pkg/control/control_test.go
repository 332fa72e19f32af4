package control

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/core-tools/hsu-desk/pkg/domain"
	"github.com/core-tools/hsu-desk/pkg/errors"
	"github.com/core-tools/hsu-desk/pkg/logging"
	"github.com/core-tools/hsu-desk/pkg/unitconfig"
)

type MockContract struct {
	mock.Mock
}

func (m *MockContract) Status(ctx context.Context) ([]domain.UnitInfo, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.UnitInfo), args.Error(1)
}

func (m *MockContract) Unit(ctx context.Context, name string) (domain.UnitInfo, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(domain.UnitInfo), args.Error(1)
}

func (m *MockContract) Start(ctx context.Context, name string, overrides unitconfig.Overrides) error {
	args := m.Called(ctx, name, overrides)
	return args.Error(0)
}

func (m *MockContract) Stop(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockContract) Restart(ctx context.Context, name string, overrides unitconfig.Overrides) error {
	args := m.Called(ctx, name, overrides)
	return args.Error(0)
}

func (m *MockContract) ClearLog(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockContract) Logs(ctx context.Context, name string, limit int) ([]string, error) {
	args := m.Called(ctx, name, limit)
	return args.Get(0).([]string), args.Error(1)
}

func newTestGateway(t *testing.T, contract domain.Contract) domain.Contract {
	t.Helper()
	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	RegisterGRPCServerHandler(server, contract, logging.Nop())
	go func() { _ = server.Serve(listener) }()

	connection, err := grpc.Dial("bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		connection.Close()
		server.Stop()
	})
	return NewGRPCClientGateway(connection, logging.Nop())
}

func TestGateway_Status(t *testing.T) {
	contract := &MockContract{}
	started := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	contract.On("Status", mock.Anything).Return([]domain.UnitInfo{
		{Name: "Cron Task", Kind: "cron", State: "running", URL: "https://x/cron", IntervalSeconds: 60, StartedAt: started},
		{Name: "Worker", Kind: "process", State: "stopped", CommandLine: []string{"php", "worker.php"}},
	}, nil)

	gateway := newTestGateway(t, contract)
	units, err := gateway.Status(context.Background())
	require.NoError(t, err)

	require.Len(t, units, 2)
	assert.Equal(t, "Cron Task", units[0].Name)
	assert.Equal(t, 60, units[0].IntervalSeconds)
	assert.True(t, started.Equal(units[0].StartedAt))
	assert.Equal(t, []string{"php", "worker.php"}, units[1].CommandLine)
	contract.AssertExpectations(t)
}

func TestGateway_StartPassesOverrides(t *testing.T) {
	contract := &MockContract{}
	dir := `C:\work`
	interval := 15
	contract.On("Start", mock.Anything, "Ngrok", mock.MatchedBy(func(o unitconfig.Overrides) bool {
		return o.WorkingDirectory != nil && *o.WorkingDirectory == dir &&
			assert.ObjectsAreEqual([]string{"ngrok", "http", "8080"}, o.CommandLine) &&
			o.URL == nil && o.IntervalSeconds != nil && *o.IntervalSeconds == interval
	})).Return(nil)

	gateway := newTestGateway(t, contract)
	err := gateway.Start(context.Background(), "Ngrok", unitconfig.Overrides{
		WorkingDirectory: &dir,
		CommandLine:      []string{"ngrok", "http", "8080"},
		IntervalSeconds:  &interval,
	})
	require.NoError(t, err)
	contract.AssertExpectations(t)
}

func TestGateway_EmptyOverridesStayEmpty(t *testing.T) {
	contract := &MockContract{}
	contract.On("Restart", mock.Anything, "Worker", mock.MatchedBy(func(o unitconfig.Overrides) bool {
		return o.IsEmpty()
	})).Return(nil)

	gateway := newTestGateway(t, contract)
	require.NoError(t, gateway.Restart(context.Background(), "Worker", unitconfig.Overrides{}))
	contract.AssertExpectations(t)
}

func TestGateway_ErrorTypesSurvive(t *testing.T) {
	contract := &MockContract{}
	contract.On("Start", mock.Anything, "Worker", mock.Anything).
		Return(errors.NewAlreadyRunningError("unit is already running", nil))
	contract.On("Stop", mock.Anything, "Worker").
		Return(errors.NewNotRunningError("unit is not running", nil))
	contract.On("Stop", mock.Anything, "Nope").
		Return(errors.NewNotFoundError("unit not found", nil))
	contract.On("ClearLog", mock.Anything, "Worker").
		Return(errors.NewProcessError("odd", nil))

	gateway := newTestGateway(t, contract)
	ctx := context.Background()

	err := gateway.Start(ctx, "Worker", unitconfig.Overrides{})
	assert.True(t, errors.IsAlreadyRunningError(err), "%v", err)
	assert.Contains(t, err.Error(), "unit is already running")

	assert.True(t, errors.IsNotRunningError(gateway.Stop(ctx, "Worker")))
	assert.True(t, errors.IsNotFoundError(gateway.Stop(ctx, "Nope")))
	assert.True(t, errors.IsInternalError(gateway.ClearLog(ctx, "Worker")))
}

func TestGateway_UnitAndLogs(t *testing.T) {
	contract := &MockContract{}
	contract.On("Unit", mock.Anything, "Tika").Return(domain.UnitInfo{Name: "Tika", State: "exited", LastExit: "exit code 1"}, nil)
	contract.On("Logs", mock.Anything, "Tika", 2).Return([]string{"a", "b"}, nil)

	gateway := newTestGateway(t, contract)
	ctx := context.Background()

	unit, err := gateway.Unit(ctx, "Tika")
	require.NoError(t, err)
	assert.Equal(t, "exit code 1", unit.LastExit)

	lines, err := gateway.Logs(ctx, "Tika", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, lines)
}
