package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/core-tools/hsu-desk/pkg/domain"
	"github.com/core-tools/hsu-desk/pkg/errors"
	"github.com/core-tools/hsu-desk/pkg/logging"
	"github.com/core-tools/hsu-desk/pkg/unitconfig"
)

func NewGRPCClientGateway(grpcClientConnection grpc.ClientConnInterface, logger logging.Logger) domain.Contract {
	return &grpcClientGateway{
		connection: grpcClientConnection,
		logger:     logger,
	}
}

type grpcClientGateway struct {
	connection grpc.ClientConnInterface
	logger     logging.Logger
}

func (gw *grpcClientGateway) Status(ctx context.Context) ([]domain.UnitInfo, error) {
	var response statusResponse
	if err := gw.invoke(ctx, methodStatus, struct{}{}, &response); err != nil {
		return nil, err
	}
	gw.logger.Debugf("Status client gateway done, units: %d", len(response.Units))
	return response.Units, nil
}

func (gw *grpcClientGateway) Unit(ctx context.Context, name string) (domain.UnitInfo, error) {
	var response unitResponse
	if err := gw.invoke(ctx, methodUnit, unitRequest{Name: name}, &response); err != nil {
		return domain.UnitInfo{}, err
	}
	return response.Unit, nil
}

func (gw *grpcClientGateway) Start(ctx context.Context, name string, overrides unitconfig.Overrides) error {
	return gw.invoke(ctx, methodStart, newUnitRequest(name, overrides), nil)
}

func (gw *grpcClientGateway) Stop(ctx context.Context, name string) error {
	return gw.invoke(ctx, methodStop, unitRequest{Name: name}, nil)
}

func (gw *grpcClientGateway) Restart(ctx context.Context, name string, overrides unitconfig.Overrides) error {
	return gw.invoke(ctx, methodRestart, newUnitRequest(name, overrides), nil)
}

func (gw *grpcClientGateway) ClearLog(ctx context.Context, name string) error {
	return gw.invoke(ctx, methodClearLog, unitRequest{Name: name}, nil)
}

func (gw *grpcClientGateway) Logs(ctx context.Context, name string, limit int) ([]string, error) {
	var response logsResponse
	if err := gw.invoke(ctx, methodLogs, logsRequest{Name: name, Limit: limit}, &response); err != nil {
		return nil, err
	}
	return response.Lines, nil
}

// invoke sends request and decodes the reply into response unless it is nil
func (gw *grpcClientGateway) invoke(ctx context.Context, method string, request, response interface{}) error {
	in, err := toStruct(request)
	if err != nil {
		return errors.NewValidationError("failed to encode request", err).WithContext("method", method)
	}

	out := new(structpb.Struct)
	if err := gw.connection.Invoke(ctx, fullMethod(method), in, out); err != nil {
		gw.logger.Errorf("%s client gateway: %v", method, err)
		return fromStatusError(err)
	}

	if response == nil {
		gw.logger.Debugf("%s client gateway done", method)
		return nil
	}
	if err := fromStruct(out, response); err != nil {
		return errors.NewInternalError("failed to decode response", err).WithContext("method", method)
	}
	return nil
}
