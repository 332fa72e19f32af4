package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/core-tools/hsu-desk/pkg/domain"
	"github.com/core-tools/hsu-desk/pkg/errors"
	"github.com/core-tools/hsu-desk/pkg/logging"
)

func RegisterGRPCServerHandler(grpcServerRegistrar grpc.ServiceRegistrar, handler domain.Contract, logger logging.Logger) {
	grpcServerRegistrar.RegisterService(&DeskServiceDesc, &grpcServerHandler{
		handler: handler,
		logger:  logger,
	})
}

type grpcServerHandler struct {
	handler domain.Contract
	logger  logging.Logger
}

func (h *grpcServerHandler) Status(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	units, err := h.handler.Status(ctx)
	if err != nil {
		h.logger.Errorf("Status server handler: %v", err)
		return nil, toStatusError(err)
	}
	h.logger.Debugf("Status server handler done")
	return h.reply(methodStatus, statusResponse{Units: units})
}

func (h *grpcServerHandler) Unit(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	var in unitRequest
	if err := h.decode(request, &in); err != nil {
		return nil, err
	}
	unit, err := h.handler.Unit(ctx, in.Name)
	if err != nil {
		h.logger.Debugf("Unit server handler: %v", err)
		return nil, toStatusError(err)
	}
	return h.reply(methodUnit, unitResponse{Unit: unit})
}

func (h *grpcServerHandler) Start(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	var in unitRequest
	if err := h.decode(request, &in); err != nil {
		return nil, err
	}
	if err := h.handler.Start(ctx, in.Name, in.overrides()); err != nil {
		h.logger.Warnf("Start server handler, unit: %s, error: %v", in.Name, err)
		return nil, toStatusError(err)
	}
	h.logger.Debugf("Start server handler done, unit: %s", in.Name)
	return &structpb.Struct{}, nil
}

func (h *grpcServerHandler) Stop(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	var in unitRequest
	if err := h.decode(request, &in); err != nil {
		return nil, err
	}
	if err := h.handler.Stop(ctx, in.Name); err != nil {
		h.logger.Warnf("Stop server handler, unit: %s, error: %v", in.Name, err)
		return nil, toStatusError(err)
	}
	h.logger.Debugf("Stop server handler done, unit: %s", in.Name)
	return &structpb.Struct{}, nil
}

func (h *grpcServerHandler) Restart(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	var in unitRequest
	if err := h.decode(request, &in); err != nil {
		return nil, err
	}
	if err := h.handler.Restart(ctx, in.Name, in.overrides()); err != nil {
		h.logger.Warnf("Restart server handler, unit: %s, error: %v", in.Name, err)
		return nil, toStatusError(err)
	}
	h.logger.Debugf("Restart server handler done, unit: %s", in.Name)
	return &structpb.Struct{}, nil
}

func (h *grpcServerHandler) ClearLog(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	var in unitRequest
	if err := h.decode(request, &in); err != nil {
		return nil, err
	}
	if err := h.handler.ClearLog(ctx, in.Name); err != nil {
		return nil, toStatusError(err)
	}
	return &structpb.Struct{}, nil
}

func (h *grpcServerHandler) Logs(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	var in logsRequest
	if err := h.decode(request, &in); err != nil {
		return nil, err
	}
	lines, err := h.handler.Logs(ctx, in.Name, in.Limit)
	if err != nil {
		return nil, toStatusError(err)
	}
	return h.reply(methodLogs, logsResponse{Lines: lines})
}

func (h *grpcServerHandler) decode(request *structpb.Struct, v interface{}) error {
	if err := fromStruct(request, v); err != nil {
		h.logger.Warnf("Malformed request: %v", err)
		return toStatusError(errors.NewValidationError("malformed request", err))
	}
	return nil
}

func (h *grpcServerHandler) reply(method string, v interface{}) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		h.logger.Errorf("%s server handler: failed to encode response: %v", method, err)
		return nil, toStatusError(errors.NewInternalError("failed to encode response", err))
	}
	return out, nil
}
