package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "hsudesk.DeskService"

const (
	methodStatus   = "Status"
	methodUnit     = "Unit"
	methodStart    = "Start"
	methodStop     = "Stop"
	methodRestart  = "Restart"
	methodClearLog = "ClearLog"
	methodLogs     = "Logs"
)

// DeskServiceServer is the server side of the desk service. Messages are
// google.protobuf.Struct values.
type DeskServiceServer interface {
	Status(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Unit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Start(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Stop(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Restart(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ClearLog(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Logs(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(DeskServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DeskServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod(method),
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(DeskServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// DeskServiceDesc describes the desk service for grpc.ServiceRegistrar
var DeskServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DeskServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodStatus, Handler: unaryHandler(methodStatus, DeskServiceServer.Status)},
		{MethodName: methodUnit, Handler: unaryHandler(methodUnit, DeskServiceServer.Unit)},
		{MethodName: methodStart, Handler: unaryHandler(methodStart, DeskServiceServer.Start)},
		{MethodName: methodStop, Handler: unaryHandler(methodStop, DeskServiceServer.Stop)},
		{MethodName: methodRestart, Handler: unaryHandler(methodRestart, DeskServiceServer.Restart)},
		{MethodName: methodClearLog, Handler: unaryHandler(methodClearLog, DeskServiceServer.ClearLog)},
		{MethodName: methodLogs, Handler: unaryHandler(methodLogs, DeskServiceServer.Logs)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hsudesk/desk.proto",
}
