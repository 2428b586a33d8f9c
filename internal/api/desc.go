// Package api serves the notification working set of a session daemon over
// gRPC. Messages are well-known protobuf types (Empty, Struct, ListValue),
// so the service descriptor is declared by hand.
package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "thriveup.v1.NotificationService"

// Full method names.
const (
	MethodListNotifications  = "/" + ServiceName + "/ListNotifications"
	MethodOpenChat           = "/" + ServiceName + "/OpenChat"
	MethodGetStatus          = "/" + ServiceName + "/GetStatus"
	MethodWatchNotifications = "/" + ServiceName + "/WatchNotifications"
)

// NotificationServer is the server API of the notification service.
type NotificationServer interface {
	ListNotifications(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	OpenChat(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	WatchNotifications(*emptypb.Empty, grpc.ServerStream) error
}

// ServiceDesc describes NotificationService for grpc.Server.RegisterService
// and for client streams.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NotificationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListNotifications", Handler: listNotificationsHandler},
		{MethodName: "OpenChat", Handler: openChatHandler},
		{MethodName: "GetStatus", Handler: getStatusHandler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchNotifications",
			Handler:       watchNotificationsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "thriveup/v1/notification.proto",
}

// Register attaches srv to s.
func Register(s grpc.ServiceRegistrar, srv NotificationServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func listNotificationsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NotificationServer).ListNotifications(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodListNotifications}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(NotificationServer).ListNotifications(ctx, req.(*emptypb.Empty))
	})
}

func openChatHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NotificationServer).OpenChat(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodOpenChat}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(NotificationServer).OpenChat(ctx, req.(*structpb.Struct))
	})
}

func getStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NotificationServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodGetStatus}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(NotificationServer).GetStatus(ctx, req.(*emptypb.Empty))
	})
}

func watchNotificationsHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(NotificationServer).WatchNotifications(in, stream)
}
