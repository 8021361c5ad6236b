package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name. Messages are
// google.protobuf.Struct documents with snake_case keys so the service can
// be called from any client with the well-known types and no generated stubs.
const ServiceName = "bookly.v1.BookingService"

type BookingServiceServer interface {
	ListAvailableSlots(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckAvailability(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReserveSlot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReleaseReservation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetReservationRemaining(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchReservation(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
	Checkout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TransitionAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAvailableActions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AcknowledgeNotification(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PutWeeklySchedule(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetWeeklySchedule(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

type unaryMethod func(BookingServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryMethod) grpc.MethodDesc {
	fullMethod := FullMethod(name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(BookingServiceServer), ctx, in)
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(BookingServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}, handler)
		},
	}
}

func watchReservationHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(BookingServiceServer).WatchReservation(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

var BookingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BookingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ListAvailableSlots", BookingServiceServer.ListAvailableSlots),
		unary("CheckAvailability", BookingServiceServer.CheckAvailability),
		unary("ReserveSlot", BookingServiceServer.ReserveSlot),
		unary("ReleaseReservation", BookingServiceServer.ReleaseReservation),
		unary("GetReservationRemaining", BookingServiceServer.GetReservationRemaining),
		unary("Checkout", BookingServiceServer.Checkout),
		unary("TransitionAppointment", BookingServiceServer.TransitionAppointment),
		unary("ListAvailableActions", BookingServiceServer.ListAvailableActions),
		unary("GetAppointment", BookingServiceServer.GetAppointment),
		unary("AcknowledgeNotification", BookingServiceServer.AcknowledgeNotification),
		unary("PutWeeklySchedule", BookingServiceServer.PutWeeklySchedule),
		unary("GetWeeklySchedule", BookingServiceServer.GetWeeklySchedule),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchReservation",
			Handler:       watchReservationHandler,
			ServerStreams: true,
		},
	},
}

func RegisterBookingServiceServer(s grpc.ServiceRegistrar, srv BookingServiceServer) {
	s.RegisterService(&BookingServiceDesc, srv)
}
