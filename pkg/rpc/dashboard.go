package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "rewardboard.v1.Dashboard"

// DashboardServer is the server API of rewardboard.v1.Dashboard.
type DashboardServer interface {
	OpenSession(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	GetView(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ToggleRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetShowAll(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CloseSession(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	WatchView(*wrapperspb.StringValue, Dashboard_WatchViewServer) error
}

// Dashboard_WatchViewServer is the server side of the WatchView stream.
type Dashboard_WatchViewServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type watchViewServer struct {
	grpc.ServerStream
}

func (x *watchViewServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

// RegisterDashboardServer registers srv on s.
func RegisterDashboardServer(s grpc.ServiceRegistrar, srv DashboardServer) {
	s.RegisterService(&dashboardServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](method string, call func(DashboardServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DashboardServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(DashboardServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchViewHandler(srv any, stream grpc.ServerStream) error {
	in := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(DashboardServer).WatchView(in, &watchViewServer{stream})
}

var dashboardServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DashboardServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "OpenSession", Handler: unaryHandler("OpenSession", DashboardServer.OpenSession)},
		{MethodName: "GetView", Handler: unaryHandler("GetView", DashboardServer.GetView)},
		{MethodName: "ToggleRun", Handler: unaryHandler("ToggleRun", DashboardServer.ToggleRun)},
		{MethodName: "SetShowAll", Handler: unaryHandler("SetShowAll", DashboardServer.SetShowAll)},
		{MethodName: "CloseSession", Handler: unaryHandler("CloseSession", DashboardServer.CloseSession)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchView", Handler: watchViewHandler, ServerStreams: true},
	},
	Metadata: "rewardboard/v1/dashboard.proto",
}

// Client is a thin client for rewardboard.v1.Dashboard.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}

// OpenSession opens a session and returns its id.
func (c *Client) OpenSession(ctx context.Context, opts ...grpc.CallOption) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.invoke(ctx, "OpenSession", &emptypb.Empty{}, out, opts...); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// GetView returns the composed view of a session.
func (c *Client) GetView(ctx context.Context, sessionID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "GetView", wrapperspb.String(sessionID), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ToggleRun flips one run's selection.
func (c *Client) ToggleRun(ctx context.Context, sessionID, run string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"session": sessionID, "run": run})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "ToggleRun", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// SetShowAll sets the table display gate.
func (c *Client) SetShowAll(ctx context.Context, sessionID string, show bool, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"session": sessionID, "show_all": show})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "SetShowAll", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// CloseSession tears a session down.
func (c *Client) CloseSession(ctx context.Context, sessionID string, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "CloseSession", wrapperspb.String(sessionID), new(emptypb.Empty), opts...)
}

// WatchView opens the view stream of a session. Call Recv on the returned
// stream until it fails.
func (c *Client) WatchView(ctx context.Context, sessionID string, opts ...grpc.CallOption) (*ViewStream, error) {
	desc := &dashboardServiceDesc.Streams[0]
	stream, err := c.cc.NewStream(ctx, desc, "/"+ServiceName+"/WatchView", opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(wrapperspb.String(sessionID)); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &ViewStream{stream: stream}, nil
}

// ViewStream receives view models from WatchView.
type ViewStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next view model.
func (s *ViewStream) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := s.stream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
