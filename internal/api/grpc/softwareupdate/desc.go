package softwareupdate

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "swupdate.v1.SoftwareUpdate"

// Full method names.
const (
	CheckMethod  = "/" + ServiceName + "/Check"
	UpdateMethod = "/" + ServiceName + "/Update"
	StatusMethod = "/" + ServiceName + "/Status"
)

// SoftwareUpdateServer is the server API for the SoftwareUpdate service.
type SoftwareUpdateServer interface {
	Check(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Update(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Status(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the SoftwareUpdate service for grpc.Server.
//
//nolint:gochecknoglobals // Descriptors are package-level by convention.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SoftwareUpdateServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Check", Handler: unaryHandler(CheckMethod, SoftwareUpdateServer.Check)},
		{MethodName: "Update", Handler: unaryHandler(UpdateMethod, SoftwareUpdateServer.Update)},
		{MethodName: "Status", Handler: unaryHandler(StatusMethod, SoftwareUpdateServer.Status)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "swupdate/v1/swupdate.proto",
}

// RegisterSoftwareUpdateServer registers srv on the given registrar.
func RegisterSoftwareUpdateServer(s grpc.ServiceRegistrar, srv SoftwareUpdateServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type unaryCall func(SoftwareUpdateServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}

		server, _ := srv.(SoftwareUpdateServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: method,
		}

		handler := func(ctx context.Context, req any) (any, error) {
			in, _ := req.(*structpb.Struct)

			return call(server, ctx, in)
		}

		return interceptor(ctx, in, info, handler)
	}
}

// SoftwareUpdateClient is the client API for the SoftwareUpdate service.
type SoftwareUpdateClient interface {
	Check(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Update(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Status(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type softwareUpdateClient struct {
	cc grpc.ClientConnInterface
}

// NewSoftwareUpdateClient creates a client stub on top of cc.
func NewSoftwareUpdateClient(cc grpc.ClientConnInterface) SoftwareUpdateClient {
	return &softwareUpdateClient{cc: cc}
}

func (c *softwareUpdateClient) Check(
	ctx context.Context,
	in *structpb.Struct,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	return c.invoke(ctx, CheckMethod, in, opts...)
}

func (c *softwareUpdateClient) Update(
	ctx context.Context,
	in *structpb.Struct,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	return c.invoke(ctx, UpdateMethod, in, opts...)
}

func (c *softwareUpdateClient) Status(
	ctx context.Context,
	in *structpb.Struct,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	return c.invoke(ctx, StatusMethod, in, opts...)
}

func (c *softwareUpdateClient) invoke(
	ctx context.Context,
	method string,
	in *structpb.Struct,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}
