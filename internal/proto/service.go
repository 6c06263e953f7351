package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "financehub.sync.SyncService"

const (
	SyncService_HealthCheck_FullMethodName     = "/" + ServiceName + "/HealthCheck"
	SyncService_BatchSync_FullMethodName       = "/" + ServiceName + "/BatchSync"
	SyncService_PullDelta_FullMethodName       = "/" + ServiceName + "/PullDelta"
	SyncService_BackupUploadURL_FullMethodName = "/" + ServiceName + "/BackupUploadURL"
	SyncService_LatestBackup_FullMethodName    = "/" + ServiceName + "/LatestBackup"
)

// SyncServiceClient is the client API for SyncService.
type SyncServiceClient interface {
	HealthCheck(ctx context.Context, in *HealthCheckRequest, opts ...grpc.CallOption) (*HealthCheckResponse, error)
	BatchSync(ctx context.Context, in *BatchSyncRequest, opts ...grpc.CallOption) (*BatchSyncResponse, error)
	PullDelta(ctx context.Context, in *PullDeltaRequest, opts ...grpc.CallOption) (*PullDeltaResponse, error)
	BackupUploadURL(ctx context.Context, in *BackupUploadURLRequest, opts ...grpc.CallOption) (*BackupUploadURLResponse, error)
	LatestBackup(ctx context.Context, in *LatestBackupRequest, opts ...grpc.CallOption) (*LatestBackupResponse, error)
}

type syncServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewSyncServiceClient wraps cc. Every call is sent with the "json"
// content-subtype, so both ends pick the registered JSON codec.
func NewSyncServiceClient(cc grpc.ClientConnInterface) SyncServiceClient {
	return &syncServiceClient{cc}
}

func (c *syncServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *syncServiceClient) HealthCheck(ctx context.Context, in *HealthCheckRequest, opts ...grpc.CallOption) (*HealthCheckResponse, error) {
	out := new(HealthCheckResponse)
	if err := c.invoke(ctx, SyncService_HealthCheck_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *syncServiceClient) BatchSync(ctx context.Context, in *BatchSyncRequest, opts ...grpc.CallOption) (*BatchSyncResponse, error) {
	out := new(BatchSyncResponse)
	if err := c.invoke(ctx, SyncService_BatchSync_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *syncServiceClient) PullDelta(ctx context.Context, in *PullDeltaRequest, opts ...grpc.CallOption) (*PullDeltaResponse, error) {
	out := new(PullDeltaResponse)
	if err := c.invoke(ctx, SyncService_PullDelta_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *syncServiceClient) BackupUploadURL(ctx context.Context, in *BackupUploadURLRequest, opts ...grpc.CallOption) (*BackupUploadURLResponse, error) {
	out := new(BackupUploadURLResponse)
	if err := c.invoke(ctx, SyncService_BackupUploadURL_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *syncServiceClient) LatestBackup(ctx context.Context, in *LatestBackupRequest, opts ...grpc.CallOption) (*LatestBackupResponse, error) {
	out := new(LatestBackupResponse)
	if err := c.invoke(ctx, SyncService_LatestBackup_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// SyncServiceServer is the server API for SyncService.
// Implementations must embed UnimplementedSyncServiceServer.
type SyncServiceServer interface {
	HealthCheck(context.Context, *HealthCheckRequest) (*HealthCheckResponse, error)
	BatchSync(context.Context, *BatchSyncRequest) (*BatchSyncResponse, error)
	PullDelta(context.Context, *PullDeltaRequest) (*PullDeltaResponse, error)
	BackupUploadURL(context.Context, *BackupUploadURLRequest) (*BackupUploadURLResponse, error)
	LatestBackup(context.Context, *LatestBackupRequest) (*LatestBackupResponse, error)
	mustEmbedUnimplementedSyncServiceServer()
}

type UnimplementedSyncServiceServer struct{}

func (UnimplementedSyncServiceServer) HealthCheck(context.Context, *HealthCheckRequest) (*HealthCheckResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method HealthCheck not implemented")
}
func (UnimplementedSyncServiceServer) BatchSync(context.Context, *BatchSyncRequest) (*BatchSyncResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method BatchSync not implemented")
}
func (UnimplementedSyncServiceServer) PullDelta(context.Context, *PullDeltaRequest) (*PullDeltaResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method PullDelta not implemented")
}
func (UnimplementedSyncServiceServer) BackupUploadURL(context.Context, *BackupUploadURLRequest) (*BackupUploadURLResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method BackupUploadURL not implemented")
}
func (UnimplementedSyncServiceServer) LatestBackup(context.Context, *LatestBackupRequest) (*LatestBackupResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method LatestBackup not implemented")
}
func (UnimplementedSyncServiceServer) mustEmbedUnimplementedSyncServiceServer() {}

func RegisterSyncServiceServer(s grpc.ServiceRegistrar, srv SyncServiceServer) {
	s.RegisterService(&SyncService_ServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](
	method string,
	call func(SyncServiceServer, context.Context, *Req) (*Resp, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SyncServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SyncServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// SyncService_ServiceDesc is the grpc.ServiceDesc for SyncService.
var SyncService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SyncServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "HealthCheck",
			Handler:    unaryHandler(SyncService_HealthCheck_FullMethodName, SyncServiceServer.HealthCheck),
		},
		{
			MethodName: "BatchSync",
			Handler:    unaryHandler(SyncService_BatchSync_FullMethodName, SyncServiceServer.BatchSync),
		},
		{
			MethodName: "PullDelta",
			Handler:    unaryHandler(SyncService_PullDelta_FullMethodName, SyncServiceServer.PullDelta),
		},
		{
			MethodName: "BackupUploadURL",
			Handler:    unaryHandler(SyncService_BackupUploadURL_FullMethodName, SyncServiceServer.BackupUploadURL),
		},
		{
			MethodName: "LatestBackup",
			Handler:    unaryHandler(SyncService_LatestBackup_FullMethodName, SyncServiceServer.LatestBackup),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "financehub/sync.proto",
}
