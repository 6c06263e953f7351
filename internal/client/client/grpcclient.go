package client

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/financehub/internal/common"
	pb "github.com/dmitrijs2005/financehub/internal/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const HealthStatusOK = common.HealthStatusOK

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      pb.SyncServiceClient
	accessToken string
	timeout     time.Duration
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if s.accessToken != "" {
		ctx = withAccessToken(ctx, s.accessToken)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

// NewGRPCClient connects lazily to endpointURL. timeout bounds every call;
// zero leaves calls bounded only by the caller's context.
func NewGRPCClient(endpointURL, accessToken string, timeout time.Duration, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, accessToken: accessToken, timeout: timeout}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", endpointURL, err)
	}
	c.conn = conn
	c.client = pb.NewSyncServiceClient(conn)
	return c, nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// HealthCheck succeeds only when the server answers with status OK.
func (s *GRPCClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	resp, err := s.client.HealthCheck(ctx, &pb.HealthCheckRequest{})
	if err != nil {
		return s.mapError(err)
	}

	if resp.Status != HealthStatusOK {
		return fmt.Errorf("%w: health status %q", ErrUnavailable, resp.Status)
	}

	return nil
}

func (s *GRPCClient) BatchSync(ctx context.Context, req *pb.BatchSyncRequest) (*pb.BatchSyncResponse, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	resp, err := s.client.BatchSync(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) PullDelta(ctx context.Context, since int64) (*pb.PullDeltaResponse, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	resp, err := s.client.PullDelta(ctx, &pb.PullDeltaRequest{Since: since})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) BackupUploadURL(ctx context.Context, deviceID, hash string, size int64) (*pb.BackupUploadURLResponse, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	req := &pb.BackupUploadURLRequest{DeviceID: deviceID, Hash: hash, SizeBytes: size}
	resp, err := s.client.BackupUploadURL(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) LatestBackup(ctx context.Context, deviceID string) (*pb.LatestBackupResponse, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	resp, err := s.client.LatestBackup(ctx, &pb.LatestBackupRequest{DeviceID: deviceID})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
