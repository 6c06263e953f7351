package client

import (
	"context"

	pb "github.com/dmitrijs2005/financehub/internal/proto"
)

// RemoteEndpoint is the server as seen by the sync agent.
type RemoteEndpoint interface {
	HealthCheck(ctx context.Context) error
	BatchSync(ctx context.Context, req *pb.BatchSyncRequest) (*pb.BatchSyncResponse, error)
	PullDelta(ctx context.Context, since int64) (*pb.PullDeltaResponse, error)
	BackupUploadURL(ctx context.Context, deviceID, hash string, size int64) (*pb.BackupUploadURLResponse, error)
	LatestBackup(ctx context.Context, deviceID string) (*pb.LatestBackupResponse, error)
	Close() error
}

var _ RemoteEndpoint = (*GRPCClient)(nil)
