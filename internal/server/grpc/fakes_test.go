package grpc

import (
	"context"

	"github.com/dmitrijs2005/financehub/internal/logging"
	pb "github.com/dmitrijs2005/financehub/internal/proto"
)

type fakeSync struct {
	lastUser  string
	lastBatch *pb.BatchSyncRequest
	lastSince int64

	batchResp *pb.BatchSyncResponse
	pullResp  *pb.PullDeltaResponse
	err       error
}

func (f *fakeSync) ApplyBatch(_ context.Context, userID string, req *pb.BatchSyncRequest) (*pb.BatchSyncResponse, error) {
	f.lastUser, f.lastBatch = userID, req
	return f.batchResp, f.err
}

func (f *fakeSync) PullDelta(_ context.Context, userID string, since int64) (*pb.PullDeltaResponse, error) {
	f.lastUser, f.lastSince = userID, since
	return f.pullResp, f.err
}

type fakeBackups struct {
	lastUser, lastDevice, lastHash string
	lastSize                       int64

	uploadResp *pb.BackupUploadURLResponse
	latestResp *pb.LatestBackupResponse
	err        error
}

func (f *fakeBackups) UploadURL(_ context.Context, userID, deviceID, hash string, size int64) (*pb.BackupUploadURLResponse, error) {
	f.lastUser, f.lastDevice, f.lastHash, f.lastSize = userID, deviceID, hash, size
	return f.uploadResp, f.err
}

func (f *fakeBackups) Latest(_ context.Context, userID, deviceID string) (*pb.LatestBackupResponse, error) {
	f.lastUser, f.lastDevice = userID, deviceID
	return f.latestResp, f.err
}

func newTestServer(secret string) (*GRPCServer, *fakeSync, *fakeBackups) {
	fs, fb := &fakeSync{}, &fakeBackups{}
	return NewGRPCServer("127.0.0.1:0", logging.Nop(), fs, fb, secret), fs, fb
}
