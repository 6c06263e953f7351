package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/financehub/internal/common"
	pb "github.com/dmitrijs2005/financehub/internal/proto"
	"github.com/dmitrijs2005/financehub/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (s *GRPCServer) HealthCheck(ctx context.Context, _ *pb.HealthCheckRequest) (*pb.HealthCheckResponse, error) {
	return &pb.HealthCheckResponse{Status: common.HealthStatusOK, Timestamp: s.now().UnixMilli(), Version: common.ServiceVersion}, nil
}

func (s *GRPCServer) BatchSync(ctx context.Context, req *pb.BatchSyncRequest) (*pb.BatchSyncResponse, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := s.sync.ApplyBatch(ctx, userID, req)
	if err != nil {
		return nil, s.toStatus(ctx, "BatchSync", err)
	}
	return resp, nil
}

func (s *GRPCServer) PullDelta(ctx context.Context, req *pb.PullDeltaRequest) (*pb.PullDeltaResponse, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := s.sync.PullDelta(ctx, userID, req.Since)
	if err != nil {
		return nil, s.toStatus(ctx, "PullDelta", err)
	}
	return resp, nil
}

func (s *GRPCServer) BackupUploadURL(ctx context.Context, req *pb.BackupUploadURLRequest) (*pb.BackupUploadURLResponse, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := s.backups.UploadURL(ctx, userID, req.DeviceID, req.Hash, req.SizeBytes)
	if err != nil {
		return nil, s.toStatus(ctx, "BackupUploadURL", err)
	}
	return resp, nil
}

func (s *GRPCServer) LatestBackup(ctx context.Context, req *pb.LatestBackupRequest) (*pb.LatestBackupResponse, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := s.backups.Latest(ctx, userID, req.DeviceID)
	if err != nil {
		return nil, s.toStatus(ctx, "LatestBackup", err)
	}
	return resp, nil
}

// toStatus maps service errors onto gRPC codes. Storage failures are
// reported as Unavailable so devices back off and retry.
func (s *GRPCServer) toStatus(ctx context.Context, method string, err error) error {
	switch {
	case errors.Is(err, common.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, services.ErrStorage):
		s.logger.Error(ctx, "storage failure", "method", method, "error", err)
		return status.Error(codes.Unavailable, "storage unavailable")
	}
	s.logger.Error(ctx, "request failed", "method", method, "error", err)
	return status.Error(codes.Internal, "internal error")
}
