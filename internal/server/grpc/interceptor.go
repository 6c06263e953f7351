package grpc

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/financehub/internal/common"
	pb "github.com/dmitrijs2005/financehub/internal/proto"
	"github.com/dmitrijs2005/financehub/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const UserIDKey ctxKey = "userID"

// public reports whether method may be called without a token: the sync
// health check and the standard health service.
func public(method string) bool {
	return method == pb.SyncService_HealthCheck_FullMethodName ||
		strings.HasPrefix(method, "/grpc.health.v1.Health/")
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if public(info.FullMethod) {
		return handler(ctx, req)
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.AccessTokenHeaderName); len(values) > 0 {
			accessToken = values[0]
		}
	}
	if accessToken == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	userID, err := auth.GetUserIDFromToken(accessToken, s.jwtSecret)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}

	return handler(context.WithValue(ctx, UserIDKey, userID), req)
}

func userIDFromContext(ctx context.Context) (string, error) {
	if id, ok := ctx.Value(UserIDKey).(string); ok && id != "" {
		return id, nil
	}
	return "", status.Error(codes.Unauthenticated, "unauthenticated")
}
