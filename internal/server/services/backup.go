package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/financehub/internal/common"
	"github.com/dmitrijs2005/financehub/internal/logging"
	pb "github.com/dmitrijs2005/financehub/internal/proto"
	sc "github.com/dmitrijs2005/financehub/internal/server/config"
	"github.com/dmitrijs2005/financehub/internal/server/models"
	"github.com/dmitrijs2005/financehub/internal/server/repositories/repomanager"
	"github.com/google/uuid"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// BackupService hands out presigned object-storage URLs for database
// backups and records which backup is the latest.
type BackupService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
	log         logging.Logger
	now         func() time.Time
}

func NewBackupService(db *sql.DB, rm repomanager.RepositoryManager, c *sc.Config, l logging.Logger) *BackupService {
	return &BackupService{
		db:          db,
		repomanager: rm,
		config:      c,
		log:         l.With("module", "backup_service"),
		now:         time.Now,
	}
}

// StorageKey names a new backup object of one device.
func StorageKey(userID, deviceID string, at time.Time) string {
	return fmt.Sprintf("backups/%s/%s/%d/%02d/%02d/%v.db", userID, deviceID, at.Year(), at.Month(), at.Day(), uuid.New())
}

func (s *BackupService) getPresignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return newS3PresignClient(client), nil
}

// UploadURL records a new backup of deviceID and returns a presigned PUT
// for it.
func (s *BackupService) UploadURL(ctx context.Context, userID, deviceID, hash string, size int64) (*pb.BackupUploadURLResponse, error) {
	if deviceID == "" || hash == "" || size <= 0 {
		return nil, fmt.Errorf("%w: device id, hash and size are required", common.ErrValidation)
	}

	pc, err := s.getPresignClient(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	bucket := s.config.S3Bucket
	key := StorageKey(userID, deviceID, now)

	req, err := presignPutObject(pc, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(s.config.PresignExpiry))
	if err != nil {
		return nil, err
	}

	b := &models.Backup{
		ID:         uuid.NewString(),
		UserID:     userID,
		DeviceID:   deviceID,
		StorageKey: key,
		Hash:       hash,
		SizeBytes:  size,
		CreatedAt:  now.UnixMilli(),
	}
	if err := s.repomanager.Backups(s.db).Create(ctx, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	s.log.Info(ctx, "backup upload presigned", "user", userID, "device", deviceID, "key", key, "size", size)
	return &pb.BackupUploadURLResponse{Key: key, URL: req.URL}, nil
}

// Latest returns a presigned GET for the newest backup of the user, of one
// device when deviceID is set. No backup yields an empty response.
func (s *BackupService) Latest(ctx context.Context, userID, deviceID string) (*pb.LatestBackupResponse, error) {
	b, err := s.repomanager.Backups(s.db).Latest(ctx, userID, deviceID)
	if errors.Is(err, common.ErrNotFound) {
		return &pb.LatestBackupResponse{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	pc, err := s.getPresignClient(ctx)
	if err != nil {
		return nil, err
	}

	bucket := s.config.S3Bucket
	req, err := presignGetObject(pc, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &b.StorageKey,
	}, s3.WithPresignExpires(s.config.PresignExpiry))
	if err != nil {
		return nil, err
	}

	return &pb.LatestBackupResponse{
		Key:       b.StorageKey,
		URL:       req.URL,
		Hash:      b.Hash,
		SizeBytes: b.SizeBytes,
		CreatedAt: b.CreatedAt,
	}, nil
}
