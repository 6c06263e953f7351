package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/financehub/internal/common"
	"github.com/dmitrijs2005/financehub/internal/logging"
	sc "github.com/dmitrijs2005/financehub/internal/server/config"
	"github.com/dmitrijs2005/financehub/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackupService(t *testing.T) (*BackupService, *fakeRepoMgr) {
	t.Helper()
	cfg := &sc.Config{
		S3Region:       "us-east-1",
		S3RootUser:     "minioadmin",
		S3RootPassword: "minioadmin",
		S3BaseEndpoint: "http://127.0.0.1:9000",
		S3Bucket:       "financehub",
		PresignExpiry:  5 * time.Minute,
	}
	rm := newFakeRepoMgr()
	s := NewBackupService(nil, rm, cfg, logging.Nop())
	s.now = func() time.Time { return t0 }
	return s, rm
}

// stubPresign replaces the AWS seams with fakes that echo the requested
// bucket and key.
func stubPresign(t *testing.T) {
	t.Helper()
	origLoad, origNewS3, origNewPre := loadDefaultAWSConfig, newS3ClientFromConfig, newS3PresignClient
	origPut, origGet := presignPutObject, presignGetObject
	t.Cleanup(func() {
		loadDefaultAWSConfig, newS3ClientFromConfig, newS3PresignClient = origLoad, origNewS3, origNewPre
		presignPutObject, presignGetObject = origPut, origGet
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client { return &s3.Client{} }
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient { return &s3.PresignClient{} }
	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return &v4.PresignedHTTPRequest{URL: "https://s3/put/" + *in.Bucket + "/" + *in.Key}, nil
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return &v4.PresignedHTTPRequest{URL: "https://s3/get/" + *in.Bucket + "/" + *in.Key}, nil
	}
}

func TestGetPresignClient_AppliesConfig(t *testing.T) {
	s, _ := newBackupService(t)

	origLoad, origNewS3, origNewPre := loadDefaultAWSConfig, newS3ClientFromConfig, newS3PresignClient
	t.Cleanup(func() {
		loadDefaultAWSConfig, newS3ClientFromConfig, newS3PresignClient = origLoad, origNewS3, origNewPre
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "us-east-1", lo.Region)
		return aws.Config{}, nil
	}
	var opts s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&opts)
		}
		return &s3.Client{}
	}
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient { return &s3.PresignClient{} }

	pc, err := s.getPresignClient(context.Background())
	require.NoError(t, err)
	require.NotNil(t, pc)
	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "http://127.0.0.1:9000", *opts.BaseEndpoint)
	assert.True(t, opts.UsePathStyle)

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("load-fail")
	}
	_, err = s.getPresignClient(context.Background())
	require.EqualError(t, err, "load-fail")
}

func TestUploadURL(t *testing.T) {
	stubPresign(t)
	s, rm := newBackupService(t)
	ctx := context.Background()

	_, err := s.UploadURL(ctx, "u1", "", "h", 10)
	require.ErrorIs(t, err, common.ErrValidation)
	_, err = s.UploadURL(ctx, "u1", "d1", "h", 0)
	require.ErrorIs(t, err, common.ErrValidation)

	resp, err := s.UploadURL(ctx, "u1", "d1", "abc", 4096)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.Key, "backups/u1/d1/2024/03/10/"), resp.Key)
	assert.Equal(t, "https://s3/put/financehub/"+resp.Key, resp.URL)

	require.Len(t, rm.backups.created, 1)
	b := rm.backups.created[0]
	assert.Equal(t, resp.Key, b.StorageKey)
	assert.Equal(t, "abc", b.Hash)
	assert.Equal(t, int64(4096), b.SizeBytes)
	assert.Equal(t, t0.UnixMilli(), b.CreatedAt)

	rm.backups.err = errors.New("db down")
	_, err = s.UploadURL(ctx, "u1", "d1", "abc", 4096)
	require.ErrorIs(t, err, ErrStorage)
}

func TestUploadURL_PresignError(t *testing.T) {
	stubPresign(t)
	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("presign-put-fail")
	}
	s, rm := newBackupService(t)

	_, err := s.UploadURL(context.Background(), "u1", "d1", "abc", 1)
	require.EqualError(t, err, "presign-put-fail")
	assert.Empty(t, rm.backups.created, "nothing recorded without a URL")
}

func TestLatest(t *testing.T) {
	stubPresign(t)
	s, rm := newBackupService(t)
	ctx := context.Background()

	resp, err := s.Latest(ctx, "u1", "")
	require.NoError(t, err)
	assert.Empty(t, resp.URL, "no backup yet")

	rm.backups.latest = &models.Backup{StorageKey: "backups/u1/d1/k.db", Hash: "h", SizeBytes: 7, CreatedAt: 9}
	resp, err = s.Latest(ctx, "u1", "d1")
	require.NoError(t, err)
	assert.Equal(t, "https://s3/get/financehub/backups/u1/d1/k.db", resp.URL)
	assert.Equal(t, "h", resp.Hash)
	assert.Equal(t, int64(7), resp.SizeBytes)

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("presign-get-fail")
	}
	_, err = s.Latest(ctx, "u1", "d1")
	require.EqualError(t, err, "presign-get-fail")

	rm.backups.err = errors.New("db down")
	_, err = s.Latest(ctx, "u1", "d1")
	require.ErrorIs(t, err, ErrStorage)
}
