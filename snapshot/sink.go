package snapshot

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/danthegoodman1/recordstore/utils"
	"github.com/rs/zerolog"
	"github.com/xitongsys/parquet-go-source/local"
	s3_pq "github.com/xitongsys/parquet-go-source/s3"
	"github.com/xitongsys/parquet-go/source"
)

type (
	// Sink stores snapshot files under slash separated names.
	Sink interface {
		Put(ctx context.Context, name string, r io.Reader) error
		Open(ctx context.Context, name string) (source.ParquetFile, error)
	}

	DiskSink struct {
		rootPath string
	}

	S3Sink struct {
		bucket   string
		client   *s3.S3
		uploader *s3manager.Uploader
	}
)

func NewDiskSink(rootPath string) (*DiskSink, error) {
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, fmt.Errorf("error in os.MkdirAll: %w", err)
	}
	return &DiskSink{rootPath: rootPath}, nil
}

func (ds *DiskSink) path(name string) string {
	return filepath.Join(ds.rootPath, filepath.FromSlash(name))
}

func (ds *DiskSink) Put(_ context.Context, name string, r io.Reader) error {
	p := ds.path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("error in os.MkdirAll: %w", err)
	}
	f, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("error in os.Create: %w", err)
	}
	defer f.Close()
	if _, err = io.Copy(f, r); err != nil {
		return fmt.Errorf("error in io.Copy: %w", err)
	}
	return nil
}

func (ds *DiskSink) Open(_ context.Context, name string) (source.ParquetFile, error) {
	f, err := local.NewLocalFileReader(ds.path(name))
	if err != nil {
		return nil, fmt.Errorf("error in local.NewLocalFileReader: %w", err)
	}
	return f, nil
}

// NewS3SinkFromEnv builds an S3 sink from the AWS_* and S3_* environment variables.
func NewS3SinkFromEnv() (*S3Sink, error) {
	s3Config := &aws.Config{
		Region:      aws.String(utils.AWS_DEFAULT_REGION),
		Credentials: credentials.NewEnvCredentials(),
	}
	if utils.S3_ENDPOINT != "" {
		s3Config.Endpoint = aws.String(utils.S3_ENDPOINT)
		s3Config.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(s3Config)
	if err != nil {
		return nil, fmt.Errorf("error making new session: %w", err)
	}
	return &S3Sink{
		bucket:   utils.S3_BUCKET_NAME,
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
	}, nil
}

func (ss *S3Sink) Put(ctx context.Context, name string, r io.Reader) error {
	logger := zerolog.Ctx(ctx)
	s := time.Now()
	_, err := ss.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(ss.bucket),
		Key:    aws.String(name),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("error uploading to s3: %w", err)
	}
	d := time.Since(s)
	logger.Debug().Str("fileName", name).Int64("durationNS", d.Nanoseconds()).Str("durationHuman", d.String()).Msg("uploaded file to s3")
	return nil
}

func (ss *S3Sink) Open(ctx context.Context, name string) (source.ParquetFile, error) {
	r, err := s3_pq.NewS3FileReaderWithParams(ctx, s3_pq.S3FileReaderParams{
		Bucket:   ss.bucket,
		Key:      name,
		S3Client: ss.client,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating new s3 file reader: %w", err)
	}
	return r, nil
}
