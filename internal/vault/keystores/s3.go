package keystores

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/catalogkeeper/internal/vault"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// ObjectAPI is the part of *s3.Client the S3 store needs.
type ObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config describes an S3-compatible endpoint (AWS or MinIO).
type S3Config struct {
	RootUser     string
	RootPassword string
	Bucket       string
	Region       string
	BaseEndpoint string
	Object       string
}

// NewS3Client builds a path-style client with static credentials.
func NewS3Client(ctx context.Context, c S3Config) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.RootUser,
			c.RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(c.BaseEndpoint)
		}
		o.UsePathStyle = true
	}), nil
}

// S3Store keeps the vault document as a single object.
type S3Store struct {
	mu     sync.Mutex
	api    ObjectAPI
	bucket string
	key    string
	state  *vault.State
	now    func() time.Time
}

func NewS3Store(api ObjectAPI, bucket, key string) *S3Store {
	return &S3Store{api: api, bucket: bucket, key: key, now: time.Now}
}

func (s *S3Store) Load(ctx context.Context) (*vault.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.fetch(ctx)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, vault.ErrStoreNotFound
		}
		return nil, err
	}

	st, err := vault.UnmarshalState(data)
	if err != nil {
		return nil, fmt.Errorf("parse s3://%s/%s: %w", s.bucket, s.key, err)
	}
	s.state = st
	return st.Clone(), nil
}

// Init writes st as the new document. An existing object is copied to
// <key>.corrupt-<unix> first. Init does not write when the current object
// cannot be read.
func (s *S3Store) Init(ctx context.Context, st *vault.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.fetch(ctx)
	switch {
	case err == nil:
		backup := fmt.Sprintf("%s.corrupt-%d", s.key, s.now().Unix())
		if err := s.put(ctx, backup, current); err != nil {
			return fmt.Errorf("back up s3://%s/%s: %w", s.bucket, s.key, err)
		}
	case !isNoSuchKey(err):
		return fmt.Errorf("refusing to overwrite s3://%s/%s: %w", s.bucket, s.key, err)
	}

	if err := s.write(ctx, st); err != nil {
		return err
	}
	s.state = st.Clone()
	return nil
}

func (s *S3Store) PutIfAbsent(ctx context.Context, userID int64, key []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return nil, errors.New("s3 store not initialized")
	}
	if k, ok := s.state.UserKeys[userID]; ok {
		return bytes.Clone(k), nil
	}

	next := s.state.Clone()
	next.UserKeys[userID] = bytes.Clone(key)
	if err := s.write(ctx, next); err != nil {
		return nil, err
	}
	s.state = next
	return bytes.Clone(key), nil
}

func (s *S3Store) Close() error { return nil }

func (s *S3Store) write(ctx context.Context, st *vault.State) error {
	data, err := vault.MarshalState(st)
	if err != nil {
		return fmt.Errorf("encode vault: %w", err)
	}
	if err := s.put(ctx, s.key, data); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}

func (s *S3Store) fetch(ctx context.Context) ([]byte, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, err
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, s.key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return data, nil
}

func (s *S3Store) put(ctx context.Context, key string, data []byte) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	return err
}

func isNoSuchKey(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
