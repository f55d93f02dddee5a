package protocols

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Config is the connection bundle of an object-store profile. Endpoint is
// set for S3-compatible providers; Bucket selects the browsed bucket.
type S3Config struct {
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint,omitempty"`
	Bucket          string `json:"bucket,omitempty"`
}

func (c *S3Config) validate() error {
	switch {
	case c.AccessKeyID == "":
		return errors.New("accessKeyId is required")
	case c.SecretAccessKey == "":
		return errors.New("secretAccessKey is required")
	case c.Region == "":
		return errors.New("region is required")
	}
	return nil
}

// s3API is the subset of *s3.Client the adapter drives.
type s3API interface {
	s3.ListObjectsV2APIClient
	ListBuckets(ctx context.Context, in *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

var newS3Client = func(ctx context.Context, cfg S3Config) (s3API, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// now stamps synthetic directories.
var now = time.Now

// S3FileSystem is an object-store "session". The protocol is stateless per
// request, so Connect only builds the client and Disconnect drops it.
type S3FileSystem struct {
	cfg    S3Config
	client s3API
}

// NewS3 validates cfg and returns an unconnected session.
func NewS3(cfg S3Config) (*S3FileSystem, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("s3 config: %w", err)
	}
	return &S3FileSystem{cfg: cfg}, nil
}

// NewS3FromJSON decodes an object-store profile bundle.
func NewS3FromJSON(raw json.RawMessage) (*S3FileSystem, error) {
	var cfg S3Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse s3 config: %w", err)
	}
	return NewS3(cfg)
}

func (b *S3FileSystem) Kind() Kind { return KindS3 }

// Bucket returns the bucket the session operates on.
func (b *S3FileSystem) Bucket() string { return b.cfg.Bucket }

func (b *S3FileSystem) Connect(ctx context.Context) error {
	client, err := newS3Client(ctx, b.cfg)
	if err != nil {
		return connectionError(KindS3, "configure", b.cfg.Region, err)
	}
	b.client = client
	return nil
}

func (b *S3FileSystem) Disconnect() error {
	b.client = nil
	return nil
}

// Probe checks reachability and credentials by listing buckets.
func (b *S3FileSystem) Probe(ctx context.Context) error {
	if _, err := b.ListBuckets(ctx); err != nil {
		var pe *Error
		if errors.As(err, &pe) {
			pe.Kind = ErrConnection
			return pe
		}
		return connectionError(KindS3, "list buckets", "", err)
	}
	return nil
}

// ListBuckets returns the names of all buckets visible to the credentials.
func (b *S3FileSystem) ListBuckets(ctx context.Context) ([]string, error) {
	if b.client == nil {
		return nil, listError(KindS3, "", errNotConnected)
	}

	out, err := b.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, &Error{Kind: ErrList, Backend: KindS3, Op: "list buckets", Err: s3Cause(err)}
	}

	names := make([]string, 0, len(out.Buckets))
	for _, bucket := range out.Buckets {
		names = append(names, aws.ToString(bucket.Name))
	}
	return names, nil
}

// List groups the keys under the prefix derived from dir on "/".
func (b *S3FileSystem) List(ctx context.Context, dir string) ([]DirectoryEntry, error) {
	prefix := ObjectPrefix(dir)
	if b.client == nil {
		return nil, listError(KindS3, b.location(prefix), errNotConnected)
	}
	if b.cfg.Bucket == "" {
		return nil, listError(KindS3, prefix, errors.New("no bucket selected"))
	}

	listing := ObjectListing{Prefix: prefix}
	p := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(b.cfg.Bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String(objectDelimiter),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, listError(KindS3, b.location(prefix), s3Cause(err))
		}
		for _, cp := range page.CommonPrefixes {
			listing.CommonPrefixes = append(listing.CommonPrefixes, aws.ToString(cp.Prefix))
		}
		for _, obj := range page.Contents {
			listing.Objects = append(listing.Objects, Object{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return FromObjectListing(listing, now()), nil
}

func (b *S3FileSystem) Download(ctx context.Context, key, localPath string) error {
	key = objectKey(key)
	if b.client == nil {
		return transferError(KindS3, "download", b.location(key), errNotConnected)
	}

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return transferError(KindS3, "download", b.location(key), s3Cause(err))
	}
	defer out.Body.Close()

	if _, err := writeLocal(localPath, out.Body); err != nil {
		return transferError(KindS3, "download", b.location(key), err)
	}
	return nil
}

func (b *S3FileSystem) Upload(ctx context.Context, localPath, key string) error {
	key = objectKey(key)
	if b.client == nil {
		return transferError(KindS3, "upload", b.location(key), errNotConnected)
	}

	src, size, err := openLocal(localPath)
	if err != nil {
		return transferError(KindS3, "upload", b.location(key), err)
	}
	defer src.Close()

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.cfg.Bucket),
		Key:           aws.String(key),
		Body:          src,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return transferError(KindS3, "upload", b.location(key), s3Cause(err))
	}
	return nil
}

// Remove deletes key. Deleting a key that does not exist succeeds, as it does
// natively on S3.
func (b *S3FileSystem) Remove(ctx context.Context, key string) error {
	key = objectKey(key)
	if b.client == nil {
		return transferError(KindS3, "delete", b.location(key), errNotConnected)
	}

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return transferError(KindS3, "delete", b.location(key), s3Cause(err))
	}
	return nil
}

// MkdirAll writes the zero-length "dir/" marker object. Parents need no
// marker; they exist as soon as a key below them does.
func (b *S3FileSystem) MkdirAll(ctx context.Context, dir string) error {
	prefix := ObjectPrefix(dir)
	if prefix == "" {
		return nil
	}
	if b.client == nil {
		return transferError(KindS3, "mkdir", b.location(prefix), errNotConnected)
	}

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.cfg.Bucket),
		Key:           aws.String(prefix),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
	})
	if err != nil {
		return transferError(KindS3, "mkdir", b.location(prefix), s3Cause(err))
	}
	return nil
}

func (b *S3FileSystem) location(key string) string {
	return b.cfg.Bucket + "/" + key
}

func objectKey(p string) string {
	return strings.TrimLeft(p, objectDelimiter)
}

// s3Error keeps the SDK error text while letting callers match the portable
// fs errors.
type s3Error struct {
	err  error
	kind error
}

func (e *s3Error) Error() string   { return e.err.Error() }
func (e *s3Error) Unwrap() []error { return []error{e.err, e.kind} }

func s3Cause(err error) error {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return err
	}
	switch ae.ErrorCode() {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return &s3Error{err: err, kind: fs.ErrNotExist}
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return &s3Error{err: err, kind: fs.ErrPermission}
	}
	return err
}
