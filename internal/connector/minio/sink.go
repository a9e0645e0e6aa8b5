// Package minio loads tables into S3-compatible object storage.
package minio

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/nucleus/etl-flows/internal/config"
	"github.com/nucleus/etl-flows/internal/core"
	"github.com/nucleus/etl-flows/internal/logger"
)

// Upload attempts for errors flagged retryable.
const (
	maxUploadAttempts = 3
	uploadBackoff     = 2 * time.Second
)

// Sink uploads encoded tables to an ObjectStore.
type Sink struct {
	store   ObjectStore
	log     logger.Logger
	backoff time.Duration
}

// NewSink creates a sink over store.
func NewSink(store ObjectStore, log logger.Logger) *Sink {
	if log == nil {
		log = logger.NewNop()
	}
	return &Sink{store: store, log: log, backoff: uploadBackoff}
}

// ObjectKey is
// {product}/{subject}/{source_method}/{Y}/{M}/{D}/{source_method}_{Out}_{product}_{subject}.{ext}.
func ObjectKey(task config.Task) string {
	d, ts := task.Details, task.Timestamps
	method := task.Data.SourceMethod
	file := fmt.Sprintf("%s_%s_%s_%s.%s", method, ts.Out, d.Product, d.Subject, task.Data.Destination.FileType)
	return path.Join(d.Product, d.Subject, method, ts.Year, ts.Month, ts.Day, file)
}

// Load encodes t in the task's file type and uploads it to the task's
// bucket. The envelope carries "{bucket}/{key}" on success.
func (s *Sink) Load(ctx context.Context, t *core.Table, task config.Task) core.Result[string] {
	title := task.Title()
	dest := task.Data.Destination
	if t == nil {
		t = core.NewTable(nil)
	}

	exists, err := s.store.BucketExists(ctx, dest.Bucket)
	if err != nil {
		return core.Failure[string](title, err)
	}
	if !exists {
		return core.Failure[string](title, wrapError(CodeBucketNotFound, false, fmt.Errorf("bucket %q not found", dest.Bucket)))
	}

	format := Format(dest.FileType)
	data, err := Encode(t, format)
	if err != nil {
		return core.Failure[string](title, err)
	}

	key := ObjectKey(task)
	if err := s.upload(ctx, dest.Bucket, key, format.ContentType(), data); err != nil {
		return core.Failure[string](title, err)
	}

	s.log.Info("object uploaded",
		logger.String("bucket", dest.Bucket),
		logger.String("key", key),
		logger.Int("rows", t.Len()),
		logger.Int("bytes", len(data)),
	)
	return core.Success(dest.Bucket+"/"+key, title, fmt.Sprintf("uploaded %d rows to %s/%s", t.Len(), dest.Bucket, key))
}

// upload retries PutObject while the store reports a retryable error.
func (s *Sink) upload(ctx context.Context, bucket, key, contentType string, data []byte) error {
	var err error
	for attempt := 1; attempt <= maxUploadAttempts; attempt++ {
		if err = s.store.PutObject(ctx, bucket, key, contentType, data); err == nil {
			return nil
		}
		var se *Error
		if !errors.As(err, &se) || !se.Retryable || attempt == maxUploadAttempts {
			return err
		}
		s.log.Warn("upload failed, retrying",
			logger.String("key", key), logger.Int("attempt", attempt), logger.Err(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff * time.Duration(attempt)):
		}
	}
	return err
}
