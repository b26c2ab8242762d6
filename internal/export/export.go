// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package export streams decision records as compressed JSON Lines, to a
// writer or to an S3-compatible bucket.
package export

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/goccy/go-json"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/switchai-router/internal/config"
	"github.com/traylinx/switchai-router/internal/store"
)

// Source yields records in creation order. *store.Store implements it.
type Source interface {
	Iterate(ctx context.Context, f store.Filter, fn func(*store.Record) error) error
}

// Uploader is the subset of *minio.Client used for uploads.
type Uploader interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Exporter writes records from a Source using one codec.
type Exporter struct {
	src      Source
	codec    Codec
	uploader Uploader
	bucket   string
	prefix   string
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithUploader replaces the uploader built from configuration.
func WithUploader(u Uploader, bucket string) Option {
	return func(e *Exporter) {
		e.uploader = u
		e.bucket = bucket
	}
}

// New creates an exporter for cfg. When cfg.ObjectStore is enabled a minio
// client is created for it; no connection is made until the first upload.
func New(src Source, cfg config.ExportConfig, opts ...Option) (*Exporter, error) {
	codec, err := ParseCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}
	e := &Exporter{src: src, codec: codec, prefix: cfg.ObjectStore.Prefix}

	if obj := cfg.ObjectStore; obj.Enabled() {
		client, errClient := minio.New(obj.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(obj.AccessKey, obj.SecretKey, ""),
			Secure: obj.UseSSL,
		})
		if errClient != nil {
			return nil, fmt.Errorf("export: object store client: %w", errClient)
		}
		e.uploader = client
		e.bucket = obj.Bucket
	}

	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Codec returns the configured compression codec.
func (e *Exporter) Codec() Codec { return e.codec }

// Write streams every record matching f to w, one JSON object per line, and
// returns the number of records written.
func (e *Exporter) Write(ctx context.Context, w io.Writer, f store.Filter) (int64, error) {
	enc, err := e.codec.NewWriter(w)
	if err != nil {
		return 0, err
	}
	buf := bufio.NewWriterSize(enc, 64*1024)
	jenc := json.NewEncoder(buf)

	var n int64
	err = e.src.Iterate(ctx, f, func(r *store.Record) error {
		if err := jenc.Encode(r); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		enc.Close()
		return n, fmt.Errorf("export: %w", err)
	}
	if err := buf.Flush(); err != nil {
		enc.Close()
		return n, fmt.Errorf("export: %w", err)
	}
	if err := enc.Close(); err != nil {
		return n, fmt.Errorf("export: %w", err)
	}
	return n, nil
}

// Result describes a finished upload.
type Result struct {
	Bucket  string `json:"bucket"`
	Object  string `json:"object"`
	Records int64  `json:"records"`
	Bytes   int64  `json:"bytes"`
}

// Upload writes the export to a temporary file, then puts it in the bucket
// under an object name derived from the window.
func (e *Exporter) Upload(ctx context.Context, f store.Filter) (Result, error) {
	if e.uploader == nil {
		return Result{}, fmt.Errorf("export: no object store configured")
	}

	tmp, err := os.CreateTemp("", "routing-export-*")
	if err != nil {
		return Result{}, fmt.Errorf("export: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	n, err := e.Write(ctx, tmp, f)
	if err != nil {
		return Result{}, err
	}
	size, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		return Result{}, fmt.Errorf("export: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return Result{}, fmt.Errorf("export: %w", err)
	}

	object := ObjectName(e.prefix, f, e.codec)
	info, err := e.uploader.PutObject(ctx, e.bucket, object, tmp, size, minio.PutObjectOptions{
		ContentType:     "application/x-ndjson",
		ContentEncoding: e.codec.ContentEncoding(),
	})
	if err != nil {
		return Result{}, fmt.Errorf("export: upload %s/%s: %w", e.bucket, object, err)
	}
	log.Infof("Exported %d decision records to %s/%s (%d bytes)", n, info.Bucket, info.Key, size)
	return Result{Bucket: e.bucket, Object: object, Records: n, Bytes: size}, nil
}

// ObjectName builds the object key for a window, e.g.
// exports/acct-1/decisions-20260301T000000Z-20260308T000000Z.jsonl.zst
func ObjectName(prefix string, f store.Filter, c Codec) string {
	const layout = "20060102T150405Z"
	since, until := "begin", "now"
	if !f.Since.IsZero() {
		since = f.Since.UTC().Format(layout)
	}
	if !f.Until.IsZero() {
		until = f.Until.UTC().Format(layout)
	}
	name := fmt.Sprintf("decisions-%s-%s%s", since, until, c.Extension())
	if f.AccountID != "" {
		name = path.Join(f.AccountID, name)
	}
	return path.Join(prefix, name)
}

// Window returns the filter for the lookback ending at now.
func Window(account string, lookback time.Duration, now time.Time) store.Filter {
	return store.Filter{AccountID: account, Since: now.Add(-lookback), Until: now}
}
