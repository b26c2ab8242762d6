// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Codec names an export compression format.
type Codec string

const (
	CodecZstd   Codec = "zstd"
	CodecGzip   Codec = "gzip"
	CodecBrotli Codec = "brotli"
	CodecNone   Codec = "none"
)

// ParseCodec accepts the configured codec name, case-insensitively.
func ParseCodec(s string) (Codec, error) {
	switch c := Codec(strings.ToLower(strings.TrimSpace(s))); c {
	case CodecZstd, CodecGzip, CodecBrotli, CodecNone:
		return c, nil
	case "":
		return CodecZstd, nil
	default:
		return "", fmt.Errorf("export: unsupported codec %q", s)
	}
}

// Extension is the file suffix for exports in this codec.
func (c Codec) Extension() string {
	switch c {
	case CodecZstd:
		return ".jsonl.zst"
	case CodecGzip:
		return ".jsonl.gz"
	case CodecBrotli:
		return ".jsonl.br"
	default:
		return ".jsonl"
	}
}

// ContentEncoding is the HTTP content encoding for uploads, empty for none.
func (c Codec) ContentEncoding() string {
	switch c {
	case CodecZstd:
		return "zstd"
	case CodecGzip:
		return "gzip"
	case CodecBrotli:
		return "br"
	default:
		return ""
	}
}

// NewWriter wraps w with the codec's compressor. Close flushes the
// compressor; it never closes w.
func (c Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	switch c {
	case CodecZstd:
		return zstd.NewWriter(w)
	case CodecGzip:
		return gzip.NewWriter(w), nil
	case CodecBrotli:
		return brotli.NewWriter(w), nil
	case CodecNone:
		return nopCloser{w}, nil
	default:
		return nil, fmt.Errorf("export: unsupported codec %q", string(c))
	}
}

// NewReader decompresses r. It is the inverse of NewWriter.
func (c Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case CodecZstd:
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	case CodecGzip:
		return gzip.NewReader(r)
	case CodecBrotli:
		return io.NopCloser(brotli.NewReader(r)), nil
	case CodecNone:
		return io.NopCloser(r), nil
	default:
		return nil, fmt.Errorf("export: unsupported codec %q", string(c))
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
