// Package compression implements GZIP payload compression for SEFAZ batches
package compression

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const (
	// CompressionTypeGzip is the media type of a zipped batch
	CompressionTypeGzip = "application/gzip"

	// MinCompressSize is the batch size from which nfeDadosMsgZip is used
	MinCompressSize = 8 * 1024

	// DefaultMaxDecompressed bounds inflated payloads
	DefaultMaxDecompressed = 16 << 20
)

// ErrTooLarge is returned when an inflated payload exceeds the configured limit
var ErrTooLarge = errors.New("decompressed payload exceeds limit")

// Compressor gzips batches and inflates docZip-style payloads
type Compressor struct {
	level           int
	maxDecompressed int64
}

// NewCompressor creates a compressor with the default level and limit
func NewCompressor() *Compressor {
	return NewCompressorWithLevel(gzip.DefaultCompression)
}

// NewCompressorWithLevel creates a compressor with an explicit gzip level
func NewCompressorWithLevel(level int) *Compressor {
	return &Compressor{level: level, maxDecompressed: DefaultMaxDecompressed}
}

// WithLimit returns a copy of c that refuses payloads inflating past n bytes
func (c *Compressor) WithLimit(n int64) *Compressor {
	cp := *c
	cp.maxDecompressed = n
	return &cp
}

// Compress gzips data
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("gzip level %d: %w", c.level, err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("compressing batch: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compressing batch: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress inflates gzip data up to the configured limit
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening gzip stream: %w", err)
	}
	defer r.Close()

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, c.maxDecompressed+1))
	if err != nil {
		return nil, fmt.Errorf("inflating payload: %w", err)
	}
	if n > c.maxDecompressed {
		return nil, ErrTooLarge
	}
	return buf.Bytes(), nil
}

// EncodeString gzips data and returns it base64 encoded, the form carried
// by nfeDadosMsgZip
func (c *Compressor) EncodeString(data []byte) (string, error) {
	zipped, err := c.Compress(data)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(zipped), nil
}

// DecodeString reverses EncodeString
func (c *Compressor) DecodeString(s string) ([]byte, error) {
	zipped, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace([]byte(s))))
	if err != nil {
		return nil, fmt.Errorf("decoding base64 payload: %w", err)
	}
	return c.Decompress(zipped)
}

// ShouldCompress reports whether a batch of the given size goes through
// nfeDadosMsgZip
func ShouldCompress(size int) bool {
	return size >= MinCompressSize
}
