// Package fingerprint computes stable content digests. A fingerprint is the
// lowercase hex SHA-256 of the content bytes; identical bytes always produce
// an identical digest, which is the ownership-proof contract of the registry.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"
)

var (
	// ErrNotFound indicates the input source does not exist.
	ErrNotFound = errors.New("fingerprint: source not found")
	// ErrUnreadable indicates the input source exists but could not be read.
	ErrUnreadable = errors.New("fingerprint: source unreadable")
)

const defaultChunkSize = 64 * 1024

// Engine streams input in bounded chunks so arbitrarily large files never
// have to fit in memory.
type Engine struct {
	chunkSize   int
	readTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithChunkSize overrides the streaming chunk size.
func WithChunkSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.chunkSize = n
		}
	}
}

// WithReadTimeout bounds the total time spent reading one input, so hashing
// never blocks indefinitely on unresponsive storage.
func WithReadTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.readTimeout = d
		}
	}
}

// New constructs an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{chunkSize: defaultChunkSize}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// File hashes the file at path and returns the digest and the file size.
func (e *Engine) File(ctx context.Context, path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", 0, ErrNotFound
		}
		return "", 0, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	digest, err := e.Reader(ctx, f)
	if err != nil {
		return "", 0, err
	}
	return digest, info.Size(), nil
}

// Reader hashes everything readable from r.
func (e *Engine) Reader(ctx context.Context, r io.Reader) (string, error) {
	if e.readTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.readTimeout)
		defer cancel()
	}

	h := sha256.New()
	buf := make([]byte, e.chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Bytes hashes an in-memory byte slice. Convenience for metadata-derived
// fingerprints where no file is involved.
func (e *Engine) Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
