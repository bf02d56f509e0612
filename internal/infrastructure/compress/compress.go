// Package compress provides the value codecs used by the cache service.
package compress

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compressor compresses and decompresses cache payloads.
type Compressor interface {
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
	Name() string
}

// ByName returns the codec registered under name ("gzip" or "zstd").
func ByName(name string) (Compressor, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "gzip":
		return Gzip(), nil
	case "zstd":
		return Zstd(), nil
	default:
		return nil, fmt.Errorf("unknown compression codec %q", name)
	}
}

type gzipc struct {
	writers sync.Pool
}

// Gzip returns a gzip codec at default compression.
func Gzip() Compressor {
	return &gzipc{writers: sync.Pool{New: func() any {
		w, _ := gzip.NewWriterLevel(nil, gzip.DefaultCompression) //nolint:errcheck // level is valid
		return w
	}}}
}

func (g *gzipc) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := g.writers.Get().(*gzip.Writer)
	defer g.writers.Put(w)
	w.Reset(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

func (*gzipc) Decode(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip header: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}
	return out, nil
}

func (*gzipc) Name() string { return "gzip" }

type zstdc struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Zstd returns a Zstandard codec at default speed.
func Zstd() Compressor {
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault)) //nolint:errcheck // options are valid
	dec, _ := zstd.NewReader(nil)                                          //nolint:errcheck // options are valid
	return &zstdc{enc: enc, dec: dec}
}

func (z *zstdc) Encode(data []byte) ([]byte, error) { return z.enc.EncodeAll(data, nil), nil }

func (z *zstdc) Decode(data []byte) ([]byte, error) {
	out, err := z.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}

func (*zstdc) Name() string { return "zstd" }
