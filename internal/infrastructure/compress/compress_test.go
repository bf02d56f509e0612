package compress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecs(t *testing.T) {
	payload := bytes.Repeat([]byte(`{"name":"Pro","seats":10}`), 64)

	for _, name := range []string{"gzip", "zstd"} {
		t.Run(name, func(t *testing.T) {
			c, err := ByName(name)
			require.NoError(t, err)
			assert.Equal(t, name, c.Name())

			enc, err := c.Encode(payload)
			require.NoError(t, err)
			assert.Less(t, len(enc), len(payload))

			dec, err := c.Decode(enc)
			require.NoError(t, err)
			assert.Equal(t, payload, dec)
		})
	}
}

func TestDecodeRejectsPlainText(t *testing.T) {
	tests := []struct {
		name  string
		codec Compressor
	}{
		{name: "gzip", codec: Gzip()},
		{name: "zstd", codec: Zstd()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.codec.Decode([]byte(`{"plain":"json"}`))
			assert.Error(t, err)
		})
	}
}

func TestByNameUnknown(t *testing.T) {
	_, err := ByName("lz77")
	assert.Error(t, err)

	c, err := ByName("")
	require.NoError(t, err)
	assert.Equal(t, "gzip", c.Name())
}

func TestGzipWriterReuse(t *testing.T) {
	c := Gzip()
	for i := 0; i < 3; i++ {
		enc, err := c.Encode([]byte("hello hello hello"))
		require.NoError(t, err)
		dec, err := c.Decode(enc)
		require.NoError(t, err)
		assert.Equal(t, "hello hello hello", string(dec))
	}
}
