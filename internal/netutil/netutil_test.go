package netutil

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultClientConfig(t *testing.T) {
	cfg := NewDefaultClientConfig()

	assert.Equal(t, DefaultResponseHeaderTimeout, cfg.ResponseHeaderTimeout)
	assert.Equal(t, DefaultMaxIdleConns, cfg.MaxIdleConns)
	assert.Equal(t, DefaultMaxIdleConnsPerHost, cfg.MaxIdleConnsPerHost)
	assert.True(t, cfg.ForceHTTP2, "HTTP/2 should be preferred by default")
	assert.Zero(t, cfg.RequestTimeout, "request deadlines come from the caller's context")
}

func TestNewClientRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pong"))
	}))
	defer server.Close()

	client := NewClient(&ClientConfig{RequestTimeout: 5 * time.Second})
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(body))
}

func gzipCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func brotliCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	_, err := bw.Write(data)
	require.NoError(t, err)
	require.NoError(t, bw.Close())
	return buf.Bytes()
}

func responseWith(encoding string, body []byte) *http.Response {
	resp := &http.Response{
		Header: make(http.Header),
		Body:   io.NopCloser(bytes.NewReader(body)),
	}
	if encoding != "" {
		resp.Header.Set("Content-Encoding", encoding)
	}
	return resp
}

func TestDecodeBody(t *testing.T) {
	payload := []byte(`{"regions":[{"text":"Submit"}]}`)

	t.Run("plain body passes through", func(t *testing.T) {
		got, err := DecodeBody(responseWith("", payload))
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})

	t.Run("identity passes through", func(t *testing.T) {
		got, err := DecodeBody(responseWith("identity", payload))
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})

	t.Run("gzip decodes", func(t *testing.T) {
		got, err := DecodeBody(responseWith("gzip", gzipCompress(t, payload)))
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})

	t.Run("brotli decodes", func(t *testing.T) {
		got, err := DecodeBody(responseWith("br", brotliCompress(t, payload)))
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})

	t.Run("layered encodings decode in reverse order", func(t *testing.T) {
		// gzip applied first, then brotli on top.
		body := brotliCompress(t, gzipCompress(t, payload))
		resp := responseWith("", body)
		resp.Header.Add("Content-Encoding", "gzip")
		resp.Header.Add("Content-Encoding", "br")

		got, err := DecodeBody(resp)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})

	t.Run("unsupported encoding rejected", func(t *testing.T) {
		_, err := DecodeBody(responseWith("zstd", payload))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported Content-Encoding")
	})

	t.Run("corrupt gzip surfaces error", func(t *testing.T) {
		_, err := DecodeBody(responseWith("gzip", []byte("not gzip")))
		require.Error(t, err)
	})

	t.Run("pooled readers survive reuse", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			got, err := DecodeBody(responseWith("gzip", gzipCompress(t, payload)))
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		}
	})

	t.Run("nil response", func(t *testing.T) {
		got, err := DecodeBody(nil)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
