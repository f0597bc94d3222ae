package netutil

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// AcceptEncoding is the value advertised on outbound requests whose
// responses are decoded with DecodeBody.
const AcceptEncoding = "br, gzip, identity"

// Pools for decompression readers to reduce allocation overhead on hot
// capture/recognize cycles.
var (
	gzipReaderPool = sync.Pool{
		New: func() interface{} {
			// Allocated empty; Reset is called before every use.
			return new(gzip.Reader)
		},
	}

	brotliReaderPool = sync.Pool{
		New: func() interface{} {
			return brotli.NewReader(nil)
		},
	}
)

// Shared empty reader used for resetting pooled readers before returning
// them, so they drop references to the previous stream.
var emptyReader = strings.NewReader("")

func getGzipReader(r io.Reader) (*gzip.Reader, error) {
	zr := gzipReaderPool.Get().(*gzip.Reader)
	if err := zr.Reset(r); err != nil {
		gzipReaderPool.Put(zr)
		return nil, err
	}
	return zr, nil
}

func putGzipReader(zr *gzip.Reader) {
	_ = zr.Reset(emptyReader)
	gzipReaderPool.Put(zr)
}

func getBrotliReader(r io.Reader) (*brotli.Reader, error) {
	br := brotliReaderPool.Get().(*brotli.Reader)
	if err := br.Reset(r); err != nil {
		brotliReaderPool.Put(br)
		return nil, err
	}
	return br, nil
}

func putBrotliReader(br *brotli.Reader) {
	_ = br.Reset(emptyReader)
	brotliReaderPool.Put(br)
}

// DecodeBody reads the full response body, decoding any Content-Encoding
// layers. Encodings are listed in the order they were applied, so decoders
// are stacked in reverse. The caller still owns closing resp.Body.
func DecodeBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, nil
	}

	var reader io.Reader = resp.Body

	// Pooled readers are returned once the body has been fully consumed.
	var release []func()
	defer func() {
		for _, f := range release {
			f()
		}
	}()

	encodings := resp.Header.Values("Content-Encoding")
	for i := len(encodings) - 1; i >= 0; i-- {
		switch enc := strings.ToLower(strings.TrimSpace(encodings[i])); enc {
		case "gzip":
			zr, err := getGzipReader(reader)
			if err != nil {
				return nil, fmt.Errorf("gzip initialization error: %w", err)
			}
			release = append(release, func() { putGzipReader(zr) })
			reader = zr

		case "br":
			br, err := getBrotliReader(reader)
			if err != nil {
				return nil, fmt.Errorf("brotli initialization error: %w", err)
			}
			release = append(release, func() { putBrotliReader(br) })
			reader = br

		case "identity", "":
			continue

		default:
			return nil, fmt.Errorf("unsupported Content-Encoding layer: %s", enc)
		}
	}

	return io.ReadAll(reader)
}
