// Package httputil is the shared HTTP client for example tools (the
// Streamable HTTP transport builds its own): a single http.Client plus
// content-encoding-aware body decompression, adapted from the teacher's
// pkg/transport/httpclient.go (gzip/deflate/brotli readers kept
// verbatim in spirit; the Zscaler-bundle TLS special-casing is dropped
// since it encoded one developer's corporate proxy, not anything this
// library's domain needs — see DESIGN.md).
package httputil

import (
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/mcpcore/mcp/internal/logger"
)

var sharedClient *http.Client

// Client returns the process-wide HTTP client, built lazily on first use.
func Client() *http.Client {
	if sharedClient != nil {
		return sharedClient
	}
	sharedClient = &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("stopped after 10 redirects")
			}
			return nil
		},
	}
	return sharedClient
}

// FetchDecompressed issues a GET against url and returns the body after
// undoing whatever Content-Encoding the server applied.
func FetchDecompressed(url string) ([]byte, string, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "mcpcore-mcp/1.0")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := Client().Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}

	reader, err := decodingReader(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, "", err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func decodingReader(body io.ReadCloser, encoding string) (io.ReadCloser, error) {
	switch encoding {
	case "gzip":
		return gzip.NewReader(body)
	case "deflate":
		return flate.NewReader(body), nil
	case "br":
		return io.NopCloser(brotli.NewReader(body)), nil
	case "":
		return body, nil
	default:
		logger.Warn("httputil: unknown content encoding, passing through raw", encoding)
		return body, nil
	}
}

// IsHTML reports whether a Content-Type header names an HTML document.
func IsHTML(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "html")
}
