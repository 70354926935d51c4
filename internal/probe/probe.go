// Package probe performs a metadata-only HTTP exchange — HEAD when the
// server is believed to support it, a headers-only GET otherwise — that
// resolves a ContentInfo.
package probe

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/kagedl/fetchengine/internal/fetcherr"
)

// ContentInfo is populated by Do and treated immutable after the first
// successful probe.
type ContentInfo struct {
	FullLength   *int64
	AcceptsBytes bool
	ContentType  string
	FilenameHint string
	ETag         string
	LastModified string

	// ReliableLength is false when the Content-Length came from a chunked,
	// compressed, or non-HEAD response.
	ReliableLength bool
}

// Request carries the inputs to a single probe attempt.
type Request struct {
	URL               string
	Headers           map[string]string
	UserAgent         string
	SupportsHeadProbe bool // capability flag; false skips straight to headers-only GET
	Client            *http.Client
}

// Do issues a HEAD request when SupportsHeadProbe is true; otherwise (or on
// a 405 from HEAD) it falls back to a headers-only GET exactly once.
func Do(ctx context.Context, req Request) (ContentInfo, error) {
	client := req.Client
	if client == nil {
		client = http.DefaultClient
	}

	if req.SupportsHeadProbe {
		info, status, err := doHead(ctx, client, req)
		if err == nil {
			return info, nil
		}
		if status != http.StatusMethodNotAllowed {
			return ContentInfo{}, fetcherr.Wrap(fetcherr.ProbeError, "HEAD probe failed", err)
		}
		// fall through to headers-only GET, exactly once
	}

	info, err := doHeadersOnlyGet(ctx, client, req)
	if err != nil {
		return ContentInfo{}, fetcherr.Wrap(fetcherr.ProbeError, "headers-only GET probe failed", err)
	}
	return info, nil
}

func doHead(ctx context.Context, client *http.Client, req Request) (ContentInfo, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodHead, req.URL, nil)
	if err != nil {
		return ContentInfo{}, 0, err
	}
	applyHeaders(httpReq, req.Headers, req.UserAgent)

	resp, err := client.Do(httpReq)
	if err != nil {
		return ContentInfo{}, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return ContentInfo{}, resp.StatusCode, fmt.Errorf("HEAD returned status %d", resp.StatusCode)
	}

	return fromResponse(resp, true), resp.StatusCode, nil
}

func doHeadersOnlyGet(ctx context.Context, client *http.Client, req Request) (ContentInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return ContentInfo{}, err
	}
	applyHeaders(httpReq, req.Headers, req.UserAgent)

	resp, err := client.Do(httpReq)
	if err != nil {
		return ContentInfo{}, err
	}
	// HttpCompletion=HeadersOnly equivalent: headers have already arrived by
	// the time Do returns; the body is discarded unread, so the transport
	// need not buffer the payload before we close it.
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return ContentInfo{}, fmt.Errorf("headers-only GET returned status %d", resp.StatusCode)
	}

	return fromResponse(resp, false), nil
}

func fromResponse(resp *http.Response, fromHead bool) ContentInfo {
	info := ContentInfo{
		ContentType:  resp.Header.Get("Content-Type"),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		AcceptsBytes: strings.EqualFold(resp.Header.Get("Accept-Ranges"), "bytes"),
	}
	if resp.ContentLength >= 0 {
		cl := resp.ContentLength
		info.FullLength = &cl
	}
	// unreliable when chunked, compressed, or not sourced from HEAD
	chunked := len(resp.TransferEncoding) > 0
	compressed := resp.Header.Get("Content-Encoding") != ""
	info.ReliableLength = fromHead && !chunked && !compressed
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		info.FilenameHint = filenameFromContentDisposition(cd)
	}
	return info
}

func applyHeaders(req *http.Request, headers map[string]string, userAgent string) {
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
}

// ParseContentRangeTotal parses a "Content-Range: bytes a-b/total" header
// value and returns the total resource length.
func ParseContentRangeTotal(cr string) (int64, bool) {
	var start, end, total int64
	if _, err := fmt.Sscanf(cr, "bytes %d-%d/%d", &start, &end, &total); err != nil {
		return 0, false
	}
	return total, true
}

// filenameFromContentDisposition extracts filename* or filename from a
// Content-Disposition header value, preferring the RFC 5987 filename*.
func filenameFromContentDisposition(cd string) string {
	parts := strings.Split(cd, ";")
	var plain string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(strings.ToLower(p), "filename*=") {
			v := p[len("filename*="):]
			if idx := strings.Index(v, "''"); idx >= 0 {
				v = v[idx+2:]
			}
			return strings.Trim(v, `"`)
		}
		if strings.HasPrefix(strings.ToLower(p), "filename=") {
			plain = strings.Trim(p[len("filename="):], `"`)
		}
	}
	return plain
}
