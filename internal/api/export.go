package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"merry/internal/transport"
)

// Export formats.
const (
	FormatWord  = "word"
	FormatExcel = "excel"
	FormatPDF   = "pdf"
)

// Export requests a rendered artifact for a document. One-shot: never retried
// automatically, the user decides whether to try again.
func (c *Client) Export(ctx context.Context, id, format string) ([]byte, error) {
	switch format {
	case FormatWord, FormatExcel, FormatPDF:
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	resp, err := c.http.Do(ctx, http.MethodGet, "/export/"+url.PathEscape(id)+"/"+format, nil, transport.WithoutRetry())
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, transport.Decode(resp, nil)
	}
	return resp.Body, nil
}
