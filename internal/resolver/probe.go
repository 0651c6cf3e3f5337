package resolver

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tanq16/teraleech/internal/utils"
)

// Probe issues a HEAD request for Content-Length and Content-Disposition.
func Probe(ctx context.Context, client utils.HTTPDoer, link, referer string) (int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("User-Agent", utils.GetRandomUserAgent())
	req.Header.Set("Referer", referer)
	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, "", fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	size := resp.ContentLength
	if size < 0 {
		size = 0
	}
	return size, filenameFromDisposition(resp.Header.Get("Content-Disposition")), nil
}

func filenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	if fn := params["filename"]; fn != "" {
		return fn
	}
	if fn := params["filename*"]; strings.HasPrefix(strings.ToUpper(fn), "UTF-8''") {
		unescaped, err := url.PathUnescape(fn[len("UTF-8''"):])
		if err == nil {
			return unescaped
		}
	}
	return ""
}

// totalFromContentRange reads the total from "bytes 0-0/12345".
func totalFromContentRange(header string) int64 {
	i := strings.LastIndex(header, "/")
	if i < 0 {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimSpace(header[i+1:]), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
