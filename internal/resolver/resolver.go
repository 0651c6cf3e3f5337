// Package resolver turns a share link into direct, downloadable file
// descriptors by querying extraction backends in order.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/teraleech/internal/utils"
)

type ResolutionError struct {
	URL string
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("could not resolve %s: %v", e.URL, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

var ErrEmptyFolder = errors.New("folder contains no files")

// Strategy is one way of resolving a share link.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, shareURL string) ([]utils.FileDescriptor, error)
}

// Backend queries an HTTP extraction service with the share link as a query
// parameter and hands the body to its parsing adapter.
type Backend struct {
	name     string
	endpoint string
	param    string
	parse    func([]byte) ([]utils.FileDescriptor, error)
	client   utils.HTTPDoer
}

func NewBackend(name, endpoint string, parse func([]byte) ([]utils.FileDescriptor, error), client utils.HTTPDoer) *Backend {
	return &Backend{name: name, endpoint: endpoint, param: "url", parse: parse, client: client}
}

func (b *Backend) Name() string {
	return b.name
}

func (b *Backend) Resolve(ctx context.Context, shareURL string) ([]utils.FileDescriptor, error) {
	u, err := url.Parse(b.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set(b.param, shareURL)
	u.RawQuery = q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error querying backend: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("error reading backend response: %w", err)
	}
	return b.parse(body)
}

type Options struct {
	PrimaryAPIURL string
	FolderAPIURL  string
	Probe         bool
	Timeout       time.Duration
}

type Resolver struct {
	fileChain   []Strategy
	folderChain []Strategy
	client      utils.HTTPDoer
	probe       bool
}

func New(opts Options) *Resolver {
	client := utils.NewLeechHTTPClient(utils.HTTPClientConfig{Timeout: opts.Timeout})
	r := &Resolver{client: client, probe: opts.Probe}
	var secondary Strategy
	if opts.FolderAPIURL != "" {
		secondary = NewBackend("folder", opts.FolderAPIURL, ParseLoose, client)
	}
	if opts.PrimaryAPIURL != "" {
		r.fileChain = append(r.fileChain, NewBackend("primary", opts.PrimaryAPIURL, ParseSingle, client))
	}
	if secondary != nil {
		r.fileChain = append(r.fileChain, secondary)
		r.folderChain = append(r.folderChain, secondary)
	}
	return r
}

// NewWithStrategies builds a resolver over explicit chains.
func NewWithStrategies(fileChain, folderChain []Strategy, client utils.HTTPDoer, probe bool) *Resolver {
	return &Resolver{fileChain: fileChain, folderChain: folderChain, client: client, probe: probe}
}

var folderMarkers = regexp.MustCompile(`(?i)(/folder/|/list\b|#/list|filelist|[?&](path|dir)=)`)

// IsFolderURL reports whether the share link points at a folder listing.
func IsFolderURL(shareURL string) bool {
	return folderMarkers.MatchString(shareURL)
}

// Resolve walks the strategy chain for the link kind and returns the first
// non-empty result with every direct link followed to its final location.
func (r *Resolver) Resolve(ctx context.Context, shareURL string) ([]utils.FileDescriptor, error) {
	folder := IsFolderURL(shareURL)
	chain := r.fileChain
	if folder {
		chain = r.folderChain
	}
	if len(chain) == 0 {
		return nil, &ResolutionError{URL: shareURL, Err: errors.New("no extraction backend configured")}
	}
	var lastErr error
	for _, strategy := range chain {
		files, err := strategy.Resolve(ctx, shareURL)
		if err == nil && len(files) == 0 {
			err = ErrEmptyFolder
		}
		if err != nil {
			lastErr = err
			log.Warn().Str("op", "resolver/resolve").Err(err).Msgf("%s backend failed", strategy.Name())
			if ctx.Err() != nil {
				break
			}
			continue
		}
		for i := range files {
			files[i] = r.finalize(ctx, shareURL, files[i])
		}
		log.Info().Str("op", "resolver/resolve").Msgf("resolved %d file(s) via %s", len(files), strategy.Name())
		return files, nil
	}
	return nil, &ResolutionError{URL: shareURL, Err: lastErr}
}

// ResolveRedirect follows link with browser headers and the share page as
// Referer, returning the final URL plus whatever size and name the origin
// revealed. Range 0-0 keeps the body to one byte.
func ResolveRedirect(ctx context.Context, client utils.HTTPDoer, link, referer string) (string, int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return link, 0, "", err
	}
	req.Header.Set("User-Agent", utils.GetRandomUserAgent())
	req.Header.Set("Referer", referer)
	req.Header.Set("Range", "bytes=0-0")
	resp, err := client.Do(req)
	if err != nil {
		return link, 0, "", err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	final := link
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	if resp.StatusCode >= 400 {
		return final, 0, "", fmt.Errorf("origin returned status %d", resp.StatusCode)
	}
	return final, totalFromContentRange(resp.Header.Get("Content-Range")), filenameFromDisposition(resp.Header.Get("Content-Disposition")), nil
}

func (r *Resolver) finalize(ctx context.Context, shareURL string, fd utils.FileDescriptor) utils.FileDescriptor {
	final, size, name, err := ResolveRedirect(ctx, r.client, fd.DirectURL, shareURL)
	if err != nil {
		log.Debug().Str("op", "resolver/redirect").Err(err).Msg("redirect resolution failed, keeping original link")
	}
	if final != "" {
		fd.DirectURL = final
	}
	if fd.Size <= 0 && size > 0 {
		fd.Size = size
	}
	if fd.Name == "" && name != "" {
		fd.Name = name
	}
	if r.probe && (fd.Size <= 0 || fd.Name == "") {
		if size, name, err := Probe(ctx, r.client, fd.DirectURL, shareURL); err == nil {
			if fd.Size <= 0 {
				fd.Size = size
			}
			if fd.Name == "" {
				fd.Name = name
			}
		} else {
			log.Debug().Str("op", "resolver/probe").Err(err).Msg("probe failed")
		}
	}
	if fd.Name == "" {
		fd.Name = utils.NameFromURL(fd.DirectURL)
	}
	if strings.TrimSpace(fd.Name) == "" {
		fd.Name = "file"
	}
	return fd
}
