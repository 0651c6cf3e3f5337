package utils

import (
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"
)

type HTTPClientConfig struct {
	Timeout        time.Duration
	KATimeout      time.Duration
	ProxyURL       string
	ProxyUsername  string
	ProxyPassword  string
	UserAgent      string
	Headers        map[string]string
	HighThreadMode bool // larger socket buffers for parallel lanes
	// Streaming drops the whole-exchange deadline so long bodies can finish;
	// Timeout then bounds only the wait for response headers.
	Streaming bool
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type LeechHTTPClient struct {
	client *http.Client
	config HTTPClientConfig
}

func NewLeechHTTPClient(cfg HTTPClientConfig) *LeechHTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.KATimeout == 0 {
		cfg.KATimeout = 60 * time.Second
	}
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	if cfg.HighThreadMode {
		dialer.Control = func(network, address string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				setSocketOptions(fd)
			})
		}
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: 15 * time.Second,
		IdleConnTimeout:     cfg.KATimeout,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 16,
		DisableCompression:  true,
	}
	clientTimeout := cfg.Timeout
	if cfg.Streaming {
		transport.ResponseHeaderTimeout = cfg.Timeout
		clientTimeout = 0
	}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err == nil {
			if cfg.ProxyUsername != "" {
				if cfg.ProxyPassword != "" {
					proxyURL.User = url.UserPassword(cfg.ProxyUsername, cfg.ProxyPassword)
				} else {
					proxyURL.User = url.User(cfg.ProxyUsername)
				}
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return &LeechHTTPClient{
		client: &http.Client{
			Timeout:   clientTimeout,
			Transport: transport,
			// storage hosts bounce through several redirects and drop the
			// download unless Referer and User-Agent survive each hop
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				for _, key := range []string{"Referer", "User-Agent"} {
					if v := via[0].Header.Get(key); v != "" {
						req.Header.Set(key, v)
					}
				}
				return nil
			},
		},
		config: cfg,
	}
}

// Do applies the configured User-Agent and headers. Values already present
// on the request win over the client defaults.
func (c *LeechHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		if c.config.UserAgent != "" {
			req.Header.Set("User-Agent", c.config.UserAgent)
		} else {
			req.Header.Set("User-Agent", GetRandomUserAgent())
		}
	}
	for k, v := range c.config.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return c.client.Do(req)
}
