package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shareURL = "https://www.terabox.com/s/1abcDEF"

// newOrigin redirects /start to /final and refuses requests whose Referer is
// not the share page.
func newOrigin(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Referer") != shareURL {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Referer") != shareURL {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Range", "bytes 0-0/5000")
		w.Header().Set("Content-Disposition", `attachment; filename="origin-name.mp4"`)
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte{0})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestResolveFallsBackToSecondary(t *testing.T) {
	origin := newOrigin(t)
	var primaryHits, secondaryHits atomic.Int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryHits.Add(1)
		assert.Equal(t, shareURL, r.URL.Query().Get("url"))
		w.Write([]byte(`{"file_name": "movie.mp4", "direct_link": `)) // truncated
	}))
	defer primary.Close()
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondaryHits.Add(1)
		fmt.Fprintf(w, `[{"filename":"movie.mp4","link":"%s/start"}]`, origin.URL)
	}))
	defer secondary.Close()

	r := New(Options{PrimaryAPIURL: primary.URL + "/api", FolderAPIURL: secondary.URL + "/api", Timeout: 5 * time.Second})
	files, err := r.Resolve(context.Background(), shareURL)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "movie.mp4", files[0].Name)
	assert.Equal(t, origin.URL+"/final", files[0].DirectURL)
	assert.Equal(t, int64(5000), files[0].Size)
	assert.Equal(t, int32(1), primaryHits.Load())
	assert.Equal(t, int32(1), secondaryHits.Load())
}

func TestResolveBothBackendsFail(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer primary.Close()
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("no links today"))
	}))
	defer secondary.Close()

	r := New(Options{PrimaryAPIURL: primary.URL, FolderAPIURL: secondary.URL})
	_, err := r.Resolve(context.Background(), shareURL)
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, shareURL, resErr.URL)
}

func TestResolveFolderSkipsPrimary(t *testing.T) {
	origin := newOrigin(t)
	var primaryHits atomic.Int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryHits.Add(1)
	}))
	defer primary.Close()
	folder := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"list":[{"name":"a.mp4","size":10,"dlink":"%[1]s/start"},{"name":"b.mp4","size":20,"dlink":"%[1]s/start"}]}`, origin.URL)
	}))
	defer folder.Close()

	r := New(Options{PrimaryAPIURL: primary.URL, FolderAPIURL: folder.URL})
	// the origin refuses this referer; redirect failures are not fatal
	files, err := r.Resolve(context.Background(), "https://www.terabox.com/sharing/link?surl=abc&path=%2Fshow")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, int64(10), files[0].Size)
	assert.Equal(t, int32(0), primaryHits.Load())
}

func TestResolveEmptyFolder(t *testing.T) {
	folder := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"files":[]}`))
	}))
	defer folder.Close()
	r := New(Options{FolderAPIURL: folder.URL})
	_, err := r.Resolve(context.Background(), "https://terabox.com/folder/abc")
	var resErr *ResolutionError
	assert.ErrorAs(t, err, &resErr)
}

func TestResolveNoBackends(t *testing.T) {
	_, err := New(Options{}).Resolve(context.Background(), shareURL)
	var resErr *ResolutionError
	assert.ErrorAs(t, err, &resErr)
}

func TestResolveRedirectKeepsReferer(t *testing.T) {
	origin := newOrigin(t)
	final, size, name, err := ResolveRedirect(context.Background(), New(Options{}).client, origin.URL+"/start", shareURL)
	require.NoError(t, err)
	assert.Equal(t, origin.URL+"/final", final)
	assert.Equal(t, int64(5000), size)
	assert.Equal(t, "origin-name.mp4", name)

	_, _, _, err = ResolveRedirect(context.Background(), New(Options{}).client, origin.URL+"/start", "https://elsewhere.example/")
	assert.Error(t, err)
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.Header().Set("Content-Length", "4096")
		w.Header().Set("Content-Disposition", `attachment; filename*=UTF-8''caf%C3%A9.txt`)
	}))
	defer srv.Close()
	size, name, err := Probe(context.Background(), http.DefaultClient, srv.URL, shareURL)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), size)
	assert.Equal(t, "café.txt", name)
}
