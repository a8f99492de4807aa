package server

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omalloc/imago/conf"
	"github.com/omalloc/imago/pipeline"
)

func newTestServer(t *testing.T, presets []*conf.Preset) *httptest.Server {
	t.Helper()
	pipe, err := pipeline.New(pipeline.Options{})
	require.NoError(t, err)

	s, err := New(&conf.Server{Addr: ":0"}, pipe, presets, nil, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler)
	t.Cleanup(srv.Close)
	return srv
}

func newOriginServer(t *testing.T, w, h int) *httptest.Server {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 31), G: uint8(y * 17), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	}))
	t.Cleanup(origin.Close)
	return origin
}

func TestImageEndpointResizes(t *testing.T) {
	origin := newOriginServer(t, 16, 16)
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/img?src=" + origin.URL + "/a.png&w=8&h=8")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
	assert.Equal(t, "full-fetch", resp.Header.Get("X-Cache-Level"))

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
}

func TestImageEndpointCacheLevelHeader(t *testing.T) {
	origin := newOriginServer(t, 4, 4)
	srv := newTestServer(t, nil)

	url := srv.URL + "/img?src=" + origin.URL + "/b.png"
	resp, err := http.Get(url)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "bitmap-memory-cache", resp.Header.Get("X-Cache-Level"))
}

func TestImageEndpointRejectsBadRequests(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, query := range []string{
		"",                           // no src
		"src=res:42",                 // opaque resource uri
		"src=http://e.com/a&w=4",     // width without height
		"src=http://e.com/a&level=x", // unknown level
		"src=http://e.com/a&preset=missing",
	} {
		resp, err := http.Get(srv.URL + "/img?" + query)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "query %q", query)
	}
}

func TestImageEndpointLevelFloor(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/img?src=http://example.invalid/x.png&level=bitmap")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestImageEndpointPreset(t *testing.T) {
	origin := newOriginServer(t, 8, 8)
	srv := newTestServer(t, []*conf.Preset{
		{Name: "gray", Postprocessor: "grayscale"},
	})

	resp, err := http.Get(srv.URL + "/img?src=" + origin.URL + "/c.png&preset=gray")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	r, g, b, _ := img.At(3, 1).RGBA()
	assert.True(t, r == g && g == b)
}

func TestHealthzAndMetrics(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatsz(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/debug/statsz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestServerRejectsUnknownPreset(t *testing.T) {
	pipe, err := pipeline.New(pipeline.Options{})
	require.NoError(t, err)

	_, err = New(&conf.Server{}, pipe, []*conf.Preset{
		{Name: "bad", Postprocessor: "nonexistent"},
	}, nil, nil)
	assert.Error(t, err)
}
