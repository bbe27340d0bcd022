package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestProbePNG(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bytes=0-3071", r.Header.Get("Range"))
		_, _ = w.Write(pngHeader)
	}))
	defer srv.Close()

	info, err := NewProber().Probe(context.Background(), srv.URL+"/card.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", info.MIME)
	assert.Equal(t, ".png", info.Extension)
	assert.True(t, info.IsImage)
}

func TestProbeNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewProber().Probe(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrFetch)
}

func TestProbeRejectsScheme(t *testing.T) {
	for _, raw := range []string{"file:///etc/passwd", "ftp://example.com/a.png", "card.png"} {
		_, err := NewProber().Probe(context.Background(), raw)
		assert.ErrorIs(t, err, ErrUnsupportedScheme, raw)
	}
}
