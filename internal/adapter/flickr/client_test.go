package flickr

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/GoArmGo/PinAlbum/internal/config"
	"github.com/GoArmGo/PinAlbum/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchBody = `{"photos":{"page":3,"pages":10,"perpage":42,"total":420,"photo":[
{"id":"1","owner":"o1","secret":"abc","server":"999","farm":1,"title":"one","ispublic":1,"isfriend":0,"isfamily":0},
{"id":"2","owner":"o2","secret":"def","server":"998","farm":1,"title":"two","ispublic":1,"isfriend":0,"isfamily":0},
{"id":"3","owner":"o3","secret":"ghi","server":"997","farm":2,"title":"three","ispublic":1,"isfriend":0,"isfamily":0}
]},"stat":"ok"}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *FlickrAPIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		FlickrAPIKey:      "test-key",
		FlickrBaseURL:     srv.URL,
		HTTPClientTimeout: 5 * time.Second,
	}
	c := NewFlickrAPIClient(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.pageFn = func() int { return 3 }
	return c
}

func TestDescriptorURL(t *testing.T) {
	d := domain.PhotoDescriptor{ID: "1", Secret: "abc", Server: "999", Farm: 1}
	assert.Equal(t, "https://live.staticflickr.com/999/1_abc_q.jpg", d.URL())
}

func TestSearchPhotos_BuildsRequest(t *testing.T) {
	var got *http.Request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		_, _ = io.WriteString(w, searchBody)
	})

	_, err := c.SearchPhotos(context.Background(), 12.5, -3.25)
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/services/rest/", got.URL.Path)
	q := got.URL.Query()
	assert.Equal(t, "flickr.photos.search", q.Get("method"))
	assert.Equal(t, "test-key", q.Get("api_key"))
	assert.Equal(t, "-10,-10,10,10", q.Get("bbox"))
	assert.Equal(t, "1", q.Get("content_type"))
	assert.Equal(t, "12.5", q.Get("lat"))
	assert.Equal(t, "-3.25", q.Get("lon"))
	assert.Equal(t, "3", q.Get("page"))
	assert.Equal(t, "42", q.Get("per_page"))
	assert.Equal(t, "json", q.Get("format"))
	assert.Equal(t, "1", q.Get("nojsoncallback"))
}

func TestSearchPhotos_DecodesDescriptors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, searchBody)
	})

	photos, err := c.SearchPhotos(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, photos, 3)
	assert.Equal(t, "o1", photos[0].Owner)
	assert.Equal(t, "two", photos[1].Title)
	assert.Equal(t, 2, photos[2].Farm)
	assert.Equal(t, "https://live.staticflickr.com/997/3_ghi_q.jpg", photos[2].URL())
}

func TestSearchPhotos_EmptyResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"photos":{"page":0,"pages":0,"perpage":42,"total":0,"photo":[]}}`)
	})

	photos, err := c.SearchPhotos(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, photos)
}

func TestSearchPhotos_ServiceError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":"rate limited","status":429}`)
	})

	photos, err := c.SearchPhotos(context.Background(), 0, 0)
	assert.Empty(t, photos)

	var serviceErr *domain.ServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, "rate limited", serviceErr.Message)
	assert.Equal(t, 429, serviceErr.Status)
	assert.Equal(t, "rate limited", err.Error())
}

func TestSearchPhotos_DecodeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>not json</html>`)
	})

	_, err := c.SearchPhotos(context.Background(), 0, 0)
	var decodeErr *domain.DecodeError
	require.ErrorAs(t, err, &decodeErr)
}

func TestSearchPhotos_UnexpectedShapeIsDecodeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"stat":"ok"}`)
	})

	_, err := c.SearchPhotos(context.Background(), 0, 0)
	var decodeErr *domain.DecodeError
	require.ErrorAs(t, err, &decodeErr)
}

func TestSearchPhotos_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	cfg := &config.Config{FlickrAPIKey: "k", FlickrBaseURL: srv.URL, HTTPClientTimeout: time.Second}
	c := NewFlickrAPIClient(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv.Close()

	photos, err := c.SearchPhotos(context.Background(), 0, 0)
	assert.Empty(t, photos)
	var transportErr *domain.TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestSearchPhotos_BadGatewayIsTransportError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html><body>502 Bad Gateway</body></html>"))
	})

	photos, err := c.SearchPhotos(context.Background(), 1, 2)
	assert.Empty(t, photos)
	var transportErr *domain.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Contains(t, err.Error(), "502")
	var decodeErr *domain.DecodeError
	assert.False(t, errors.As(err, &decodeErr))
}

func TestDownloadImage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte{0xff, 0xd8, 0xff})
	})

	data, err := c.DownloadImage(context.Background(), c.baseURL+"/999/1_abc_q.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, data)

	_, err = c.DownloadImage(context.Background(), c.baseURL+"/missing.jpg")
	var transportErr *domain.TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestPageIsWithinRange(t *testing.T) {
	c := NewFlickrAPIClient(&config.Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	for i := 0; i < 200; i++ {
		p := c.pageFn()
		require.GreaterOrEqual(t, p, 0)
		require.Less(t, p, PageRange)
	}
}
