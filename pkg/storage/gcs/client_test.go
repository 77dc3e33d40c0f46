package gcs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Client{
		httpClient: srv.Client(),
		bucket:     "grocery-assets",
		apiBase:    srv.URL,
		publicBase: "https://cdn.example.com",
	}
}

func TestUploadSendsMediaRequest(t *testing.T) {
	var gotPath, gotName, gotType, gotBody string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotName = r.URL.Query().Get("name")
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte(`{"name":"products/p1/img.png"}`))
	})

	publicURL, err := client.Upload(context.Background(), "/products/p1/img.png", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	require.Equal(t, "/upload/storage/v1/b/grocery-assets/o", gotPath)
	require.Equal(t, "products/p1/img.png", gotName)
	require.Equal(t, "image/png", gotType)
	require.Equal(t, "png-bytes", gotBody)
	require.Equal(t, "https://cdn.example.com/grocery-assets/products/p1/img.png", publicURL)
}

func TestUploadSurfacesAPIErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden bucket", http.StatusForbidden)
	})

	_, err := client.Upload(context.Background(), "a.pdf", "application/pdf", strings.NewReader("x"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "403")
	require.Contains(t, err.Error(), "forbidden bucket")
}

func TestDeleteToleratesMissingObject(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
	})
	require.NoError(t, client.Delete(context.Background(), "products/gone.png"))
}

func TestPingChecksBucket(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/storage/v1/b/grocery-assets/o", r.URL.Path)
		require.Equal(t, "1", r.URL.Query().Get("maxResults"))
		_, _ = w.Write([]byte(`{"items":[]}`))
	})
	require.NoError(t, client.Ping(context.Background()))
}

func TestObjectFromURLRoundTrip(t *testing.T) {
	client := &Client{bucket: "grocery-assets", publicBase: "https://cdn.example.com"}
	u := client.PublicURL("price-lists/2026 10/list.pdf")
	require.Equal(t, "https://cdn.example.com/grocery-assets/price-lists/2026%2010/list.pdf", u)

	object, ok := client.ObjectFromURL(u)
	require.True(t, ok)
	require.Equal(t, "price-lists/2026 10/list.pdf", object)

	_, ok = client.ObjectFromURL("https://elsewhere.example.com/x.png")
	require.False(t, ok)
}
