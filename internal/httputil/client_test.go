package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("http://host/log.blf"))
	assert.True(t, IsURL("https://host/log.blf"))
	assert.False(t, IsURL("/data/log.blf"))
	assert.False(t, IsURL("ftp://host/log.blf"))
}

func TestFetch(t *testing.T) {
	payload := []byte("LOGG\x90\x00\x00\x00")
	mock := NewMockHTTPClient().AddResponse(http.StatusOK, payload)

	data, err := Fetch(context.Background(), mock, "http://example.test/drive.blf", 1024)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	require.Equal(t, 1, mock.RequestCount())
	assert.Equal(t, http.MethodGet, mock.Requests[0].Method)
	assert.Equal(t, "/drive.blf", mock.Requests[0].URL.Path)
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name     string
		mock     *MockHTTPClient
		maxBytes int64
	}{
		{"transport", NewMockHTTPClient().AddErrorResponse(errors.New("connection refused")), 0},
		{"status", NewMockHTTPClient().AddResponse(http.StatusNotFound, []byte("missing")), 0},
		{"too large", NewMockHTTPClient().AddResponse(http.StatusOK, make([]byte, 100)), 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Fetch(context.Background(), tt.mock, "http://example.test/x.blf", tt.maxBytes)
			assert.Error(t, err)
		})
	}
}

func TestFetchUnknownLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush()
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	c := NewStandardClient(srv.Client())
	_, err := Fetch(context.Background(), c, srv.URL, 32)
	assert.Error(t, err, "chunked body over the limit must fail")

	data, err := Fetch(context.Background(), c, srv.URL, 0)
	require.NoError(t, err)
	assert.Len(t, data, 64)
}

func TestMockHTTPClientDefaultResponse(t *testing.T) {
	mock := NewMockHTTPClient()
	req := httptest.NewRequest(http.MethodGet, "http://example.test", nil)
	resp, err := mock.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
