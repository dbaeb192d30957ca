package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/canlog/internal/monitoring"
	"github.com/banshee-data/canlog/internal/testutil"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

// uploadForm is a multipart request body for the upload endpoints.
type uploadForm struct {
	log      []byte
	logName  string
	dbcs     []string
	channels []string
	fields   map[string]string
}

// sampleForm uploads a SampleLog(n) with the fixture definitions.
func sampleForm(t *testing.T, n int) uploadForm {
	return uploadForm{
		log:      testutil.SampleLog(t, n),
		logName:  "drive.blf",
		dbcs:     testutil.Texts,
		channels: []string{"1", "2"},
	}
}

func (f uploadForm) encode(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if f.log != nil {
		fw, err := mw.CreateFormFile("log", f.logName)
		require.NoError(t, err)
		_, err = fw.Write(f.log)
		require.NoError(t, err)
	}
	for i, text := range f.dbcs {
		fw, err := mw.CreateFormFile("dbc", fmt.Sprintf("bus%d.dbc", i+1))
		require.NoError(t, err)
		_, err = fw.Write([]byte(text))
		require.NoError(t, err)
	}
	for _, ch := range f.channels {
		require.NoError(t, mw.WriteField("channel", ch))
	}
	for k, v := range f.fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func postForm(t *testing.T, h http.Handler, path string, f uploadForm) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := f.encode(t)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	return serve(h, httptest.NewRequest(method, path, nil))
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"), rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}
