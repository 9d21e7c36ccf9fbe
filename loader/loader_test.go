package loader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kean-go/imagepipeline/internal/model"
)

func TestHTTPLoader_LoadData_FreshFetchCollectsAllChunksAndProgress(t *testing.T) {
	body := []byte("0123456789")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.Write(body)
	}))
	defer srv.Close()

	l := &HTTPLoader{ChunkSize: 4}
	req := model.NewRequestFromURL(srv.URL)

	var gotResp *model.URLResponse
	var collected []byte
	var lastCompleted int64
	resumed, err := l.LoadData(context.Background(), req, 0, "",
		func(r *model.URLResponse) { gotResp = r },
		func(chunk []byte, completed, total int64) error {
			collected = append(collected, chunk...)
			lastCompleted = completed
			return nil
		})

	require.NoError(t, err)
	assert.False(t, resumed)
	require.NotNil(t, gotResp)
	assert.Equal(t, http.StatusOK, gotResp.StatusCode)
	assert.Equal(t, body, collected)
	assert.Equal(t, int64(len(body)), lastCompleted)
}

func TestHTTPLoader_LoadData_ResumeSendsRangeAndIfRange(t *testing.T) {
	full := []byte("abcdefghij")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bytes=5-", r.Header.Get("Range"))
		assert.Equal(t, `"v1"`, r.Header.Get("If-Range"))
		w.Header().Set("Content-Length", "5")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(full[5:])
	}))
	defer srv.Close()

	l := &HTTPLoader{}
	req := model.NewRequestFromURL(srv.URL)

	var collected []byte
	resumed, err := l.LoadData(context.Background(), req, 5, `"v1"`,
		func(*model.URLResponse) {},
		func(chunk []byte, completed, total int64) error {
			collected = append(collected, chunk...)
			return nil
		})

	require.NoError(t, err)
	assert.True(t, resumed)
	assert.Equal(t, full[5:], collected)
}

func TestHTTPLoader_LoadData_ErrorStatusIsReportedAsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	l := &HTTPLoader{}
	req := model.NewRequestFromURL(srv.URL)

	_, err := l.LoadData(context.Background(), req, 0, "", func(*model.URLResponse) {}, func([]byte, int64, int64) error { return nil })

	assert.Error(t, err)
}

func TestHTTPLoader_LoadData_FileSourceReadsLocalBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "img.bin")
	data := []byte("local-file-bytes")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	l := &HTTPLoader{}
	req := model.NewRequestFromURL("file://" + path)

	var collected []byte
	resumed, err := l.LoadData(context.Background(), req, 0, "", func(*model.URLResponse) {}, func(chunk []byte, completed, total int64) error {
		collected = append(collected, chunk...)
		return nil
	})

	require.NoError(t, err)
	assert.False(t, resumed)
	assert.Equal(t, data, collected)
}

func TestValidatorFromHeader_PrefersETagOverLastModified(t *testing.T) {
	h := http.Header{}
	h.Set("ETag", `"abc"`)
	h.Set("Last-Modified", "yesterday")

	assert.Equal(t, `"abc"`, ValidatorFromHeader(h))
}

func TestValidatorFromHeader_FallsBackToLastModified(t *testing.T) {
	h := http.Header{}
	h.Set("Last-Modified", "yesterday")

	assert.Equal(t, "yesterday", ValidatorFromHeader(h))
}

func TestContentLengthFromHeader_ParsesWhenPresent(t *testing.T) {
	n, ok := ContentLengthFromHeader(map[string]string{"Content-Length": "42"})

	assert.True(t, ok)
	assert.Equal(t, int64(42), n)
}

func TestContentLengthFromHeader_AbsentReturnsFalse(t *testing.T) {
	_, ok := ContentLengthFromHeader(map[string]string{})

	assert.False(t, ok)
}
