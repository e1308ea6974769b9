package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-overlay/models/postprocess"
	"github.com/nvr-ai/go-overlay/pipeline"
	"github.com/nvr-ai/go-overlay/results"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProcessor struct {
	err   error
	calls int
}

func (f *fakeProcessor) Process(_ context.Context, frame image.Image, source string) (pipeline.Output, error) {
	f.calls++
	if f.err != nil {
		return pipeline.Output{}, f.err
	}
	rec := results.Record{
		Frame:    uint64(f.calls),
		Source:   source,
		Category: postprocess.Classification,
		Entries:  []results.Entry{{Class: 1, Label: "person", Score: 0.75}},
	}
	out := image.NewRGBA(frame.Bounds())
	return pipeline.Output{Record: rec, Frame: out}, nil
}

func pngBody(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func post(t *testing.T, h http.Handler, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "image/png")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv := New(DefaultConfig(), &fakeProcessor{}, NewHub(nil), nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "ok", payload["status"])
	assert.Equal(t, float64(0), payload["ws_clients"])
}

func TestPredictRawBody(t *testing.T) {
	proc := &fakeProcessor{}
	srv := New(DefaultConfig(), proc, nil, nil)

	rec := post(t, srv.Handler(), "/v1/predict", pngBody(t, 8, 6))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got results.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, postprocess.Classification, got.Category)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "person", got.Entries[0].Label)
	assert.Equal(t, 1, proc.calls)
}

func TestPredictMultipart(t *testing.T) {
	srv := New(DefaultConfig(), &fakeProcessor{}, nil, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "frame.png")
	require.NoError(t, err)
	_, err = part.Write(pngBody(t, 4, 4))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/predict", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestPredictRawBodyFormContentType(t *testing.T) {
	srv := New(DefaultConfig(), &fakeProcessor{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/predict", bytes.NewReader(pngBody(t, 5, 5)))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestPredictMultipartMissingField(t *testing.T) {
	srv := New(DefaultConfig(), &fakeProcessor{}, nil, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("note", "no image here"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/predict", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnnotateReturnsPNG(t *testing.T) {
	srv := New(DefaultConfig(), &fakeProcessor{}, nil, nil)

	rec := post(t, srv.Handler(), "/v1/annotate", pngBody(t, 12, 9))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 12, 9), img.Bounds())
}

func TestPredictErrors(t *testing.T) {
	decodeErr := errors.Wrap(&postprocess.DecodeError{Category: postprocess.Detection, Reason: "missing tensors"}, "decode")

	tests := []struct {
		name   string
		proc   *fakeProcessor
		body   []byte
		status int
	}{
		{name: "empty body", proc: &fakeProcessor{}, body: nil, status: http.StatusBadRequest},
		{name: "not an image", proc: &fakeProcessor{}, body: []byte("hello"), status: http.StatusBadRequest},
		{name: "decode failure", proc: &fakeProcessor{err: decodeErr}, status: http.StatusUnprocessableEntity},
		{name: "inference failure", proc: &fakeProcessor{err: errors.New("invoke failed")}, status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := tt.body
			if body == nil && tt.proc.err != nil {
				body = pngBody(t, 2, 2)
			}
			srv := New(DefaultConfig(), tt.proc, nil, nil)
			rec := post(t, srv.Handler(), "/v1/predict", body)
			assert.Equal(t, tt.status, rec.Code)

			var payload errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
			assert.NotEmpty(t, payload.Error)
		})
	}
}

func TestStaticDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>overlay</h1>"), 0o600))

	cfg := DefaultConfig()
	cfg.StaticDir = dir
	srv := New(cfg, &fakeProcessor{}, nil, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "overlay")
}

func TestWebsocketBroadcast(t *testing.T) {
	hub := NewHub(nil)
	srv := New(DefaultConfig(), &fakeProcessor{}, hub, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	resp, err := http.Post(ts.URL+"/v1/predict", "image/png", bytes.NewReader(pngBody(t, 3, 3)))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got results.Record
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, uint64(1), got.Frame)

	hub.Close()
	assert.Equal(t, 0, hub.Clients())
}

func TestPublishDoesNotBlockRegistration(t *testing.T) {
	hub := NewHub(nil)
	srv := New(DefaultConfig(), &fakeProcessor{}, hub, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	first, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer first.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	// hold the only client's write lock so Publish stalls on it
	hub.mu.Lock()
	var writeMu *sync.Mutex
	for _, mu := range hub.clients {
		writeMu = mu
	}
	hub.mu.Unlock()
	writeMu.Lock()

	published := make(chan error, 1)
	go func() { published <- hub.Publish(results.Record{Frame: 1}) }()

	second, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer second.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 10*time.Millisecond)

	writeMu.Unlock()
	select {
	case err := <-published:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("publish did not finish")
	}
}
