package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tamperdetect/config"
	"tamperdetect/database"
	"tamperdetect/detector"
	"tamperdetect/reference"
	"tamperdetect/report"
	"tamperdetect/storage"
	"tamperdetect/types"
)

func pngBytes(t *testing.T, w, h int, black ...image.Rectangle) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	for _, r := range black {
		draw.Draw(img, r, image.NewUniform(color.Black), image.Point{}, draw.Src)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// multipartBody builds an upload request body; an empty filename omits the file part
func multipartBody(t *testing.T, filename string, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile(uploadField, filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(data)
	} else {
		mw.WriteField("other", "value")
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

type testEnv struct {
	ts    *httptest.Server
	refs  reference.Provider
	store *storage.LocalStore
}

func newTestEnv(t *testing.T, refData []byte, modify ...func(*config.Config)) *testEnv {
	t.Helper()
	return newTestEnvWithProvider(t, reference.NewMemoryProvider("original.png", refData), modify...)
}

func newTestEnvWithProvider(t *testing.T, refs reference.Provider, modify ...func(*config.Config)) *testEnv {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.UploadsDir = filepath.Join(dir, "uploads")
	cfg.DatabasePath = filepath.Join(dir, "test.db")
	for _, m := range modify {
		m(cfg)
	}

	store, err := storage.NewLocalStore(cfg.UploadsDir)
	if err != nil {
		t.Fatal(err)
	}
	db, err := database.InitDatabase(cfg.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	det, err := detector.New(detector.Config{References: refs, Store: store, DB: db, MaxConcurrent: 2})
	if err != nil {
		t.Fatal(err)
	}

	srv, err := New(cfg, det, store, db)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, refs: refs, store: store}
}

func (e *testEnv) upload(t *testing.T, method, path, filename string, data []byte) *http.Response {
	t.Helper()
	body, contentType := multipartBody(t, filename, data)
	req, err := http.NewRequest(method, e.ts.URL+path, body)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestIndexPage(t *testing.T) {
	env := newTestEnv(t, pngBytes(t, 20, 20))

	resp, err := http.Get(env.ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := readBody(t, resp)
	if !strings.Contains(body, `name="file"`) || !strings.Contains(body, "original.png") {
		t.Errorf("index page missing form or reference:\n%s", body)
	}
}

func TestUploadFormResults(t *testing.T) {
	env := newTestEnv(t, pngBytes(t, 100, 100))

	resp := env.upload(t, http.MethodPost, "/", "suspect.png", pngBytes(t, 100, 100, image.Rect(20, 20, 30, 30)))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, readBody(t, resp))
	}

	body := readBody(t, resp)
	if !strings.Contains(body, "Similarity:") || !strings.Contains(body, "1 altered region detected") {
		t.Errorf("results page:\n%s", body)
	}
	if !strings.Contains(body, "_original_with_diff.png") || !strings.Contains(body, "_tampered_with_diff.png") {
		t.Errorf("results page does not link the annotated images:\n%s", body)
	}

	// The index now lists the comparison.
	resp2, err := http.Get(env.ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if !strings.Contains(readBody(t, resp2), "suspect.png") {
		t.Error("history does not show the comparison")
	}
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name       string
		ref        []byte
		filename   string
		data       []byte
		wantStatus int
		wantBody   string
	}{
		{"no file", pngBytes(t, 20, 20), "", nil, http.StatusBadRequest, "No file uploaded"},
		{"empty file", pngBytes(t, 20, 20), "empty.png", nil, http.StatusBadRequest, "No file uploaded"},
		{"no reference", nil, "c.png", pngBytes(t, 20, 20), http.StatusConflict, "No original image configured"},
		{"not an image", pngBytes(t, 20, 20), "c.png", []byte("hello"), http.StatusBadRequest, "not a supported image"},
		{"size mismatch", pngBytes(t, 20, 20), "c.png", pngBytes(t, 30, 20), http.StatusUnprocessableEntity, "dimensions differ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.ref)
			resp := env.upload(t, http.MethodPost, "/", tt.filename, tt.data)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if body := readBody(t, resp); !strings.Contains(body, tt.wantBody) {
				t.Errorf("body missing %q:\n%s", tt.wantBody, body)
			}
		})
	}
}

func TestUploadTooLarge(t *testing.T) {
	env := newTestEnv(t, pngBytes(t, 20, 20), func(c *config.Config) {
		c.MaxUploadBytes = 512
	})

	resp := env.upload(t, http.MethodPost, "/api/compare", "big.png", bytes.Repeat([]byte("x"), 4096))
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", resp.StatusCode)
	}
}

func TestUploadTimeout(t *testing.T) {
	env := newTestEnv(t, pngBytes(t, 20, 20), func(c *config.Config) {
		c.RequestTimeout = time.Nanosecond
	})

	resp := env.upload(t, http.MethodPost, "/api/compare", "c.png", pngBytes(t, 20, 20))
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", resp.StatusCode)
	}
}

func TestAPICompare(t *testing.T) {
	env := newTestEnv(t, pngBytes(t, 100, 100))

	resp := env.upload(t, http.MethodPost, "/api/compare", "suspect.png", pngBytes(t, 100, 100, image.Rect(20, 20, 30, 30)))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, readBody(t, resp))
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var rep report.Report
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		t.Fatal(err)
	}
	if rep.Score >= 100 || len(rep.Regions) != 1 {
		t.Errorf("score = %.2f, regions = %v", rep.Score, rep.Regions)
	}
	if len(rep.Outputs) != 4 {
		t.Fatalf("outputs = %v", rep.Outputs)
	}

	// Every output is served back as a PNG.
	for _, o := range rep.Outputs {
		img, err := http.Get(env.ts.URL + o.URL)
		if err != nil {
			t.Fatal(err)
		}
		data, _ := io.ReadAll(img.Body)
		img.Body.Close()
		if img.StatusCode != http.StatusOK || img.Header.Get("Content-Type") != "image/png" {
			t.Errorf("%s: status %d, type %q", o.URL, img.StatusCode, img.Header.Get("Content-Type"))
		}
		if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
			t.Errorf("%s is not a PNG: %v", o.URL, err)
		}
	}
}

func TestAPIErrorsAreJSON(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.upload(t, http.MethodPost, "/api/compare", "c.png", pngBytes(t, 20, 20))
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
	var e errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		t.Fatal(err)
	}
	if e.Error != noOriginalMessage {
		t.Errorf("error = %q", e.Error)
	}
}

func TestAPIReference(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.ts.URL + "/api/reference")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("GET with no reference: status = %d, want 409", resp.StatusCode)
	}

	data := pngBytes(t, 50, 40)
	put := env.upload(t, http.MethodPut, "/api/reference", "new.png", data)
	if put.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d: %s", put.StatusCode, readBody(t, put))
	}
	var info types.ReferenceInfo
	if err := json.NewDecoder(put.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info.Width != 50 || info.Height != 40 {
		t.Errorf("info = %+v", info)
	}

	bad := env.upload(t, http.MethodPut, "/api/reference", "bad.png", []byte("nope"))
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("PUT garbage: status = %d, want 400", bad.StatusCode)
	}

	cmp := env.upload(t, http.MethodPost, "/api/compare", "same.png", data)
	if cmp.StatusCode != http.StatusOK {
		t.Fatalf("compare status = %d", cmp.StatusCode)
	}
	var rep report.Report
	if err := json.NewDecoder(cmp.Body).Decode(&rep); err != nil {
		t.Fatal(err)
	}
	if rep.Score != 100 || rep.ReferenceSHA != info.SHA256 {
		t.Errorf("report = %+v", rep)
	}
}

func TestAPIReferenceWithoutExtension(t *testing.T) {
	originals := filepath.Join(t.TempDir(), "originals")
	refs, err := reference.NewDirProvider(originals)
	if err != nil {
		t.Fatal(err)
	}
	env := newTestEnvWithProvider(t, refs)

	// Blob uploads from browsers carry the name "blob".
	put := env.upload(t, http.MethodPut, "/api/reference", "blob", pngBytes(t, 24, 16))
	if put.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d: %s", put.StatusCode, readBody(t, put))
	}
	var info types.ReferenceInfo
	if err := json.NewDecoder(put.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info.Path != filepath.Join(originals, "blob.png") {
		t.Errorf("stored at %q, want blob.png", info.Path)
	}

	cmp := env.upload(t, http.MethodPost, "/api/compare", "same", pngBytes(t, 24, 16))
	if cmp.StatusCode != http.StatusOK {
		t.Errorf("compare status = %d: %s", cmp.StatusCode, readBody(t, cmp))
	}
}

func TestAPIHistory(t *testing.T) {
	env := newTestEnv(t, pngBytes(t, 20, 20))
	env.upload(t, http.MethodPost, "/api/compare", "a.png", pngBytes(t, 20, 20))

	resp, err := http.Get(env.ts.URL + "/api/history?limit=5")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var h historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatal(err)
	}
	if len(h.Comparisons) != 1 || h.Stats.TotalComparisons != 1 {
		t.Errorf("history = %+v", h)
	}

	bad, err := http.Get(env.ts.URL + "/api/history?limit=zero")
	if err != nil {
		t.Fatal(err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d", bad.StatusCode)
	}
}

func TestOutputsAndHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		path string
		want int
	}{
		{"/healthz", http.StatusOK},
		{"/uploads/missing.png", http.StatusNotFound},
		{"/uploads/..%2Fsecret", http.StatusNotFound},
		{"/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		resp, err := http.Get(env.ts.URL + tt.path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("GET %s: status = %d, want %d", tt.path, resp.StatusCode, tt.want)
		}
	}
}
