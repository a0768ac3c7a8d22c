package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rkrumins/file-processing-service/internal/task"
)

func setupRouter(t *testing.T, opts task.Options) (*gin.Engine, *task.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if opts.Steps == 0 {
		opts.Steps = 2
	}
	if opts.Duration == 0 {
		opts.Duration = 40 * time.Millisecond
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	manager := task.NewManager(opts)

	router := gin.New()
	apiHandler := NewAPI(manager, t.TempDir(), "in_memory")
	apiHandler.RegisterRoutes(router)
	apiHandler.RegisterUIRoutes(router)
	return router, manager
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func doUpload(t *testing.T, router *gin.Engine, filename, content string) string {
	t.Helper()
	body, contentType := multipartUpload(t, filename, content)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d: %s", http.StatusAccepted, w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	id, _ := resp["task_id"].(string)
	if id == "" {
		t.Fatalf("expected non-empty task_id, got %v", resp)
	}
	if resp["filename"] != filename {
		t.Fatalf("expected filename %q echoed, got %v", filename, resp["filename"])
	}
	return id
}

func TestUploadCreatesTask(t *testing.T) {
	router, manager := setupRouter(t, task.Options{Duration: 5 * time.Second})

	id := doUpload(t, router, "report.csv", "a,b\n1,2\n")

	snapshot, err := manager.Status(context.Background(), id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if snapshot.OriginalFilename != "report.csv" {
		t.Fatalf("unexpected filename: %q", snapshot.OriginalFilename)
	}
}

func TestUploadWithoutFile(t *testing.T) {
	router, _ := setupRouter(t, task.Options{})

	req := httptest.NewRequest(http.MethodPost, "/upload", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestStatusUnknownTask(t *testing.T) {
	router, _ := setupRouter(t, task.Options{})

	req := httptest.NewRequest(http.MethodGet, "/status/no-such-id", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestDownloadBeforeCompletion(t *testing.T) {
	router, _ := setupRouter(t, task.Options{Duration: 5 * time.Second})

	id := doUpload(t, router, "report.csv", "a,b\n")

	req := httptest.NewRequest(http.MethodGet, "/download/"+id, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 before completion, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/download/no-such-id", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown id, got %d", w.Code)
	}
}

func TestUploadStatusDownloadFlow(t *testing.T) {
	router, _ := setupRouter(t, task.Options{})

	content := "a,b\n1,2\n"
	id := doUpload(t, router, "report.csv", content)

	// poll status until terminal
	var status string
	var progress float64
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		req := httptest.NewRequest(http.MethodGet, "/status/"+id, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status poll: expected 200, got %d", w.Code)
		}
		var resp map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		status, _ = resp["status"].(string)
		progress, _ = resp["progress"].(float64)
		if status == string(task.StatusComplete) || status == string(task.StatusError) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if status != string(task.StatusComplete) {
		t.Fatalf("expected complete, got %q", status)
	}
	if progress != 100 {
		t.Fatalf("expected progress 100, got %v", progress)
	}

	req := httptest.NewRequest(http.MethodGet, "/download/"+id, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("download: expected 200, got %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "report.csv") {
		t.Fatalf("expected original filename in Content-Disposition, got %q", cd)
	}
	if w.Body.String() != content {
		t.Fatalf("downloaded bytes differ from uploaded bytes")
	}
}

func TestErroredTaskSurfacesMessageNotTransportFailure(t *testing.T) {
	router, manager := setupRouter(t, task.Options{Steps: 10, Duration: 10 * time.Second, Timeout: 50 * time.Millisecond})

	id := doUpload(t, router, "report.csv", "a,b\n")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snapshot, err := manager.Status(context.Background(), id)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if snapshot.Terminal() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	req := httptest.NewRequest(http.MethodGet, "/status/"+id, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("errored task must still answer 200, got %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != string(task.StatusError) {
		t.Fatalf("expected error status, got %v", resp["status"])
	}
	if msg, _ := resp["error_message"].(string); msg == "" {
		t.Fatalf("expected human-readable error_message")
	}
}

func TestHealth(t *testing.T) {
	router, _ := setupRouter(t, task.Options{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "in_memory") {
		t.Fatalf("expected storage type in health payload, got %s", w.Body.String())
	}
}

func TestUIPage(t *testing.T) {
	router, _ := setupRouter(t, task.Options{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "upload-form") {
		t.Fatalf("expected upload form markup")
	}
}
