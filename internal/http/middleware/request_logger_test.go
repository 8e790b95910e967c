package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wolfman30/autolead-ai-platform/pkg/logging"
)

func TestRequestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter("debug", &buf)
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte("conflict"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/admin/leads/x/test-messages", nil))

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["msg"] != "request completed" {
		t.Fatalf("msg = %v", line["msg"])
	}
	if line["status"] != float64(http.StatusConflict) {
		t.Fatalf("status = %v", line["status"])
	}
	if line["component"] != "http" {
		t.Fatalf("component = %v", line["component"])
	}
	if line["bytes"] != float64(len("conflict")) {
		t.Fatalf("bytes = %v", line["bytes"])
	}
}
