package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ngram-go/internal/config"
	"ngram-go/internal/controller"
	ngmodel "ngram-go/internal/model/ngram"
	"ngram-go/internal/service/corpus"
	"ngram-go/internal/service/ngram"
	"ngram-go/internal/service/tokenizer"
	"ngram-go/pkg/mcp"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T, train bool) *gin.Engine {
	t.Helper()

	registry, err := tokenizer.NewDefaultRegistry()
	if err != nil {
		t.Fatalf("NewDefaultRegistry failed: %v", err)
	}
	t.Cleanup(registry.Close)

	cfg := config.DefaultConfig()
	cfg.App.ModelDir = t.TempDir()
	cfg.Training.MinFrequency = 1
	cfg.Training.MaxOrder = 3
	cfg.Training.MaxLength = 10

	svc, err := ngram.NewNGramService(cfg, registry, zap.NewNop())
	if err != nil {
		t.Fatalf("NewNGramService failed: %v", err)
	}

	if train {
		tok, _ := registry.GetTokenizer("java")
		var seqs []ngmodel.Sequence
		for _, src := range []string{"class A { int x; }", "class B { int y; }"} {
			seq, err := tokenizer.Sequence(context.Background(), tok, []byte(src))
			if err != nil {
				t.Fatalf("Tokenize failed: %v", err)
			}
			seqs = append(seqs, seq)
		}
		if _, err := svc.Train(context.Background(), &corpus.Splits{Train: seqs}); err != nil {
			t.Fatalf("Train failed: %v", err)
		}
	}

	logger := zap.NewNop()
	return SetupRouter(controller.NewModelController(svc, logger), mcp.NewCompletionServer(svc, logger), logger)
}

func doRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("Response is not JSON: %s", w.Body.String())
		}
	}
	return w, decoded
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, false)
	w, body := doRequest(t, router, http.MethodGet, "/api/v1/health", nil)
	if w.Code != http.StatusOK || body["status"] != "healthy" {
		t.Fatalf("Unexpected health response %d %v", w.Code, body)
	}
}

func TestModels_NotTrained(t *testing.T) {
	router := newTestRouter(t, false)
	w, _ := doRequest(t, router, http.MethodGet, "/api/v1/models", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", w.Code)
	}
}

func TestModels(t *testing.T) {
	router := newTestRouter(t, true)
	w, body := doRequest(t, router, http.MethodGet, "/api/v1/models", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if body["language"] != "java" || body["run_id"] == "" {
		t.Errorf("Unexpected model info %v", body)
	}
	models, ok := body["models"].([]interface{})
	if !ok || len(models) != 3 {
		t.Errorf("Expected 3 models, got %v", body["models"])
	}
}

func TestComplete(t *testing.T) {
	router := newTestRouter(t, true)

	w, body := doRequest(t, router, http.MethodPost, "/api/v1/complete", gin.H{
		"tokens":     []string{"class", "B"},
		"n":          2,
		"max_length": 4,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", w.Code, body)
	}
	generated, _ := body["generated"].([]interface{})
	if len(generated) != 2 || generated[0] != "Separator" || generated[1] != "int" {
		t.Errorf("Unexpected generated tokens %v", body["generated"])
	}
}

func TestComplete_BadRequests(t *testing.T) {
	router := newTestRouter(t, true)

	tests := []struct {
		name   string
		body   interface{}
		status int
	}{
		{"missing n", gin.H{"tokens": []string{"class"}}, http.StatusBadRequest},
		{"missing input", gin.H{"n": 2}, http.StatusBadRequest},
		{"untrained order", gin.H{"tokens": []string{"class"}, "n": 4}, http.StatusNotFound},
		{"wrong language", gin.H{"code": "x = 1", "language": "python", "n": 2}, http.StatusBadRequest},
		{"malformed code", gin.H{"code": "class A { String s = \"open; }", "n": 2}, http.StatusUnprocessableEntity},
		{"invalid max length", gin.H{"tokens": []string{"class"}, "n": 2, "max_length": -1}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := doRequest(t, router, http.MethodPost, "/api/v1/complete", tt.body)
			if w.Code != tt.status {
				t.Errorf("Expected %d, got %d: %v", tt.status, w.Code, body)
			}
		})
	}
}

func TestPerplexity(t *testing.T) {
	router := newTestRouter(t, true)

	w, body := doRequest(t, router, http.MethodPost, "/api/v1/perplexity", gin.H{
		"code": "class A { int x; }",
		"n":    2,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", w.Code, body)
	}
	ppl, _ := body["perplexity"].(float64)
	if ppl <= 1 {
		t.Errorf("Perplexity = %v, want > 1", body["perplexity"])
	}
	if body["ngrams"] != float64(8) {
		t.Errorf("Expected 8 n-grams, got %v", body["ngrams"])
	}
}

func TestCustomRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(CustomRecoveryMiddleware(zap.NewNop()))
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	w, body := doRequest(t, router, http.MethodGet, "/panic", nil)
	if w.Code != http.StatusInternalServerError || body["error"] != "Internal server error" {
		t.Fatalf("Unexpected recovery response %d %v", w.Code, body)
	}
}

func TestStatusForError(t *testing.T) {
	if got := controller.StatusForError(ngram.ErrNoModel); got != http.StatusServiceUnavailable {
		t.Errorf("ErrNoModel -> %d", got)
	}
	if got := controller.StatusForError(&tokenizer.TokenizeError{Language: "java"}); got != http.StatusUnprocessableEntity {
		t.Errorf("TokenizeError -> %d", got)
	}
	if got := controller.StatusForError(context.DeadlineExceeded); got != http.StatusInternalServerError {
		t.Errorf("DeadlineExceeded -> %d", got)
	}
}
