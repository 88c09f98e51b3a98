package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"go.uber.org/zap"
)

const appleText = "apples grow on trees in the orchard"

func testServer(t *testing.T, gen generation.Generator, withKeyword bool) *Server {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Storage.DatabasePath = ":memory:"
	cfg.Storage.IndexPath = filepath.Join(dir, "vectors.idx")
	cfg.Storage.BleveIndexPath = filepath.Join(dir, "bleve")
	cfg.Chunking.TargetWords = 20
	cfg.Chunking.OverlapWords = 5
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimensions = 32
	config.ApplyDefaults(cfg)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	emb := embedding.NewMockEmbedder(cfg.Embedding.Dimensions)

	var opts []Option
	var idxOpts []indexer.IndexerOption
	if withKeyword {
		kw, err := keyword.NewBleveIndex("")
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = kw.Close() })
		opts = append(opts, WithKeywordIndex(kw))
		idxOpts = append(idxOpts, indexer.WithKeywordIndex(kw))
	}
	idx, err := indexer.NewIndexer(emb, cfg, idxOpts...)
	if err != nil {
		t.Fatal(err)
	}
	engine := search.NewEngine(emb, gen, &cfg.Retrieval)
	return NewServer(engine, idx, store, cfg, zap.NewNop(), opts...)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func buildDocs(t *testing.T, h http.Handler, docs ...models.DocumentInput) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, h, http.MethodPost, "/api/v1/build", map[string]any{"documents": docs})
}

func TestHandleQuery_noIndex(t *testing.T) {
	srv := testServer(t, generation.StaticGenerator{Text: "x"}, false)
	w := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/query", models.QueryRequest{Query: "anything"})
	if w.Code != http.StatusConflict {
		t.Errorf("status: got %d, want 409; body %s", w.Code, w.Body)
	}
}

func TestHandleQuery_invalid(t *testing.T) {
	srv := testServer(t, nil, false)
	h := srv.Handler()
	if w := doJSON(t, h, http.MethodPost, "/api/v1/query", models.QueryRequest{Query: "  "}); w.Code != http.StatusBadRequest {
		t.Errorf("empty query: got %d", w.Code)
	}
	r := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad body: got %d", w.Code)
	}
}

func TestBuildThenQuery(t *testing.T) {
	srv := testServer(t, generation.StaticGenerator{Text: "  Apples   grow on trees. "}, false)
	h := srv.Handler()

	w := buildDocs(t, h,
		models.DocumentInput{Filename: "apples.txt", Text: appleText},
		models.DocumentInput{Filename: "cars.txt", Text: "engines need regular oil changes"},
	)
	if w.Code != http.StatusCreated {
		t.Fatalf("build: got %d; body %s", w.Code, w.Body)
	}
	var report models.BuildReport
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.ChunksIndexed != 2 || report.Documents != 2 {
		t.Errorf("report = %+v", report)
	}
	if srv.Index() == nil || srv.Index().Size() != 2 {
		t.Fatal("expected the new index to be served")
	}

	w = doJSON(t, h, http.MethodPost, "/api/v1/query", models.QueryRequest{Query: appleText})
	if w.Code != http.StatusOK {
		t.Fatalf("query: got %d; body %s", w.Code, w.Body)
	}
	var answer models.Answer
	if err := json.NewDecoder(w.Body).Decode(&answer); err != nil {
		t.Fatal(err)
	}
	if answer.Mode != models.AnswerGenerated || answer.Text != "Apples grow on trees." {
		t.Errorf("answer = %q (%s)", answer.Text, answer.Mode)
	}
	if len(answer.Hits) == 0 || answer.Hits[0].Record.Filename != "apples.txt" {
		t.Errorf("hits = %+v", answer.Hits)
	}

	off := false
	w = doJSON(t, h, http.MethodPost, "/api/v1/query", models.QueryRequest{Query: appleText, UseGeneration: &off})
	_ = json.NewDecoder(w.Body).Decode(&answer)
	if answer.Mode != models.AnswerExtractive || !strings.HasPrefix(answer.Text, appleText) {
		t.Errorf("extractive answer = %q (%s)", answer.Text, answer.Mode)
	}
}

func TestBuild_persists(t *testing.T) {
	srv := testServer(t, nil, false)
	if w := buildDocs(t, srv.Handler(), models.DocumentInput{Filename: "a.txt", Text: appleText}); w.Code != http.StatusCreated {
		t.Fatalf("build: got %d; body %s", w.Code, w.Body)
	}
	ctx := context.Background()
	loaded, err := vector.NewMemoryIndex(0)
	if err != nil {
		t.Fatal(err)
	}
	if err := loaded.Load(ctx, srv.config.Storage.IndexPath, srv.storage); err != nil {
		t.Fatalf("load persisted index: %v", err)
	}
	if loaded.Size() != 1 || loaded.Records()[0].Text != appleText {
		t.Errorf("persisted records = %+v", loaded.Records())
	}
	if n, _ := srv.storage.CountDocuments(ctx); n != 1 {
		t.Errorf("documents stored = %d", n)
	}
	if _, err := srv.storage.LastBuild(ctx); err != nil {
		t.Errorf("LastBuild: %v", err)
	}
}

func TestBuild_duplicateIDsRejected(t *testing.T) {
	srv := testServer(t, nil, false)
	h := srv.Handler()
	if w := buildDocs(t, h, models.DocumentInput{ID: "a", Filename: "a.txt", Text: appleText}); w.Code != http.StatusCreated {
		t.Fatalf("build: got %d; body %s", w.Code, w.Body)
	}

	w := buildDocs(t, h,
		models.DocumentInput{ID: "x", Filename: "x1.txt", Text: "alpha beta gamma"},
		models.DocumentInput{ID: "x", Filename: "x2.txt", Text: "delta epsilon"},
	)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate ids: got %d, want 400; body %s", w.Code, w.Body)
	}

	ctx := context.Background()
	if srv.Index().Size() != 1 || srv.Index().Records()[0].Text != appleText {
		t.Errorf("served index changed: %+v", srv.Index().Records())
	}
	loaded, _ := vector.NewMemoryIndex(0)
	if err := loaded.Load(ctx, srv.config.Storage.IndexPath, srv.storage); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 1 || loaded.Records()[0].Text != appleText {
		t.Errorf("on-disk index changed: %+v", loaded.Records())
	}
	if doc, err := srv.storage.GetDocument(ctx, "a"); err != nil || doc.Filename != "a.txt" {
		t.Errorf("document a: %+v, %v", doc, err)
	}
}

func TestRebuild_failedPersistKeepsPreviousBuild(t *testing.T) {
	tests := []struct {
		name      string
		fail      func(t *testing.T, srv *Server)
		storeOpen bool
	}{
		{
			name: "vector file cannot be written",
			fail: func(t *testing.T, srv *Server) {
				blocker := filepath.Join(t.TempDir(), "not-a-dir")
				if err := os.WriteFile(blocker, nil, 0644); err != nil {
					t.Fatal(err)
				}
				srv.config.Storage.IndexPath = filepath.Join(blocker, "vectors.idx")
			},
			storeOpen: true,
		},
		{
			name: "metadata cannot be written",
			fail: func(t *testing.T, srv *Server) {
				_ = srv.storage.Close()
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t, nil, true)
			h := srv.Handler()
			w := buildDocs(t, h, models.DocumentInput{ID: "a", Filename: "apples.txt", Text: appleText})
			if w.Code != http.StatusCreated {
				t.Fatalf("build: got %d; body %s", w.Code, w.Body)
			}
			var first models.BuildReport
			_ = json.NewDecoder(w.Body).Decode(&first)
			indexPath := srv.config.Storage.IndexPath
			before, err := os.ReadFile(indexPath)
			if err != nil {
				t.Fatal(err)
			}

			tt.fail(t, srv)
			w = buildDocs(t, h, models.DocumentInput{ID: "z", Filename: "zebras.txt", Text: "zebras roam the open savanna"})
			if w.Code != http.StatusInternalServerError {
				t.Fatalf("second build: got %d, want 500; body %s", w.Code, w.Body)
			}

			if got := srv.Index().Records(); len(got) != 1 || got[0].Text != appleText {
				t.Errorf("served index changed: %+v", got)
			}
			after, err := os.ReadFile(indexPath)
			if err != nil || !bytes.Equal(before, after) {
				t.Errorf("vector file changed by a failed build (err %v)", err)
			}
			if _, err := os.Stat(indexPath + ".staging"); !os.IsNotExist(err) {
				t.Errorf("staging file left behind: %v", err)
			}
			for q, want := range map[string]string{"orchard": "apples.txt", "zebras": ""} {
				passages, err := srv.keyword.Search(context.Background(), q, 5, nil)
				if err != nil {
					t.Fatal(err)
				}
				switch {
				case want == "" && len(passages) != 0:
					t.Errorf("%s: passages from the failed build are served: %+v", q, passages)
				case want != "" && (len(passages) != 1 || passages[0].Filename != want || passages[0].Index != 0):
					t.Errorf("%s: previous passages lost: %+v", q, passages)
				}
			}
			if tt.storeOpen {
				ctx := context.Background()
				if _, err := srv.storage.GetDocument(ctx, "z"); !errors.Is(err, storage.ErrNotFound) {
					t.Errorf("document from the failed build was stored: %v", err)
				}
				if last, err := srv.storage.LastBuild(ctx); err != nil || last.BuildID != first.BuildID {
					t.Errorf("last build = %+v, %v; want %s", last, err, first.BuildID)
				}
			}
		})
	}
}

func TestBuild_multipart(t *testing.T) {
	srv := testServer(t, nil, false)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range map[string]string{"one.txt": appleText, "two.md": "# Notes\n\nsecond file"} {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write([]byte(content))
	}
	_ = mw.Close()

	r := httptest.NewRequest(http.MethodPost, "/api/v1/build", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusCreated {
		t.Fatalf("got %d; body %s", w.Code, w.Body)
	}
	for _, rec := range srv.Index().Records() {
		if !strings.HasPrefix(rec.SourceID, "upload:") {
			t.Errorf("upload SourceID = %q", rec.SourceID)
		}
	}
}

func TestBuild_errors(t *testing.T) {
	srv := testServer(t, nil, false)
	h := srv.Handler()

	// nothing posted and no configured sources
	r := httptest.NewRequest(http.MethodPost, "/api/v1/build", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("no sources: got %d; body %s", w.Code, w.Body)
	}

	if w := buildDocs(t, h, models.DocumentInput{Filename: "blank.txt", Text: " "}); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty index: got %d; body %s", w.Code, w.Body)
	}
	if w := buildDocs(t, h, models.DocumentInput{Text: "no name"}); w.Code != http.StatusBadRequest {
		t.Errorf("missing filename: got %d", w.Code)
	}
	if srv.Index() != nil {
		t.Error("failed builds must not replace the served index")
	}
}

func TestHandleQuery_generatorFailure(t *testing.T) {
	gen := generation.Func(func(ctx context.Context, prompt string) (string, error) {
		return "", fmt.Errorf("%w: upstream 503", generation.ErrProvider)
	})
	srv := testServer(t, gen, false)
	h := srv.Handler()
	if w := buildDocs(t, h, models.DocumentInput{Filename: "a.txt", Text: appleText}); w.Code != http.StatusCreated {
		t.Fatalf("build: %d", w.Code)
	}
	w := doJSON(t, h, http.MethodPost, "/api/v1/query", models.QueryRequest{Query: appleText})
	if w.Code != http.StatusBadGateway {
		t.Errorf("got %d, want 502; body %s", w.Code, w.Body)
	}
}

func TestHandlePassages(t *testing.T) {
	srv := testServer(t, nil, true)
	h := srv.Handler()
	if w := buildDocs(t, h,
		models.DocumentInput{Filename: "apples.txt", Text: appleText},
		models.DocumentInput{Filename: "cars.txt", Text: "engines need regular oil changes"},
	); w.Code != http.StatusCreated {
		t.Fatalf("build: %d", w.Code)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/v1/passages?q=orchard&limit=5", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d; body %s", w.Code, w.Body)
	}
	var out struct {
		Passages []keyword.Passage `json:"passages"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Passages) == 0 || out.Passages[0].Filename != "apples.txt" {
		t.Errorf("passages = %+v", out.Passages)
	}

	for _, q := range []string{"/api/v1/passages", "/api/v1/passages?q=x&limit=0"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, q, nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d", q, w.Code)
		}
	}
}

func TestHandlePassages_disabled(t *testing.T) {
	srv := testServer(t, nil, false)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/passages?q=x", nil))
	if w.Code != http.StatusNotImplemented {
		t.Errorf("got %d", w.Code)
	}
}

func TestHandleStatusAndHealth(t *testing.T) {
	srv := testServer(t, nil, false)
	h := srv.Handler()
	if w := buildDocs(t, h, models.DocumentInput{Filename: "a.txt", Text: appleText}); w.Code != http.StatusCreated {
		t.Fatalf("build: %d", w.Code)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d; body %s", w.Code, w.Body)
	}
	var st cli.Status
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Entries != 1 || st.Dimensions != 32 || st.Documents != 1 || st.Chunks != 1 || st.LastBuild == nil {
		t.Errorf("status = %+v", st)
	}
	if st.DiskUsage <= 0 {
		t.Errorf("expected disk usage for the saved vector file, got %d", st.DiskUsage)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	var health map[string]any
	_ = json.NewDecoder(w.Body).Decode(&health)
	if w.Code != http.StatusOK || health["index_loaded"] != true {
		t.Errorf("health: %d %v", w.Code, health)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "kotae_build_chunks_total") {
		t.Errorf("metrics: got %d", w.Code)
	}
}

func TestDocumentsAndChunks(t *testing.T) {
	srv := testServer(t, nil, false)
	h := srv.Handler()
	if w := buildDocs(t, h,
		models.DocumentInput{ID: "doc-b", Filename: "b.txt", Text: "bananas are yellow"},
		models.DocumentInput{ID: "doc-a", Filename: "a.txt", Text: appleText},
	); w.Code != http.StatusCreated {
		t.Fatalf("build: %d %s", w.Code, w.Body)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/documents?limit=1", nil))
	var list struct {
		Documents []models.Document `json:"documents"`
		Total     int64             `json:"total"`
	}
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusOK || list.Total != 2 || len(list.Documents) != 1 || list.Documents[0].Filename != "a.txt" {
		t.Errorf("list: %d %+v", w.Code, list)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/documents/doc-b", nil))
	var doc models.Document
	_ = json.NewDecoder(w.Body).Decode(&doc)
	if w.Code != http.StatusOK || doc.Filename != "b.txt" || doc.ChunkCount != 1 {
		t.Errorf("get document: %d %+v", w.Code, doc)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/chunks/1", nil))
	var rec models.ChunkRecord
	_ = json.NewDecoder(w.Body).Decode(&rec)
	if w.Code != http.StatusOK || rec.ChunkID != "a.txt_chunk_0" {
		t.Errorf("get chunk: %d %+v", w.Code, rec)
	}

	for path, want := range map[string]int{
		"/api/v1/documents/missing":   http.StatusNotFound,
		"/api/v1/documents?offset=-1": http.StatusBadRequest,
		"/api/v1/chunks/9":            http.StatusNotFound,
		"/api/v1/chunks/x":            http.StatusBadRequest,
	} {
		w = httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != want {
			t.Errorf("%s: got %d, want %d", path, w.Code, want)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.InvalidConfigf("bad"), http.StatusBadRequest},
		{fmt.Errorf("query: %w", models.ErrNoIndexLoaded), http.StatusConflict},
		{models.ErrEmptyIndex, http.StatusUnprocessableEntity},
		{models.NewSourceError("id", "x.pdf", errors.New("broken")), http.StatusUnprocessableEntity},
		{&embedding.BatchError{Start: 0, End: 4, Err: embedding.ErrProvider}, http.StatusBadGateway},
		{fmt.Errorf("generate: %w", generation.ErrProvider), http.StatusBadGateway},
		{fmt.Errorf("document x: %w", storage.ErrNotFound), http.StatusNotFound},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
