package supabase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type captured struct {
	mu     sync.Mutex
	method string
	path   string
	query  string
	header http.Header
	body   []byte
}

func newServer(t *testing.T, status int, reply string) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got.mu.Lock()
		got.method = r.Method
		got.path = r.URL.Path
		got.query = r.URL.Query().Get("on_conflict")
		got.header = r.Header.Clone()
		got.body = b
		got.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "k", ""); err == nil {
		t.Fatalf("expected error for missing url")
	}
	if _, err := New("http://x", "", ""); err == nil {
		t.Fatalf("expected error for missing api key")
	}
}

func TestUpsert_SendsMergeAndOnConflict(t *testing.T) {
	srv, got := newServer(t, http.StatusCreated, "")
	c, err := New(srv.URL+"/", "anon", "service")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rows := []map[string]any{{"id": "P1", "product_specification": map[string]string{"size": "L"}}}
	if err := c.Upsert(context.Background(), "product", rows, []string{"id"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if got.method != http.MethodPost || got.path != "/rest/v1/product" {
		t.Fatalf("request %s %s", got.method, got.path)
	}
	if got.query != "id" {
		t.Fatalf("on_conflict=%q", got.query)
	}
	if p := got.header.Get("Prefer"); !strings.Contains(p, "resolution=merge-duplicates") {
		t.Fatalf("Prefer=%q", p)
	}
	if got.header.Get("apikey") != "anon" || got.header.Get("Authorization") != "Bearer service" {
		t.Fatalf("auth headers: %v", got.header)
	}

	var decoded []map[string]any
	if err := json.Unmarshal(got.body, &decoded); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	spec, _ := decoded[0]["product_specification"].(map[string]any)
	if spec["size"] != "L" {
		t.Fatalf("body=%s", got.body)
	}
}

func TestInsert_TokenFallsBackToKey(t *testing.T) {
	srv, got := newServer(t, http.StatusCreated, "")
	c, err := New(srv.URL, "anon", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := c.Insert(context.Background(), "Product", []map[string]any{{"id": "1"}}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if got.path != "/rest/v1/Product" {
		t.Fatalf("path=%q", got.path)
	}
	if got.header.Get("Authorization") != "Bearer anon" {
		t.Fatalf("Authorization=%q", got.header.Get("Authorization"))
	}
	if got.query != "" || strings.Contains(got.header.Get("Prefer"), "merge-duplicates") {
		t.Fatalf("insert must not request merge: on_conflict=%q prefer=%q", got.query, got.header.Get("Prefer"))
	}
}

func TestUpsert_EmptyConflictOmitsQuery(t *testing.T) {
	srv, got := newServer(t, http.StatusCreated, "")
	c, err := New(srv.URL, "anon", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := c.Upsert(context.Background(), "product", []map[string]any{{"id": "1"}}, nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if got.query != "" {
		t.Fatalf("on_conflict=%q", got.query)
	}
}

func TestInsert_RejectedRowsError(t *testing.T) {
	srv, _ := newServer(t, http.StatusConflict, `{"code":"23505","message":"duplicate key"}`)
	c, err := New(srv.URL, "anon", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = c.Insert(context.Background(), "product", []map[string]any{{"id": "1"}})
	if err == nil {
		t.Fatalf("expected error for 409")
	}
	if !strings.Contains(err.Error(), "insert product") {
		t.Fatalf("err=%v", err)
	}
}

func TestWrites_CanceledContext(t *testing.T) {
	srv, got := newServer(t, http.StatusCreated, "")
	c, err := New(srv.URL, "anon", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Upsert(ctx, "product", []map[string]any{{"id": "1"}}, nil); err == nil {
		t.Fatalf("expected error for canceled context")
	}
	if err := c.UploadObject(ctx, "images", "a.jpg", []byte("x"), UploadOptions{}); err == nil {
		t.Fatalf("expected error for canceled context")
	}
	if got.method != "" {
		t.Fatalf("request sent after cancel: %s %s", got.method, got.path)
	}
}

func TestUploadObject_PathAndHeaders(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, `{"Key":"images/abc123456789.jpg"}`)
	c, err := New(srv.URL, "anon", "tok")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	opts := UploadOptions{CacheControl: "3600", ContentType: "image/jpeg", Upsert: true}
	if err := c.UploadObject(context.Background(), "images", "abc123456789.jpg", []byte("jpegdata"), opts); err != nil {
		t.Fatalf("UploadObject: %v", err)
	}
	if got.path != "/storage/v1/object/images/abc123456789.jpg" {
		t.Fatalf("path=%q", got.path)
	}
	if got.header.Get("x-upsert") != "true" {
		t.Fatalf("x-upsert=%q", got.header.Get("x-upsert"))
	}
	if got.header.Get("Authorization") != "Bearer tok" {
		t.Fatalf("Authorization=%q", got.header.Get("Authorization"))
	}
	if string(got.body) != "jpegdata" {
		t.Fatalf("body=%q", got.body)
	}
}

func TestUploadObject_RequiresBucketAndName(t *testing.T) {
	c, err := New("http://localhost", "anon", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.UploadObject(context.Background(), "", "a.jpg", nil, UploadOptions{}); err == nil {
		t.Fatalf("expected error for empty bucket")
	}
	if err := c.UploadObject(context.Background(), "images", "", nil, UploadOptions{}); err == nil {
		t.Fatalf("expected error for empty name")
	}
}
