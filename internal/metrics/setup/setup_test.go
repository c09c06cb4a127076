package setup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"migrator/internal/metrics"
)

func TestInstall_NoneAndUnknownKeepNop(t *testing.T) {
	t.Setenv("METRICS_BACKEND", "")
	for _, name := range []string{"none", "", "statsd"} {
		shutdown := Install(context.Background(), Options{Backend: name})
		shutdown()
		// The nop backend never fails to flush.
		if err := metrics.Flush(); err != nil {
			t.Fatalf("backend %q: Flush: %v", name, err)
		}
	}
}

func TestInstall_PushgatewayFlushesOnShutdown(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	shutdown := Install(context.Background(), Options{
		Backend:        "pushgateway",
		PushgatewayURL: srv.URL,
		Job:            "migrate_blobs",
		RunID:          "r1",
	})
	metrics.IncCounter(metrics.BlobTransfersTotal, 1, metrics.Labels{"status": "ok"})
	shutdown()

	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 1 || !strings.HasPrefix(paths[0], "PUT /metrics/job/migrate_blobs/run/r1") {
		t.Fatalf("pushes=%v", paths)
	}
}

func TestInstall_EnvSelectsBackend(t *testing.T) {
	t.Setenv("METRICS_BACKEND", "none")
	shutdown := Install(context.Background(), Options{Verbose: true})
	shutdown()
}
