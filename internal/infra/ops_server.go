package infra

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// OpsServer is the internal operations endpoint: health, Prometheus
// metrics and a manual cycle trigger. It binds to a separate port from
// the operator API and is expected to stay unexposed.
type OpsServer struct {
	server *http.Server
	log    *logrus.Entry
}

// NewOpsServer builds the ops router. trigger runs one evaluation cycle
// on demand.
func NewOpsServer(addr string, registry *prometheus.Registry, trigger func(context.Context), log *logrus.Logger) *OpsServer {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Post("/cycle/trigger", func(w http.ResponseWriter, req *http.Request) {
		go trigger(context.Background())
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"status":"triggered"}`))
	})

	return &OpsServer{
		server: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		log: log.WithField("component", "ops"),
	}
}

// Start serves until Shutdown. It blocks, so run it on its own goroutine.
func (s *OpsServer) Start() error {
	s.log.WithField("addr", s.server.Addr).Info("ops server listening")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *OpsServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
