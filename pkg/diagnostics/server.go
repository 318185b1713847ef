// Package diagnostics serves the delivery status of the guance exporters over HTTP.
package diagnostics

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hyp3rd/guance/internal/constants"
	"github.com/hyp3rd/guance/pkg/config"
	"github.com/hyp3rd/guance/pkg/logging"
)

// StatusPath is the route of the JSON status document.
const StatusPath = "/guance/status"

// Snapshot captures the active configuration and exporter health.
type Snapshot struct {
	ServiceName       string          `json:"service_name"`
	ServiceVersion    string          `json:"service_version"`
	Environment       string          `json:"environment"`
	SamplingMode      string          `json:"sampling_mode"`
	Endpoint          string          `json:"endpoint"`
	TokenConfigured   bool            `json:"token_configured"`
	MirrorEndpoint    string          `json:"mirror_endpoint,omitempty"`
	StartTime         time.Time       `json:"start_time"`
	LastReloadTime    time.Time       `json:"last_reload_time"`
	Instrumentation   map[string]bool `json:"instrumentation"`
	ConfigReloadCount int64           `json:"config_reload_count"`
	TraceExporter     ExporterStatus  `json:"trace_exporter"`
	MetricExporter    ExporterStatus  `json:"metric_exporter"`
	Timestamp         time.Time       `json:"timestamp"`
}

// ExporterStatus describes the delivery counters of one exporter.
type ExporterStatus struct {
	Category       string    `json:"category"`
	BatchesSent    int64     `json:"batches_sent"`
	BatchesSkipped int64     `json:"batches_skipped"`
	BatchesFailed  int64     `json:"batches_failed"`
	ItemsSent      int64     `json:"items_sent"`
	ItemsDropped   int64     `json:"items_dropped"`
	Filtered       int64     `json:"filtered"`
	EncodeErrors   int64     `json:"encode_errors"`
	LastError      string    `json:"last_error,omitempty"`
	LastErrorTime  time.Time `json:"last_error_time"`
}

// SnapshotProvider supplies diagnostic snapshots.
type SnapshotProvider interface {
	Snapshot() Snapshot
}

// Server exposes StatusPath for operators.
type Server struct {
	cfg      config.DiagnosticsConfig
	provider SnapshotProvider
	logger   logging.Adapter

	server   *http.Server
	listener net.Listener
	mu       sync.Mutex
	start    sync.Once
	stop     sync.Once
}

// NewServer constructs a diagnostics server. A nil logger discards serve errors.
func NewServer(cfg config.DiagnosticsConfig, provider SnapshotProvider, logger logging.Adapter) *Server {
	if logger == nil {
		logger = logging.NewNoopAdapter()
	}

	return &Server{
		cfg:      cfg,
		provider: provider,
		logger:   logger,
	}
}

// Start serves until ctx is canceled or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.HTTPAddr == "" {
		return ewrap.New("diagnostics http_addr is required")
	}

	var startErr error

	s.start.Do(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("GET "+StatusPath, s.HandleStatus)

		lc := net.ListenConfig{}

		ln, err := lc.Listen(ctx, "tcp", s.cfg.HTTPAddr)
		if err != nil {
			startErr = ewrap.Wrap(err, "listen diagnostics")

			return
		}

		s.mu.Lock()
		s.listener = ln
		s.server = &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: constants.DefaultTimeout,
		}
		srv := s.server
		s.mu.Unlock()

		go func() {
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DefaultShutdownTimeout)
			defer cancel()

			err := s.Shutdown(shutdownCtx)
			if err != nil {
				s.logger.Error(shutdownCtx, err, "shutdown diagnostics server")
			}
		}()

		go func() {
			err := srv.Serve(ln)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error(context.Background(), err, "diagnostics server stopped",
					attribute.String("addr", ln.Addr().String()))
			}
		}()
	})

	return startErr
}

// Addr returns the bound address, or an empty string before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.stop.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.server == nil {
			return
		}

		ctxShutdown, cancel := context.WithTimeout(ctx, constants.DefaultShutdownTimeout)
		defer cancel()

		shutdownErr = s.server.Shutdown(ctxShutdown)
		s.server = nil
	})

	if shutdownErr != nil {
		return ewrap.Wrap(shutdownErr, "shutdown diagnostics server")
	}

	return nil
}

// HandleStatus writes the current Snapshot as JSON.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AuthToken != "" && !validAuth(r.Header.Get("Authorization"), s.cfg.AuthToken) {
		w.WriteHeader(http.StatusUnauthorized)

		return
	}

	snapshot := s.provider.Snapshot()
	snapshot.Timestamp = time.Now().UTC()

	body, err := json.Marshal(snapshot)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func validAuth(header, token string) bool {
	const prefix = "Bearer "

	if !strings.HasPrefix(header, prefix) {
		return false
	}

	presented := strings.TrimSpace(header[len(prefix):])

	return subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1
}
