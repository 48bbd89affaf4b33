// Package diagnostics is the optional operational surface SPEC_FULL.md
// adds on top of spec.md's acquisition core: an HTTP /status and
// /metrics endpoint, and a periodic summary written to the log. None
// of it touches message ordering or file rotation; it only observes
// counters the writer and sources already update.
//
// Grounded on the teacher's server.go (gorilla/mux routing, gorilla/
// handlers request logging and compression) and internal/taskManager
// (go-co-op/gocron/v2 scheduler for periodic work).
package diagnostics

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SELKIE-WP7/SELKIELogger/internal/fifo"
	"github.com/SELKIE-WP7/SELKIELogger/internal/logging"
)

// Config controls whether, and where, the diagnostics server listens.
type Config struct {
	Addr           string // empty disables the server entirely
	ReportInterval time.Duration
}

// Stats is the set of counters diagnostics exposes, updated by the
// rest of the program via the Record* methods below.
type Stats struct {
	messages  *prometheus.CounterVec
	bytes     *prometheus.CounterVec
	resyncs   *prometheus.CounterVec
	fifoDepth prometheus.GaugeFunc
}

// NewStats registers the counters with a fresh registry and returns
// both the registry (for the /metrics handler) and the Stats handle
// used to record events.
func NewStats(f *fifo.FIFO) (*prometheus.Registry, *Stats) {
	reg := prometheus.NewRegistry()
	s := &Stats{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "selkielogger_messages_total",
			Help: "Messages emitted per source.",
		}, []string{"source"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "selkielogger_bytes_total",
			Help: "Raw bytes read per source.",
		}, []string{"source"}),
		resyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "selkielogger_decoder_resyncs_total",
			Help: "Decoder resynchronisation events per source.",
		}, []string{"source"}),
	}
	s.fifoDepth = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "selkielogger_fifo_depth",
		Help: "Number of messages currently queued for the writer.",
	}, func() float64 {
		if f == nil {
			return 0
		}
		return float64(f.Count())
	})

	reg.MustRegister(s.messages, s.bytes, s.resyncs, s.fifoDepth)
	return reg, s
}

// RecordMessage increments the per-source message counter.
func (s *Stats) RecordMessage(source string) {
	s.messages.WithLabelValues(source).Inc()
}

// RecordBytes adds n to the per-source byte counter.
func (s *Stats) RecordBytes(source string, n int) {
	s.bytes.WithLabelValues(source).Add(float64(n))
}

// RecordResync increments the per-source decoder-resync counter.
func (s *Stats) RecordResync(source string) {
	s.resyncs.WithLabelValues(source).Inc()
}

// Server is the diagnostics HTTP endpoint plus its periodic reporter.
type Server struct {
	cfg       Config
	log       *logging.Logger
	stats     *Stats
	http      *http.Server
	scheduler gocron.Scheduler

	startedAt time.Time
	running   int32
}

// New constructs a Server bound to cfg.Addr. Call Start to begin
// serving; a zero-value cfg.Addr means diagnostics are disabled and
// Start becomes a no-op.
func New(cfg Config, reg *prometheus.Registry, stats *Stats, log *logging.Logger) *Server {
	srv := &Server{cfg: cfg, log: log, stats: stats, startedAt: time.Now()}
	if cfg.Addr == "" {
		return srv
	}

	r := mux.NewRouter()
	r.HandleFunc("/status", srv.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.Use(handlers.CompressHandler)

	logged := handlers.CustomLoggingHandler(io.Discard, r, func(w io.Writer, params handlers.LogFormatterParams) {
		log.Debugf("diagnostics: %s %s (%d, %d bytes)", params.Request.Method, params.URL.RequestURI(), params.StatusCode, params.Size)
	})

	srv.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      logged,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return srv
}

type statusResponse struct {
	Uptime string `json:"uptime"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statusResponse{Uptime: time.Since(s.startedAt).String()})
}

// Start launches the HTTP listener and the periodic reporter, both in
// the background. An empty Config.Addr means there is nothing to serve,
// so Start returns immediately.
func (s *Server) Start() error {
	if s.cfg.Addr == "" {
		return nil
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	atomic.StoreInt32(&s.running, 1)
	go func() {
		if err := s.http.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("diagnostics: server error: %v", err)
		}
	}()
	s.log.Infof("diagnostics: listening on %s", s.cfg.Addr)

	if s.cfg.ReportInterval > 0 {
		sched, err := gocron.NewScheduler()
		if err != nil {
			return err
		}
		_, err = sched.NewJob(
			gocron.DurationJob(s.cfg.ReportInterval),
			gocron.NewTask(s.report),
		)
		if err != nil {
			return err
		}
		s.scheduler = sched
		sched.Start()
	}

	return nil
}

func (s *Server) report() {
	s.log.Notef("diagnostics: uptime %s", time.Since(s.startedAt))
}

// Stop shuts the HTTP server and scheduler down, if either is running.
func (s *Server) Stop(ctx context.Context) error {
	if s.scheduler != nil {
		if err := s.scheduler.Shutdown(); err != nil {
			s.log.Warnf("diagnostics: scheduler shutdown: %v", err)
		}
	}
	if atomic.LoadInt32(&s.running) == 0 || s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
