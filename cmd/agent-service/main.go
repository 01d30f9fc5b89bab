package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/openlearn/xapi-agent/pkg/activities"
	"github.com/openlearn/xapi-agent/pkg/common/config"
	"github.com/openlearn/xapi-agent/pkg/common/database"
	"github.com/openlearn/xapi-agent/pkg/common/logger"
	"github.com/openlearn/xapi-agent/pkg/errorlog"
	"github.com/openlearn/xapi-agent/pkg/lrs"
	"github.com/openlearn/xapi-agent/pkg/modeler"
	"github.com/openlearn/xapi-agent/pkg/observability/metrics"
	"github.com/openlearn/xapi-agent/pkg/observer"
	"github.com/openlearn/xapi-agent/pkg/platform"
	"github.com/openlearn/xapi-agent/pkg/queue"
	"github.com/openlearn/xapi-agent/pkg/scanner"
)

type AgentService struct {
	cfg     *config.Config
	queue   *queue.Service
	scanner *scanner.Scanner
	errors  *errorlog.Service
}

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.OpenPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.ClosePostgres(db)

	rdb, err := database.OpenRedis(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to redis")
	}
	defer database.CloseRedis(rdb)

	courses, err := config.LoadCourses(cfg.CoursesFile)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load course configuration")
	}

	store := modeler.NewTemplateStore(cfg.CustomTemplatesDir)
	if err := modeler.Preflight(store); err != nil {
		logger.Log.WithError(err).Fatal("Template preflight failed")
	}

	repo := platform.NewRepository(db)
	errors := errorlog.NewService(db)
	actors := activities.NewActors(repo, db, cfg)

	posters := make(map[int]queue.Poster)
	for _, target := range cfg.Targets() {
		targetCfg, _ := cfg.TargetConfig(target)
		posters[target] = lrs.NewClient(targetCfg, cfg.LRSTimeout)
	}
	queueSvc := queue.NewService(db, rdb, posters, errors, cfg.QueueBatchSize)
	scan := scanner.New(db, repo, cfg, courses, queueSvc, errors, store)

	if err := migrate(queueSvc, errors, actors, scan); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate agent tables")
	}

	service := &AgentService{
		cfg:     cfg,
		queue:   queueSvc,
		scanner: scan,
		errors:  errors,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Live capture off the platform event bus.
	obs := observer.New(db, repo, cfg, courses, queueSvc, errors, store)
	consumer := observer.NewConsumer(cfg)
	defer consumer.Close()
	go func() {
		if err := consumer.Consume(ctx, obs.Handle); err != nil && ctx.Err() == nil {
			logger.Log.WithError(err).Fatal("Consumer error")
		}
	}()

	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheck).Methods("GET")
	router.HandleFunc("/metrics", handleMetrics).Methods("GET")
	router.HandleFunc("/api/v1/status", service.handleStatus).Methods("GET")
	router.HandleFunc("/api/v1/scan", service.handleScan).Methods("POST")
	router.HandleFunc("/api/v1/flush", service.handleFlush).Methods("POST")
	router.HandleFunc("/api/v1/retry", service.handleRetry).Methods("POST")
	router.HandleFunc("/api/v1/queue/clear", service.handleClear).Methods("POST")

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Agent Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Agent Service...")
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("Agent Service stopped")
}

// migrate creates the agent-owned tables. Platform tables are never
// touched; the host platform owns that schema.
func migrate(q *queue.Service, errors *errorlog.Service, actors *activities.Actors, scan *scanner.Scanner) error {
	if err := q.AutoMigrate(); err != nil {
		return err
	}
	if err := errors.AutoMigrate(); err != nil {
		return err
	}
	if err := actors.AutoMigrate(); err != nil {
		return err
	}
	return scan.AutoMigrate()
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics.WritePrometheus(w)
}

func (s *AgentService) handleStatus(w http.ResponseWriter, r *http.Request) {
	type targetStatus struct {
		Pending        int64  `json:"pending"`
		ErrorTransport int64  `json:"error_transport"`
		ErrorRemote    int64  `json:"error_remote"`
		LastDelivery   string `json:"last_delivery,omitempty"`
	}
	out := struct {
		Targets map[string]targetStatus `json:"targets"`
		Errors  map[string]int64        `json:"errors"`
	}{Targets: make(map[string]targetStatus)}

	for _, target := range s.cfg.Targets() {
		sizes, err := s.queue.Size(target)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		status := targetStatus{
			Pending:        sizes[queue.StatusPending],
			ErrorTransport: sizes[queue.StatusErrorTransport],
			ErrorRemote:    sizes[queue.StatusErrorRemote],
		}
		if t, ok := s.queue.LastDelivery(r.Context(), target); ok {
			status.LastDelivery = t.Format(time.RFC3339)
		}
		out.Targets[strconv.Itoa(target)] = status
	}

	counts, err := s.errors.Counts()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out.Errors = counts

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (s *AgentService) handleScan(w http.ResponseWriter, r *http.Request) {
	report := s.scanner.ScanAll(r.Context())
	metrics.ObserveScan(report.Statements, report.Ignored, report.Failed)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

func (s *AgentService) handleFlush(w http.ResponseWriter, r *http.Request) {
	reports := make([]*queue.FlushReport, 0)
	for _, target := range s.targets(r) {
		report, err := s.queue.Flush(r.Context(), target)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		metrics.ObserveFlush(report.Sent, report.Failed)
		reports = append(reports, report)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(reports)
}

func (s *AgentService) handleRetry(w http.ResponseWriter, r *http.Request) {
	out := struct {
		Deliveries []*queue.FlushReport  `json:"deliveries"`
		Replay     *scanner.ReplayReport `json:"replay"`
	}{Deliveries: make([]*queue.FlushReport, 0)}

	for _, target := range s.targets(r) {
		report, err := s.queue.Retry(r.Context(), target)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		metrics.ObserveFlush(report.Sent, report.Failed)
		out.Deliveries = append(out.Deliveries, report)
	}

	replay, err := s.scanner.Replay(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out.Replay = replay

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (s *AgentService) handleClear(w http.ResponseWriter, r *http.Request) {
	onlyErrors := r.URL.Query().Get("errors") == "1"
	var course []int64
	if raw := r.URL.Query().Get("course"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			course = append(course, id)
		}
	}
	var cleared int64
	for _, target := range s.targets(r) {
		var n int64
		var err error
		if onlyErrors {
			n, err = s.queue.ClearErrors(target)
		} else {
			n, err = s.queue.Clear(target, course...)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		cleared += n
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"cleared": cleared})
}

// targets resolves the ?target= query parameter, defaulting to every
// configured target.
func (s *AgentService) targets(r *http.Request) []int {
	if raw := r.URL.Query().Get("target"); raw != "" {
		if target, err := strconv.Atoi(raw); err == nil {
			return []int{target}
		}
	}
	return s.cfg.Targets()
}
