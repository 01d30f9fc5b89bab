package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/openlearn/xapi-agent/pkg/common/config"
	"github.com/openlearn/xapi-agent/pkg/common/database"
	"github.com/openlearn/xapi-agent/pkg/common/logger"
	"github.com/openlearn/xapi-agent/pkg/errorlog"
	"github.com/openlearn/xapi-agent/pkg/lrs"
	"github.com/openlearn/xapi-agent/pkg/modeler"
	"github.com/openlearn/xapi-agent/pkg/observability/metrics"
	"github.com/openlearn/xapi-agent/pkg/platform"
	"github.com/openlearn/xapi-agent/pkg/queue"
	"github.com/openlearn/xapi-agent/pkg/scanner"
)

// The scheduler drives the periodic scan and flush cycles. It shares the
// queue with the agent service; the redis flush lock keeps the two from
// flushing the same target at once.
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

	posters := make(map[int]queue.Poster)
	for _, target := range cfg.Targets() {
		targetCfg, _ := cfg.TargetConfig(target)
		posters[target] = lrs.NewClient(targetCfg, cfg.LRSTimeout)
	}
	queueSvc := queue.NewService(db, rdb, posters, errors, cfg.QueueBatchSize)
	scan := scanner.New(db, repo, cfg, courses, queueSvc, errors, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runScans(ctx, cfg, scan)
	go runFlushes(ctx, cfg, queueSvc)

	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheck).Methods("GET")
	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods("GET")

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":           cfg.ServerHost,
			"port":           cfg.ServerPort,
			"scan_interval":  cfg.ScanInterval.String(),
			"flush_interval": cfg.FlushInterval.String(),
		}).Info("Scheduler Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Scheduler Service...")
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("Scheduler Service stopped")
}

func runScans(ctx context.Context, cfg *config.Config, scan *scanner.Scanner) {
	ticker := time.NewTicker(cfg.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := scan.ScanAll(ctx)
			metrics.ObserveScan(report.Statements, report.Ignored, report.Failed)
			logger.Log.WithFields(map[string]interface{}{
				"courses":    report.Courses,
				"statements": report.Statements,
				"ignored":    report.Ignored,
				"failed":     report.Failed,
			}).Info("Scan cycle finished")
		}
	}
}

func runFlushes(ctx context.Context, cfg *config.Config, queueSvc *queue.Service) {
	ticker := time.NewTicker(cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, target := range cfg.Targets() {
				report, err := queueSvc.Flush(ctx, target)
				if err != nil {
					logger.Log.WithError(err).WithField("target", target).Error("Flush cycle failed")
					continue
				}
				if report.Skipped {
					continue
				}
				metrics.ObserveFlush(report.Sent, report.Failed)
				logger.Log.WithFields(map[string]interface{}{
					"target":  target,
					"sent":    report.Sent,
					"batches": report.Batches,
					"failed":  report.Failed,
				}).Info("Flush cycle finished")
			}
		}
	}
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}
