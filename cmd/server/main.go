package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"show-orchestrator/internal/performance"
	"show-orchestrator/internal/platform/config"
	"show-orchestrator/internal/platform/logger"
	"show-orchestrator/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	catalogPath := config.GetEnv("CATALOG_PATH", "")
	ackTimeout := config.GetEnvDuration("ACK_TIMEOUT", 2*time.Second)
	timeScale := config.GetEnvFloat("TIME_SCALE", 1.0)
	runTTL := config.GetEnvDuration("RUN_TTL", 30*time.Minute)
	serialSends := config.GetEnvInt("SERIAL_SENDS", 1)

	log := logger.New(logLevel, logFormat)

	catalog := performance.DefaultCatalog()
	if catalogPath != "" {
		loaded, err := performance.LoadCatalog(catalogPath)
		if err != nil {
			log.Error("catalog load failed", "path", catalogPath, "error", err)
			os.Exit(1)
		}
		catalog = loaded
	}

	// The simulated gateway stands in until a physical transport adapter
	// is plugged here. Whether sends are serialized is a transport
	// property, so it is decided at construction.
	var gw performance.Gateway = performance.NewSimGateway()
	if serialSends != 0 {
		gw = performance.NewSerialGateway(gw)
	}

	met := metrics.New()
	planner := performance.NewPlanner(catalog, performance.PlannerConfig{Seed: time.Now().UnixNano()})
	sched := performance.NewScheduler(gw, log, met, performance.SchedulerConfig{
		AckTimeout: ackTimeout,
		TimeScale:  timeScale,
	})
	runs := performance.NewInMemoryRunRepository(runTTL)
	svc := performance.NewService(planner, sched, runs, log)
	h := performance.NewHandler(svc, log, met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() { met.SetActiveRuns(runs.ActiveRunCount()) }).ServeHTTP(w, req)
	})
	h.Routes(r)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"ack_timeout", ackTimeout.String(),
		"time_scale", timeScale,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
