// Command api serves the batching HTTP API and runs the webhook worker.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	log "github.com/golang/glog"

	"pickbatch/internal/api"
	"pickbatch/internal/buildinfo"
	"pickbatch/internal/config"
)

func main() {
	flag.Parse()
	defer log.Flush()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Exitf("config: %v", err)
	}
	srvDeps, err := api.NewServer(cfg)
	if err != nil {
		log.Exitf("failed to init server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker := srvDeps.NewWebhookWorker()
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           srvDeps.Routes(),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warningf("shutdown: %v", err)
		}
	}()

	log.Infof("API %s listening on %s (store=%s, solver=%s)", buildinfo.Info()["version"], srv.Addr, storeKind(cfg), cfg.Solver.Backend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Exitf("server error: %v", err)
	}
	srvDeps.Wait()
	<-workerDone
	log.Info("stopped")
}

func storeKind(cfg config.Config) string {
	if cfg.Store.DatabaseURL == "" {
		return "memory"
	}
	return "postgres"
}
