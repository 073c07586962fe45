package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"gemdesk.app/gemdesk/internal/api"
	"gemdesk.app/gemdesk/internal/config"
	"gemdesk.app/gemdesk/internal/domain"
	"gemdesk.app/gemdesk/internal/gateway"
	"gemdesk.app/gemdesk/internal/logging"
	"gemdesk.app/gemdesk/internal/pipeline"
	"gemdesk.app/gemdesk/internal/state"
	"gemdesk.app/gemdesk/internal/store"
)

func main() {
	log, err := logging.New(os.Getenv("LOG_LEVEL"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load(log)
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	// The document store handle is opened once and passed by reference to
	// every component. A corrupt store is dropped and recreated inside Open;
	// LoadSessions below rebuilds the bootstrap state in that case.
	db, err := store.Open(cfg.DatabasePath, log)
	if err != nil {
		log.Fatal("failed to open document store", zap.Error(err))
	}
	defer db.Close()

	st := state.New(db, log)
	defer st.Close()

	gw := gateway.New(log, cfg.RequestTimeout)

	ctx := context.Background()

	// The remote client handle is never persisted; reinitialize it from the
	// durably stored configuration record on every start.
	if saved, found, err := db.GetConfiguration(ctx); err != nil {
		log.Warn("failed to read saved configuration", zap.Error(err))
		st.AddLog(domain.LogError, "failed to load configuration", err.Error())
	} else if found {
		if err := gw.Initialize(ctx, saved); err != nil {
			log.Warn("saved configuration is unusable", zap.Error(err))
			st.AddLog(domain.LogWarn, "saved configuration is unusable", err.Error())
		} else {
			st.RestoreConfiguration(saved)
		}
	}

	if err := st.LoadSessions(ctx); err != nil {
		log.Fatal("failed to load sessions", zap.Error(err))
	}

	p := pipeline.New(st, gw, log)
	apiHandler := api.NewAPIHandler(st, p, gw, db, log)
	router := api.NewRouter(apiHandler)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // remote generation can be slow
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
	}

	// Settle any queued session writes before the store closes.
	st.Flush()
	log.Info("exiting")
}
