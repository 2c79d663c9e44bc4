package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/avress/switchyard/internal/config"
	"github.com/avress/switchyard/internal/handler"
	"github.com/avress/switchyard/internal/service/admission"
	"github.com/avress/switchyard/internal/service/hub"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	gate := admission.New(admission.Config{
		Window:       cfg.Admission.Window(),
		MaxPerWindow: cfg.Admission.MaxPerWindow,
		MaxConns:     cfg.Admission.MaxConns,
	})

	core := hub.New(hub.Options{
		CommandTimeout:         cfg.Core.CommandTimeout(),
		NicknameMaxLen:         cfg.Core.NicknameMaxLen,
		RolePolicy:             hub.AdminSetPolicy(cfg.Core.AdminNames),
		RetainEmptyRooms:       cfg.Core.RetainEmptyRooms,
		CancelTimerOnOverwrite: cfg.Core.CancelTimerOnOverwrite,
	})

	if len(cfg.Core.AdminNames) == 0 {
		log.Println("no admin names configured, command dispatch is unreachable")
	}

	router := handler.NewRouter(core, gate)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("switchyard listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
