package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"imagine/adapters/logger"
	"imagine/api"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	args, err := ParseArgs()
	if err != nil {
		return err
	}
	if err := args.Validate(); err != nil {
		return fmt.Errorf("invalid arguments:\n%w", err)
	}
	log, err := logger.New("imagine", args.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(log)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := api.NewServer(ctx, args.ServerConfig, log)
	if err != nil {
		return err
	}
	defer server.Close()
	if err := server.Bootstrap(ctx); err != nil {
		return err
	}
	server.Start()

	httpServer := &http.Server{
		Addr:              args.ServerURL,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Starting http server", slog.String("addr", args.ServerURL))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	// 收到訊號後停止接受新連線，等待進行中的請求完成
	g.Go(func() error {
		<-gCtx.Done()
		log.Info("Received shutdown signal")
		server.CloseStreams()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), args.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("Fail to shutdown http server", slog.Any("error", err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("Application error", slog.Any("error", err))
		return err
	}
	log.Info("Application shutdown completed")
	return nil
}
