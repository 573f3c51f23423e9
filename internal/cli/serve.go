package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"annotation-xref/internal/config"
	"annotation-xref/internal/handler"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

func RunServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := commandContext(cmd)

	serverAddr, err := listenAddr(cmd, cfg)
	if err != nil {
		return err
	}

	lib, err := openLibrary(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer lib.Close()

	apiHandler := handler.NewHandler(newCrossReferencer(cfg, lib, logger), cfg, logger)

	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(apiHandler, cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting",
			zap.String("address", serverAddr),
			zap.Strings("profiles", cfg.ProfileNames()),
			zap.String("annotation_source", lib.AnnotationSourceName()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server exited")
	return nil
}

// listenAddr combines --host and --port with the server config. The default
// host is loopback only.
func listenAddr(cmd *cobra.Command, cfg *config.Config) (string, error) {
	host, err := cmd.Flags().GetString("host")
	if err != nil {
		return "", fmt.Errorf("failed to read --host flag: %w", err)
	}
	if host == "" {
		host = cfg.Server.Host
	}

	port, err := cmd.Flags().GetString("port")
	if err != nil {
		return "", fmt.Errorf("failed to read --port flag: %w", err)
	}
	if port == "" {
		port = cfg.Server.Port
	}

	return net.JoinHostPort(host, port), nil
}
