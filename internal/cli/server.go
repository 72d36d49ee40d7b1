package cli

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

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/identity"
	transport "live-quiz-service/internal/transport/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	secret := cfg.Auth.Secret
	if secret == "" {
		secret = uuid.NewString()
		logger.Warn("auth.secret not set, identities will not survive a restart")
	}
	tokens, err := identity.NewTokens(secret, config.TTLDuration(cfg.Auth.TokenTTL, 30*24*time.Hour))
	if err != nil {
		return err
	}

	attempts := cfg.Quiz.CodeAttempts
	if attempts <= 0 {
		attempts = app.DefaultCodeAttempts
	}
	codes := app.NewCodeGenerator(b.store, attempts, logger)

	if logger.Enabled(ctx, slog.LevelDebug) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := transport.NewRouter(transport.Services{
		Store:          b.store,
		Sessions:       app.NewSessions(b.store, codes, b.questionnaires, logger),
		Participation:  app.NewParticipation(b.store, logger),
		Reports:        app.NewReports(b.store, logger),
		Questionnaires: b.questionnaires,
		Tokens:         tokens,
		StateFor:       b.stateFor,
		Logger:         logger,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if interval := config.TTLDuration(cfg.Sweep.Interval, 0); interval > 0 {
		go app.NewSweeper(b.store, logger).Run(runCtx, interval)
	}

	// WriteTimeout stays zero: websocket connections are long lived.
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("starting quiz service", "port", finalPort, "backend", cfg.Backend())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", "error", err)
			listenErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-listenErr:
		return fmt.Errorf("listen on :%s: %w", finalPort, err)
	case <-stop:
		logger.Info("shutting down server")
	case <-runCtx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}
