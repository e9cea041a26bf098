package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"social-backend/config"
	"social-backend/controllers"
	"social-backend/metrics"
	"social-backend/models"
	"social-backend/routes"
	"social-backend/services"
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(rootOpts)
		},
	}
}

func serve(opts *RootOptions) error {
	cfg, log, db, err := bootstrap(opts)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.Auth.Secret == "" {
		return errors.New("auth secret is empty, set JWT_SECRET")
	}
	if err := models.Migrate(db); err != nil {
		return errors.Wrap(err, "migrate")
	}
	metrics.Register()

	var mirror services.PresenceMirror
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warn("redis unavailable, presence mirror disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		} else {
			mirror = services.NewRedisPresenceMirror(rdb, cfg.Redis.PresenceTTL)
		}
	}

	core, err := services.NewCore(db, log, coreOptions(cfg, mirror))
	if err != nil {
		return err
	}

	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: routes.RegisterRoutes(cfg, log, controllers.New(db, core, log)),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", cfg.HTTP.Addr), zap.String("db", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "listen")
		}
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
	core.Wait()
	return nil
}

func coreOptions(cfg *config.Config, mirror services.PresenceMirror) services.Options {
	return services.Options{
		Window:      cfg.Notification.Window,
		OpTimeout:   cfg.Notification.OpTimeout,
		TypingRate:  cfg.Realtime.TypingRate,
		TypingBurst: cfg.Realtime.TypingBurst,
		Gateway: services.GatewayConfig{
			SendBuffer:     cfg.Realtime.SendBuffer,
			MaxMessageSize: cfg.Realtime.MaxMessageSize,
			PingInterval:   cfg.Realtime.PingInterval,
			PongTimeout:    cfg.Realtime.PongTimeout,
			WriteTimeout:   cfg.Realtime.WriteTimeout,
		},
		PresenceSync: mirror,
	}
}
