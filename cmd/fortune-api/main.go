package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/nytm/delulu-fortune/internal/analytics"
	"github.com/nytm/delulu-fortune/internal/auth"
	"github.com/nytm/delulu-fortune/internal/config"
	"github.com/nytm/delulu-fortune/internal/database"
	"github.com/nytm/delulu-fortune/internal/fortune"
	"github.com/nytm/delulu-fortune/internal/logging"
	"github.com/nytm/delulu-fortune/internal/metrics"
	"github.com/nytm/delulu-fortune/internal/server"
	"github.com/nytm/delulu-fortune/internal/session"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "fortune-api",
		Short: "Daily delulu fortune backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("openai-model", defaults.GetString("openai.model"), "OpenAI model for fortune generation")
	cmd.PersistentFlags().Int("fortunes-per-day", defaults.GetInt("fortune.per_day"), "Fortune slots generated per day")
	cmd.PersistentFlags().String("timezone", defaults.GetString("fortune.timezone"), "Provider-local timezone for day rollover")
	cmd.PersistentFlags().Bool("debug", defaults.GetBool("debug"), "Enable diagnostic error detail")
	cmd.PersistentFlags().String("admin-key", "", "Admin stats key (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "openai.model", "openai-model")
	bindFlag(cmd, "fortune.per_day", "fortunes-per-day")
	bindFlag(cmd, "fortune.timezone", "timezone")
	bindFlag(cmd, "debug", "debug")
	bindFlag(cmd, "admin.key", "admin-key")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.Debug)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	location, err := appConfig.Location()
	if err != nil {
		return err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	serviceMetrics := metrics.New(registry)

	generator, err := fortune.NewOpenAIGenerator(fortune.OpenAIGeneratorConfig{
		APIKey:  appConfig.OpenAIAPIKey,
		Model:   appConfig.OpenAIModel,
		Timeout: appConfig.OpenAITimeout,
	})
	if err != nil {
		return err
	}

	store, err := fortune.NewStore(db)
	if err != nil {
		return err
	}

	replenisher, err := fortune.NewReplenisher(fortune.ReplenisherConfig{
		Store:     store,
		Generator: serviceMetrics.InstrumentGenerator(generator),
		PerDay:    appConfig.FortunesPerDay,
		Location:  location,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	assigner, err := session.NewAssigner(session.AssignerConfig{
		Database:  db,
		SlotCount: appConfig.FortunesPerDay,
		MinWindow: appConfig.SessionMinWindow,
		MaxWindow: appConfig.SessionMaxWindow,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	recorder, err := analytics.NewRecorder(analytics.RecorderConfig{
		Database: db,
		Enabled:  appConfig.AnalyticsEnabled,
		Location: location,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	fortuneService, err := fortune.NewService(fortune.ServiceConfig{
		Store:       store,
		Replenisher: replenisher,
		Resolver:    assigner,
		Recorder:    recorder,
		Stats:       recorder,
		Cache:       fortune.NewMemoryCache(appConfig.CacheEnabled, appConfig.CacheSizeMB),
		Counters:    serviceMetrics,
		Location:    location,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	adminAuth, err := auth.NewAdmin(auth.AdminConfig{
		AdminKey: appConfig.AdminKey,
		TokenTTL: appConfig.AdminTokenTTL,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Fortunes: fortuneService,
		Admin:    adminAuth,
		Metrics:  serviceMetrics,
		Gatherer: registry,
		Location: location,
		Debug:    appConfig.Debug,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
