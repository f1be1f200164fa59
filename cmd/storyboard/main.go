package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/storyboard/internal/backend"
	"github.com/MarcoPoloResearchLab/storyboard/internal/campaigns"
	"github.com/MarcoPoloResearchLab/storyboard/internal/canvas"
	"github.com/MarcoPoloResearchLab/storyboard/internal/config"
	"github.com/MarcoPoloResearchLab/storyboard/internal/database"
	"github.com/MarcoPoloResearchLab/storyboard/internal/drafts"
	"github.com/MarcoPoloResearchLab/storyboard/internal/hydration"
	"github.com/MarcoPoloResearchLab/storyboard/internal/logging"
	"github.com/MarcoPoloResearchLab/storyboard/internal/server"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "storyboard",
		Short: "Story campaign editor service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newServeCommand(), newRenderCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("backend-url", defaults.GetString("backend.base_url"), "Campaign backend base URL")
	cmd.PersistentFlags().String("backend-token", "", "Campaign backend API token (overrides env)")
	cmd.PersistentFlags().Int("backend-timeout-seconds", defaults.GetInt("backend.timeout_seconds"), "Campaign backend request timeout")
	cmd.PersistentFlags().String("redis-url", defaults.GetString("cache.redis_url"), "Redis URL for the campaign read cache (optional)")
	cmd.PersistentFlags().Int("cache-ttl-seconds", defaults.GetInt("cache.ttl_seconds"), "Campaign read cache TTL")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path for drafts")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().Int("settle-ms", defaults.GetInt("hydration.settle_ms"), "Hydration settle window in milliseconds")
	cmd.PersistentFlags().Float64("export-scale", defaults.GetFloat64("canvas.export_scale"), "Export pixels per canvas pixel")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "backend.base_url", "backend-url")
	bindFlag(cmd, "backend.api_token", "backend-token")
	bindFlag(cmd, "backend.timeout_seconds", "backend-timeout-seconds")
	bindFlag(cmd, "cache.redis_url", "redis-url")
	bindFlag(cmd, "cache.ttl_seconds", "cache-ttl-seconds")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "hydration.settle_ms", "settle-ms")
	bindFlag(cmd, "canvas.export_scale", "export-scale")
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

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the editor session API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func newRenderCommand() *cobra.Command {
	var campaignID string
	var groupID string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the canvas document for a story group",
		RunE: func(cmd *cobra.Command, args []string) error {
			if campaignID == "" && groupID == "" {
				return errors.New("one of --campaign-id or --group-id is required")
			}
			return runRender(cmd.Context(), cmd.OutOrStdout(), campaigns.ID(campaignID), campaigns.ID(groupID))
		},
	}
	cmd.Flags().StringVar(&campaignID, "campaign-id", "", "Campaign to render")
	cmd.Flags().StringVar(&groupID, "group-id", "", "Story group to render (defaults to the first group)")
	return cmd
}

func newBackend(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger) (backend.API, func(), error) {
	client, err := backend.NewClient(backend.ClientConfig{
		BaseURL:  appConfig.BackendBaseURL,
		APIToken: appConfig.BackendAPIToken,
		Timeout:  appConfig.BackendTimeout,
		Logger:   logger,
	})
	if err != nil {
		return nil, nil, err
	}
	if appConfig.RedisURL == "" {
		return client, func() {}, nil
	}
	redisClient, err := backend.OpenRedis(ctx, appConfig.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	cached, err := backend.NewCachedClient(backend.CachedClientConfig{
		Inner:  client,
		Redis:  redisClient,
		TTL:    appConfig.CacheTTL,
		Logger: logger,
	})
	if err != nil {
		_ = redisClient.Close()
		return nil, nil, err
	}
	return cached, func() { _ = redisClient.Close() }, nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	draftStore, err := drafts.NewStore(drafts.StoreConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	api, closeBackend, err := newBackend(ctx, appConfig, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	sessions, err := server.NewSessionManager(server.SessionManagerConfig{
		Backend:     api,
		Drafts:      draftStore,
		SettleDelay: appConfig.SettleDelay,
		ExportScale: appConfig.ExportScale,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer sessions.CloseAll()

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions: sessions,
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
		sessions.CloseAll()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runRender(ctx context.Context, out io.Writer, campaignID campaigns.ID, groupID campaigns.ID) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, logging.FormatConsole)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	api, closeBackend, err := newBackend(ctx, appConfig, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	cache, err := campaigns.NewCache(campaigns.CacheConfig{Backend: api, Logger: logger})
	if err != nil {
		return err
	}
	if err := cache.FetchCampaign(ctx, campaignID, groupID, false); err != nil {
		return err
	}
	if groupID == "" {
		groups := cache.Groups()
		if len(groups) == 0 {
			return fmt.Errorf("campaign %s has no story groups", campaignID)
		}
		groupID = groups[0].ID
	}
	if _, ok := cache.FindGroup(groupID, ""); !ok {
		return fmt.Errorf("story group %s not found", groupID)
	}

	document := canvas.NewDocument(canvas.DocumentConfig{ExportScale: appConfig.ExportScale})
	defer document.Close()
	controller, err := hydration.NewController(hydration.Config{
		Document:    document,
		SettleDelay: appConfig.SettleDelay,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	if !controller.HydrateAllSlides(ctx, cache.GetSlidesForGroup(groupID)) {
		return fmt.Errorf("failed to hydrate story group %s", groupID)
	}

	report := controller.LastReport()
	if !report.Clean() {
		logger.Warn("slides hydrated with defaults",
			zap.Strings("malformed_content", report.MalformedContent),
			zap.Strings("malformed_styling", report.MalformedStyling),
			zap.Strings("malformed_polls", report.MalformedPolls),
			zap.Int("skipped_ctas", len(report.SkippedCTAs)))
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(document.ToJSON())
}
