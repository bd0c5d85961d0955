package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/talentroute/assessd/internal/ai"
	"github.com/talentroute/assessd/internal/ai/gemini"
	"github.com/talentroute/assessd/internal/ai/openai"
	"github.com/talentroute/assessd/internal/attempt"
	"github.com/talentroute/assessd/internal/entitlement"
	"github.com/talentroute/assessd/internal/httpapi"
	"github.com/talentroute/assessd/internal/instrument"
	"github.com/talentroute/assessd/internal/logger"
	"github.com/talentroute/assessd/internal/queue"
	"github.com/talentroute/assessd/internal/recommend"
	"github.com/talentroute/assessd/internal/scoring"
	"github.com/talentroute/assessd/internal/secrets"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assessd service",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the assessd service", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	if config == nil {
		logger.Fatal("config is required")
	}

	store, err := attempt.OpenBadger(dataDir(config))
	if err != nil {
		logger.Fatal("opening the attempt store", zap.Error(err))
	}
	defer store.Close()

	taskQueue, err := buildQueue(config, logger)
	if err != nil {
		logger.Fatal("building the task queue", zap.Error(err))
	}
	defer taskQueue.Close()

	providers, err := buildProviders(ctx, config.AI, logger)
	if err != nil {
		logger.Fatal("building ai providers",
			zap.Error(err),
			zap.String("hint", "set ai.gemini.api-key-file or ai.openai.api-key-file"),
		)
	}

	dispatcher := recommend.NewDispatcher(store, taskQueue, providers.DefaultKey(), logger)

	registry := instrument.NewRegistry()
	service := attempt.NewService(
		store,
		registry,
		scoring.NewEngine(),
		buildEntitlements(config.Entitlement),
		dispatcher,
		attempt.Config{AllowConcurrent: allowConcurrent(config)},
		logger,
	)

	workers := workerCount(config)
	for i := 0; i < workers; i++ {
		worker := recommend.NewWorker(
			store,
			taskQueue,
			providers,
			service,
			workerRetries(config),
			workerBackoff(config),
			logger.With(zap.Int("worker", i)),
		)
		if err := worker.Start(ctx); err != nil {
			logger.Fatal("starting a recommendation worker", zap.Error(err))
		}
	}

	logger.Info("recommendation workers running",
		zap.Int("count", workers),
		zap.Strings("providers", providers.Keys()),
	)

	server := httpapi.New(service, dispatcher, logger)
	go func() {
		if err := server.Start(config.listen()); err != nil {
			logger.Fatal("http server stopped", zap.Error(err))
		}
	}()

	logger.Info("serving",
		zap.String("listen", config.listen()),
		zap.Strings("instruments", registry.IDs()),
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", zap.Error(err))
	}
}

func dataDir(config *Config) string {
	if config.DataDir == "" {
		return "data"
	}
	return config.DataDir
}

func allowConcurrent(config *Config) bool {
	// retakes default to allowed, matching the platform's attempt policy
	if config.Attempts == nil {
		return true
	}
	return config.Attempts.AllowConcurrent
}

func workerCount(config *Config) int {
	if config.Worker == nil || config.Worker.Concurrency < 1 {
		return 2
	}
	return config.Worker.Concurrency
}

func workerRetries(config *Config) int {
	if config.Worker == nil {
		return 0
	}
	return config.Worker.MaxRetries
}

func workerBackoff(config *Config) time.Duration {
	if config.Worker == nil {
		return 0
	}
	return time.Duration(config.Worker.BackoffSeconds) * time.Second
}

func buildEntitlements(config *EntitlementConfig) entitlement.Checker {
	if config == nil || strings.EqualFold(config.Mode, "open") || len(config.Packages) == 0 {
		return entitlement.AllowAll{}
	}
	return entitlement.NewStatic(config.Packages)
}

func buildQueue(config *Config, log *zap.Logger) (queue.Queue, error) {
	qc := config.Queue
	if qc == nil || strings.EqualFold(qc.Driver, "memory") || qc.Driver == "" {
		return queue.NewMemory(maxDeliveries(qc), log), nil
	}
	if !strings.EqualFold(qc.Driver, "nats") {
		return nil, fmt.Errorf("unsupported queue driver: %s", qc.Driver)
	}

	nc := qc.NATS
	if nc == nil {
		return nil, fmt.Errorf("nats configuration is required for the nats queue driver")
	}
	url := nc.URL
	if url == "" {
		url = "nats://localhost:4222"
	}
	subject := nc.Subject
	if subject == "" {
		subject = "assessd.recommend.tasks"
	}
	group := nc.Group
	if group == "" {
		group = "assessd-workers"
	}
	return queue.NewNATS(url, subject, group, log)
}

func maxDeliveries(qc *QueueConfig) int {
	if qc == nil || qc.MaxDeliveries < 1 {
		return 5
	}
	return qc.MaxDeliveries
}

// buildProviders registers every configured AI provider. At least one is
// required; the default key falls back to the first configured provider.
func buildProviders(ctx context.Context, config *AIConfig, log *zap.Logger) (*ai.Providers, error) {
	if config == nil {
		return nil, fmt.Errorf("ai configuration is required")
	}

	providers := ai.NewProviders(strings.TrimSpace(config.Default))
	registered := 0

	if config.Gemini != nil {
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			Value: config.Gemini.APIKey,
			File:  config.Gemini.APIKeyFile,
		})
		if err != nil {
			return nil, err
		}

		genLogger := logger.WithCommonFields(log, "gemini", config.Gemini.Model)
		generator, err := gemini.NewGenerator(ctx, apiKey, config.Gemini.Model, config.Gemini.MaxRetries, genLogger)
		if err != nil {
			return nil, err
		}

		providers.Register("gemini", generator.Model(), gemini.NewInterpreter(generator, config.Gemini.MaxLogLength, genLogger))
		registered++
	}

	if config.OpenAI != nil {
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "openai api key",
			Value: config.OpenAI.APIKey,
			File:  config.OpenAI.APIKeyFile,
		})
		if err != nil {
			return nil, err
		}

		interpreter, err := openai.New(apiKey, config.OpenAI.BaseURL, config.OpenAI.Model, logger.WithCommonFields(log, "openai", config.OpenAI.Model))
		if err != nil {
			return nil, err
		}

		providers.Register("openai", interpreter.Model(), interpreter)
		registered++
	}

	if registered == 0 {
		return nil, fmt.Errorf("at least one ai provider must be configured")
	}
	return providers, nil
}
