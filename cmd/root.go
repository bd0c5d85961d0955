package cmd

import (
	"log"

	"github.com/talentroute/assessd/internal/entitlement"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "assessd"
)

type Config struct {
	Listen      string             `mapstructure:"listen"`
	DataDir     string             `mapstructure:"data-dir"`
	Attempts    *AttemptsConfig    `mapstructure:"attempts"`
	Entitlement *EntitlementConfig `mapstructure:"entitlement"`
	Queue       *QueueConfig       `mapstructure:"queue"`
	Worker      *WorkerConfig      `mapstructure:"worker"`
	AI          *AIConfig          `mapstructure:"ai"`
}

type AttemptsConfig struct {
	// AllowConcurrent lets a subject keep several unfinished attempts of
	// the same instrument.
	AllowConcurrent bool `mapstructure:"allow-concurrent"`
}

type EntitlementConfig struct {
	// Mode is "open" (every subject may take every instrument) or
	// "packages" (access granted through the configured package list).
	Mode     string                `mapstructure:"mode"`
	Packages []entitlement.Package `mapstructure:"packages"`
}

type QueueConfig struct {
	// Driver is "memory" or "nats".
	Driver string      `mapstructure:"driver"`
	NATS   *NATSConfig `mapstructure:"nats"`
	// MaxDeliveries bounds memory-queue redelivery after handler errors.
	MaxDeliveries int `mapstructure:"max-deliveries"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
	Group   string `mapstructure:"group"`
}

type WorkerConfig struct {
	Concurrency    int `mapstructure:"concurrency"`
	MaxRetries     int `mapstructure:"max-retries"`
	BackoffSeconds int `mapstructure:"backoff-seconds"`
}

type AIConfig struct {
	// Default is the provider/model key used for automatic dispatch,
	// for example "gemini/gemini-2.5-flash".
	Default string        `mapstructure:"default"`
	Gemini  *GeminiConfig `mapstructure:"gemini"`
	OpenAI  *OpenAIConfig `mapstructure:"openai"`
}

type GeminiConfig struct {
	// APIKeyFile wins over the inline APIKey when both are set.
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type OpenAIConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	// BaseURL points to any OpenAI-compatible endpoint.
	BaseURL string `mapstructure:"base-url"`
	Model   string `mapstructure:"model"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "assessd runs psychometric assessment attempts, scores them and requests AI interpretations",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	envBindings := map[string]string{
		"ai.gemini.api-key":      "GEMINI_API_KEY",
		"ai.gemini.api-key-file": "GEMINI_API_KEY_FILE",
		"ai.openai.api-key":      "OPENAI_API_KEY",
		"ai.openai.api-key-file": "OPENAI_API_KEY_FILE",
	}
	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is assessd.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	// We can't proceed if the config file parsed with error.
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}

// listen returns the configured bind address with a sane default.
func (c *Config) listen() string {
	if c == nil || c.Listen == "" {
		return ":8080"
	}
	return c.Listen
}
