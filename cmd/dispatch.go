package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/talentroute/assessd/internal/attempt"
	"github.com/talentroute/assessd/internal/logger"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PromptDefaultProvider = "Use the configured default provider"
	PromptRefresh         = "Refresh the pending list"
	PromptExit            = "Exit"
)

var errExit = errors.New("exit requested")

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Inspect pending attempts on a running assessd instance and re-request interpretations",
	Run: func(cmd *cobra.Command, _ []string) {
		dispatch(cmd)
	},
}

func init() {
	rootCmd.AddCommand(dispatchCmd)

	dispatchCmd.Flags().StringP("server", "s", "http://localhost:8080", "base URL of the running assessd instance")

	viper.BindPFlag("server", dispatchCmd.Flags().Lookup("server"))
}

func dispatch(_ *cobra.Command) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	client := &operatorClient{
		base:   strings.TrimRight(viper.GetString("server"), "/"),
		client: &http.Client{Timeout: 30 * time.Second},
	}

	for {
		if err := dispatchOnce(client, config, logger); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("dispatching", zap.Error(err))
		}
	}
}

func dispatchOnce(client *operatorClient, config *Config, logger *zap.Logger) error {
	pending, err := client.pending()
	if err != nil {
		return err
	}

	if len(pending) == 0 {
		logger.Info("no attempts are waiting for a recommendation")
	}

	items := make([]string, 0, len(pending)+2)
	for _, summary := range pending {
		items = append(items, fmt.Sprintf("%s %s / %s / answered %d of %d",
			summary.ID, summary.InstrumentID, summary.Status, summary.Answered, summary.Required,
		))
	}

	attemptPrompt := promptui.Select{
		Label: "Choose an attempt and press ENTER",
		Items: append(items, PromptRefresh, PromptExit),
	}

	_, selected, err := attemptPrompt.Run()
	if err != nil {
		return err
	}

	switch selected {
	case PromptExit:
		return errExit
	case PromptRefresh:
		return nil
	}

	attemptID := strings.Split(selected, " ")[0]

	provider, err := chooseProvider(config)
	if err != nil {
		return err
	}

	if err := client.redispatch(attemptID, provider); err != nil {
		return err
	}

	logger.Info("dispatched",
		zap.String("attempt_id", attemptID),
		zap.String("provider", provider),
	)
	return nil
}

func chooseProvider(config *Config) (string, error) {
	items := []string{PromptDefaultProvider}
	if config != nil && config.AI != nil {
		if config.AI.Gemini != nil {
			items = append(items, providerKey("gemini", config.AI.Gemini.Model))
		}
		if config.AI.OpenAI != nil {
			items = append(items, providerKey("openai", config.AI.OpenAI.Model))
		}
	}

	providerPrompt := promptui.Select{
		Label: "Choose a provider and press ENTER",
		Items: items,
	}

	_, selected, err := providerPrompt.Run()
	if err != nil {
		return "", err
	}
	if selected == PromptDefaultProvider {
		return "", nil
	}
	return selected, nil
}

func providerKey(provider, model string) string {
	if model = strings.TrimSpace(model); model == "" {
		return provider
	}
	return provider + "/" + model
}

type operatorClient struct {
	base   string
	client *http.Client
}

func (c *operatorClient) pending() ([]attempt.Summary, error) {
	resp, err := c.client.Get(c.base + "/operator/attempts/pending")
	if err != nil {
		return nil, fmt.Errorf("listing pending attempts: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing pending attempts: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var summaries []attempt.Summary
	if err := json.Unmarshal(body, &summaries); err != nil {
		return nil, fmt.Errorf("decoding pending attempts: %w", err)
	}
	return summaries, nil
}

func (c *operatorClient) redispatch(attemptID, provider string) error {
	payload, err := json.Marshal(map[string]string{"provider": provider})
	if err != nil {
		return err
	}

	resp, err := c.client.Post(
		c.base+"/operator/attempts/"+attemptID+"/dispatch",
		"application/json",
		bytes.NewReader(payload),
	)
	if err != nil {
		return fmt.Errorf("dispatching attempt %s: %w", attemptID, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("dispatching attempt %s: %s: %s", attemptID, resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}
