package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/metalagman/arcft/internal/prompt"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

const (
	defaultOpenAIBaseURL   = "https://api.openai.com/v1"
	defaultOpenAIAPIKeyEnv = "OPENAI_API_KEY"
	defaultTimeout         = 2 * time.Minute
)

// OpenAIConfig configures the Responses API client.
type OpenAIConfig struct {
	Model     string
	BaseURL   string
	APIKey    string
	APIKeyEnv string
	Timeout   time.Duration
}

// OpenAI calls the OpenAI Responses API, one request per sample.
type OpenAI struct {
	cfg    OpenAIConfig
	client openai.Client
}

// NewOpenAI constructs an OpenAI backend. SDK retries are disabled; wrap the
// backend with Retrying to retry.
func NewOpenAI(cfg OpenAIConfig, httpClient *http.Client) (*OpenAI, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("openai model is required")
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		envKey := strings.TrimSpace(cfg.APIKeyEnv)
		if envKey == "" {
			envKey = defaultOpenAIAPIKeyEnv
		}
		apiKey = strings.TrimSpace(os.Getenv(envKey))
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required (set api_key or api_key_env)")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(0),
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	return &OpenAI{
		cfg:    OpenAIConfig{Model: model, BaseURL: baseURL, Timeout: timeout},
		client: openai.NewClient(opts...),
	}, nil
}

// Invoke sends req once per requested sample and returns the output texts of
// the samples that succeeded. It fails only when every sample fails, with the
// error of the last one.
func (c *OpenAI) Invoke(ctx context.Context, req prompt.Request, opts Options) ([]string, error) {
	model := c.cfg.Model
	if opts.Model != "" {
		model = opts.Model
	}
	params := responses.ResponseNewParams{
		Model:        model,
		Instructions: openai.String(req.System),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String(req.User),
		},
	}
	if opts.Temperature != nil {
		params.Temperature = openai.Float(*opts.Temperature)
	}

	var lastErr error
	texts := make([]string, 0, opts.samples())
	for range opts.samples() {
		output, err := c.sample(ctx, params)
		if err != nil {
			lastErr = err
			continue
		}
		texts = append(texts, output)
	}
	if len(texts) == 0 {
		return nil, lastErr
	}
	return texts, nil
}

func (c *OpenAI) sample(ctx context.Context, params responses.ResponseNewParams) (string, error) {
	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return "", classify("openai responses.create", err, openAIStatus(err))
	}
	if msg := strings.TrimSpace(resp.Error.Message); msg != "" {
		return "", classify("openai response", errors.New(msg), 0)
	}
	output := strings.TrimSpace(resp.OutputText())
	if output == "" {
		return "", classify("openai response", errors.New("response did not contain output text"), 0)
	}
	return output, nil
}

func openAIStatus(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
