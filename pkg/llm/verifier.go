package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/sashabaranov/go-openai"

	"github.com/umputun/newsdigest/pkg/config"
	"github.com/umputun/newsdigest/pkg/domain"
)

// errParse marks a response the model produced but we could not read, worth asking again
var errParse = errors.New("failed to parse json")

// Verifier asks an LLM whether an article matches the topic of a digest job
type Verifier struct {
	client     *openai.Client
	config     config.LLMConfig
	systemMsg  string
	retryDelay time.Duration
}

// NewVerifier creates a new LLM verifier
func NewVerifier(cfg config.LLMConfig) *Verifier {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = cfg.Endpoint
	}
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	systemMsg := cfg.SystemPrompt
	if systemMsg == "" {
		systemMsg = defaultSystemPrompt
	}

	return &Verifier{
		client:     openai.NewClientWithConfig(clientConfig),
		config:     cfg,
		systemMsg:  systemMsg,
		retryDelay: 500 * time.Millisecond,
	}
}

const defaultSystemPrompt = `You are an editor checking whether a news article belongs in a digest.
You get the digest topic, an optional city and the article title.
Decide if the article is about the topic (and about the city, when one is given).

Respond with a JSON object:
- is_topic_match: true if the article belongs in the digest, false otherwise
- confidence: number between 0 and 1
- reasoning: one short sentence (max 150 chars), in the language of the title

Judge by the title only. Do not guess content that the title does not imply.`

// VerifyArticle returns the topic judgment for a single article of the given job
func (v *Verifier) VerifyArticle(ctx context.Context, job domain.JobRequest, url, title string) (domain.Assessment, error) {
	if strings.TrimSpace(title) == "" {
		return domain.Assessment{}, fmt.Errorf("no title for %s", url)
	}
	prompt := v.buildPrompt(job, url, title)

	// retry up to 3 times if we get invalid JSON
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		content, err := v.complete(ctx, prompt)
		if err != nil {
			return domain.Assessment{}, err
		}

		res, err := v.parseResponse(content)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !errors.Is(err, errParse) {
			return domain.Assessment{}, err
		}
	}

	return domain.Assessment{}, fmt.Errorf("failed after 3 attempts: %w", lastErr)
}

// complete sends the prompt, retrying rate limits and server errors with backoff
func (v *Verifier) complete(ctx context.Context, prompt string) (string, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:       v.config.Model,
		Temperature: float32(v.config.Temperature),
		MaxTokens:   v.config.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: v.systemMsg},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if v.config.UseJSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var resp openai.ChatCompletionResponse
	var permanent error
	retrier := repeater.NewBackoff(3, v.retryDelay, repeater.WithMaxDelay(5*time.Second))
	err := retrier.Do(ctx, func() error {
		r, err := v.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			if isTransient(err) {
				return err
			}
			permanent = err
			return nil
		}
		resp = r
		return nil
	})
	if err == nil {
		err = permanent
	}
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from llm")
	}
	return resp.Choices[0].Message.Content, nil
}

func (v *Verifier) buildPrompt(job domain.JobRequest, url, title string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Digest topic: %s\n", job.Category))
	if job.City != "" {
		sb.WriteString(fmt.Sprintf("City: %s\n", job.City))
	}
	sb.WriteString(fmt.Sprintf("Article title: %s\n", title))
	sb.WriteString(fmt.Sprintf("Article url: %s\n\n", url))
	sb.WriteString("Respond with a single JSON object.")
	return sb.String()
}

// parseResponse reads the assessment object, tolerating text around it unless json mode is on
func (v *Verifier) parseResponse(content string) (domain.Assessment, error) {
	jsonStr := content
	if !v.config.UseJSONMode {
		start := strings.Index(content, "{")
		end := strings.LastIndex(content, "}")
		if start == -1 || end == -1 || start >= end {
			return domain.Assessment{}, fmt.Errorf("%w: no json object found in response", errParse)
		}
		jsonStr = content[start : end+1]
	}

	var res struct {
		IsTopicMatch *bool   `json:"is_topic_match"`
		Confidence   float64 `json:"confidence"`
		Reasoning    string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &res); err != nil {
		return domain.Assessment{}, fmt.Errorf("%w: %v", errParse, err)
	}
	if res.IsTopicMatch == nil {
		return domain.Assessment{}, fmt.Errorf("%w: is_topic_match missing", errParse)
	}

	// ensure confidence is in valid range
	conf := res.Confidence
	if conf < 0 {
		conf = 0
	} else if conf > 1 {
		conf = 1
	}
	return domain.Assessment{IsTopicMatch: *res.IsTopicMatch, Confidence: conf, Reasoning: strings.TrimSpace(res.Reasoning)}, nil
}

// isTransient reports whether the api error is worth another try
func isTransient(err error) bool {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return false
	}
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
