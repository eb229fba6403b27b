package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/mohammad-safakhou/workmate/config"
	"github.com/mohammad-safakhou/workmate/internal/assistant/telemetry"
)

// ChatProvider is the contract consumed by the classifier, synthesizer and
// adapter tool loops. One call, one completion.
type ChatProvider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt, model string, temperature float64) (string, error)
}

// Embedder turns text into a fixed-length vector. Implementations return a
// zero vector of the configured length on upstream failure instead of an
// error, so callers of the semantic fallback never have to special-case an
// unavailable embedding service.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
	Dimensions() int
}

// OpenAIProvider implements ChatProvider and Embedder against an
// OpenAI-compatible REST API.
type OpenAIProvider struct {
	llmCfg    config.LLMConfig
	embedCfg  config.EmbeddingConfig
	client    *http.Client
	embedHTTP *http.Client
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewOpenAIProvider creates a provider from configuration. tele may be
// nil; token and cost accounting is skipped without it.
func NewOpenAIProvider(llm config.LLMConfig, embed config.EmbeddingConfig, tele *telemetry.Telemetry) *OpenAIProvider {
	return &OpenAIProvider{
		llmCfg:    llm,
		embedCfg:  embed,
		client:    &http.Client{Timeout: llm.Timeout},
		embedHTTP: &http.Client{Timeout: embed.Timeout},
		telemetry: tele,
		logger:    log.New(log.Writer(), "[PROVIDER] ", log.LstdFlags),
	}
}

// modelPricing holds USD prices per million tokens for the models the
// assistant routes to. Unlisted models are tracked token-only.
var modelPricing = map[string]struct{ prompt, completion float64 }{
	"gpt-4o":       {2.50, 10.00},
	"gpt-4o-mini":  {0.15, 0.60},
	"gpt-4.1":      {2.00, 8.00},
	"gpt-4.1-mini": {0.40, 1.60},
}

func completionCost(model string, promptTokens, completionTokens int) float64 {
	p, ok := modelPricing[model]
	if !ok {
		return 0
	}
	return (float64(promptTokens)*p.prompt + float64(completionTokens)*p.completion) / 1e6
}

type chatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatReq struct {
	Model       string    `json:"model"`
	Messages    []chatMsg `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete runs one chat completion with a system and user message.
func (p *OpenAIProvider) Complete(ctx context.Context, systemPrompt, userPrompt, model string, temperature float64) (string, error) {
	apiKey := p.llmCfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return "", fmt.Errorf("chat API key not configured")
	}

	body, err := json.Marshal(chatReq{
		Model: model,
		Messages: []chatMsg{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	baseURL := p.llmCfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	var lastErr error
	tries := p.llmCfg.MaxRetries + 1
	if tries < 1 {
		tries = 1
	}
	for attempt := 0; attempt < tries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(300 * time.Millisecond * time.Duration(1<<(attempt-1))):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/chat/completions", bytes.NewBuffer(body))
		if err != nil {
			return "", fmt.Errorf("request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+apiKey)

		resp, err := p.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("do: %w", err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			resp.Body.Close()
			lastErr = fmt.Errorf("chat completion status %d: %s", resp.StatusCode, string(b))
			continue
		}

		var out chatResp
		err = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("decode: %w", err)
			continue
		}
		if len(out.Choices) == 0 {
			lastErr = fmt.Errorf("no choices in completion response")
			continue
		}
		if p.telemetry != nil {
			p.telemetry.RecordLLMEvent(ctx, telemetry.LLMEvent{
				Model:     model,
				Operation: "chat_completion",
				Tokens:    int64(out.Usage.PromptTokens + out.Usage.CompletionTokens),
				Cost:      completionCost(model, out.Usage.PromptTokens, out.Usage.CompletionTokens),
			})
		}
		return out.Choices[0].Message.Content, nil
	}
	return "", lastErr
}

// Embed generates an embedding for the given text. Failures are logged and a
// zero vector of the configured dimensionality is returned.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) []float32 {
	vec, err := p.embed(ctx, text)
	if err != nil {
		p.logger.Printf("embedding generation failed: %v", err)
		return make([]float32, p.Dimensions())
	}
	return vec
}

// Dimensions returns the configured embedding vector length.
func (p *OpenAIProvider) Dimensions() int {
	if p.embedCfg.Dimensions > 0 {
		return p.embedCfg.Dimensions
	}
	return 1536
}

func (p *OpenAIProvider) embed(ctx context.Context, text string) ([]float32, error) {
	apiKey := p.embedCfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("embedding API key not configured")
	}

	model := p.embedCfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	body, err := json.Marshal(map[string]interface{}{
		"model": model,
		"input": []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	baseURL := p.embedCfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	req, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/embeddings", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.embedHTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("embeddings status %d: %s", resp.StatusCode, string(b))
	}

	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("no embedding data in response")
	}
	vec := out.Data[0].Embedding
	if len(vec) != p.Dimensions() {
		return nil, fmt.Errorf("unexpected embedding length %d, want %d", len(vec), p.Dimensions())
	}
	return vec, nil
}
