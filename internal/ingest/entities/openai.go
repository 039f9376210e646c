package entities

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	circuitBreakerThreshold = 5
	circuitBreakerTimeout   = 1 * time.Minute

	extractionPrompt = `Extract structured labels from this news headline. Return a JSON object with:
- entities (array of strings): lowercase named entities (people, organizations, places, programs)
- policy_domains (array of strings): applicable policy areas from: healthcare, energy, education, finance, technology, defense, immigration, environment, trade, agriculture
- geographies (array of strings): lowercase country/region codes mentioned or implied
- is_event_phrase (boolean): true when the headline describes a concrete happening (an announcement, vote, decision, launch), false when it is a bare topic or listicle

Headline: %s`
)

// OpenAIProvider extracts labels with a chat completion. It carries its
// own rate limiter and a circuit breaker so a degraded API degrades us to
// the heuristic instead of stalling ingestion.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	logger      zerolog.Logger
	rateLimiter *rate.Limiter

	// Circuit breaker state
	consecutiveFailures int
	circuitOpenUntil    time.Time
	mu                  sync.Mutex
}

// NewOpenAIProvider creates a provider. rps bounds request rate; burst 5.
func NewOpenAIProvider(apiKey, model string, rps float64, logger zerolog.Logger) *OpenAIProvider {
	if model == "" {
		model = openai.GPT4oMini
	}

	return &OpenAIProvider{
		client:      openai.NewClient(apiKey),
		model:       model,
		logger:      logger,
		rateLimiter: rate.NewLimiter(rate.Limit(rps), 5),
	}
}

type extractionPayload struct {
	Entities      []string `json:"entities"`
	PolicyDomains []string `json:"policy_domains"`
	Geographies   []string `json:"geographies"`
	IsEventPhrase bool     `json:"is_event_phrase"`
}

func (p *OpenAIProvider) Extract(ctx context.Context, title string) (Extraction, error) {
	if err := p.checkCircuit(); err != nil {
		return Extraction{}, err
	}

	if err := p.rateLimiter.Wait(ctx); err != nil {
		return Extraction{}, fmt.Errorf("rate limiter error: %w", err)
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(extractionPrompt, title),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		p.recordFailure()

		return Extraction{}, fmt.Errorf("extraction chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		p.recordFailure()

		return Extraction{}, fmt.Errorf("extraction chat completion: empty response")
	}

	var payload extractionPayload
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &payload); err != nil {
		p.recordFailure()

		return Extraction{}, fmt.Errorf("decode extraction response: %w", err)
	}

	p.recordSuccess()

	return Extraction{
		Entities:      payload.Entities,
		PolicyDomains: payload.PolicyDomains,
		Geographies:   payload.Geographies,
		IsEventPhrase: payload.IsEventPhrase,
	}, nil
}

func (p *OpenAIProvider) checkCircuit() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if time.Now().Before(p.circuitOpenUntil) {
		return fmt.Errorf("circuit breaker is open until %v", p.circuitOpenUntil)
	}

	return nil
}

func (p *OpenAIProvider) recordSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.consecutiveFailures = 0
}

func (p *OpenAIProvider) recordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.consecutiveFailures++
	if p.consecutiveFailures >= circuitBreakerThreshold {
		p.circuitOpenUntil = time.Now().Add(circuitBreakerTimeout)
		p.logger.Warn().
			Int("consecutive_failures", p.consecutiveFailures).
			Time("open_until", p.circuitOpenUntil).
			Msg("extraction circuit breaker opened")
	}
}
