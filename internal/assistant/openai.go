package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	jsonrepair "github.com/kaptinlin/jsonrepair"
	"github.com/sashabaranov/go-openai"
)

const systemPrompt = `You judge whether knowledge graph entities help answer a user's information need.
For every candidate return {"id", "useful", "score", "reason"} where score is a number between 0 and 1.
Answer with a JSON object of the form {"results": [...]} and nothing else.`

// Config configures the OpenAI-compatible scorer.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAI scores candidates with a chat completion model.
type OpenAI struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

var _ Scorer = (*OpenAI)(nil)

// NewOpenAI creates a scorer. A BaseURL selects an OpenAI-compatible service.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	apiKey := cfg.APIKey
	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		if apiKey == "" {
			clientConfig = openai.DefaultConfig("dummy-key")
		}
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	} else if apiKey == "" {
		return nil, errors.New("assistant api key is required")
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   model,
		timeout: timeout,
	}, nil
}

// Score implements Scorer.
func (o *OpenAI) Score(ctx context.Context, req Request) ([]Verdict, error) {
	if len(req.Candidates) == 0 {
		return nil, nil
	}
	prompt, err := userPrompt(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices returned from assistant")
	}
	return parseVerdicts(resp.Choices[0].Message.Content)
}

func userPrompt(req Request) (string, error) {
	candidates, err := json.Marshal(req.Candidates)
	if err != nil {
		return "", fmt.Errorf("marshal candidates: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Search query: %s\n", req.Query)
	fmt.Fprintf(&b, "Information needed: %s\n", req.InformationNeeded)
	if req.Reason != "" {
		fmt.Fprintf(&b, "Reason for the search: %s\n", req.Reason)
	}
	fmt.Fprintf(&b, "Candidates:\n%s\n", candidates)
	return b.String(), nil
}

// parseVerdicts decodes the model's answer, repairing malformed JSON first.
// A bare array is accepted as well as the {"results": [...]} envelope.
func parseVerdicts(content string) ([]Verdict, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	repaired, err := jsonrepair.JSONRepair(content)
	if err != nil {
		return nil, fmt.Errorf("repair assistant response: %w", err)
	}
	var envelope struct {
		Results []Verdict `json:"results"`
	}
	if err := json.Unmarshal([]byte(repaired), &envelope); err == nil && envelope.Results != nil {
		return clampScores(envelope.Results), nil
	}
	var list []Verdict
	if err := json.Unmarshal([]byte(repaired), &list); err != nil {
		return nil, fmt.Errorf("decode assistant response: %w", err)
	}
	return clampScores(list), nil
}

func clampScores(vs []Verdict) []Verdict {
	for i := range vs {
		vs[i].Score = min(max(vs[i].Score, 0), 1)
	}
	return vs
}
