package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DistractorGenerator produces plausible-but-wrong answers to mix in
// with a player's true answer. A failure here fails the whole answer
// submission; nothing is persisted.
type DistractorGenerator interface {
	Distractors(ctx context.Context, question, correctAnswer string, count int) ([]string, error)
}

// openAIGenerator calls an OpenAI-compatible chat completions endpoint
// and splits the reply into one fake answer per line.
type openAIGenerator struct {
	url    string
	key    string
	model  string
	client *http.Client
}

func newOpenAIGenerator(cfg *Config) *openAIGenerator {
	return &openAIGenerator{
		url:   cfg.distractorURL,
		key:   cfg.distractorKey,
		model: cfg.distractorModel,
		client: &http.Client{
			Timeout: cfg.distractorTimeout,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (g *openAIGenerator) Distractors(ctx context.Context, question, correctAnswer string, count int) ([]string, error) {
	payload := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{
				Role:    "system",
				Content: "You are a helpful assistant that generates plausible but false answers for a game.",
			},
			{
				Role: "user",
				Content: fmt.Sprintf(
					"The question is %q. Given the correct answer %q, generate %d plausible but false answers that are different from each other and the correct answer. Provide only the %d false answers, separated by newlines.",
					question, correctAnswer, count, count),
			},
		},
		Temperature: 0.7,
		MaxTokens:   100,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.key != "" {
		req.Header.Set("Authorization", "Bearer "+g.key)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("distractor endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("distractor endpoint returned no choices")
	}

	lines := strings.Split(parsed.Choices[0].Message.Content, "\n")
	fakes := make([]string, 0, count)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			fakes = append(fakes, line)
		}
	}

	return fakes, nil
}
