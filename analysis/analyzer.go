// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

// Package analysis turns a consultation transcript into the nine-section
// report using a chat-completion model in JSON mode.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/VA7DBI/scribeAPI/config"
	"github.com/VA7DBI/scribeAPI/consultation"
	"github.com/VA7DBI/scribeAPI/logging"
	"github.com/VA7DBI/scribeAPI/metrics"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

var (
	ErrEmptyTranscript = errors.New("transcript is empty")
	ErrNoChoices       = errors.New("analysis model returned no choices")
	ErrNotConfigured   = errors.New("analysis API key is not configured")
)

type Analyzer struct {
	client      *openai.Client
	model       string
	temperature float32
}

func New(cfg *config.Config) *Analyzer {
	a := &Analyzer{model: cfg.Analysis.Model, temperature: cfg.Analysis.Temperature}
	if key := cfg.AnalysisAPIKey(); key != "" {
		oc := openai.DefaultConfig(key)
		oc.BaseURL = strings.TrimRight(cfg.Analysis.BaseURL, "/")
		a.client = openai.NewClientWithConfig(oc)
	}
	return a
}

func systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are a clinical nutrition assistant. Summarize the consultation transcript ")
	b.WriteString("into a JSON object with exactly these string keys. Write in the language of the ")
	b.WriteString("transcript, use an empty string when the transcript says nothing about a section, ")
	b.WriteString("and never invent measurements.\n")
	for _, f := range consultation.Fields {
		fmt.Fprintf(&b, "- %s: %s\n", f.ID, f.Label)
	}
	return b.String()
}

// Analyze asks the model for a report. visitType only steers the prompt.
func (a *Analyzer) Analyze(ctx context.Context, transcript, visitType string) (*consultation.Report, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, ErrEmptyTranscript
	}
	if a.client == nil {
		return nil, ErrNotConfigured
	}
	logger := logging.Component(*zerolog.Ctx(ctx), "analysis")
	start := time.Now()

	user := "Visit type: " + visitType + "\n\nTranscript:\n" + transcript
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: a.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("analysis request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}

	logger.Debug().
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Dur("elapsed", time.Since(start)).
		Msg("Analysis completed")

	return ParseReport(resp.Choices[0].Message.Content)
}

// ParseReport decodes a model reply, unwrapping a fenced block if present.
func ParseReport(content string) (*consultation.Report, error) {
	var report consultation.Report
	if err := json.Unmarshal([]byte(content), &report); err == nil {
		return &report, nil
	}
	if err := json.Unmarshal([]byte(unfence(content)), &report); err != nil {
		return nil, fmt.Errorf("failed to parse analysis JSON: %w", err)
	}
	return &report, nil
}

func unfence(content string) string {
	s := strings.TrimSpace(content)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.LastIndex(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	return strings.TrimSpace(s)
}
