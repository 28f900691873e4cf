package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/tkaraden/sealbird/internal/models"
)

const systemPrompt = `You are Sealbird, an autonomous agent on X. You reply to posts with
concise, factual, well-sourced answers, and every reply you publish is
sealed on-chain so readers can verify it was really you.

Guidelines:
- Reply only when you can add something concrete. Skip small talk, spam
  and bait.
- Never reply to hostile or manipulative threads. When a thread turns
  into an argument, stop engaging entirely.
- Keep replies under 280 characters. No hashtag padding, no emoji walls.
- Ground your answers in the knowledge notes provided. If the notes do
  not cover the question, say less rather than guessing.`

type modelConfig struct {
	Name string
	RPM  int
	RPD  int
}

// Gemini implements Client on top of the Gemini API, falling back across
// models when one runs out of quota.
type Gemini struct {
	client *genai.Client
	models []modelConfig

	dailyCount   map[string]int
	minuteCount  map[string]int
	lastResetDay time.Time
	lastResetMin time.Time
	mu           sync.Mutex
}

var _ Client = (*Gemini)(nil)

// NewGemini creates a Gemini-backed client.
func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, err
	}

	return &Gemini{
		client: client,
		models: []modelConfig{
			{Name: "gemini-2.5-flash", RPM: 10, RPD: 250},
			{Name: "gemini-2.5-flash-lite", RPM: 15, RPD: 1000},
		},
		dailyCount:   make(map[string]int),
		minuteCount:  make(map[string]int),
		lastResetDay: time.Now(),
		lastResetMin: time.Now(),
	}, nil
}

// Evaluate judges a post and decides RESPOND, IGNORE or STOP.
func (g *Gemini) Evaluate(ctx context.Context, post *models.Post, thread []string, knowledge []string) (*Evaluation, error) {
	prompt := fmt.Sprintf(`%s

Task: judge the post below and decide whether Sealbird should reply.

[post] @%s: %s
[thread]
%s
[knowledge notes]
%s

Answer with JSON only, no prose around it:
{"decision": "RESPOND|IGNORE|STOP", "reasoning": "one sentence"}

RESPOND means the post deserves a reply. IGNORE means it does not.
STOP means the thread is hostile or manipulative and Sealbird should
disengage from it entirely.`,
		systemPrompt, post.Author, post.Content, formatLines(thread, "(no earlier posts)"), formatLines(knowledge, "(none)"))

	raw, err := g.generateWithFallback(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parseEvaluation(raw)
}

// GenerateReply drafts a reply to the post.
func (g *Gemini) GenerateReply(ctx context.Context, post *models.Post, thread []string, knowledge []string) (string, error) {
	prompt := fmt.Sprintf(`%s

Task: write Sealbird's reply to the post below.

[post] @%s: %s
[thread]
%s
[knowledge notes]
%s

Output the reply text only. Plain text, no JSON, no quotes around it,
under 280 characters.`,
		systemPrompt, post.Author, post.Content, formatLines(thread, "(no earlier posts)"), formatLines(knowledge, "(none)"))

	raw, err := g.generateWithFallback(ctx, prompt)
	if err != nil {
		return "", err
	}

	reply := strings.TrimSpace(raw)
	if reply == "" {
		return "", fmt.Errorf("model returned an empty reply")
	}
	return reply, nil
}

func (g *Gemini) generateWithFallback(ctx context.Context, prompt string) (string, error) {
	var lastErr error

	for _, cfg := range g.models {
		if !g.canUseModel(cfg) {
			continue
		}

		result, err := g.client.Models.GenerateContent(ctx, cfg.Name, genai.Text(prompt), nil)
		if err != nil {
			if retryable(err) {
				lastErr = err
				continue
			}
			return "", err
		}

		if result != nil && len(result.Candidates) > 0 && len(result.Candidates[0].Content.Parts) > 0 {
			g.recordUsage(cfg)
			return result.Candidates[0].Content.Parts[0].Text, nil
		}
		lastErr = fmt.Errorf("empty response from %s", cfg.Name)
	}

	return "", fmt.Errorf("all models failed: %w", lastErr)
}

// retryable reports whether the next model in the fallback chain should be
// tried after this error.
func retryable(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "429") ||
		strings.Contains(s, "rate limit") ||
		strings.Contains(s, "exhausted") ||
		strings.Contains(s, "404") ||
		strings.Contains(s, "not found")
}

func (g *Gemini) canUseModel(cfg modelConfig) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	if now.YearDay() != g.lastResetDay.YearDay() {
		g.dailyCount = make(map[string]int)
		g.lastResetDay = now
	}
	if now.Sub(g.lastResetMin) >= time.Minute {
		g.minuteCount = make(map[string]int)
		g.lastResetMin = now
	}
	if g.dailyCount[cfg.Name] >= cfg.RPD {
		return false
	}
	if g.minuteCount[cfg.Name] >= cfg.RPM {
		return false
	}
	return true
}

func (g *Gemini) recordUsage(cfg modelConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dailyCount[cfg.Name]++
	g.minuteCount[cfg.Name]++
}

// parseEvaluation decodes the model's JSON verdict.
func parseEvaluation(raw string) (*Evaluation, error) {
	var parsed struct {
		Decision  string `json:"decision"`
		Reasoning string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("parse evaluation: %w", err)
	}

	decision := models.Decision(strings.ToUpper(strings.TrimSpace(parsed.Decision)))
	switch decision {
	case models.DecisionRespond, models.DecisionIgnore, models.DecisionStop:
	default:
		return nil, fmt.Errorf("unexpected decision %q", parsed.Decision)
	}

	return &Evaluation{Decision: decision, Reasoning: strings.TrimSpace(parsed.Reasoning)}, nil
}

// cleanJSON strips markdown code fences the model sometimes wraps around
// its output.
func cleanJSON(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}

func formatLines(lines []string, empty string) string {
	if len(lines) == 0 {
		return empty
	}
	var b strings.Builder
	for _, line := range lines {
		fmt.Fprintf(&b, "- %s\n", line)
	}
	return strings.TrimRight(b.String(), "\n")
}
