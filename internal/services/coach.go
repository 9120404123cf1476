package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/dailydues/backend/internal/config"
	"github.com/dailydues/backend/pkg/logger"
	"github.com/ollama/ollama/api"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

type Quote struct {
	Text   string `json:"quote"`
	Author string `json:"author"`
}

var stoicQuotes = []Quote{
	{"We suffer more often in imagination than in reality.", "Seneca"},
	{"The obstacle is the way.", "Marcus Aurelius"},
	{"No man is free who is not master of himself.", "Epictetus"},
	{"Begin at once to live, and count each separate day as a separate life.", "Seneca"},
	{"You have power over your mind - not outside events. Realize this, and you will find strength.", "Marcus Aurelius"},
	{"Waste no more time arguing about what a good man should be. Be one.", "Marcus Aurelius"},
	{"He who fears death will never do anything worthy of a living man.", "Seneca"},
	{"It is not the man who has too little, but the man who craves more, that is poor.", "Seneca"},
	{"First say to yourself what you would be; and then do what you have to do.", "Epictetus"},
	{"The happiness of your life depends upon the quality of your thoughts.", "Marcus Aurelius"},
	{"Difficulties strengthen the mind, as labor does the body.", "Seneca"},
	{"Man conquers the world by conquering himself.", "Zeno of Citium"},
	{"If it is not right, do not do it; if it is not true, do not say it.", "Marcus Aurelius"},
	{"We are more often frightened than hurt; and we suffer more from imagination than from reality.", "Seneca"},
	{"How long are you going to wait before you demand the best for yourself?", "Epictetus"},
	{"The best revenge is not to be like your enemy.", "Marcus Aurelius"},
	{"Luck is what happens when preparation meets opportunity.", "Seneca"},
	{"What we do now echoes in eternity.", "Marcus Aurelius"},
	{"He suffers more than necessary, who suffers before it is necessary.", "Seneca"},
	{"Caretake this moment. Immerse yourself in its particulars.", "Epictetus"},
	{"The soul becomes dyed with the color of its thoughts.", "Marcus Aurelius"},
	{"True happiness is to enjoy the present, without anxious dependence upon the future.", "Seneca"},
	{"No great thing is created suddenly.", "Epictetus"},
	{"Think of yourself as dead. You have lived your life. Now take what's left and live it properly.", "Marcus Aurelius"},
	{"As is a tale, so is life: not how long it is, but how good it is, is what matters.", "Seneca"},
	{"It is not things that disturb us, but our judgments about things.", "Epictetus"},
	{"The impediment to action advances action. What stands in the way becomes the way.", "Marcus Aurelius"},
	{"Hang on to your youthful enthusiasms - you'll be able to use them better when you're older.", "Seneca"},
	{"Freedom is the only worthy goal in life. It is won by disregarding things that lie beyond our control.", "Epictetus"},
	{"Very little is needed to make a happy life; it is all within yourself, in your way of thinking.", "Marcus Aurelius"},
}

// DailyQuote picks a quote by day of year so everyone sees the same one on a given date.
func DailyQuote(day time.Time) Quote {
	return stoicQuotes[(day.YearDay()-1)%len(stoicQuotes)]
}

func (q Quote) String() string {
	return fmt.Sprintf("\"%s\" - %s", q.Text, q.Author)
}

// completer sends one prompt to a model and returns its text.
type completer func(ctx context.Context, prompt string) (string, error)

// CoachService writes the short motivational note appended to leaderboard digests.
// Without a configured model, or when the model fails, it falls back to the daily quote.
type CoachService struct {
	cfg      config.CoachConfig
	complete completer
	timeout  time.Duration
}

func NewCoachService(cfg config.CoachConfig) *CoachService {
	s := &CoachService{cfg: cfg, timeout: 30 * time.Second}
	if cfg.Enabled {
		s.complete = s.providerFor(cfg.Provider)
	}
	return s
}

func (s *CoachService) providerFor(provider string) completer {
	switch provider {
	case "anthropic":
		return s.callAnthropic
	case "ollama":
		return s.callOllama
	case "gemini":
		return s.callGemini
	default:
		// openai and compatible endpoints
		return s.callOpenAI
	}
}

// Note returns a motivational line for the digest of day.
func (s *CoachService) Note(ctx context.Context, day time.Time, entries []LeaderboardEntry, unit string) string {
	fallback := DailyQuote(day).String()
	if s.complete == nil || len(entries) == 0 {
		return fallback
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	text, err := s.complete(ctx, coachPrompt(entries, unit))
	if err != nil {
		logger.Warn().Err(err).Str("provider", s.cfg.Provider).Msg("[Coach] falling back to daily quote")
		return fallback
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fallback
	}
	return text
}

func coachPrompt(entries []LeaderboardEntry, unit string) string {
	var b strings.Builder
	b.WriteString("You are a terse, upbeat fitness coach for a small team doing a daily habit challenge. ")
	b.WriteString("Write at most two sentences of motivation for tonight's leaderboard post. ")
	b.WriteString("Mention the leader by name. No hashtags, no emoji.\n\nStandings:\n")
	for i, e := range entries {
		if i == 5 {
			break
		}
		fmt.Fprintf(&b, "%d. %s - %d day streak, %d %s total", i+1, e.UserName, e.CurrentStreak, e.TotalCompleted, unit)
		if e.PendingCarryOver > 0 {
			fmt.Fprintf(&b, ", owes %d", e.PendingCarryOver)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (s *CoachService) callOpenAI(ctx context.Context, prompt string) (string, error) {
	clientConfig := openai.DefaultConfig(s.cfg.APIKey)
	if s.cfg.BaseURL != "" {
		clientConfig.BaseURL = s.cfg.BaseURL
	}
	client := openai.NewClientWithConfig(clientConfig)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: float32(s.cfg.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (s *CoachService) callAnthropic(ctx context.Context, prompt string) (string, error) {
	opts := []option.RequestOption{option.WithAPIKey(s.cfg.APIKey)}
	if s.cfg.BaseURL != "" && !strings.Contains(s.cfg.BaseURL, "openai.com") {
		opts = append(opts, option.WithBaseURL(s.cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	maxTokens := int64(s.cfg.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 200
	}
	model := s.cfg.Model
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}

	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}
	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	return content.String(), nil
}

func (s *CoachService) callOllama(ctx context.Context, prompt string) (string, error) {
	baseURL := s.cfg.BaseURL
	if baseURL == "" || strings.Contains(baseURL, "openai.com") {
		baseURL = "http://localhost:11434"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid ollama base URL: %w", err)
	}
	client := api.NewClient(u, http.DefaultClient)

	model := s.cfg.Model
	if model == "" {
		model = "llama3"
	}
	stream := false
	var content strings.Builder
	err = client.Chat(ctx, &api.ChatRequest{
		Model:    model,
		Messages: []api.Message{{Role: "user", Content: prompt}},
		Stream:   &stream,
		Options: map[string]interface{}{
			"temperature": s.cfg.Temperature,
			"num_predict": s.cfg.MaxTokens,
		},
	}, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}
	return content.String(), nil
}

func (s *CoachService) callGemini(ctx context.Context, prompt string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: s.cfg.APIKey})
	if err != nil {
		return "", fmt.Errorf("gemini client: %w", err)
	}
	model := s.cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	return resp.Text(), nil
}
