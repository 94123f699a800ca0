package fortune

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// FillerText pads provider output when fewer usable lines come back than
// requested. Padding is never an error.
const FillerText = "The universe is buffering… try again later."

const (
	defaultModel          = "gpt-4o-mini"
	defaultRequestTimeout = 30 * time.Second
	generationMaxTokens   = 500
	generationTemperature = 0.95
	minFortuneLength      = 10
	systemPersona         = "You are a mystical fortune teller with modern, chaotic humor. You give fortunes relatable to millennials and Gen-Z, mixing cosmic wisdom with everyday struggles like UPI payments, texting drama, and food delivery. Your fortunes are slightly hopeful but absurdly specific. Keep each fortune to 1-2 sentences max."
)

var errMissingAPIKey = errors.New("fortune generator: api key is required")

// themeHints seed one prompt line per fortune so a day's batch does not
// collapse into variations of the same joke.
var themeHints = []string{
	"someone thinking about you",
	"unexpected money or UPI refund",
	"that text you're waiting for",
	"your ex seeing your story",
	"food delivery luck",
	"work from home vibes",
	"online shopping surprises",
	"wifi working perfectly",
	"finding the perfect parking spot",
	"meeting your crush randomly",
	"your meme going viral",
	"getting a job callback",
	"someone paying back money they owe",
	"finding cash in old jeans",
	"getting the window seat",
	"your food order being accurate",
	"no one asking 'when marriage?'",
	"your screen time going down",
	"zero mosquitoes tonight",
	"instant biryani delivery",
	"autorickshaw going by meter",
	"train arriving on time",
	"coffee hitting just right",
	"no traffic today",
}

var styleExamples = []string{
	"'Someone will think about you… probably.'",
	"'Money might come… from a UPI refund.'",
	"'That text you're waiting for? It's coming. In 2-5 business days.'",
	"'Your ex will see your story. They won't react, but they'll see it.'",
}

var lineNumberPattern = regexp.MustCompile(`^\d+[.:)]\s*`)

// Generator produces count short fortune strings. Order matters: index i maps
// to slot i+1.
type Generator interface {
	Generate(ctx context.Context, count int) ([]string, error)
}

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIGeneratorConfig configures the chat-completions backed generator.
type OpenAIGeneratorConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
	Clock   func() time.Time
	// Client overrides the OpenAI client, used by tests.
	Client chatCompleter
}

// OpenAIGenerator batches a whole day's fortunes into a single
// chat-completions request.
type OpenAIGenerator struct {
	client  chatCompleter
	model   string
	timeout time.Duration
	clock   func() time.Time
}

// NewOpenAIGenerator constructs the generator, validating the API key unless
// a custom client is supplied.
func NewOpenAIGenerator(cfg OpenAIGeneratorConfig) (*OpenAIGenerator, error) {
	client := cfg.Client
	if client == nil {
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errMissingAPIKey
		}
		client = openai.NewClient(cfg.APIKey)
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &OpenAIGenerator{
		client:  client,
		model:   model,
		timeout: timeout,
		clock:   clock,
	}, nil
}

// Generate requests count fortunes and normalizes the output to exactly count
// usable lines.
func (g *OpenAIGenerator) Generate(ctx context.Context, count int) ([]string, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: count must be positive, got %d", ErrGeneration, count)
	}

	requestCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	response, err := g.client.CreateChatCompletion(requestCtx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPersona},
			{Role: openai.ChatMessageRoleUser, Content: g.buildBatchPrompt(count)},
		},
		MaxTokens:   generationMaxTokens,
		Temperature: generationTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("%w: provider returned no choices", ErrGeneration)
	}

	return ParseFortuneLines(response.Choices[0].Message.Content, count), nil
}

func (g *OpenAIGenerator) buildBatchPrompt(count int) string {
	shuffled := make([]string, len(themeHints))
	copy(shuffled, themeHints)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	if count < len(shuffled) {
		shuffled = shuffled[:count]
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "Generate exactly %d different delulu fortunes for today (%s).\n\n", count, g.clock().Weekday())
	builder.WriteString("Theme hints (one per fortune):\n")
	for i, theme := range shuffled {
		fmt.Fprintf(&builder, "%d. %s\n", i+1, theme)
	}
	builder.WriteString("\nStyle examples:\n")
	for _, example := range styleExamples {
		builder.WriteString("- " + example + "\n")
	}
	fmt.Fprintf(&builder, "\nOutput format - exactly %d lines, one fortune per line, numbered 1-%d. Be creative and funny. Use ellipses (…) for dramatic effect.", count, count)
	return builder.String()
}

// ParseFortuneLines normalizes raw provider output to exactly expectedCount
// entries: numbering and surrounding quotes stripped, blank and too-short
// lines dropped, then padded with FillerText or truncated to fit.
func ParseFortuneLines(content string, expectedCount int) []string {
	fortunes := make([]string, 0, expectedCount)
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = lineNumberPattern.ReplaceAllString(line, "")
		line = strings.Trim(line, `"'`)
		if len(line) > minFortuneLength {
			fortunes = append(fortunes, line)
		}
	}

	for len(fortunes) < expectedCount {
		fortunes = append(fortunes, FillerText)
	}
	return fortunes[:expectedCount]
}
