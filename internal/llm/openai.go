package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider calls the OpenAI chat completions API through the
// official SDK. Responses are requested as bare JSON objects and
// decoded into the typed response structs.
type OpenAIProvider struct {
	apiKey string
	model  string
	client openai.Client
}

var ErrNoAPIKey = fmt.Errorf("openai: api key not configured")

// NewOpenAIProvider builds a provider. An empty key is allowed at
// construction; calls will fail with ErrNoAPIKey.
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	key := strings.TrimSpace(apiKey)
	p := &OpenAIProvider{apiKey: key, model: strings.TrimSpace(model)}
	if key != "" {
		p.client = openai.NewClient(option.WithAPIKey(key))
	}
	return p
}

func (p *OpenAIProvider) Categorize(ctx context.Context, req CategorizeRequest) (CategorizeResponse, error) {
	system := "You are a personal-finance categorization assistant. " +
		"Return ONLY valid JSON with keys: category (string, one of the provided categories), " +
		"confidence (number 0-1), reasoning (string)."
	var out CategorizeResponse
	if err := p.call(ctx, system, req, &out); err != nil {
		return CategorizeResponse{}, err
	}
	out.Confidence = clamp01(out.Confidence)
	return out, nil
}

func (p *OpenAIProvider) SuggestTags(ctx context.Context, req TagRequest) (TagResponse, error) {
	system := "You are a personal-finance tagging assistant. " +
		"Return ONLY valid JSON with keys: tags (array of short lowercase strings, prefer existing_tags when they fit)."
	var out TagResponse
	if err := p.call(ctx, system, req, &out); err != nil {
		return TagResponse{}, err
	}
	if req.MaxTags > 0 && len(out.Tags) > req.MaxTags {
		out.Tags = out.Tags[:req.MaxTags]
	}
	return out, nil
}

func (p *OpenAIProvider) call(ctx context.Context, system string, req any, out any) error {
	if p.apiKey == "" {
		return ErrNoAPIKey
	}
	ctx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("openai: marshal request: %w", err)
	}
	model := p.model
	if model == "" {
		model = "gpt-4o-mini"
	}
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage("Input JSON:\n" + string(payload)),
		},
		MaxTokens: openai.Int(400),
	})
	if err != nil {
		return err
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("openai: empty response")
	}
	return decodeJSON(resp.Choices[0].Message.Content, out)
}

// decodeJSON tolerates models that wrap the object in markdown fences
// or prose by slicing from the first '{' to the last '}'.
func decodeJSON(s string, out any) error {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "{"); i >= 0 {
		if j := strings.LastIndex(s, "}"); j > i {
			s = s[i : j+1]
		}
	}
	if err := json.Unmarshal([]byte(s), out); err != nil {
		return fmt.Errorf("openai: parse response: %w", err)
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
