package oracle

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/genai"
)

const (
	defaultGeminiModel = "gemini-2.0-flash"
	geminiBackend      = "gemini"
)

// generator is the part of the genai models service used by Gemini
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini is a Completer backed by the Google Gemini api
type Gemini struct {
	models  generator
	model   string
	timeout time.Duration
}

// NewGemini returns a Gemini completer for the api key. An empty model uses gemini-2.0-flash and
// a positive timeout bounds every call
func NewGemini(ctx context.Context, apiKey string, model string, timeout time.Duration) (g *Gemini, err error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gemini client")
	}

	g = newGeminiWithGenerator(client.Models, model)
	g.timeout = timeout

	return g, nil
}

func newGeminiWithGenerator(models generator, model string) *Gemini {
	if model == "" {
		model = defaultGeminiModel
	}

	return &Gemini{models: models, model: model}
}

// Complete generates content for the request
func (g *Gemini) Complete(ctx context.Context, req Request) (text string, err error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Temperature),
		MaxOutputTokens: int32(req.MaxOutputTokens),
	}

	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(req.UserPrompt), cfg)
	if err != nil {
		return "", &TransportError{Backend: geminiBackend, Err: err}
	}

	text = strings.TrimSpace(responseText(resp))
	if text == "" {
		return "", &MalformedOutputError{Reason: "empty completion"}
	}

	return text, nil
}

// responseText concatenates the text parts of the first candidate
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && !p.Thought {
			b.WriteString(p.Text)
		}
	}

	return b.String()
}
