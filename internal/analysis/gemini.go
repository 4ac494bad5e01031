package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-1.5-pro"

// Gemini is the Analyzer backed by the Gemini API.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	log     log.FieldLogger
}

// NewGemini creates a client for apiKey. Empty model uses DefaultModel.
func NewGemini(ctx context.Context, apiKey, model string, timeout time.Duration, logger log.FieldLogger) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model, timeout: timeout, log: logger}, nil
}

func (g *Gemini) Model() string { return g.model }

func (g *Gemini) AnalyzeDocument(ctx context.Context, doc Document) (string, error) {
	if len(doc.Data) == 0 || doc.MIMEType == "" {
		return "", ErrInvalidDocument
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(AnalysisPrompt()),
			genai.NewPartFromBytes(doc.Data, doc.MIMEType),
		}, genai.RoleUser),
	}
	return g.generate(ctx, "analyze", contents, nil)
}

func (g *Gemini) GeneratePlan(ctx context.Context, analysis string) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(PlanPrompt(analysis), genai.RoleUser)}
	text, err := g.generate(ctx, "plan", contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", err
	}
	return ExtractJSON(text), nil
}

func (g *Gemini) generate(ctx context.Context, op string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	entry := g.log.WithFields(log.Fields{"op": op, "model": g.model, "elapsed": time.Since(start).Round(time.Millisecond)})
	if err != nil {
		entry.WithError(err).Warn("gemini request failed")
		return "", fmt.Errorf("gemini %s: %w", op, err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		entry.Warn("gemini returned no text")
		return "", ErrEmptyResponse
	}
	entry.Debug("gemini request done")
	return text, nil
}
