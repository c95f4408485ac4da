package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// ProviderGemini identifies the Gemini client.
const ProviderGemini = "gemini"

// GeminiClient calls the Gemini API. File parts are uploaded through the Files API and deleted
// after the call.
type GeminiClient struct {
	client          *genai.Client
	model           string
	temperature     float32
	maxOutputTokens int32
	pollInterval    time.Duration
	logger          *zap.Logger
}

// GeminiOptions configures a GeminiClient.
type GeminiOptions struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int32
}

// NewGeminiClient creates a Gemini client. An empty APIKey lets the SDK read GEMINI_API_KEY or
// GOOGLE_API_KEY from the environment.
func NewGeminiClient(ctx context.Context, opts GeminiOptions, logger *zap.Logger) (*GeminiClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{
		client:          client,
		model:           opts.Model,
		temperature:     opts.Temperature,
		maxOutputTokens: opts.MaxOutputTokens,
		pollInterval:    time.Second,
		logger:          logger,
	}, nil
}

// Provider returns "gemini".
func (g *GeminiClient) Provider() string { return ProviderGemini }

// Model returns the model name.
func (g *GeminiClient) Model() string { return g.model }

// Generate sends one user turn and returns the concatenated response text.
func (g *GeminiClient) Generate(ctx context.Context, req *Request) (string, error) {
	parts := make([]*genai.Part, 0, len(req.Parts))
	for _, p := range req.Parts {
		switch {
		case p.FilePath != "":
			file, err := g.upload(ctx, p)
			if err != nil {
				return "", err
			}
			defer g.deleteFile(file.Name)
			parts = append(parts, genai.NewPartFromURI(file.URI, file.MIMEType))
		case p.Data != nil:
			parts = append(parts, genai.NewPartFromBytes(p.Data, p.MIMEType))
		default:
			parts = append(parts, genai.NewPartFromText(p.Text))
		}
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.temperature),
		MaxOutputTokens: g.maxOutputTokens,
	}
	if req.Temperature != nil {
		cfg.Temperature = req.Temperature
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = toGenaiSchema(req.Schema)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// upload sends a local file to the Files API and waits until it is usable.
func (g *GeminiClient) upload(ctx context.Context, p Part) (*genai.File, error) {
	file, err := g.client.Files.UploadFromPath(ctx, p.FilePath, &genai.UploadFileConfig{MIMEType: p.MIMEType})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", p.FilePath, err)
	}
	for file.State == genai.FileStateProcessing {
		select {
		case <-ctx.Done():
			g.deleteFile(file.Name)
			return nil, ctx.Err()
		case <-time.After(g.pollInterval):
		}
		file, err = g.client.Files.Get(ctx, file.Name, nil)
		if err != nil {
			return nil, fmt.Errorf("poll upload %s: %w", p.FilePath, err)
		}
	}
	if file.State == genai.FileStateFailed {
		g.deleteFile(file.Name)
		return nil, fmt.Errorf("upload %s: processing failed", p.FilePath)
	}
	return file, nil
}

func (g *GeminiClient) deleteFile(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := g.client.Files.Delete(ctx, name, nil); err != nil {
		g.logger.Warn("failed to delete uploaded file", zap.String("name", name), zap.Error(err))
	}
}

func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genaiType(s.Type),
		Description: s.Description,
		Required:    s.Required,
		Items:       toGenaiSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = toGenaiSchema(v)
		}
	}
	return out
}

func genaiType(t SchemaType) genai.Type {
	switch t {
	case TypeObject:
		return genai.TypeObject
	case TypeBoolean:
		return genai.TypeBoolean
	case TypeArray:
		return genai.TypeArray
	default:
		return genai.TypeString
	}
}
