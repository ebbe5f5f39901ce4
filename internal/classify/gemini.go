package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used for categorization.
const DefaultModel = "gemini-2.5-flash"

// Gemini classifies expense batches with a single generate-content call.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini-backed classifier. An empty apiKey falls back
// to the GEMINI_API_KEY environment variable handled by the SDK; an empty
// model falls back to DefaultModel.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &Gemini{client: client, model: model}, nil
}

// Classify sends the batch as one prompt and parses the JSON array the
// model returns. Any malformed response surfaces as an error; the caller
// decides what to do with the batch.
func (g *Gemini) Classify(ctx context.Context, req Request) ([]Entry, error) {
	prompt, err := BuildPrompt(req)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	raw := resp.Text()
	if raw == "" {
		return nil, fmt.Errorf("empty response from model")
	}

	entries, err := ParseResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse model response: %w", err)
	}
	return entries, nil
}

// BuildPrompt serializes the batch and the category set into the
// classification prompt. Per-category hints keep the model from drifting
// into invented labels.
func BuildPrompt(req Request) (string, error) {
	payload, err := json.MarshalIndent(req.Entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal entries: %w", err)
	}

	names := make([]string, len(req.Categories))
	for i, c := range req.Categories {
		names[i] = c.Name
	}

	var b strings.Builder
	b.WriteString("Você é um assistente financeiro. Analise cada gasto abaixo e categorize-o em UMA das seguintes categorias:\n")
	b.WriteString(strings.Join(names, ", "))
	b.WriteString("\n\nGastos para categorizar:\n")
	b.Write(payload)
	b.WriteString("\n\nResponda APENAS com um array JSON, um objeto por gasto, no formato:\n")
	b.WriteString(`[{"id": 0, "description": "...", "amount": 123.45, "category": "categoria escolhida", "informed_by": "..."}]`)
	b.WriteString("\n\nIMPORTANTE:\n")
	b.WriteString("- Use EXATAMENTE os nomes das categorias fornecidas\n")
	b.WriteString("- Repita o campo \"id\" de cada gasto sem alterá-lo\n")
	b.WriteString("- Retorne APENAS o array JSON, sem texto adicional e sem cercas de código\n")
	for _, c := range req.Categories {
		if c.Hint == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Hint)
	}
	return b.String(), nil
}

// ParseResponse unwraps code fences the model may add despite instructions
// and unmarshals the JSON array.
func ParseResponse(raw string) ([]Entry, error) {
	clean := stripFences(raw)
	var entries []Entry
	if err := json.Unmarshal([]byte(clean), &entries); err != nil {
		return nil, fmt.Errorf("unmarshal JSON array: %w", err)
	}
	return entries, nil
}

// stripFences removes ```json / ``` wrappers and trims the text to the
// outermost JSON array when the model ignores the no-markdown instruction.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	// Keep only the first '[' to the last ']' if junk remains around the
	// array.
	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
