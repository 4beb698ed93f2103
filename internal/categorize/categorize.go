// Package categorize suggests a spending category for a merchant name. The
// suggestion feeds the category breakdown; a transaction keeps "Other" until
// the user accepts or overrides one, so a bad suggestion never corrupts
// totals.
package categorize

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const modelName = "gemini-2.5-flash"

// Categories the model may answer with. Anything else is mapped to Other.
var Categories = []string{
	"Groceries",
	"Restaurants",
	"Transport",
	"Shopping",
	"Subscriptions",
	"Health",
	"Travel",
	"Services",
	"Other",
}

// Suggester proposes a category for a merchant. Implemented by Gemini in
// production and by a stub in tests.
type Suggester interface {
	Suggest(ctx context.Context, merchant string) (string, error)
}

// GeminiSuggester implements Suggester on the GenAI SDK.
type GeminiSuggester struct {
	client *genai.Client
}

func NewGeminiSuggester(ctx context.Context) (*GeminiSuggester, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiSuggester: create genai client: %w", err)
	}
	return &GeminiSuggester{client: client}, nil
}

// Suggest asks the model for exactly one category name from the fixed list.
func (s *GeminiSuggester) Suggest(ctx context.Context, merchant string) (string, error) {
	prompt := "You classify Chilean credit-card merchants into spending categories.\n\n" +
		"Categories:\n- " + strings.Join(Categories, "\n- ") + "\n\n" +
		"Answer with exactly one category name from the list, nothing else.\n\n" +
		"Merchant: " + merchant + "\n"

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := s.client.Models.GenerateContent(ctx, modelName, contents, nil)
	if err != nil {
		return "", fmt.Errorf("Suggest: generate content: %w", err)
	}

	return Normalize(resp.Text()), nil
}

// Normalize maps a model answer onto the fixed category list,
// case-insensitively, defaulting to Other.
func Normalize(answer string) string {
	cleaned := strings.TrimSpace(answer)
	for _, c := range Categories {
		if strings.EqualFold(cleaned, c) {
			return c
		}
	}
	return "Other"
}
