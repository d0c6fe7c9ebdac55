package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"github.com/sortit/sortit-services/scan-service/internal/reward"
)

// Bins offered to the model.
var binCategories = []string{
	"Recycle - Plastic",
	"Recycle - Paper",
	"Recycle - Glass",
	"Recycle - Metal",
	"Compost",
	"Landfill",
	"E-Waste",
}

// CanonicalBin returns the English bin name matching binCategory
// case-insensitively, or "" when the label is localized or unknown.
func CanonicalBin(binCategory string) string {
	binCategory = strings.TrimSpace(binCategory)
	for _, b := range binCategories {
		if strings.EqualFold(b, binCategory) {
			return b
		}
	}
	return ""
}

// GeminiConfig wires Gemini access.
type GeminiConfig struct {
	APIKey    string
	Model     string
	UseVertex bool
	Project   string
	Location  string
}

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClassifier asks a Gemini vision model for a structured classification.
type GeminiClassifier struct {
	models contentGenerator
	model  string
}

// NewGeminiClassifier returns a Classifier backed by Gemini.
func NewGeminiClassifier(ctx context.Context, cfg GeminiConfig) (*GeminiClassifier, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}

	clientCfg, err := clientConfig(cfg)
	if err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return &GeminiClassifier{models: client.Models, model: model}, nil
}

// clientConfig selects the Gemini API or Vertex backend for cfg.
func clientConfig(cfg GeminiConfig) (*genai.ClientConfig, error) {
	clientCfg := &genai.ClientConfig{}
	if cfg.UseVertex {
		project := strings.TrimSpace(cfg.Project)
		if project == "" {
			project = strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_PROJECT"))
		}
		if project == "" {
			return nil, errors.New("vertex project id missing")
		}
		location := strings.TrimSpace(cfg.Location)
		if location == "" {
			return nil, errors.New("vertex location missing")
		}
		clientCfg.Project = project
		clientCfg.Location = location
		// NewClient resolves application default credentials for Vertex.
		clientCfg.Backend = genai.BackendVertexAI
	} else {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("gemini api key missing")
		}
		clientCfg.APIKey = apiKey
		clientCfg.Backend = genai.BackendGeminiAPI
	}
	return clientCfg, nil
}

// Close releases underlying Gemini resources.
func (g *GeminiClassifier) Close() error {
	return nil
}

// Classify sends the image inline with the classification prompt.
func (g *GeminiClassifier) Classify(ctx context.Context, img Image, language string) (reward.Classification, error) {
	if len(img.Data) == 0 {
		return reward.Classification{}, ErrInvalidImage
	}
	if strings.TrimSpace(language) == "" {
		language = DefaultLanguage
	}
	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(img.Data, mimeType),
			genai.NewPartFromText(classificationPrompt(language)),
		}, genai.RoleUser),
	}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema(language),
	})
	if err != nil {
		return reward.Classification{}, fmt.Errorf("gemini generate: %w", err)
	}
	return parseClassification(resp.Text())
}

func parseClassification(text string) (reward.Classification, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return reward.Classification{}, fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	var out reward.Classification
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return reward.Classification{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	out.ItemLabel = strings.TrimSpace(out.ItemLabel)
	out.BinCategory = strings.TrimSpace(out.BinCategory)
	if out.BinCategory == "" {
		return reward.Classification{}, fmt.Errorf("%w: missing binCategory", ErrMalformedResponse)
	}
	switch {
	case out.ConfidencePercent < 0:
		out.ConfidencePercent = 0
	case out.ConfidencePercent > 100:
		out.ConfidencePercent = 100
	}
	return out, nil
}

func classificationPrompt(language string) string {
	return fmt.Sprintf(`Analyze this image to identify the main waste item.
Classify it into one of these bins: %s.

IMPORTANT: Provide all text fields (itemLabel, binCategory, tip, funFact) in the following language: %s.

Provide a confidence score between 70 and 99 (integer).
Provide a short, kid-friendly recycling tip (max 20 words) in %s.
Provide a fun fact about this type of waste (max 20 words) in %s.
Ensure the tone is encouraging and educational for children.`,
		quoteList(binCategories), language, language, language)
}

func responseSchema(language string) *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"itemLabel": {
				Type:        genai.TypeString,
				Description: fmt.Sprintf("The name of the detected item (e.g. Plastic Bottle) in %s", language),
			},
			"binCategory": {
				Type:        genai.TypeString,
				Description: fmt.Sprintf("The recommended bin category in %s", language),
			},
			"confidencePercent": {
				Type:        genai.TypeInteger,
				Description: "Confidence score percentage (0-100)",
			},
			"tip": {
				Type:        genai.TypeString,
				Description: fmt.Sprintf("A helpful recycling tip in %s", language),
			},
			"funFact": {
				Type:        genai.TypeString,
				Description: fmt.Sprintf("A fun fact about the item in %s", language),
			},
		},
		Required: []string{"itemLabel", "binCategory", "confidencePercent", "tip", "funFact"},
	}
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = `"` + s + `"`
	}
	return strings.Join(quoted, ", ")
}
