// Package receipts interprets receipt images with a generative vision model.
// The model client is explicitly constructed and injected; there is no
// process-wide singleton.
package receipts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"github.com/dvloznov/wealth-tracker/internal/domain"
)

// DefaultModelName is the vision model used for receipt interpretation.
const DefaultModelName = "gemini-2.0-flash"

// ModelInvoker sends one prompt-plus-image request to a vision model and
// returns the raw text reply. Implementations are safe for concurrent use.
type ModelInvoker interface {
	GenerateContent(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)
}

// GenAIInvoker is the production ModelInvoker backed by a genai client.
type GenAIInvoker struct {
	client *genai.Client
	model  string
}

// NewGenAIInvoker wraps an existing genai client. model defaults to
// DefaultModelName when empty.
func NewGenAIInvoker(client *genai.Client, model string) *GenAIInvoker {
	if model == "" {
		model = DefaultModelName
	}
	return &GenAIInvoker{client: client, model: model}
}

func (g *GenAIInvoker) GenerateContent(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     image,
					},
				},
			},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("GenerateContent: %w", err)
	}
	return resp.Text(), nil
}

// ReceiptData is the best-effort structured guess extracted from a receipt.
type ReceiptData struct {
	Amount       decimal.Decimal `json:"amount"`
	Date         time.Time       `json:"date"`
	Description  string          `json:"description"`
	MerchantName string          `json:"merchant_name"`
	Category     string          `json:"category"`
}

// Scanner interprets receipt images.
type Scanner struct {
	invoker ModelInvoker
	mapping *CategoryMapping
	log     zerolog.Logger
}

// NewScanner creates a Scanner with an injected model invoker.
func NewScanner(invoker ModelInvoker, mapping *CategoryMapping, log zerolog.Logger) *Scanner {
	return &Scanner{
		invoker: invoker,
		mapping: mapping,
		log:     log,
	}
}

// Scan sends the image to the model and parses its reply. The model contract
// tolerates extraneous Markdown fences, which are stripped before parsing.
// A reply that cannot be parsed as the expected structure fails with
// ErrExternalService; the raw failure is logged before the generic error is
// returned. The caller must treat this as non-retryable.
func (s *Scanner) Scan(ctx context.Context, image []byte, mimeType string) (*ReceiptData, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image", domain.ErrValidation)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("%w: unsupported content type %q", domain.ErrValidation, mimeType)
	}

	prompt := buildReceiptPrompt(s.mapping)

	rawText, err := s.invoker.GenerateContent(ctx, prompt, image, mimeType)
	if err != nil {
		s.log.Error().Err(err).Msg("Receipt model call failed")
		return nil, fmt.Errorf("%w: receipt model call failed", domain.ErrExternalService)
	}
	if rawText == "" {
		return nil, fmt.Errorf("%w: empty response from model", domain.ErrExternalService)
	}

	clean := cleanModelJSON(rawText)

	var reply struct {
		Amount       float64 `json:"amount"`
		Date         string  `json:"date"`
		Description  string  `json:"description"`
		MerchantName string  `json:"merchantName"`
		Category     string  `json:"category"`
	}
	if err := json.Unmarshal([]byte(clean), &reply); err != nil {
		s.log.Error().Err(err).Str("raw_response", rawText).Msg("Failed to parse receipt model reply")
		return nil, fmt.Errorf("%w: invalid response format from model", domain.ErrExternalService)
	}

	// The model returns {} when the image is not a receipt.
	if reply.Amount == 0 && reply.Date == "" && reply.MerchantName == "" {
		return nil, fmt.Errorf("%w: model could not extract receipt data", domain.ErrExternalService)
	}

	date, err := parseReceiptDate(reply.Date)
	if err != nil {
		s.log.Error().Err(err).Str("raw_response", rawText).Msg("Failed to parse receipt date")
		return nil, fmt.Errorf("%w: invalid response format from model", domain.ErrExternalService)
	}

	return &ReceiptData{
		Amount:       decimal.NewFromFloat(reply.Amount),
		Date:         date,
		Description:  reply.Description,
		MerchantName: reply.MerchantName,
		Category:     s.mapping.Map(reply.Category),
	}, nil
}

func parseReceiptDate(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// cleanModelJSON strips Markdown fences and surrounding junk that the model
// sometimes emits despite instructions, keeping only the outermost object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
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

	// Extra safety: keep only from the first '{' to the last '}'.
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
