// Package vision is the optional OCR fallback: when a tree read yields
// nothing usable, a screenshot goes to a multimodal model that returns
// labeled boxes. It is consulted rarely and rate-limited accordingly.
package vision

import (
	"context"
	"fmt"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

const (
	defaultModel   = "gemini-2.0-flash"
	requestTimeout = 30 * time.Second

	// One detection call per two seconds. The fallback is a last resort,
	// not a perception pipeline.
	callsPerSecond = 0.5
)

const detectPrompt = `This screenshot shows an application user interface.
List every interactive element you can identify (buttons, text fields,
links, checkboxes, menu items) as a JSON array. Each entry must have:
"label" (visible text), "role" (one of: button, textfield, link, checkbox,
menuitem), "x", "y", "width", "height" (pixels, integers), and
"confidence" (0.0-1.0). Respond with the JSON array only.`

type detection struct {
	Label      string  `json:"label"`
	Role       string  `json:"role"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
}

type Options struct {
	APIKey string
	Model  string
}

// Detector implements schemas.VisionDetector on the Gemini API.
type Detector struct {
	client  *genai.Client
	model   string
	limiter *rate.Limiter
	log     *zap.Logger
}

func New(ctx context.Context, logger *zap.Logger, opts Options) (*Detector, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("vision detector requires an API key")
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}

	return &Detector{
		client:  client,
		model:   opts.Model,
		limiter: rate.NewLimiter(rate.Limit(callsPerSecond), 1),
		log:     logger.Named("vision"),
	}, nil
}

// Detect sends one screenshot and parses the returned boxes. A single
// bounded attempt: a malformed response is an error, not a retry.
func (d *Detector) Detect(ctx context.Context, image []byte) ([]schemas.Detection, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("empty screenshot")
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	rctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	parts := []*genai.Part{
		genai.NewPartFromBytes(image, "image/png"),
		genai.NewPartFromText(detectPrompt),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	config := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}

	resp, err := d.client.Models.GenerateContent(rctx, d.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("vision detection failed: %w", err)
	}

	text := resp.Text()
	var raw []detection
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("vision response is not the expected JSON array: %w", err)
	}

	out := make([]schemas.Detection, 0, len(raw))
	for _, det := range raw {
		if det.Label == "" || det.Width <= 0 || det.Height <= 0 {
			continue
		}
		out = append(out, schemas.Detection{
			Label:      det.Label,
			Bounds:     schemas.Rect{X: det.X, Y: det.Y, Width: det.Width, Height: det.Height},
			Confidence: det.Confidence,
		})
	}

	d.log.Debug("Vision detection completed",
		zap.Int("raw", len(raw)),
		zap.Int("kept", len(out)))
	return out, nil
}
