package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
	"github.com/orderrelay/feishu-order-relay/internal/biz/repo"
	"github.com/orderrelay/feishu-order-relay/internal/infra/openai"
)

// Completer is the part of the OpenAI client the classifier needs
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

var _ Completer = (*openai.Client)(nil)

// classifierRepo asks an OpenAI-compatible model for {type, confidence, data}
type classifierRepo struct {
	client Completer
	log    zerolog.Logger
}

// NewClassifierRepo creates the classifier adapter
func NewClassifierRepo(client Completer, log zerolog.Logger) repo.ClassifierRepo {
	return &classifierRepo{
		client: client,
		log:    log.With().Str("component", "openai").Logger(),
	}
}

type classifierReply struct {
	Type       *string         `json:"type"`
	Confidence json.RawMessage `json:"confidence"`
	Data       json.RawMessage `json:"data"`
}

func (r *classifierRepo) Classify(ctx context.Context, prompt, text string) domain.Classification {
	raw, err := r.client.CompleteJSON(ctx, prompt, text)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.Failed(domain.FailureTimeout)
		}
		if errors.Is(err, openai.ErrNoChoices) {
			return domain.Failed(domain.FailureInvalidResponse)
		}
		r.log.Debug().Err(err).Msg("classifier call failed")
		return domain.Failed(domain.FailureTransport)
	}
	return parseClassification(raw)
}

// parseClassification validates the model reply. Anything outside the
// schema is an invalid response, never an order.
func parseClassification(raw string) domain.Classification {
	raw = strings.TrimSpace(raw)
	// some compatible endpoints ignore JSON mode and fence the object
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var reply classifierReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil || reply.Type == nil {
		return domain.Failed(domain.FailureInvalidResponse)
	}

	intent, ok := domain.ParseIntent(strings.TrimSpace(*reply.Type))
	if !ok {
		return domain.Failed(domain.FailureInvalidResponse)
	}

	confidence, ok := parseConfidence(reply.Confidence)
	if !ok || confidence < 0 || confidence > 1 {
		return domain.Failed(domain.FailureInvalidResponse)
	}

	c := domain.Classification{Intent: intent, Confidence: confidence}
	if len(reply.Data) > 0 && string(reply.Data) != "null" {
		fields, ok := parseFields(reply.Data)
		if !ok {
			return domain.Failed(domain.FailureInvalidResponse)
		}
		c.Fields = fields
	}
	return c
}

// parseFields reads the extracted attributes; models sometimes send
// numbers where strings are expected, so every value is stringified.
// ok is false when data is not a JSON object.
func parseFields(raw json.RawMessage) (*domain.OrderFields, bool) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	get := func(key string) string {
		v, ok := m[key]
		if !ok || v == nil {
			return ""
		}
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
		return strings.TrimSpace(fmt.Sprint(v))
	}
	fields := domain.OrderFields{
		FromLocation: get("from_location"),
		ToLocation:   get("to_location"),
		Time:         get("time"),
		Passengers:   get("passengers"),
		Phone:        get("phone"),
		Price:        get("price"),
		CarInfo:      get("car_info"),
		Notes:        get("notes"),
	}
	if fields == (domain.OrderFields{}) {
		return nil, true
	}
	return &fields, true
}

// parseConfidence accepts only a JSON number
func parseConfidence(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return f, true
}
