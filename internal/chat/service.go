// Package chat implements the response pipeline behind the gateway's chat
// endpoint: resolve the persona, run one retrieval round, assemble the
// system prompt, trim history to the token budget, and call the generation
// model.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/adab-ai/adab-go/internal/budget"
	"github.com/adab-ai/adab-go/internal/keystore"
	"github.com/adab-ai/adab-go/internal/logging"
	"github.com/adab-ai/adab-go/internal/prompt"
	"github.com/adab-ai/adab-go/internal/rag"
)

// Retriever runs one retrieval round. Satisfied by *rag.Orchestrator.
type Retriever interface {
	Retrieve(ctx context.Context, req rag.Request) (*rag.Bundle, error)
}

// PersonaResolver looks up active personas. Satisfied by *keystore.Store.
type PersonaResolver interface {
	Persona(ctx context.Context, id string) (*keystore.Persona, error)
}

// Config holds the dependencies required to construct a Service.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.ToolCallingChatModel

	// ModelName is the display name reported in responses (e.g. "gpt-4o").
	ModelName string

	// Retriever runs the retrieval round before generation.
	// May be nil when retrieval is not configured.
	Retriever Retriever

	// Personas resolves persona IDs to their system prompts.
	Personas PersonaResolver

	// WithholdAttribution suppresses book sources in the assembled prompt.
	WithholdAttribution bool

	// MaxContextTokens is the estimated token budget for the full input
	// context. History is trimmed oldest-first to fit.
	// Defaults to budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int
}

// Turn is one prior message in the conversation history.
type Turn struct {
	// Role is "user" or "assistant".
	Role string
	// Content is the message text.
	Content string
}

// Request describes one chat round.
type Request struct {
	// Message is the user's current message.
	Message string
	// PersonaID selects the persona to respond as.
	PersonaID string
	// Country and Race describe the user's background; they map to a
	// culture label scoping the retrieval round.
	Country string
	Race    string
	// Category optionally restricts guideline retrieval to one category.
	Category string
	// History holds prior turns, oldest first.
	History []Turn
	// Temperature and MaxTokens override the backend's generation tuning
	// for this round. Nil leaves the backend defaults in place.
	Temperature *float32
	MaxTokens   *int
}

// Response is the generated reply plus the context that produced it.
type Response struct {
	// Text is the model's reply.
	Text string
	// Model is the generation model display name.
	Model string
	// PersonaID and PersonaName identify the responding persona.
	PersonaID   string
	PersonaName string
	// Degraded maps collection names to failure reasons when retrieval ran
	// partially. Empty on a clean round.
	Degraded map[string]string
}

// Service is the chat pipeline. It is safe for concurrent use.
type Service struct {
	chatModel           model.ToolCallingChatModel
	modelName           string
	retriever           Retriever
	personas            PersonaResolver
	withholdAttribution bool
	maxContextTokens    int
}

// New constructs a Service from the provided Config.
func New(cfg *Config) (*Service, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("chat: ChatModel must not be nil")
	}
	if cfg.Personas == nil {
		return nil, fmt.Errorf("chat: Personas must not be nil")
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}
	return &Service{
		chatModel:           cfg.ChatModel,
		modelName:           cfg.ModelName,
		retriever:           cfg.Retriever,
		personas:            cfg.Personas,
		withholdAttribution: cfg.WithholdAttribution,
		maxContextTokens:    maxCtx,
	}, nil
}

// Respond runs one chat round. Retrieval failure is non-fatal: the round
// continues with an empty bundle and the degradation is reported in the
// response. A missing persona or a generation failure fails the round.
func (s *Service) Respond(ctx context.Context, req Request) (*Response, error) {
	persona, err := s.personas.Persona(ctx, req.PersonaID)
	if err != nil {
		return nil, fmt.Errorf("chat: resolve persona: %w", err)
	}

	culture := rag.MapCulture(req.Country, req.Race)

	bundle := &rag.Bundle{}
	if s.retriever != nil {
		b, err := s.retriever.Retrieve(ctx, rag.Request{
			Query:     req.Message,
			Culture:   culture,
			PersonaID: req.PersonaID,
			Category:  req.Category,
		})
		if err != nil {
			// Retrieval failure is non-fatal: respond without context.
			logging.FromContext(ctx).Warn("chat: retrieval failed, continuing without context",
				slog.Any("error", err))
			bundle.Degraded = map[string]string{"retrieval": err.Error()}
		} else {
			bundle = b
		}
	}

	messages := s.buildMessages(ctx, persona, bundle, culture, req)

	var opts []model.Option
	if req.Temperature != nil {
		opts = append(opts, model.WithTemperature(*req.Temperature))
	}
	if req.MaxTokens != nil {
		opts = append(opts, model.WithMaxTokens(*req.MaxTokens))
	}

	reply, err := s.chatModel.Generate(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("chat: generation failed: %w", err)
	}

	return &Response{
		Text:        reply.Content,
		Model:       s.modelName,
		PersonaID:   persona.ID,
		PersonaName: persona.Name,
		Degraded:    bundle.Degraded,
	}, nil
}

// buildMessages constructs the message slice for one round: persona system
// prompt with the assembled context fragment, trimmed history, then the
// current user message.
func (s *Service) buildMessages(ctx context.Context, persona *keystore.Persona, bundle *rag.Bundle, culture string, req Request) []*schema.Message {
	systemText := persona.SystemPrompt
	if s.retriever != nil {
		// The fragment renders every block label even on zero recall, so
		// the prompt shape is identical across rounds.
		fragment := prompt.Assemble(bundle, prompt.Options{
			WithholdAttribution: s.withholdAttribution,
			Culture:             culture,
		})
		systemText = strings.TrimRight(systemText, "\n") + "\n\n" + fragment.Render()
	}

	var history []*schema.Message
	for _, turn := range req.History {
		switch turn.Role {
		case "user":
			history = append(history, schema.UserMessage(turn.Content))
		case "assistant":
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}

	fixed := []*schema.Message{
		schema.SystemMessage(systemText),
		schema.UserMessage(req.Message),
	}

	before := len(history)
	history = budget.TrimHistory(fixed, history, s.maxContextTokens)
	if dropped := before - len(history); dropped > 0 {
		logging.FromContext(ctx).Warn("chat: dropped history messages to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(history)),
			slog.Int("max_tokens", s.maxContextTokens),
		)
	}

	messages := make([]*schema.Message, 0, 2+len(history))
	messages = append(messages, fixed[0])
	messages = append(messages, history...)
	messages = append(messages, fixed[1])
	return messages
}
