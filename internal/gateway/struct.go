package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/adab-ai/adab-go/internal/chat"
	"github.com/adab-ai/adab-go/internal/keystore"
)

// Config holds the HTTP gateway configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the gateway and its handlers.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP (requests/second).
	// This is flood protection in front of the per-credential hourly budget.
	// Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
}

// Verifier resolves and rate-accounts API credentials.
// Satisfied by *keystore.Store; tests inject a fake.
type Verifier interface {
	Verify(ctx context.Context, rawKey string) (*keystore.Credential, error)
}

// Responder runs one chat round. Satisfied by *chat.Service; tests inject a fake.
type Responder interface {
	Respond(ctx context.Context, req chat.Request) (*chat.Response, error)
}

// Server is the HTTP gateway in front of the chat pipeline.
type Server struct {
	// responder handles authenticated chat requests.
	responder Responder
	// verifier authenticates credentials and consumes their rate budget.
	verifier Verifier
	// cfg holds the resolved gateway configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this gateway instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds this instance's Prometheus metrics.
	metrics *gatewayMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// historyTurn is one prior conversation message in a chat request.
type historyTurn struct {
	// Role is "user" or "assistant".
	Role string `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
}

// chatRequest is the JSON body for POST /api/v1/chat.
type chatRequest struct {
	// Message is the user's current message.
	Message string `json:"message"`
	// History holds prior conversation turns, oldest first.
	History []historyTurn `json:"conversation_history,omitempty"`
	// Country and Race describe the user's background, mapped to a culture
	// label that scopes retrieval.
	Country string `json:"country,omitempty"`
	Race    string `json:"race,omitempty"`
	// Category optionally restricts guideline retrieval to one category.
	Category string `json:"category,omitempty"`
	// Temperature and MaxTokens override the generation tuning for this
	// request. Omitted fields leave the backend defaults in place.
	Temperature *float32 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// chatPersona identifies the responding persona in a chat response.
type chatPersona struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// chatUsage reports the credential's rate budget after this request.
type chatUsage struct {
	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`
	// Limit is the per-hour request ceiling.
	Limit int `json:"limit"`
}

// chatMetadata carries per-request diagnostics.
type chatMetadata struct {
	// ProcessingTimeMS is the wall-clock request duration in milliseconds.
	ProcessingTimeMS int64 `json:"processing_time_ms"`
	// Timestamp is the RFC 3339 completion time.
	Timestamp string `json:"timestamp"`
	// Degraded lists the collections whose search failed this round, sorted.
	// Failure reasons stay in server logs. Omitted on a clean round.
	Degraded []string `json:"degraded,omitempty"`
}

// chatResponse is the JSON body returned by POST /api/v1/chat.
type chatResponse struct {
	Response string       `json:"response"`
	Model    string       `json:"model"`
	Persona  chatPersona  `json:"persona"`
	Usage    chatUsage    `json:"usage"`
	Metadata chatMetadata `json:"metadata"`
}

// errorResponse is the JSON body for all gateway error statuses.
type errorResponse struct {
	Error string `json:"error"`
}
