package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/adab-ai/adab-go/internal/chat"
	"github.com/adab-ai/adab-go/internal/embedder"
	"github.com/adab-ai/adab-go/internal/gateway"
	"github.com/adab-ai/adab-go/internal/logging"
	"github.com/adab-ai/adab-go/internal/provider"
	"github.com/adab-ai/adab-go/internal/rag"
	"github.com/adab-ai/adab-go/internal/tracing"
)

// NewServeCmd constructs the `adab serve` command, which starts the HTTP
// gateway in front of the chat pipeline.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Adab HTTP gateway",
		Long: `Start the Adab HTTP gateway on localhost.

The gateway exposes POST /api/v1/chat behind sk_ API-key authentication,
plus health, readiness, and Prometheus metrics endpoints. Every chat round
retrieves guidelines, book excerpts, and negative examples before the
model generates a reply.

Examples:
  adab serve
  adab serve --port 9090
  MODEL_PROVIDER=gemini adab serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", getEnvOrDefault("MODEL_PROVIDER", "openai")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}

			if err := embedder.ValidateForRAG(log); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("serve: failed to initialise embedder: %w", err)
			}

			// The collections are provisioned for one dimensionality; probe
			// the embedder once so a misconfigured backend fails at startup
			// instead of degrading every retrieval round.
			wantDims := embedder.DefaultDimensions(embeddingBackend())
			if err := embedder.VerifyDimensions(ctx, emb, wantDims); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			log.Info("embedder verified",
				slog.String("backend", embeddingBackend()),
				slog.Int("dimensions", wantDims),
			)

			searchStore, err := openSearchStore(ctx)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer searchStore.Close()

			keys, err := openKeystore()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer keys.Close()

			orchestrator, err := rag.NewOrchestrator(emb, searchStore, retrievalConfig(), log)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise retrieval: %w", err)
			}

			service, err := chat.New(&chat.Config{
				ChatModel:           chatModel,
				ModelName:           modelDisplayName(),
				Retriever:           orchestrator,
				Personas:            keys,
				WithholdAttribution: os.Getenv("PROMPT_WITHHOLD_ATTRIBUTION") == "true",
				MaxContextTokens:    getEnvInt("MAX_CONTEXT_TOKENS", 0),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to initialise chat service: %w", err)
			}

			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("SERVER_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("SERVER_PORT", port)
			}

			srv, err := gateway.New(service, keys, &gateway.Config{
				Host:   host,
				Port:   port,
				Logger: log,
				Pingers: []gateway.Pinger{
					gateway.NewQdrantPinger(searchStore),
					gateway.NewKeystorePinger(keys),
				},
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create gateway: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}

// modelDisplayName resolves the generation model name reported in chat
// responses from the active backend's environment.
func modelDisplayName() string {
	switch getEnvOrDefault("MODEL_PROVIDER", "openai") {
	case "ollama":
		return getEnvOrDefault("OLLAMA_MODEL", "llama3")
	case "azure":
		return getEnvOrDefault("AZURE_OPENAI_DEPLOYMENT", "azure-openai")
	case "bedrock":
		return getEnvOrDefault("BEDROCK_MODEL_ID", "bedrock")
	case "gemini":
		return getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash")
	default:
		return getEnvOrDefault("OPENAI_MODEL", "gpt-4o")
	}
}
