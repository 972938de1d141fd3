package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/joho/godotenv"
	chromemgo "github.com/philippgille/chromem-go"
	"github.com/spf13/cobra"

	tutoring "github.com/chalklabs/chalk-core/core"
	"github.com/chalklabs/chalk-core/core/classify"
	"github.com/chalklabs/chalk-core/core/knowledge/chromem"
	"github.com/chalklabs/chalk-core/core/llms"
	"github.com/chalklabs/chalk-core/core/llms/openai"
	"github.com/chalklabs/chalk-core/core/sessions"
	sttdeepgram "github.com/chalklabs/chalk-core/core/speechtotext/deepgram"
	ttsdeepgram "github.com/chalklabs/chalk-core/core/texttospeech/deepgram"
	"github.com/chalklabs/chalk-core/internal/config"
	"github.com/chalklabs/chalk-core/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tutoring API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()
	cfg := config.Load()

	if cfg.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}

	generator, err := openai.NewClient(cfg.OpenAIAPIKey,
		openai.WithModel(cfg.Model),
		openai.WithBaseURL(cfg.OpenAIBaseURL),
	)
	if err != nil {
		return fmt.Errorf("failed to create generation client: %w", err)
	}

	classifier := classify.NewClassifier(func(ctx context.Context, prompt string, opts ...llms.PromptOption) (*classify.Classification, error) {
		return openai.PromptJSONSchema(ctx, generator, prompt, classify.Classification{}, opts...)
	})

	store := sessions.NewStore()
	orchestratorOpts := []tutoring.OrchestratorOption{
		tutoring.WithGenerator(generator),
		tutoring.WithSynthesisConcurrency(cfg.SynthesisConcurrency),
		tutoring.WithHistoryLimit(cfg.HistoryLimit),
	}
	serverOpts := []server.Option{
		server.WithClassifier(classifier),
		server.WithTitler(generator),
	}

	if cfg.DeepgramAPIKey != "" {
		var ttsOpts []ttsdeepgram.ClientOption
		if cfg.Voice != "" {
			ttsOpts = append(ttsOpts, ttsdeepgram.WithVoice(ttsdeepgram.Voice(cfg.Voice)))
		}
		synthesizer, err := ttsdeepgram.NewClient(cfg.DeepgramAPIKey, ttsOpts...)
		if err != nil {
			return fmt.Errorf("failed to create synthesis client: %w", err)
		}
		orchestratorOpts = append(orchestratorOpts, tutoring.WithSynthesizer(synthesizer))
		serverOpts = append(serverOpts, server.WithTranscriberFactory(func() (server.Transcriber, error) {
			return sttdeepgram.NewTranscriptionClient(cfg.DeepgramAPIKey)
		}))
		log.Println("[SPEECH] Deepgram synthesis and transcription enabled")
	} else {
		log.Println("[SPEECH] DEEPGRAM_API_KEY not set, responses are text-only")
	}

	knowledgeBase, err := chromem.New(cfg.DataDir,
		chromemgo.NewEmbeddingFuncOpenAICompat(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.EmbeddingModel, nil))
	if err != nil {
		return fmt.Errorf("failed to open knowledge base: %w", err)
	}
	orchestratorOpts = append(orchestratorOpts, tutoring.WithRetriever(knowledgeBase))
	serverOpts = append(serverOpts, server.WithKnowledgeBase(knowledgeBase))
	log.Println("[KNOWLEDGE] Index at", cfg.DataDir)

	orchestrator := tutoring.NewOrchestrator(store, orchestratorOpts...)
	srv := server.New(store, orchestrator, serverOpts...)

	log.Println("Chalk API listening on", cfg.Addr)
	return http.ListenAndServe(cfg.Addr, srv)
}
