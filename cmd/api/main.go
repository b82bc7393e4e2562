package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ilyshalit/mebel1/internal/api"
	"github.com/ilyshalit/mebel1/internal/catalog"
	"github.com/ilyshalit/mebel1/internal/compose"
	"github.com/ilyshalit/mebel1/internal/config"
	"github.com/ilyshalit/mebel1/internal/files"
	"github.com/ilyshalit/mebel1/internal/llm"
	"github.com/ilyshalit/mebel1/internal/media"
	"github.com/ilyshalit/mebel1/internal/removebg"
	"github.com/ilyshalit/mebel1/internal/server"
	"github.com/ilyshalit/mebel1/internal/upsell"
	"github.com/ilyshalit/mebel1/internal/vision"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	store, err := files.NewStore(cfg.DataDir)
	if err != nil {
		log.Fatalf("failed to init file store: %v", err)
	}

	catalogStore, err := catalog.NewStore(catalog.DefaultPath(store.BaseDir))
	if err != nil {
		log.Fatalf("failed to init catalog: %v", err)
	}

	publisher, err := media.NewPublisher(ctx, media.Config{
		Bucket:          cfg.Media.Bucket,
		Region:          cfg.Media.Region,
		Endpoint:        cfg.Media.Endpoint,
		PublicURL:       cfg.Media.PublicURL,
		KeyPrefix:       cfg.Media.KeyPrefix,
		ForcePathStyle:  cfg.Media.ForcePathStyle,
		AccessKeyID:     cfg.Media.AccessKeyID,
		SecretAccessKey: cfg.Media.SecretAccessKey,
	})
	if err != nil {
		log.Fatalf("failed to init media publisher: %v", err)
	}

	var analyzer vision.Analyzer
	if client := chatClient(cfg.Vision.Provider, chatKeys{
		openAIKey:   cfg.Vision.OpenAIAPIKey,
		openAIModel: cfg.Vision.OpenAIModel,
		geminiKey:   cfg.Vision.GeminiAPIKey,
		geminiModel: cfg.Vision.GeminiModel,
		timeout:     cfg.Vision.Timeout,
	}); client != nil {
		analyzer = vision.NewChatAnalyzer(client)
		log.Println("vision analyzer ready:", cfg.Vision.Provider)
	} else {
		log.Println("vision analyzer: no API key, using default placements")
	}

	composer, err := compose.New(compose.Config{
		Backend:                  cfg.Compose.Backend,
		GeminiAPIKey:             cfg.Compose.GeminiAPIKey,
		GeminiModel:              cfg.Compose.GeminiModel,
		ImagenProjectID:          cfg.Compose.Imagen.ProjectID,
		ImagenLocation:           cfg.Compose.Imagen.Location,
		ImagenModel:              cfg.Compose.Imagen.Model,
		ImagenAPIKey:             cfg.Compose.Imagen.APIKey,
		ImagenServiceAccountJSON: cfg.Compose.Imagen.ServiceAccountJSON,
		KieAPIKey:                cfg.Compose.KieAPIKey,
		Timeout:                  cfg.Compose.Timeout,
	}, publisher)
	if err != nil {
		log.Fatalf("failed to init composer: %v", err)
	}
	log.Println("composer ready:", composer.ModelName())

	recommender := upsell.NewRecommender(chatClient(cfg.Upsell.Provider, chatKeys{
		openAIKey:   cfg.Upsell.OpenAIAPIKey,
		openAIModel: cfg.Upsell.OpenAIModel,
		geminiKey:   cfg.Upsell.GeminiAPIKey,
		geminiModel: cfg.Upsell.GeminiModel,
	}))

	handler := api.Handler{
		Files:    store,
		Catalog:  catalogStore,
		Analyzer: analyzer,
		Composer: composer,
		Remover:  removebg.NewClient(cfg.RemoveBG.APIKey),
		Upsell:   recommender,
	}

	srv := server.New(cfg.Port, handler, store, "web")

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-shutdownChan
		log.Println("shutting down server...")
		if err := srv.Close(); err != nil {
			log.Printf("server close error: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
}

type chatKeys struct {
	openAIKey, openAIModel string
	geminiKey, geminiModel string
	timeout                time.Duration
}

// chatClient builds a chat completion client for the given provider, or nil
// when no key is configured.
func chatClient(provider string, keys chatKeys) llm.Client {
	if strings.EqualFold(provider, "gemini") && keys.geminiKey != "" {
		return llm.NewGeminiClient(keys.geminiKey, keys.geminiModel, keys.timeout, nil)
	}
	if keys.openAIKey != "" {
		return llm.NewOpenAIClient(keys.openAIKey, keys.openAIModel, keys.timeout)
	}
	if keys.geminiKey != "" {
		return llm.NewGeminiClient(keys.geminiKey, keys.geminiModel, keys.timeout, nil)
	}
	return nil
}
