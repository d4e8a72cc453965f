// Command newsbased runs the HTTP API over a newsbase Engine.
//
// Grounded on bbiangul-go-reason/cmd/server/main.go: same flag/config/
// env-override chain, same JSON slog setup, same graceful-shutdown
// signal handling.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atlaslabs/newsbase"
	"github.com/atlaslabs/newsbase/api"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (JSON)")
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := newsbase.DefaultConfig()
	if *configPath != "" {
		f, err := os.Open(*configPath)
		if err != nil {
			slog.Error("opening config", "error", err)
			os.Exit(1)
		}
		if err := json.NewDecoder(f).Decode(&cfg); err != nil {
			f.Close()
			slog.Error("parsing config", "error", err)
			os.Exit(1)
		}
		f.Close()
	}

	if v := os.Getenv("NEWSBASE_DB_PATH"); v != "" {
		cfg.MetadataDBPath = v
	}
	if v := os.Getenv("NEWSBASE_VECTOR_ROOT"); v != "" {
		cfg.VectorStoreRoot = v
	}
	if v := os.Getenv("NEWSBASE_LLM_BASE_URL"); v != "" {
		cfg.LLM.Endpoint = v
	}
	if v := os.Getenv("NEWSBASE_EMBED_BASE_URL"); v != "" {
		cfg.Embedder.BaseURL = v
	}
	if v := os.Getenv("NEWSBASE_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("NEWSBASE_EMBED_API_KEY"); v != "" {
		cfg.Embedder.APIKey = v
	}
	if v := os.Getenv("NEWSBASE_LLM_MODEL"); v != "" {
		cfg.LLM.ModelID = v
	}
	if v := os.Getenv("NEWSBASE_EMBED_MODEL"); v != "" {
		cfg.Embedder.ModelID = v
	}
	if v := os.Getenv("NEWSBASE_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("NEWSBASE_EMBED_PROVIDER"); v != "" {
		cfg.Embedder.Provider = v
	}
	if v := os.Getenv("NEWSBASE_SEARCH_API_KEY"); v != "" {
		cfg.ExternalSearch.APIKey = v
	}
	if v := os.Getenv("NEWSBASE_SEARCH_ENGINE_ID"); v != "" {
		cfg.ExternalSearch.EngineID = v
	}

	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "openai_compat":
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if cfg.Embedder.APIKey == "" {
		switch cfg.Embedder.Provider {
		case "openai_compat":
			cfg.Embedder.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}

	apiKey := os.Getenv("NEWSBASE_API_KEY")
	corsOrigins := os.Getenv("NEWSBASE_CORS_ORIGINS")

	engine, err := newsbase.New(cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}

	handler := api.NewRouter(engine, api.Options{APIKey: apiKey, AllowedOrigin: corsOrigins})

	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming search and upload responses
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	if err := engine.Close(ctx); err != nil {
		slog.Error("engine shutdown error", "error", err)
	}

	slog.Info("server stopped")
}
