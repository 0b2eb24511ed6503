package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/consulmed/consulmed/internal/adapters/auth"
	"github.com/consulmed/consulmed/internal/adapters/httpapi"
	"github.com/consulmed/consulmed/internal/adapters/llm"
	"github.com/consulmed/consulmed/internal/adapters/ocr"
	firestorestore "github.com/consulmed/consulmed/internal/adapters/storage/firestore"
	memstore "github.com/consulmed/consulmed/internal/adapters/storage/memory"
	sqlitestore "github.com/consulmed/consulmed/internal/adapters/storage/sqlite"
	"github.com/consulmed/consulmed/internal/app/controlcode"
	"github.com/consulmed/consulmed/internal/app/conversation"
	"github.com/consulmed/consulmed/internal/app/ingest"
	"github.com/consulmed/consulmed/internal/config"
	"github.com/consulmed/consulmed/internal/domain"
	"github.com/consulmed/consulmed/internal/observability"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	log := observability.Logger()

	// Assistant backend.
	llmClient, err := llm.NewClientFromConfig(ctx, cfg)
	if err != nil {
		log.Error("initializing llm client", "error", err)
		os.Exit(1)
	}
	log.Info("llm backend ready", "provider", cfg.LLMProvider)

	// Storage.
	var (
		sessionStore domain.SessionStore
		messageStore domain.MessageStore
	)
	switch cfg.StorageBackend {
	case "firestore":
		fs, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			log.Error("initializing firestore store", "error", err)
			os.Exit(1)
		}
		sessionStore, messageStore = fs, fs
		log.Info("storage ready", "backend", "firestore", "project", cfg.GCPProjectID)

	case "sqlite":
		db, err := sqlitestore.NewStore(cfg.SQLitePath)
		if err != nil {
			log.Error("initializing sqlite store", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		sessionStore, messageStore = db, db
		log.Info("storage ready", "backend", "sqlite", "path", cfg.SQLitePath)

	default:
		mem := memstore.NewSessionStore()
		sessionStore, messageStore = mem, memstore.NewMessageStore()
		log.Info("storage ready", "backend", "memory")
	}

	// OCR collaborator.
	var ocrClient domain.OCRClient
	if cfg.OCRBaseURL != "" {
		ocrClient = ocr.NewClient(cfg.OCRBaseURL)
	} else {
		ocrClient = ocr.NewMockClient()
		log.Info("using mock OCR client")
	}

	// Identity.
	var verifier domain.TokenVerifier
	if cfg.Mode == config.ModeLocal {
		verifier = auth.NewInsecureVerifier()
		log.Warn("insecure token verifier active, local mode only")
	} else {
		verifier = auth.NewStaticVerifier(serviceTokens())
	}

	// Core.
	store := conversation.NewStore(sessionStore, messageStore)
	engine := conversation.NewEngine(store, llmClient, controlcode.NewInterpreter())
	ingestor := ingest.New(ocrClient, cfg.OCRMinConfidence)

	handler := httpapi.NewServer(store, engine, ingestor, verifier)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("consulmed api listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// serviceTokens reads pre-provisioned tokens from CONSULMED_SERVICE_TOKENS
// as comma-separated token=user pairs.
func serviceTokens() map[string]domain.UserID {
	tokens := make(map[string]domain.UserID)
	for _, pair := range strings.Split(os.Getenv("CONSULMED_SERVICE_TOKENS"), ",") {
		token, user, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if ok && token != "" && user != "" {
			tokens[token] = domain.UserID(user)
		}
	}
	return tokens
}
