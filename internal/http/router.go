package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"medrag-api/internal/handlers"
	"medrag-api/internal/rag"
	"medrag-api/internal/service"
)

// requestTimeout bounds every request, including upstream LLM calls.
const requestTimeout = 60 * time.Second

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Ingestor       handlers.Ingestor
	RAGEngine      rag.Engine
	ChatService    service.ChatService
	VectorChecker  handlers.CollectionChecker
	CollectionName string
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(CORS)
	r.Use(LoggerMiddleware)

	uploadHandler := handlers.NewUploadHandler(deps.Ingestor)
	documentsHandler := handlers.NewDocumentsHandler(deps.Ingestor)
	queryHandler := handlers.NewQueryHandler(deps.RAGEngine)
	chatHandler := handlers.NewChatHandler(deps.ChatService)
	healthHandler := handlers.NewHealthHandler(deps.VectorChecker, deps.CollectionName)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", healthHandler)
		r.Method(http.MethodPost, "/chat", chatHandler)
		r.Method(http.MethodPost, "/chatbot/query", queryHandler)

		r.Route("/documents", func(r chi.Router) {
			r.Method(http.MethodPost, "/upload", uploadHandler)
			r.Get("/{patientID}", documentsHandler.List)
			r.Get("/{patientID}/stats", documentsHandler.Stats)
			r.Delete("/{patientID}/{documentID}", documentsHandler.Delete)
		})
	})

	return r
}
