package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"medrag-api/internal/contextutil"
	"medrag-api/internal/llm"
	"medrag-api/internal/storage"
	"medrag-api/internal/vectorstore"
)

var (
	// ErrEmbedding is returned when the question could not be embedded.
	ErrEmbedding = errors.New("embedding service failed")
	// ErrSearch is returned when the vector index could not be queried.
	ErrSearch = errors.New("vector search failed")
	// ErrGeneration is returned when the language model failed to answer.
	ErrGeneration = errors.New("answer generation failed")
	// ErrUpstreamTimeout is returned when an upstream call exceeded its deadline.
	ErrUpstreamTimeout = errors.New("upstream request timed out")
)

const (
	defaultK = 5
	maxK     = 20

	// maxContextChars bounds the assembled context so the prompt stays within
	// the model's window even when many large chunks match.
	maxContextChars = 12000

	// sourcePreviewChars is how much chunk text a source citation carries.
	sourcePreviewChars = 200

	noContextAnswer = "I couldn't find any relevant information in this patient's documents to answer this question. The documents may not cover this topic, or they may not have been uploaded yet."

	systemPrompt = "You are a medical assistant that answers questions about one patient's uploaded medical documents. " +
		"Answer using only the information in the context below. Be specific: quote values, dates and reference ranges when the documents provide them. " +
		"If the context does not contain enough information to answer, say so plainly. " +
		"Do not give a diagnosis or treatment advice; suggest discussing results with a clinician where appropriate."
)

// QueryEmbedder embeds a single query string.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator produces a chat completion from a message sequence.
type Generator interface {
	ChatWithMessages(ctx context.Context, messages []llm.Message, params llm.ChatParams) (string, error)
}

// Engine answers questions about a patient's documents using retrieval-augmented generation.
type Engine interface {
	// Ask retrieves the patient's most relevant chunks and generates an answer.
	Ask(ctx context.Context, req AskRequest) (AskResponse, error)
}

// ragEngine implements the Engine interface.
type ragEngine struct {
	embedder    QueryEmbedder
	vectorStore vectorstore.VectorStore
	collection  string
	llmClient   Generator
	convRepo    storage.ConversationStore
}

// NewEngine creates a new RAG engine. convRepo may be nil to disable the
// conversation audit log.
func NewEngine(
	embedder QueryEmbedder,
	vectorStore vectorstore.VectorStore,
	collection string,
	llmClient Generator,
	convRepo storage.ConversationStore,
) Engine {
	return &ragEngine{
		embedder:    embedder,
		vectorStore: vectorStore,
		collection:  collection,
		llmClient:   llmClient,
		convRepo:    convRepo,
	}
}

// Ask answers a question scoped to one patient's documents.
func (e *ragEngine) Ask(ctx context.Context, req AskRequest) (AskResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if strings.TrimSpace(req.Question) == "" {
		return AskResponse{}, fmt.Errorf("question is required")
	}
	if req.PatientID == "" {
		return AskResponse{}, fmt.Errorf("patient ID is required")
	}

	k := req.K
	if k <= 0 {
		k = defaultK
	}
	if k > maxK {
		k = maxK
	}

	conversationID := uuid.New().String()

	logger.InfoContext(ctx, "rag query started",
		"patient_id", req.PatientID, "conversation_id", conversationID, "k", k)

	queryVector, err := e.embedder.EmbedQuery(ctx, req.Question)
	if err != nil {
		logger.ErrorContext(ctx, "failed to embed question", "error", err)
		return AskResponse{}, upstreamError(err, ErrEmbedding)
	}

	results, err := e.vectorStore.Search(ctx, e.collection, queryVector, k, req.PatientID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to search vector store", "error", err)
		return AskResponse{}, upstreamError(err, ErrSearch)
	}

	// Qdrant orders by score but ties are backend-dependent; pin the full
	// order so identical inputs produce identical answers.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return payloadInt(results[i].Payload[vectorstore.FieldChunkIndex]) <
			payloadInt(results[j].Payload[vectorstore.FieldChunkIndex])
	})

	if len(results) == 0 {
		logger.InfoContext(ctx, "no relevant chunks found",
			"patient_id", req.PatientID, "conversation_id", conversationID)
		resp := AskResponse{
			Answer:         noContextAnswer,
			Sources:        []Source{},
			ConversationID: conversationID,
		}
		e.saveConversation(ctx, conversationID, req, queryVector, resp.Answer, false)
		return resp, nil
	}

	contextString := buildContext(results)

	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf("%s\n\n%s", req.Question, contextString)},
	}

	answer, err := e.llmClient.ChatWithMessages(ctx, messages, llm.ChatParams{
		Temperature: 0.7,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to generate answer", "error", err)
		return AskResponse{}, upstreamError(err, ErrGeneration)
	}

	sources := make([]Source, 0, len(results))
	for _, result := range results {
		name, _ := result.Payload[vectorstore.FieldDocumentName].(string)
		content, _ := result.Payload[vectorstore.FieldContent].(string)
		sources = append(sources, Source{
			DocumentName: name,
			Content:      preview(content),
			Score:        result.Score,
		})
	}

	logger.InfoContext(ctx, "rag query completed",
		"patient_id", req.PatientID, "conversation_id", conversationID,
		"chunks_used", len(results), "answer_length", len(answer))

	resp := AskResponse{
		Answer:         answer,
		Sources:        sources,
		ConversationID: conversationID,
	}
	e.saveConversation(ctx, conversationID, req, queryVector, answer, true)
	return resp, nil
}

// saveConversation appends the exchange to the audit log. The log records who
// asked what, so anonymous queries are not persisted. Audit failures are
// logged and swallowed; they never fail a query that already has an answer.
func (e *ragEngine) saveConversation(ctx context.Context, conversationID string, req AskRequest, queryVector []float32, answer string, hasContext bool) {
	if e.convRepo == nil || req.UserID == "" {
		return
	}
	logger := contextutil.LoggerFromContext(ctx)

	turns := []*storage.ConversationTurn{
		{
			ConversationID: conversationID,
			UserID:         req.UserID,
			PatientID:      req.PatientID,
			Role:           "user",
			Content:        req.Question,
			Embedding:      queryVector,
			HasContext:     hasContext,
		},
		{
			ConversationID: conversationID,
			UserID:         req.UserID,
			PatientID:      req.PatientID,
			Role:           "assistant",
			Content:        answer,
			HasContext:     hasContext,
		},
	}

	if err := e.convRepo.InsertTurns(ctx, turns); err != nil {
		logger.WarnContext(ctx, "failed to save conversation",
			"conversation_id", conversationID, "error", err)
	}
}

// buildContext assembles the retrieved chunks into a labeled context block,
// stopping before maxContextChars is exceeded.
func buildContext(results []vectorstore.SearchResult) string {
	var b strings.Builder
	for i, result := range results {
		name, _ := result.Payload[vectorstore.FieldDocumentName].(string)
		content, _ := result.Payload[vectorstore.FieldContent].(string)

		entry := fmt.Sprintf("DOCUMENT %d - %s:\n%s", i+1, name, content)
		if b.Len() > 0 {
			entry = "\n\n---\n\n" + entry
		}
		if b.Len()+len(entry) > maxContextChars {
			break
		}
		b.WriteString(entry)
	}
	return b.String()
}

// preview truncates chunk text for a source citation, backing up to a rune
// boundary so the cut never leaves a broken UTF-8 sequence.
func preview(content string) string {
	if len(content) <= sourcePreviewChars {
		return content
	}
	cut := sourcePreviewChars
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "..."
}

// upstreamError maps a raw upstream failure to the engine's error kinds.
// Deadline expiry wins over the operation-specific kind.
func upstreamError(err error, kind error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %v", kind, err)
}

// payloadInt reads an integer payload value regardless of the numeric type
// the store decoded it to.
func payloadInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
