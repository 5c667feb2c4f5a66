package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"go.uber.org/mock/gomock"

	"medrag-api/internal/llm"
	"medrag-api/internal/storage"
	"medrag-api/internal/vectorstore"
	"medrag-api/internal/vectorstore/mocks"
)

const testCollection = "medical_documents"

type fakeQueryEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeQueryEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type fakeGenerator struct {
	answer   string
	err      error
	messages []llm.Message
	calls    int
}

func (f *fakeGenerator) ChatWithMessages(ctx context.Context, messages []llm.Message, params llm.ChatParams) (string, error) {
	f.calls++
	f.messages = messages
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type fakeConvStore struct {
	turns []*storage.ConversationTurn
	err   error
}

func (f *fakeConvStore) InsertTurns(ctx context.Context, turns []*storage.ConversationTurn) error {
	if f.err != nil {
		return f.err
	}
	f.turns = append(f.turns, turns...)
	return nil
}

func searchHit(docName, content string, chunkIndex int, score float32) vectorstore.SearchResult {
	return vectorstore.SearchResult{
		PointID: docName + "-" + content[:min(len(content), 8)],
		Score:   score,
		Payload: map[string]any{
			vectorstore.FieldDocumentName: docName,
			vectorstore.FieldContent:      content,
			vectorstore.FieldChunkIndex:   int64(chunkIndex),
		},
	}
}

func TestEngine_Ask(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockVS := mocks.NewMockVectorStore(ctrl)
	generator := &fakeGenerator{answer: "Your total cholesterol was 185 mg/dL."}
	convStore := &fakeConvStore{}

	queryVector := []float32{0.1, 0.2}
	mockVS.EXPECT().
		Search(gomock.Any(), testCollection, queryVector, 5, "patient-1").
		Return([]vectorstore.SearchResult{
			searchHit("labs.pdf", "Total cholesterol: 185 mg/dL (ref <200)", 0, 0.91),
			searchHit("labs.pdf", "LDL cholesterol: 110 mg/dL", 1, 0.85),
		}, nil)

	engine := NewEngine(&fakeQueryEmbedder{vector: queryVector}, mockVS, testCollection, generator, convStore)

	resp, err := engine.Ask(context.Background(), AskRequest{
		Question:  "What were my cholesterol levels?",
		PatientID: "patient-1",
		UserID:    "user-1",
	})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	if resp.Answer != generator.answer {
		t.Errorf("Ask() Answer = %v, want %v", resp.Answer, generator.answer)
	}
	if resp.ConversationID == "" {
		t.Error("Ask() ConversationID is empty")
	}
	if len(resp.Sources) != 2 {
		t.Fatalf("Ask() returned %d sources, want 2", len(resp.Sources))
	}
	if resp.Sources[0].DocumentName != "labs.pdf" {
		t.Errorf("Ask() Sources[0].DocumentName = %v, want labs.pdf", resp.Sources[0].DocumentName)
	}
	if resp.Sources[0].Score != 0.91 {
		t.Errorf("Ask() Sources[0].Score = %v, want 0.91", resp.Sources[0].Score)
	}

	// The prompt carries the question and the labeled chunk context
	if len(generator.messages) != 2 {
		t.Fatalf("generator received %d messages, want 2", len(generator.messages))
	}
	if generator.messages[0].Role != "system" {
		t.Errorf("first message role = %v, want system", generator.messages[0].Role)
	}
	userMsg := generator.messages[1].Content
	if !strings.Contains(userMsg, "What were my cholesterol levels?") {
		t.Error("user message missing the question")
	}
	if !strings.Contains(userMsg, "DOCUMENT 1 - labs.pdf:") {
		t.Error("user message missing labeled context")
	}
	if !strings.Contains(userMsg, "Total cholesterol: 185 mg/dL") {
		t.Error("user message missing chunk content")
	}

	// Both turns of the exchange are audited
	if len(convStore.turns) != 2 {
		t.Fatalf("audit stored %d turns, want 2", len(convStore.turns))
	}
	if convStore.turns[0].Role != "user" || convStore.turns[1].Role != "assistant" {
		t.Errorf("audit roles = %v, %v, want user, assistant", convStore.turns[0].Role, convStore.turns[1].Role)
	}
	if convStore.turns[0].ConversationID != resp.ConversationID {
		t.Error("audit conversation ID does not match response")
	}
	if !convStore.turns[0].HasContext {
		t.Error("audit user turn should record that context was found")
	}
}

func TestEngine_Ask_Validation(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockVS := mocks.NewMockVectorStore(ctrl)
	engine := NewEngine(&fakeQueryEmbedder{}, mockVS, testCollection, &fakeGenerator{}, nil)

	if _, err := engine.Ask(context.Background(), AskRequest{Question: "  ", PatientID: "patient-1"}); err == nil {
		t.Error("Ask() with blank question should return error")
	}
	if _, err := engine.Ask(context.Background(), AskRequest{Question: "q", PatientID: ""}); err == nil {
		t.Error("Ask() with empty patient ID should return error")
	}
}

func TestEngine_Ask_KBounds(t *testing.T) {
	tests := []struct {
		name  string
		reqK  int
		wantK int
	}{
		{name: "default", reqK: 0, wantK: 5},
		{name: "explicit", reqK: 8, wantK: 8},
		{name: "clamped to max", reqK: 50, wantK: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			mockVS := mocks.NewMockVectorStore(ctrl)
			mockVS.EXPECT().
				Search(gomock.Any(), testCollection, gomock.Any(), tt.wantK, "patient-1").
				Return([]vectorstore.SearchResult{}, nil)

			engine := NewEngine(&fakeQueryEmbedder{vector: []float32{0.1}}, mockVS, testCollection, &fakeGenerator{}, nil)

			if _, err := engine.Ask(context.Background(), AskRequest{Question: "q", PatientID: "patient-1", K: tt.reqK}); err != nil {
				t.Fatalf("Ask() error = %v", err)
			}
		})
	}
}

func TestEngine_Ask_NoResults(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockVS := mocks.NewMockVectorStore(ctrl)
	generator := &fakeGenerator{answer: "should not be called"}
	convStore := &fakeConvStore{}

	mockVS.EXPECT().
		Search(gomock.Any(), testCollection, gomock.Any(), 5, "patient-1").
		Return([]vectorstore.SearchResult{}, nil)

	engine := NewEngine(&fakeQueryEmbedder{vector: []float32{0.1}}, mockVS, testCollection, generator, convStore)

	resp, err := engine.Ask(context.Background(), AskRequest{Question: "q", PatientID: "patient-1", UserID: "user-1"})
	if err != nil {
		t.Fatalf("Ask() with no results should not error, got: %v", err)
	}

	if resp.Answer != noContextAnswer {
		t.Errorf("Ask() Answer = %v, want the no-context fallback", resp.Answer)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("Ask() returned %d sources, want 0", len(resp.Sources))
	}
	if resp.ConversationID == "" {
		t.Error("Ask() ConversationID is empty")
	}
	if generator.calls != 0 {
		t.Error("generator should not be called when no chunks match")
	}
	if len(convStore.turns) != 2 {
		t.Fatalf("audit stored %d turns, want 2", len(convStore.turns))
	}
	if convStore.turns[0].HasContext {
		t.Error("audit should record that no context was found")
	}
}

func TestEngine_Ask_DeterministicOrdering(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockVS := mocks.NewMockVectorStore(ctrl)
	generator := &fakeGenerator{answer: "ok"}

	// Equal scores: the lower chunk index must come first. Higher score
	// always beats both.
	mockVS.EXPECT().
		Search(gomock.Any(), testCollection, gomock.Any(), 5, "patient-1").
		Return([]vectorstore.SearchResult{
			searchHit("report.pdf", "chunk five", 5, 0.8),
			searchHit("report.pdf", "chunk two", 2, 0.8),
			searchHit("report.pdf", "chunk nine", 9, 0.95),
		}, nil)

	engine := NewEngine(&fakeQueryEmbedder{vector: []float32{0.1}}, mockVS, testCollection, generator, nil)

	resp, err := engine.Ask(context.Background(), AskRequest{Question: "q", PatientID: "patient-1"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	wantOrder := []string{"chunk nine", "chunk two", "chunk five"}
	if len(resp.Sources) != len(wantOrder) {
		t.Fatalf("Ask() returned %d sources, want %d", len(resp.Sources), len(wantOrder))
	}
	for i, want := range wantOrder {
		if resp.Sources[i].Content != want {
			t.Errorf("Sources[%d].Content = %v, want %v", i, resp.Sources[i].Content, want)
		}
	}
}

func TestEngine_Ask_ErrorKinds(t *testing.T) {
	searchErr := errors.New("connection refused")

	tests := []struct {
		name      string
		embedder  *fakeQueryEmbedder
		searchErr error
		genErr    error
		wantErr   error
	}{
		{
			name:     "embedding failure",
			embedder: &fakeQueryEmbedder{err: errors.New("api error 500")},
			wantErr:  ErrEmbedding,
		},
		{
			name:     "embedding timeout",
			embedder: &fakeQueryEmbedder{err: context.DeadlineExceeded},
			wantErr:  ErrUpstreamTimeout,
		},
		{
			name:      "search failure",
			embedder:  &fakeQueryEmbedder{vector: []float32{0.1}},
			searchErr: searchErr,
			wantErr:   ErrSearch,
		},
		{
			name:     "generation failure",
			embedder: &fakeQueryEmbedder{vector: []float32{0.1}},
			genErr:   errors.New("api error 500"),
			wantErr:  ErrGeneration,
		},
		{
			name:     "generation timeout",
			embedder: &fakeQueryEmbedder{vector: []float32{0.1}},
			genErr:   context.DeadlineExceeded,
			wantErr:  ErrUpstreamTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			mockVS := mocks.NewMockVectorStore(ctrl)

			if tt.embedder.err == nil {
				if tt.searchErr != nil {
					mockVS.EXPECT().
						Search(gomock.Any(), testCollection, gomock.Any(), 5, "patient-1").
						Return(nil, tt.searchErr)
				} else {
					mockVS.EXPECT().
						Search(gomock.Any(), testCollection, gomock.Any(), 5, "patient-1").
						Return([]vectorstore.SearchResult{searchHit("doc.pdf", "content", 0, 0.9)}, nil)
				}
			}

			engine := NewEngine(tt.embedder, mockVS, testCollection, &fakeGenerator{err: tt.genErr, answer: "ok"}, nil)

			_, err := engine.Ask(context.Background(), AskRequest{Question: "q", PatientID: "patient-1"})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Ask() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEngine_Ask_AuditFailureSwallowed(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockVS := mocks.NewMockVectorStore(ctrl)
	convStore := &fakeConvStore{err: errors.New("database locked")}

	mockVS.EXPECT().
		Search(gomock.Any(), testCollection, gomock.Any(), 5, "patient-1").
		Return([]vectorstore.SearchResult{searchHit("doc.pdf", "content", 0, 0.9)}, nil)

	engine := NewEngine(&fakeQueryEmbedder{vector: []float32{0.1}}, mockVS, testCollection, &fakeGenerator{answer: "ok"}, convStore)

	resp, err := engine.Ask(context.Background(), AskRequest{Question: "q", PatientID: "patient-1", UserID: "user-1"})
	if err != nil {
		t.Fatalf("Ask() should succeed when only the audit write fails, got: %v", err)
	}
	if resp.Answer != "ok" {
		t.Errorf("Ask() Answer = %v, want ok", resp.Answer)
	}
}

func TestEngine_Ask_NoAuditWithoutUser(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockVS := mocks.NewMockVectorStore(ctrl)
	convStore := &fakeConvStore{}

	mockVS.EXPECT().
		Search(gomock.Any(), testCollection, gomock.Any(), 5, "patient-1").
		Return([]vectorstore.SearchResult{searchHit("doc.pdf", "content", 0, 0.9)}, nil).
		Times(2)

	engine := NewEngine(&fakeQueryEmbedder{vector: []float32{0.1}}, mockVS, testCollection, &fakeGenerator{answer: "ok"}, convStore)

	// An anonymous query is answered but never recorded
	resp, err := engine.Ask(context.Background(), AskRequest{Question: "q", PatientID: "patient-1"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.Answer != "ok" {
		t.Errorf("Ask() Answer = %v, want ok", resp.Answer)
	}
	if len(convStore.turns) != 0 {
		t.Fatalf("audit stored %d turns for an anonymous query, want 0", len(convStore.turns))
	}

	// The same query with a user identity is recorded
	if _, err := engine.Ask(context.Background(), AskRequest{Question: "q", PatientID: "patient-1", UserID: "user-1"}); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(convStore.turns) != 2 {
		t.Fatalf("audit stored %d turns, want 2", len(convStore.turns))
	}
	if convStore.turns[0].UserID != "user-1" {
		t.Errorf("audit user ID = %v, want user-1", convStore.turns[0].UserID)
	}
}

func TestEngine_Ask_SourcePreviewTruncated(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockVS := mocks.NewMockVectorStore(ctrl)

	long := strings.Repeat("x", 450)
	mockVS.EXPECT().
		Search(gomock.Any(), testCollection, gomock.Any(), 5, "patient-1").
		Return([]vectorstore.SearchResult{searchHit("doc.pdf", long, 0, 0.9)}, nil)

	engine := NewEngine(&fakeQueryEmbedder{vector: []float32{0.1}}, mockVS, testCollection, &fakeGenerator{answer: "ok"}, nil)

	resp, err := engine.Ask(context.Background(), AskRequest{Question: "q", PatientID: "patient-1"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	got := resp.Sources[0].Content
	if len(got) != sourcePreviewChars+len("...") {
		t.Errorf("source preview length = %d, want %d", len(got), sourcePreviewChars+3)
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("truncated source preview should end with ellipsis")
	}
}

func TestEngine_Ask_SourcePreviewRuneBoundary(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockVS := mocks.NewMockVectorStore(ctrl)

	// 3-byte runes put byte 200 in the middle of a rune
	long := strings.Repeat("€", 150)
	mockVS.EXPECT().
		Search(gomock.Any(), testCollection, gomock.Any(), 5, "patient-1").
		Return([]vectorstore.SearchResult{searchHit("doc.pdf", long, 0, 0.9)}, nil)

	engine := NewEngine(&fakeQueryEmbedder{vector: []float32{0.1}}, mockVS, testCollection, &fakeGenerator{answer: "ok"}, nil)

	resp, err := engine.Ask(context.Background(), AskRequest{Question: "q", PatientID: "patient-1"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	got := resp.Sources[0].Content
	if !utf8.ValidString(got) {
		t.Error("truncated source preview contains a broken UTF-8 sequence")
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("truncated source preview should end with ellipsis")
	}
	if len(got) > sourcePreviewChars+len("...") {
		t.Errorf("source preview length = %d, want at most %d", len(got), sourcePreviewChars+3)
	}
}
