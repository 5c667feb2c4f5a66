package rag

// AskRequest is a question about one patient's documents.
type AskRequest struct {
	Question  string `json:"question"`
	PatientID string `json:"patientId"`
	UserID    string `json:"userId"`
	K         int    `json:"k,omitempty"` // Number of chunks to retrieve (default 5, max 20)
}

// Source identifies a document chunk that backed an answer.
type Source struct {
	DocumentName string  `json:"documentName"`
	Content      string  `json:"content"` // Preview of the chunk, truncated
	Score        float32 `json:"score"`
}

// AskResponse is the generated answer with its provenance.
type AskResponse struct {
	Answer         string   `json:"answer"`
	Sources        []Source `json:"sources"`
	ConversationID string   `json:"conversationId"`
}
