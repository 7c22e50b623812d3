package models

// Chat roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a conversation. Order within a conversation is chronological.
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content"`
}

// ChatRequest is the body accepted by the chat endpoints
type ChatRequest struct {
	Messages []ChatMessage `json:"messages" validate:"required,dive"`
	// RetrieveDocs defaults to true when omitted
	RetrieveDocs *bool `json:"retrieve_docs,omitempty"`
}

// ShouldRetrieve resolves the retrieve_docs flag and its default
func (r *ChatRequest) ShouldRetrieve() bool {
	return r.RetrieveDocs == nil || *r.RetrieveDocs
}

// AskRequest is the body accepted by the non-streaming ask endpoint
type AskRequest struct {
	Question string `json:"question" validate:"required"`
}

// AskResponse is the answer to an AskRequest
type AskResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}
