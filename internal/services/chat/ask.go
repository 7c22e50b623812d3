package chat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/ternarybob/ragstream/internal/interfaces"
	"github.com/ternarybob/ragstream/internal/models"
)

// Ask answers a single question grounded on the best matching document.
// The generation stream is consumed fully and its text returned in one piece.
func (s *Service) Ask(ctx context.Context, caller models.Caller, question string) (*models.AskResponse, error) {
	if err := s.validate.Struct(&models.AskRequest{Question: strings.TrimSpace(question)}); err != nil {
		return nil, interfaces.NewValidationError("question is required")
	}
	if err := s.moderator.Check(question); err != nil {
		return nil, err
	}

	grounding, sources, err := s.retrieveContext(ctx, caller.UserID, question, 1)
	if err != nil {
		return nil, err
	}

	messages := make([]models.ChatMessage, 0, len(grounding)+2)
	messages = append(messages, models.ChatMessage{Role: models.RoleSystem, Content: s.options.AskPrompt})
	messages = append(messages, grounding...)
	messages = append(messages, models.ChatMessage{Role: models.RoleUser, Content: question})

	stream, err := s.generation.Stream(ctx, messages)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	answer, err := collectText(stream)
	if err != nil {
		return nil, &interfaces.UpstreamError{Service: "chat", Err: err}
	}

	return &models.AskResponse{Answer: answer, Sources: sources}, nil
}

// collectText concatenates the text carried by an SSE stream. Frames holding
// {"response": "..."} contribute the response field, other data lines are taken verbatim.
func collectText(r io.Reader) (string, error) {
	var sb strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		payload, ok := strings.CutPrefix(scanner.Text(), "data:")
		if !ok {
			continue
		}
		payload = strings.TrimPrefix(payload, " ")
		if payload == "[DONE]" {
			break
		}

		var frame struct {
			Response *string `json:"response"`
		}
		if err := json.Unmarshal([]byte(payload), &frame); err == nil && frame.Response != nil {
			sb.WriteString(*frame.Response)
			continue
		}
		sb.WriteString(payload)
	}

	return sb.String(), scanner.Err()
}
