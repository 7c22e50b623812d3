package generation

import (
	"strings"

	"github.com/ternarybob/ragstream/internal/interfaces"
	"github.com/ternarybob/ragstream/internal/models"
)

// splitSystem separates system messages, which SDK providers take as a
// dedicated instruction, from the conversational turns. System texts keep their order.
func splitSystem(messages []models.ChatMessage) (string, []models.ChatMessage, error) {
	var system []string
	turns := make([]models.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		turns = append(turns, msg)
	}

	if len(turns) == 0 {
		return "", nil, interfaces.NewValidationError("conversation has no user or assistant messages")
	}

	return strings.Join(system, "\n\n"), turns, nil
}
