// Package history bounds a conversation to a token budget
package history

import (
	"unicode/utf8"

	"github.com/ternarybob/ragstream/internal/models"
)

// DefaultMaxTokens is the history budget used when none is configured
const DefaultMaxTokens = 3000

// EstimateTokens approximates token count as ceil(characters/4).
// Characters are counted as runes so multi-byte text is not over-counted.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// Trim keeps the newest messages whose summed estimate fits in budget.
// Walking newest to oldest, the first message that would overflow stops inclusion,
// so the result is always a contiguous suffix in chronological order.
// If the newest message alone exceeds budget the result is empty.
func Trim(messages []models.ChatMessage, budget int) []models.ChatMessage {
	total := 0
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		cost := EstimateTokens(messages[i].Content)
		if total+cost > budget {
			break
		}
		total += cost
		start = i
	}

	kept := make([]models.ChatMessage, len(messages)-start)
	copy(kept, messages[start:])
	return kept
}
