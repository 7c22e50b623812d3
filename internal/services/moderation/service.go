// Package moderation screens user-authored text against a blocklist
package moderation

import (
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragstream/internal/interfaces"
)

// RejectionReason is reported for every blocklist match
const RejectionReason = "content blocked by heuristics"

// DefaultBlockedTerms are matched case-insensitively as substrings
var DefaultBlockedTerms = []string{"<script", "eval(", "password", "suicide", "bomb"}

// Service implements interfaces.Moderator
type Service struct {
	terms  []string
	logger arbor.ILogger
}

// NewService builds a moderator over the default terms plus extra
func NewService(extra []string, logger arbor.ILogger) *Service {
	terms := make([]string, 0, len(DefaultBlockedTerms)+len(extra))
	for _, term := range append(append([]string{}, DefaultBlockedTerms...), extra...) {
		if term = strings.ToLower(strings.TrimSpace(term)); term != "" {
			terms = append(terms, term)
		}
	}
	return &Service{terms: terms, logger: logger}
}

// Check returns *interfaces.ModerationRejection on the first matching term
func (s *Service) Check(text string) error {
	lower := strings.ToLower(text)
	for _, term := range s.terms {
		if strings.Contains(lower, term) {
			// The matched term is logged, never returned to the caller
			s.logger.Debug().Str("term", term).Msg("Content rejected by moderation")
			return &interfaces.ModerationRejection{Reason: RejectionReason}
		}
	}
	return nil
}

// Disabled is a Moderator that accepts everything
type Disabled struct{}

func (Disabled) Check(string) error { return nil }
