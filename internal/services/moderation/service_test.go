package moderation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragstream/internal/interfaces"
)

func TestCheck_BlocksDefaultTerms(t *testing.T) {
	s := NewService(nil, arbor.NewLogger())

	for _, text := range []string{
		"what is my PASSWORD",
		"<SCRIPT>alert(1)</script>",
		"try eval(x)",
		"bombastic prose",
		"Suicide prevention",
	} {
		err := s.Check(text)
		require.Error(t, err, text)

		var rejection *interfaces.ModerationRejection
		require.True(t, errors.As(err, &rejection))
		assert.Equal(t, RejectionReason, rejection.Reason)
	}
}

func TestCheck_AllowsCleanText(t *testing.T) {
	s := NewService(nil, arbor.NewLogger())
	assert.NoError(t, s.Check("how do I rotate an API key?"))
	assert.NoError(t, s.Check(""))
}

func TestCheck_ExtraTerms(t *testing.T) {
	s := NewService([]string{"  Forbidden ", ""}, arbor.NewLogger())
	assert.Error(t, s.Check("this is forbidden"))
	assert.Error(t, s.Check("password"))
}

func TestDisabled(t *testing.T) {
	assert.NoError(t, Disabled{}.Check("password"))
}
