package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
)

func TestSystemPrompt(t *testing.T) {
	t.Parallel()

	for _, et := range domain.ExerciseTypes {
		p, err := SystemPrompt(et)
		require.NoError(t, err, et)
		assert.Contains(t, p, "single JSON document")
		assert.Contains(t, p, "Shape:")
	}
	_, err := SystemPrompt("essay")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
