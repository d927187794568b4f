// Package ai holds the grading prompts shared by the AI adapters.
package ai

import (
	"fmt"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
)

const preamble = `You are a sales trainer grading a learner's written exercise.
Answer with a single JSON document and nothing else. Use only the point values allowed by the rubric.
`

var shapes = map[domain.ExerciseType]string{
	domain.ExerciseDialogue: `Score every line of the dialogue, once for the salesperson and once for the client.
Shape: {"responses": [{"line": 1, "role": "commercial", "score": 2, "comment": "..."}], "feedback": "..."}`,
	domain.ExerciseCharacteristic: `Score every characteristic on description, advantages, benefits, proofs and control question.
Shape: {"responses": [{"characteristic": 1, "section": "benefits", "score": 2, "comment": "..."}], "globalComment": "..."}`,
	domain.ExerciseSection: `Score every answer of every section in order.
Shape: {"sections": [{"id": "open", "answers": [{"score": 2, "comment": "..."}]}], "feedback": "..."}`,
	domain.ExerciseObjection: `Score every objection on listen, reformulate, answer and confirmation.
Shape: {"responses": [{"objection": 1, "category": "listen", "score": 4, "comment": "..."}], "feedback": "..."}`,
	domain.ExerciseFreeScore: `Give one overall score.
Shape: {"score": 15, "comment": "..."}`,
}

// SystemPrompt returns the grading instructions for t.
func SystemPrompt(t domain.ExerciseType) (string, error) {
	s, ok := shapes[t]
	if !ok {
		return "", fmt.Errorf("%w: no prompt for exercise type %q", domain.ErrInvalidArgument, t)
	}
	return preamble + s, nil
}
