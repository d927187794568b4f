// Package redis keeps staged trainer scores in Redis until they are published.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
)

const maxStageAttempts = 5

// DraftStore implements domain.DraftStore. Each exercise has at most one
// draft; staging merges items by key into it and refreshes its TTL.
type DraftStore struct {
	rdb *goredis.Client
	ttl time.Duration
}

var _ domain.DraftStore = (*DraftStore)(nil)

// NewDraftStore constructs a DraftStore. A zero ttl keeps drafts forever.
func NewDraftStore(rdb *goredis.Client, ttl time.Duration) *DraftStore {
	return &DraftStore{rdb: rdb, ttl: ttl}
}

func draftKey(exerciseID string) string { return "draft:" + exerciseID }

// Stage merges r into the current draft and returns the merged draft.
func (s *DraftStore) Stage(ctx domain.Context, exerciseID string, r domain.RubricResult) (domain.RubricResult, error) {
	ctx, span := otel.Tracer("cache.drafts").Start(ctx, "drafts.Stage")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "redis"), attribute.String("exercise.id", exerciseID))

	key := draftKey(exerciseID)
	var merged domain.RubricResult
	txf := func(tx *goredis.Tx) error {
		cur, err := load(ctx, tx, key)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			cur = domain.RubricResult{Kind: r.Kind, Type: r.Type}
		case err != nil:
			return err
		}
		if cur.Kind != r.Kind {
			return fmt.Errorf("%w: draft is for kind %q, got %q", domain.ErrConflict, cur.Kind, r.Kind)
		}
		merged = mergeDraft(cur, r)
		b, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Set(ctx, key, b, s.ttl)
			return nil
		})
		return err
	}
	for i := 0; i < maxStageAttempts; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return domain.RubricResult{}, fmt.Errorf("op=drafts.stage: %w", err)
		}
		return merged, nil
	}
	return domain.RubricResult{}, fmt.Errorf("op=drafts.stage: %w: concurrent draft updates", domain.ErrConflict)
}

// Get returns the draft of an exercise or domain.ErrNotFound.
func (s *DraftStore) Get(ctx domain.Context, exerciseID string) (domain.RubricResult, error) {
	r, err := load(ctx, s.rdb, draftKey(exerciseID))
	if err != nil {
		return domain.RubricResult{}, fmt.Errorf("op=drafts.get: %w", err)
	}
	return r, nil
}

// Discard drops the draft of an exercise. Missing drafts are not an error.
func (s *DraftStore) Discard(ctx domain.Context, exerciseID string) error {
	if err := s.rdb.Del(ctx, draftKey(exerciseID)).Err(); err != nil {
		return fmt.Errorf("op=drafts.discard: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (s *DraftStore) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

func load(ctx context.Context, c getter, key string) (domain.RubricResult, error) {
	b, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.RubricResult{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.RubricResult{}, err
	}
	var r domain.RubricResult
	if err := json.Unmarshal(b, &r); err != nil {
		return domain.RubricResult{}, fmt.Errorf("decode draft: %w", err)
	}
	return r, nil
}

// mergeDraft replaces items of cur by key with those of next, keeping order of
// first appearance.
func mergeDraft(cur, next domain.RubricResult) domain.RubricResult {
	out := domain.RubricResult{Kind: cur.Kind, Type: cur.Type, Feedback: cur.Feedback}
	idx := make(map[domain.ItemKey]int, len(cur.Items)+len(next.Items))
	for _, it := range append(append([]domain.ScoredItem{}, cur.Items...), next.Items...) {
		if i, ok := idx[it.Key]; ok {
			out.Items[i] = it
			continue
		}
		idx[it.Key] = len(out.Items)
		out.Items = append(out.Items, it)
	}
	if next.Feedback != "" {
		out.Feedback = next.Feedback
	}
	return out
}
