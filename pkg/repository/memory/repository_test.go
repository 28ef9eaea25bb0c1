package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/advisory-lab/themis/pkg/domain/model"
	"github.com/advisory-lab/themis/pkg/repository/memory"
	"github.com/m-mizutani/gt"
)

func TestMemoryNodeRepository(t *testing.T) {
	t.Run("Create assigns ID and timestamps", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()

		created, err := repo.Memory().Create(ctx, &model.MemoryNode{
			Description: "prefers low-risk products",
			Importance:  7,
			Embedding:   []float32{1, 0, 0},
		})
		gt.NoError(t, err).Required()

		gt.Value(t, string(created.ID)).NotEqual("")
		gt.Bool(t, created.CreatedAt.IsZero()).False()
	})

	t.Run("Get returns error for unknown ID", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()

		_, err := repo.Memory().Get(ctx, model.MemoryID("no-such-id"))
		gt.Error(t, err)
		gt.Bool(t, errors.Is(err, memory.ErrNotFound)).True()
	})

	t.Run("FindByEmbedding orders by cosine similarity", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()

		far, err := repo.Memory().Create(ctx, &model.MemoryNode{
			Description: "far",
			Embedding:   []float32{0, 1, 0},
		})
		gt.NoError(t, err).Required()
		near, err := repo.Memory().Create(ctx, &model.MemoryNode{
			Description: "near",
			Embedding:   []float32{0.9, 0.1, 0},
		})
		gt.NoError(t, err).Required()

		found, err := repo.Memory().FindByEmbedding(ctx, []float32{1, 0, 0}, 10)
		gt.NoError(t, err).Required()
		gt.Array(t, found).Length(2)
		gt.Value(t, found[0].ID).Equal(near.ID)
		gt.Value(t, found[1].ID).Equal(far.ID)
	})

	t.Run("FindByEmbedding respects limit", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			_, err := repo.Memory().Create(ctx, &model.MemoryNode{
				Description: "node",
				Embedding:   []float32{1, float32(i) * 0.1, 0},
			})
			gt.NoError(t, err).Required()
		}

		found, err := repo.Memory().FindByEmbedding(ctx, []float32{1, 0, 0}, 3)
		gt.NoError(t, err).Required()
		gt.Array(t, found).Length(3)
	})

	t.Run("TouchAccess updates access time", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()

		created, err := repo.Memory().Create(ctx, &model.MemoryNode{
			Description: "touched",
			Embedding:   []float32{1, 0, 0},
		})
		gt.NoError(t, err).Required()

		at := time.Now().UTC().Add(time.Hour)
		gt.NoError(t, repo.Memory().TouchAccess(ctx, []model.MemoryID{created.ID}, at))

		got, err := repo.Memory().Get(ctx, created.ID)
		gt.NoError(t, err).Required()
		gt.Bool(t, got.LastAccessedAt.Equal(at)).True()
	})
}

func TestRuleRepository(t *testing.T) {
	t.Run("FindByEmbedding filters by confidence before ranking", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()

		// The closest rule sits below the confidence floor and must not
		// displace eligible ones.
		_, err := repo.Rule().Create(ctx, &model.Rule{
			PrincipleText: "low confidence but perfect match",
			Confidence:    0.3,
			Embedding:     []float32{1, 0, 0},
		})
		gt.NoError(t, err).Required()
		eligible, err := repo.Rule().Create(ctx, &model.Rule{
			PrincipleText: "eligible",
			Confidence:    0.8,
			Embedding:     []float32{0.7, 0.7, 0},
		})
		gt.NoError(t, err).Required()

		found, err := repo.Rule().FindByEmbedding(ctx, []float32{1, 0, 0}, 10, 0.6)
		gt.NoError(t, err).Required()
		gt.Array(t, found).Length(1)
		gt.Value(t, found[0].ID).Equal(eligible.ID)
	})
}

func TestAuditRepository(t *testing.T) {
	t.Run("Put requires turn ID", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()

		err := repo.Audit().Put(ctx, &model.TurnAudit{})
		gt.Error(t, err)
	})

	t.Run("ListRecent returns newest first", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()

		base := time.Now().UTC()
		for i := 0; i < 3; i++ {
			err := repo.Audit().Put(ctx, &model.TurnAudit{
				TurnID:    model.NewTurnID(),
				StartedAt: base.Add(time.Duration(i) * time.Minute),
			})
			gt.NoError(t, err).Required()
		}

		records, err := repo.Audit().ListRecent(ctx, 2)
		gt.NoError(t, err).Required()
		gt.Array(t, records).Length(2)
		gt.Bool(t, records[0].StartedAt.After(records[1].StartedAt)).True()
	})
}
