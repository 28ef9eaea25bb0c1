package retrieval_test

import (
	"context"
	"errors"
	"testing"

	"github.com/advisory-lab/themis/pkg/domain/interfaces"
	"github.com/advisory-lab/themis/pkg/domain/model"
	"github.com/advisory-lab/themis/pkg/repository/memory"
	"github.com/advisory-lab/themis/pkg/service/retrieval"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"
)

type embedClient struct {
	err error
}

func (c *embedClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	return nil, errors.New("sessions are not used in this test")
}

func (c *embedClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float64, len(input))
	for i := range input {
		v := make([]float64, dimension)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

// brokenCaseRepo makes one collection fail while the rest work
type brokenCaseRepo struct {
	interfaces.Repository
}

type failingCases struct{}

func (failingCases) Create(ctx context.Context, c *model.Case) (*model.Case, error) {
	return nil, errors.New("case store down")
}

func (failingCases) Get(ctx context.Context, id model.CaseID) (*model.Case, error) {
	return nil, errors.New("case store down")
}

func (failingCases) FindByEmbedding(ctx context.Context, embedding []float32, limit int) ([]*model.Case, error) {
	return nil, errors.New("case store down")
}

func (r *brokenCaseRepo) Case() interfaces.CaseRepository {
	return failingCases{}
}

func seedQuery() []float32 {
	v := make([]float32, model.EmbeddingDimension)
	v[0] = 1
	return v
}

func TestRetrieve(t *testing.T) {
	t.Run("gathers all three collections", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()

		_, err := repo.Memory().Create(ctx, &model.MemoryNode{Description: "prefers low risk", Embedding: seedQuery()})
		gt.NoError(t, err).Required()
		_, err = repo.Case().Create(ctx, &model.Case{TaskType: "savings", Embedding: seedQuery()})
		gt.NoError(t, err).Required()
		_, err = repo.Rule().Create(ctx, &model.Rule{PrincipleText: "describe, never direct", Confidence: 0.9, Embedding: seedQuery()})
		gt.NoError(t, err).Required()

		svc, err := retrieval.New(repo, &embedClient{})
		gt.NoError(t, err).Required()

		rc, err := svc.Retrieve(ctx, "what accounts are there", nil)
		gt.NoError(t, err).Required()

		gt.Bool(t, rc.Degraded).False()
		gt.Array(t, rc.Memories).Length(1)
		gt.Array(t, rc.Cases).Length(1)
		gt.Array(t, rc.Rules).Length(1)
	})

	t.Run("retrieval touches memory access time", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()

		created, err := repo.Memory().Create(ctx, &model.MemoryNode{Description: "n", Embedding: seedQuery()})
		gt.NoError(t, err).Required()

		svc, err := retrieval.New(repo, &embedClient{})
		gt.NoError(t, err).Required()

		_, err = svc.Retrieve(ctx, "query", nil)
		gt.NoError(t, err).Required()

		node, err := repo.Memory().Get(ctx, created.ID)
		gt.NoError(t, err).Required()
		gt.Bool(t, node.LastAccessedAt.IsZero()).False()
	})

	t.Run("failing collection degrades instead of failing", func(t *testing.T) {
		repo := &brokenCaseRepo{Repository: memory.New()}
		ctx := context.Background()

		_, err := repo.Memory().Create(ctx, &model.MemoryNode{Description: "n", Embedding: seedQuery()})
		gt.NoError(t, err).Required()

		svc, err := retrieval.New(repo, &embedClient{})
		gt.NoError(t, err).Required()

		rc, err := svc.Retrieve(ctx, "query", nil)
		gt.NoError(t, err).Required()

		gt.Bool(t, rc.Degraded).True()
		gt.Array(t, rc.DegradedCollections).Equal([]string{model.CollectionCases})
		gt.Array(t, rc.Memories).Length(1)
		gt.Array(t, rc.Cases).Length(0)
	})

	t.Run("embedding failure aborts retrieval", func(t *testing.T) {
		svc, err := retrieval.New(memory.New(), &embedClient{err: errors.New("provider down")})
		gt.NoError(t, err).Required()

		_, err = svc.Retrieve(context.Background(), "query", nil)
		gt.Error(t, err)
		gt.Bool(t, errors.Is(err, retrieval.ErrEmbeddingUnavailable)).True()
	})
}
