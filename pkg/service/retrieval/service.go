package retrieval

import (
	"context"
	"sync"
	"time"

	"github.com/advisory-lab/themis/pkg/domain/interfaces"
	"github.com/advisory-lab/themis/pkg/domain/model"
	"github.com/advisory-lab/themis/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"golang.org/x/sync/errgroup"
)

// ErrEmbeddingUnavailable is returned when the embedding provider fails.
// Retrieval cannot proceed without a query vector; the caller must fall
// back to a reduced-context mode.
var ErrEmbeddingUnavailable = goerr.New("embedding gateway unavailable")

const (
	DefaultTopK              = 5
	DefaultMinRuleConfidence = 0.6
)

// Service retrieves context from the three collections. The collections
// are independent, so retrieval fans out concurrently and joins before
// returning; a single failing collection degrades the context instead of
// failing the request.
type Service struct {
	repo              interfaces.Repository
	llmClient         gollem.LLMClient
	topK              int
	minRuleConfidence float64
}

// Option is a functional option for Service configuration
type Option func(*Service)

// WithTopK sets the per-collection candidate limit
func WithTopK(k int) Option {
	return func(s *Service) {
		s.topK = k
	}
}

// WithMinRuleConfidence sets the rule confidence filter applied before
// ranking
func WithMinRuleConfidence(c float64) Option {
	return func(s *Service) {
		s.minRuleConfidence = c
	}
}

// New creates a retrieval service backed by the repository and the
// embedding side of the LLM client
func New(repo interfaces.Repository, llmClient gollem.LLMClient, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, goerr.New("repository is required")
	}
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}

	s := &Service{
		repo:              repo,
		llmClient:         llmClient,
		topK:              DefaultTopK,
		minRuleConfidence: DefaultMinRuleConfidence,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.topK <= 0 {
		return nil, goerr.New("topK must be a positive integer", goerr.V("topK", s.topK))
	}

	return s, nil
}

// Retrieve embeds the customer utterance and gathers candidates from all
// three collections. The returned context is marked Degraded when any
// collection failed; only an embedding failure aborts retrieval entirely.
func (s *Service) Retrieve(ctx context.Context, query string, convCtx *model.ConversationalContext) (*model.RetrievedContext, error) {
	embedding, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	rc := &model.RetrievedContext{
		Conversational: convCtx,
		QueryEmbedding: embedding,
	}

	var mu sync.Mutex
	markDegraded := func(collection string, err error) {
		logging.From(ctx).Warn("collection retrieval failed, degrading context",
			"collection", collection,
			"error", err.Error(),
		)
		mu.Lock()
		defer mu.Unlock()
		rc.Degraded = true
		rc.DegradedCollections = append(rc.DegradedCollections, collection)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		memories, err := s.repo.Memory().FindByEmbedding(gctx, embedding, s.topK)
		if err != nil {
			markDegraded(model.CollectionMemories, err)
			return nil
		}
		mu.Lock()
		rc.Memories = memories
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		cases, err := s.repo.Case().FindByEmbedding(gctx, embedding, s.topK)
		if err != nil {
			markDegraded(model.CollectionCases, err)
			return nil
		}
		mu.Lock()
		rc.Cases = cases
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		rules, err := s.repo.Rule().FindByEmbedding(gctx, embedding, s.topK, s.minRuleConfidence)
		if err != nil {
			markDegraded(model.CollectionRules, err)
			return nil
		}
		mu.Lock()
		rc.Rules = rules
		mu.Unlock()
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, goerr.Wrap(err, "retrieval fan-out failed")
	}

	if rc.Memories == nil {
		rc.Memories = []*model.MemoryNode{}
	}
	if rc.Cases == nil {
		rc.Cases = []*model.Case{}
	}
	if rc.Rules == nil {
		rc.Rules = []*model.Rule{}
	}

	s.touchMemories(ctx, rc.Memories)

	return rc, nil
}

// touchMemories records access time on retrieved memory nodes. This is
// best-effort; a failed touch never fails the retrieval.
func (s *Service) touchMemories(ctx context.Context, memories []*model.MemoryNode) {
	if len(memories) == 0 {
		return
	}

	ids := make([]model.MemoryID, len(memories))
	for i, m := range memories {
		ids[i] = m.ID
	}

	if err := s.repo.Memory().TouchAccess(ctx, ids, time.Now().UTC()); err != nil {
		logging.From(ctx).Warn("failed to update memory access time", "error", err.Error())
	}
}

func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := s.llmClient.GenerateEmbedding(ctx, model.EmbeddingDimension, []string{text})
	if err != nil {
		return nil, goerr.Wrap(ErrEmbeddingUnavailable, "failed to embed query", goerr.V("cause", err.Error()))
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, goerr.Wrap(ErrEmbeddingUnavailable, "embedding provider returned empty vector")
	}

	embedding := make([]float32, len(embeddings[0]))
	for i, v := range embeddings[0] {
		embedding[i] = float32(v)
	}
	return embedding, nil
}
