package usecase_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/advisory-lab/themis/pkg/domain/interfaces"
	"github.com/advisory-lab/themis/pkg/domain/model"
	"github.com/advisory-lab/themis/pkg/domain/types"
	"github.com/advisory-lab/themis/pkg/repository/memory"
	"github.com/advisory-lab/themis/pkg/service/cache"
	"github.com/advisory-lab/themis/pkg/service/compliance"
	"github.com/advisory-lab/themis/pkg/service/conversation"
	"github.com/advisory-lab/themis/pkg/service/rerank"
	"github.com/advisory-lab/themis/pkg/service/retrieval"
	"github.com/advisory-lab/themis/pkg/service/review"
	"github.com/advisory-lab/themis/pkg/usecase"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"
)

// mockLLMClient serves the embedding side of retrieval. Sessions are not
// used here; generation is stubbed at the Generator interface instead.
type mockLLMClient struct {
	embedErr error
}

func (c *mockLLMClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	return nil, errors.New("sessions are not used in this test")
}

func (c *mockLLMClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	if c.embedErr != nil {
		return nil, c.embedErr
	}
	out := make([][]float64, len(input))
	for i := range input {
		v := make([]float64, dimension)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

type scriptedGenerator struct {
	mu      sync.Mutex
	outputs []*interfaces.Generation
	calls   int
}

func (g *scriptedGenerator) Generate(ctx context.Context, req *interfaces.GenerationRequest) (*interfaces.Generation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := g.calls
	g.calls++
	if idx >= len(g.outputs) {
		idx = len(g.outputs) - 1
	}
	return g.outputs[idx], nil
}

func (g *scriptedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type scriptedJudge struct {
	name  string
	fn    func(guidance string) (*model.JudgeVerdict, error)
	calls atomic.Int64
}

func (j *scriptedJudge) Name() string { return j.name }

func (j *scriptedJudge) Evaluate(ctx context.Context, guidance string, profile *model.CustomerProfile, rationale string) (*model.JudgeVerdict, error) {
	j.calls.Add(1)
	v, err := j.fn(guidance)
	if err != nil {
		return nil, err
	}
	out := *v
	out.JudgeName = j.name
	return &out, nil
}

type failingGenerator struct{}

func (g *failingGenerator) Generate(ctx context.Context, req *interfaces.GenerationRequest) (*interfaces.Generation, error) {
	return nil, errors.New("upstream model error")
}

type fakeQueue struct {
	mu       sync.Mutex
	requests []*interfaces.ReviewRequest
	err      error
}

func (q *fakeQueue) Enqueue(ctx context.Context, req *interfaces.ReviewRequest) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.requests = append(q.requests, req)
	return "ticket-1", nil
}

func (q *fakeQueue) recorded() []*interfaces.ReviewRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*interfaces.ReviewRequest{}, q.requests...)
}

func approveAll(guidance string) (*model.JudgeVerdict, error) {
	return &model.JudgeVerdict{Passed: true, Confidence: 0.95}, nil
}

func rejectAll(guidance string) (*model.JudgeVerdict, error) {
	return &model.JudgeVerdict{
		Passed:     false,
		Confidence: 0.95,
		Issues: []model.ValidationIssue{{
			Type:        types.IssueBoundaryConcern,
			Description: "reads like a personal recommendation",
			Severity:    types.SeverityHigh,
		}},
	}, nil
}

type pipelineFixture struct {
	uc    *usecase.UseCases
	repo  interfaces.Repository
	queue *fakeQueue
	judge *scriptedJudge
}

func newPipeline(t *testing.T, llm *mockLLMClient, gen interfaces.Generator, judge *scriptedJudge, opts ...usecase.Option) *pipelineFixture {
	t.Helper()

	repo := memory.New()

	retriever, err := retrieval.New(repo, llm)
	gt.NoError(t, err).Required()
	reranker, err := rerank.New(rerank.DefaultWeights())
	gt.NoError(t, err).Required()
	tracker, err := conversation.New()
	gt.NoError(t, err).Required()

	checker, err := compliance.NewRuleChecker()
	gt.NoError(t, err).Required()
	validator, err := compliance.NewValidator(checker, []interfaces.Judge{judge})
	gt.NoError(t, err).Required()

	queue := &fakeQueue{}
	opts = append([]usecase.Option{usecase.WithReviewQueue(queue)}, opts...)

	return &pipelineFixture{
		uc:    usecase.New(repo, retriever, reranker, tracker, gen, validator, opts...),
		repo:  repo,
		queue: queue,
		judge: judge,
	}
}

func collectStream(sb *strings.Builder) usecase.StreamFunc {
	return func(chunk string) error {
		sb.WriteString(chunk)
		return nil
	}
}

const (
	compliantDraft = "Many people in your position compare a flexible cash account with a fixed-term one before deciding."
	refinedDraft   = "It can help to look at how soon you might need the money when comparing account types."
)

func TestProvideGuidancePreStream(t *testing.T) {
	t.Run("approved guidance is delivered and audited", func(t *testing.T) {
		gen := &scriptedGenerator{outputs: []*interfaces.Generation{{Text: compliantDraft, Rationale: "descriptive options"}}}
		fx := newPipeline(t, &mockLLMClient{}, gen, &scriptedJudge{name: "j1", fn: approveAll})

		var sb strings.Builder
		res, err := fx.uc.ProvideGuidance(context.Background(), &usecase.GuidanceInput{
			CustomerID: "cust-1",
			Message:    "what kinds of savings accounts are there",
		}, collectStream(&sb))
		gt.NoError(t, err).Required()

		gt.Bool(t, res.Delivered).True()
		gt.Value(t, res.Text).Equal(compliantDraft)
		gt.Value(t, sb.String()).Equal(compliantDraft)
		gt.Bool(t, res.Validation.Approved()).True()
		gt.Value(t, gen.callCount()).Equal(1)

		audit, err := fx.uc.GetAudit(context.Background(), res.TurnID)
		gt.NoError(t, err).Required()
		gt.Bool(t, audit.GuidanceDelivered).True()
		gt.Bool(t, audit.RefinementAttempted).False()
		gt.Bool(t, audit.CompletedAt.IsZero()).False()
	})

	t.Run("rejected draft is refined once and delivered", func(t *testing.T) {
		judge := &scriptedJudge{name: "j1", fn: func(guidance string) (*model.JudgeVerdict, error) {
			if guidance == compliantDraft {
				return rejectAll(guidance)
			}
			return approveAll(guidance)
		}}
		gen := &scriptedGenerator{outputs: []*interfaces.Generation{{Text: compliantDraft}, {Text: refinedDraft}}}
		fx := newPipeline(t, &mockLLMClient{}, gen, judge)

		var sb strings.Builder
		res, err := fx.uc.ProvideGuidance(context.Background(), &usecase.GuidanceInput{
			CustomerID: "cust-1",
			Message:    "which account is right for me",
		}, collectStream(&sb))
		gt.NoError(t, err).Required()

		gt.Bool(t, res.Delivered).True()
		gt.Value(t, res.Text).Equal(refinedDraft)
		gt.Value(t, gen.callCount()).Equal(2)

		audit, err := fx.uc.GetAudit(context.Background(), res.TurnID)
		gt.NoError(t, err).Required()
		gt.Bool(t, audit.RefinementAttempted).True()
	})

	t.Run("refinement is attempted at most once", func(t *testing.T) {
		gen := &scriptedGenerator{outputs: []*interfaces.Generation{{Text: compliantDraft}, {Text: refinedDraft}}}
		fx := newPipeline(t, &mockLLMClient{}, gen, &scriptedJudge{name: "j1", fn: rejectAll})

		var sb strings.Builder
		res, err := fx.uc.ProvideGuidance(context.Background(), &usecase.GuidanceInput{
			CustomerID: "cust-1",
			Message:    "which account is right for me",
		}, collectStream(&sb))
		gt.NoError(t, err).Required()

		gt.Bool(t, res.Delivered).False()
		gt.Value(t, res.Text).Equal(usecase.DefaultHoldingMessage)
		gt.Value(t, sb.String()).Equal(usecase.DefaultHoldingMessage)
		gt.Value(t, gen.callCount()).Equal(2)
		gt.Array(t, fx.queue.recorded()).Length(1)
		gt.Value(t, res.EscalationTicketID).Equal("ticket-1")
	})

	t.Run("low-confidence verdict escalates without refinement", func(t *testing.T) {
		gen := &scriptedGenerator{outputs: []*interfaces.Generation{{Text: compliantDraft}}}
		fx := newPipeline(t, &mockLLMClient{}, gen, &scriptedJudge{name: "j1", fn: func(string) (*model.JudgeVerdict, error) {
			return &model.JudgeVerdict{Passed: true, Confidence: 0.5}, nil
		}})

		var sb strings.Builder
		res, err := fx.uc.ProvideGuidance(context.Background(), &usecase.GuidanceInput{
			CustomerID: "cust-1",
			Message:    "should I move my pension",
		}, collectStream(&sb))
		gt.NoError(t, err).Required()

		gt.Bool(t, res.Delivered).False()
		gt.Value(t, res.Validation.State).Equal(types.StateEscalated)
		// Escalation means ambiguity, not fixable wording; no second draft.
		gt.Value(t, gen.callCount()).Equal(1)
		gt.Array(t, fx.queue.recorded()).Length(1)
	})

	t.Run("rule violation never reaches the judges", func(t *testing.T) {
		prohibited := "You should buy the growth fund while the price is low."
		judge := &scriptedJudge{name: "j1", fn: approveAll}
		fx := newPipeline(t,
			&mockLLMClient{},
			&scriptedGenerator{outputs: []*interfaces.Generation{{Text: prohibited}}},
			judge,
		)

		var sb strings.Builder
		res, err := fx.uc.ProvideGuidance(context.Background(), &usecase.GuidanceInput{
			CustomerID: "cust-1",
			Message:    "is now a good time to invest",
		}, collectStream(&sb))
		gt.NoError(t, err).Required()

		gt.Bool(t, res.Delivered).False()
		gt.Value(t, judge.calls.Load()).Equal(int64(0))
		gt.Value(t, res.Validation.Confidence).Equal(1.0)
		gt.Bool(t, res.Validation.RequiresHumanReview).False()
	})

	t.Run("validator outage holds the turn at high priority", func(t *testing.T) {
		fx := newPipeline(t,
			&mockLLMClient{},
			&scriptedGenerator{outputs: []*interfaces.Generation{{Text: compliantDraft}}},
			&scriptedJudge{name: "j1", fn: func(string) (*model.JudgeVerdict, error) {
				return nil, errors.New("judge upstream down")
			}},
		)

		var sb strings.Builder
		res, err := fx.uc.ProvideGuidance(context.Background(), &usecase.GuidanceInput{
			CustomerID: "cust-1",
			Message:    "what kinds of savings accounts are there",
		}, collectStream(&sb))
		gt.NoError(t, err).Required()

		gt.Bool(t, res.Delivered).False()
		gt.Value(t, sb.String()).Equal(usecase.DefaultHoldingMessage)

		recorded := fx.queue.recorded()
		gt.Array(t, recorded).Length(1).Required()
		gt.Value(t, recorded[0].Priority).Equal(types.SeverityHigh)
	})

	t.Run("generation failure delivers the holding message", func(t *testing.T) {
		fx := newPipeline(t,
			&mockLLMClient{},
			&failingGenerator{},
			&scriptedJudge{name: "j1", fn: approveAll},
		)

		var sb strings.Builder
		res, err := fx.uc.ProvideGuidance(context.Background(), &usecase.GuidanceInput{
			CustomerID: "cust-1",
			Message:    "what kinds of savings accounts are there",
		}, collectStream(&sb))
		gt.NoError(t, err).Required()

		gt.Bool(t, res.Delivered).False()
		gt.Value(t, sb.String()).Equal(usecase.DefaultHoldingMessage)

		audit, err := fx.uc.GetAudit(context.Background(), res.TurnID)
		gt.NoError(t, err).Required()
		gt.Bool(t, audit.GuidanceDelivered).False()
	})
}

func TestProvideGuidancePostStream(t *testing.T) {
	t.Run("delivers before validation and escalates afterward", func(t *testing.T) {
		fx := newPipeline(t,
			&mockLLMClient{},
			&scriptedGenerator{outputs: []*interfaces.Generation{{Text: compliantDraft}}},
			&scriptedJudge{name: "j1", fn: rejectAll},
		)

		var sb strings.Builder
		res, err := fx.uc.ProvideGuidance(context.Background(), &usecase.GuidanceInput{
			CustomerID: "cust-1",
			Message:    "what kinds of savings accounts are there",
			Strategy:   types.StrategyPostStream,
		}, collectStream(&sb))
		gt.NoError(t, err).Required()

		// The customer saw the text even though the verdict later failed.
		gt.Bool(t, res.Delivered).True()
		gt.Value(t, sb.String()).Equal(compliantDraft)

		gt.NoError(t, fx.uc.Workers().Drain(context.Background()))
		gt.Array(t, fx.queue.recorded()).Length(1)

		audit, err := fx.uc.GetAudit(context.Background(), res.TurnID)
		gt.NoError(t, err).Required()
		gt.Value(t, audit.EscalationTicketID).Equal("ticket-1")
		gt.Bool(t, audit.ValidationResult.Passed).False()
	})
}

func TestProvideGuidanceHybrid(t *testing.T) {
	t.Run("approved cache entry streams ahead of revalidation", func(t *testing.T) {
		// The judge now rejects, but a fresh approved entry lets the text
		// stream; the background revalidation catches the change and
		// escalates.
		vcache, err := cache.New(0, 0)
		gt.NoError(t, err).Required()
		vcache.Put(cache.Key(compliantDraft, nil), &interfaces.CachedValidation{
			State:  types.StateApproved,
			Result: &model.ValidationResult{Passed: true, Confidence: 0.95, State: types.StateApproved},
		}, 0)

		fx := newPipeline(t,
			&mockLLMClient{},
			&scriptedGenerator{outputs: []*interfaces.Generation{{Text: compliantDraft}}},
			&scriptedJudge{name: "j1", fn: rejectAll},
			usecase.WithValidationCache(vcache),
		)

		var sb strings.Builder
		res, err := fx.uc.ProvideGuidance(context.Background(), &usecase.GuidanceInput{
			CustomerID: "cust-1",
			Message:    "what kinds of savings accounts are there",
			Strategy:   types.StrategyHybrid,
		}, collectStream(&sb))
		gt.NoError(t, err).Required()

		gt.Bool(t, res.Delivered).True()
		gt.Value(t, sb.String()).Equal(compliantDraft)

		gt.NoError(t, fx.uc.Workers().Drain(context.Background()))
		gt.Array(t, fx.queue.recorded()).Length(1)

		// The cache entry now carries the failing verdict.
		entry, ok := vcache.Get(cache.Key(compliantDraft, nil))
		gt.Bool(t, ok).True()
		gt.Value(t, entry.State).Equal(types.StateRejected)
	})

	t.Run("cache miss validates before streaming and seeds the cache", func(t *testing.T) {
		vcache, err := cache.New(0, 0)
		gt.NoError(t, err).Required()

		fx := newPipeline(t,
			&mockLLMClient{},
			&scriptedGenerator{outputs: []*interfaces.Generation{{Text: compliantDraft}}},
			&scriptedJudge{name: "j1", fn: approveAll},
			usecase.WithValidationCache(vcache),
		)

		var sb strings.Builder
		res, err := fx.uc.ProvideGuidance(context.Background(), &usecase.GuidanceInput{
			CustomerID: "cust-1",
			Message:    "what kinds of savings accounts are there",
			Strategy:   types.StrategyHybrid,
		}, collectStream(&sb))
		gt.NoError(t, err).Required()

		gt.Bool(t, res.Delivered).True()

		entry, ok := vcache.Get(cache.Key(compliantDraft, nil))
		gt.Bool(t, ok).True()
		gt.Value(t, entry.State).Equal(types.StateApproved)
	})

	t.Run("rejected cache entry validates before streaming", func(t *testing.T) {
		vcache, err := cache.New(0, 0)
		gt.NoError(t, err).Required()
		vcache.Put(cache.Key(compliantDraft, nil), &interfaces.CachedValidation{
			State:  types.StateRejected,
			Result: &model.ValidationResult{Passed: false, Confidence: 0.95, State: types.StateRejected},
		}, 0)

		judge := &scriptedJudge{name: "j1", fn: approveAll}
		fx := newPipeline(t,
			&mockLLMClient{},
			&scriptedGenerator{outputs: []*interfaces.Generation{{Text: compliantDraft}}},
			judge,
			usecase.WithValidationCache(vcache),
		)

		// A rejected entry never streams ahead: the full validation runs
		// first, so the judge has a verdict before the first chunk.
		var callsAtFirstChunk int64 = -1
		var sb strings.Builder
		res, err := fx.uc.ProvideGuidance(context.Background(), &usecase.GuidanceInput{
			CustomerID: "cust-1",
			Message:    "what kinds of savings accounts are there",
			Strategy:   types.StrategyHybrid,
		}, func(chunk string) error {
			if callsAtFirstChunk < 0 {
				callsAtFirstChunk = judge.calls.Load()
			}
			sb.WriteString(chunk)
			return nil
		})
		gt.NoError(t, err).Required()

		gt.Bool(t, res.Delivered).True()
		gt.Value(t, sb.String()).Equal(compliantDraft)
		gt.Value(t, callsAtFirstChunk).Equal(1)

		// The fresh verdict replaces the stale rejection.
		entry, ok := vcache.Get(cache.Key(compliantDraft, nil))
		gt.Bool(t, ok).True()
		gt.Value(t, entry.State).Equal(types.StateApproved)
	})

	t.Run("approved entry for another situation does not stream", func(t *testing.T) {
		// The entry was validated against a profile without the high-risk
		// flag; the draft carries no risk disclosure, so the same text must
		// not reach a high-risk customer on the strength of that entry.
		vcache, err := cache.New(0, 0)
		gt.NoError(t, err).Required()
		vcache.Put(cache.Key(compliantDraft, nil), &interfaces.CachedValidation{
			State:  types.StateApproved,
			Result: &model.ValidationResult{Passed: true, Confidence: 0.95, State: types.StateApproved},
		}, 0)

		judge := &scriptedJudge{name: "j1", fn: approveAll}
		fx := newPipeline(t,
			&mockLLMClient{},
			&scriptedGenerator{outputs: []*interfaces.Generation{{Text: compliantDraft}}},
			judge,
			usecase.WithValidationCache(vcache),
		)

		profile := &model.CustomerProfile{
			CustomerID: "cust-1",
			Flags:      []string{model.FlagHighRisk},
		}
		var sb strings.Builder
		res, err := fx.uc.ProvideGuidance(context.Background(), &usecase.GuidanceInput{
			CustomerID: "cust-1",
			Message:    "should I move my savings into shares",
			Profile:    profile,
			Strategy:   types.StrategyHybrid,
		}, collectStream(&sb))
		gt.NoError(t, err).Required()

		// The disclosure rule rejects the draft for this profile before any
		// judge runs, and the customer gets the holding message.
		gt.Bool(t, res.Delivered).False()
		gt.Value(t, sb.String()).Equal(usecase.DefaultHoldingMessage)
		gt.Value(t, judge.calls.Load()).Equal(int64(0))
		gt.Array(t, fx.queue.recorded()).Length(1)

		// The rejection is recorded under this situation's key; the entry
		// for the original situation is untouched.
		entry, ok := vcache.Get(cache.Key(compliantDraft, profile))
		gt.Bool(t, ok).True()
		gt.Value(t, entry.State).Equal(types.StateRejected)

		orig, ok := vcache.Get(cache.Key(compliantDraft, nil))
		gt.Bool(t, ok).True()
		gt.Value(t, orig.State).Equal(types.StateApproved)
	})
}

func TestProvideGuidanceDegraded(t *testing.T) {
	t.Run("embedding outage proceeds with reduced context", func(t *testing.T) {
		fx := newPipeline(t,
			&mockLLMClient{embedErr: errors.New("embedding provider down")},
			&scriptedGenerator{outputs: []*interfaces.Generation{{Text: compliantDraft}}},
			&scriptedJudge{name: "j1", fn: approveAll},
		)

		var sb strings.Builder
		res, err := fx.uc.ProvideGuidance(context.Background(), &usecase.GuidanceInput{
			CustomerID: "cust-1",
			Message:    "what kinds of savings accounts are there",
		}, collectStream(&sb))
		gt.NoError(t, err).Required()

		gt.Bool(t, res.Delivered).True()
		gt.Bool(t, res.Degraded).True()
	})
}

func TestProvideGuidanceFallback(t *testing.T) {
	t.Run("queue outage records the escalation durably", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "escalations.jsonl")
		fallback, err := review.NewFallbackLog(path)
		gt.NoError(t, err).Required()

		fx := newPipeline(t,
			&mockLLMClient{},
			&scriptedGenerator{outputs: []*interfaces.Generation{{Text: compliantDraft}}},
			&scriptedJudge{name: "j1", fn: rejectAll},
			usecase.WithFallbackLog(fallback),
		)
		fx.queue.err = errors.New("review channel unreachable")

		var sb strings.Builder
		res, err := fx.uc.ProvideGuidance(context.Background(), &usecase.GuidanceInput{
			CustomerID: "cust-1",
			Message:    "which account is right for me",
		}, collectStream(&sb))
		gt.NoError(t, err).Required()

		gt.Bool(t, res.Delivered).False()
		gt.Value(t, res.EscalationTicketID).Equal("")

		data, err := os.ReadFile(path)
		gt.NoError(t, err).Required()
		gt.Bool(t, len(data) > 0).True()
	})
}

func TestProvideGuidanceInput(t *testing.T) {
	fx := newPipeline(t,
		&mockLLMClient{},
		&scriptedGenerator{outputs: []*interfaces.Generation{{Text: compliantDraft}}},
		&scriptedJudge{name: "j1", fn: approveAll},
	)

	sink := func(string) error { return nil }

	t.Run("empty message is rejected", func(t *testing.T) {
		_, err := fx.uc.ProvideGuidance(context.Background(), &usecase.GuidanceInput{CustomerID: "c"}, sink)
		gt.Error(t, err)
	})

	t.Run("unknown strategy is rejected", func(t *testing.T) {
		_, err := fx.uc.ProvideGuidance(context.Background(), &usecase.GuidanceInput{
			CustomerID: "c",
			Message:    "hello",
			Strategy:   types.ValidationStrategy("SOMETIMES"),
		}, sink)
		gt.Error(t, err)
	})

	t.Run("missing stream sink is rejected", func(t *testing.T) {
		_, err := fx.uc.ProvideGuidance(context.Background(), &usecase.GuidanceInput{
			CustomerID: "c",
			Message:    "hello",
		}, nil)
		gt.Error(t, err)
	})
}
