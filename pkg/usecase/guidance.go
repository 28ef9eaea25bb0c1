package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/advisory-lab/themis/pkg/domain/interfaces"
	"github.com/advisory-lab/themis/pkg/domain/model"
	"github.com/advisory-lab/themis/pkg/domain/types"
	"github.com/advisory-lab/themis/pkg/service/cache"
	"github.com/advisory-lab/themis/pkg/service/retrieval"
	"github.com/advisory-lab/themis/pkg/utils/errutil"
	"github.com/advisory-lab/themis/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// GuidanceInput is one customer turn to answer. TurnID may be
// pre-assigned by the caller (for response headers); when empty a new one
// is generated.
type GuidanceInput struct {
	TurnID        model.TurnID
	CustomerID    string
	Message       string `masq:"secret"`
	History       []model.Turn
	Profile       *model.CustomerProfile
	Strategy      types.ValidationStrategy
	ExpectedTurns int
}

// StreamFunc receives delivered text chunk by chunk. Returning an error
// aborts delivery.
type StreamFunc func(chunk string) error

// GuidanceResult is the outcome of one turn. Delivered is true only when
// actual guidance (not the holding message) reached the customer.
type GuidanceResult struct {
	TurnID             model.TurnID
	Delivered          bool
	Text               string `masq:"secret"`
	Validation         *model.ValidationResult
	EscalationTicketID string
	Degraded           bool
}

// ProvideGuidance runs the full pipeline for one customer turn: track,
// retrieve, re-rank, generate, validate per the selected strategy, and
// audit. Text reaches the customer only through stream.
func (uc *UseCases) ProvideGuidance(ctx context.Context, input *GuidanceInput, stream StreamFunc) (*GuidanceResult, error) {
	if input == nil {
		return nil, goerr.New("guidance input is required")
	}
	if input.Message == "" {
		return nil, goerr.New("customer message is required")
	}
	if stream == nil {
		return nil, goerr.New("stream sink is required")
	}

	strategy := input.Strategy
	if strategy == "" {
		strategy = uc.defaultStrategy
	}
	strategy = strategy.Normalize()
	if !strategy.IsValid() {
		return nil, goerr.New("invalid validation strategy", goerr.V("strategy", strategy))
	}

	turnID := input.TurnID
	if turnID == "" {
		turnID = model.NewTurnID()
	}
	startedAt := time.Now().UTC()
	logger := logging.From(ctx).With("turnID", turnID, "strategy", strategy.String())
	ctx = logging.With(ctx, logger)

	turns := append(append([]model.Turn{}, input.History...), model.Turn{
		Role:      model.RoleCustomer,
		Text:      input.Message,
		Timestamp: startedAt,
	})
	convCtx := uc.tracker.Track(turns, input.Profile, input.ExpectedTurns)

	rc, err := uc.retriever.Retrieve(ctx, input.Message, convCtx)
	if err != nil {
		if !errors.Is(err, retrieval.ErrEmbeddingUnavailable) {
			return nil, err
		}
		// Reduced-context mode: generation proceeds on conversational
		// signal alone and the generator is told to stay conservative.
		logger.Warn("embedding unavailable, proceeding with reduced context")
		rc = &model.RetrievedContext{
			Conversational:      convCtx,
			Memories:            []*model.MemoryNode{},
			Cases:               []*model.Case{},
			Rules:               []*model.Rule{},
			Degraded:            true,
			DegradedCollections: []string{model.CollectionMemories, model.CollectionCases, model.CollectionRules},
		}
	}

	uc.reranker.Rerank(rc)

	audit := &model.TurnAudit{
		TurnID:              turnID,
		CustomerID:          input.CustomerID,
		Strategy:            strategy,
		RetrievedContextIDs: rc.ContextIDs(),
		StartedAt:           startedAt,
	}

	gen, err := uc.generator.Generate(ctx, &interfaces.GenerationRequest{
		CustomerMessage: input.Message,
		Profile:         input.Profile,
		Context:         rc,
	})
	if err != nil {
		// The generator already retried the upstream once. There is no
		// text to validate, so the customer gets the holding message.
		errutil.Handle(ctx, goerr.Wrap(ErrGenerationFailed, "generation failed",
			goerr.V("turnID", turnID), goerr.V("cause", err.Error())), "no guidance this turn")
		result, err := uc.deliverHolding(ctx, audit, "", stream)
		if err != nil {
			return nil, err
		}
		result.TurnID = turnID
		result.Degraded = rc.Degraded
		return result, nil
	}

	var result *GuidanceResult
	switch strategy {
	case types.StrategyPostStream:
		result, err = uc.providePostStream(ctx, input, gen, rc, audit, stream)
	case types.StrategyHybrid:
		result, err = uc.provideHybrid(ctx, input, gen, rc, audit, stream)
	default:
		result, err = uc.providePreStream(ctx, input, gen, rc, audit, stream)
	}
	if err != nil {
		return nil, err
	}

	result.TurnID = turnID
	result.Degraded = rc.Degraded
	return result, nil
}

// providePreStream validates fully before any text reaches the customer
func (uc *UseCases) providePreStream(ctx context.Context, input *GuidanceInput, gen *interfaces.Generation, rc *model.RetrievedContext, audit *model.TurnAudit, stream StreamFunc) (*GuidanceResult, error) {
	finalGen, vr, refined, valErr := uc.validateWithRefinement(ctx, input, gen, rc)
	audit.RefinementAttempted = refined
	audit.ValidationResult = vr

	if valErr != nil {
		// The validator could not produce a verdict. Unvalidated text is
		// never delivered; the turn escalates and the customer gets the
		// holding message.
		errutil.Handle(ctx, valErr, "validation unavailable, escalating turn")
		ticketID := uc.escalate(ctx, audit.TurnID, input, finalGen, nil)
		return uc.deliverHolding(ctx, audit, ticketID, stream)
	}

	if vr.Approved() {
		return uc.deliverGuidance(ctx, audit, finalGen.Text, stream)
	}

	var ticketID string
	if vr.RequiresHumanReview || vr.State == types.StateRejected {
		ticketID = uc.escalate(ctx, audit.TurnID, input, finalGen, vr)
	}
	return uc.deliverHolding(ctx, audit, ticketID, stream)
}

// providePostStream delivers immediately and validates in the background.
// Delivered text cannot be unsent; a failed verdict escalates for
// remediation instead of blocking the stream.
func (uc *UseCases) providePostStream(ctx context.Context, input *GuidanceInput, gen *interfaces.Generation, rc *model.RetrievedContext, audit *model.TurnAudit, stream StreamFunc) (*GuidanceResult, error) {
	res, err := uc.deliverGuidance(ctx, audit, gen.Text, stream)
	if err != nil {
		return nil, err
	}

	submitErr := uc.workers.Submit(ctx, audit.TurnID, func(bgCtx context.Context) error {
		vr, valErr := uc.validator.Validate(bgCtx, gen.Text, input.Profile, gen.Rationale)
		if valErr != nil {
			uc.escalate(bgCtx, audit.TurnID, input, gen, nil)
			return goerr.Wrap(valErr, "post-delivery validation failed", goerr.V("turnID", audit.TurnID))
		}

		audit.ValidationResult = vr
		if !vr.Approved() {
			audit.EscalationTicketID = uc.escalate(bgCtx, audit.TurnID, input, gen, vr)
		}
		audit.CompletedAt = time.Now().UTC()
		return uc.repo.Audit().Put(bgCtx, audit)
	})
	if submitErr != nil {
		errutil.Handle(ctx, submitErr, "failed to submit post-delivery validation")
	}

	return res, nil
}

// provideHybrid streams immediately on a fresh approved cache entry and
// revalidates in the background; any other cache state falls back to the
// pre-stream path for this turn.
func (uc *UseCases) provideHybrid(ctx context.Context, input *GuidanceInput, gen *interfaces.Generation, rc *model.RetrievedContext, audit *model.TurnAudit, stream StreamFunc) (*GuidanceResult, error) {
	if uc.cache == nil {
		return uc.providePreStream(ctx, input, gen, rc, audit, stream)
	}

	key := cache.Key(gen.Text, input.Profile)
	entry, ok := uc.cache.Get(key)
	if !ok || entry.State != types.StateApproved {
		res, err := uc.providePreStream(ctx, input, gen, rc, audit, stream)
		if err != nil {
			return nil, err
		}
		if vr := audit.ValidationResult; vr != nil {
			uc.cache.Put(key, &interfaces.CachedValidation{
				State:    vr.State,
				Result:   vr,
				CachedAt: time.Now().UTC(),
			}, 0)
		}
		return res, nil
	}

	logging.From(ctx).Info("validation cache hit, streaming ahead of revalidation")
	audit.ValidationResult = entry.Result

	res, err := uc.deliverGuidance(ctx, audit, gen.Text, stream)
	if err != nil {
		return nil, err
	}

	submitErr := uc.workers.Submit(ctx, audit.TurnID, func(bgCtx context.Context) error {
		vr, valErr := uc.validator.Validate(bgCtx, gen.Text, input.Profile, gen.Rationale)
		if valErr != nil {
			return goerr.Wrap(valErr, "background revalidation failed", goerr.V("turnID", audit.TurnID))
		}

		uc.cache.Put(key, &interfaces.CachedValidation{
			State:    vr.State,
			Result:   vr,
			CachedAt: time.Now().UTC(),
		}, 0)

		audit.ValidationResult = vr
		if !vr.Approved() {
			audit.EscalationTicketID = uc.escalate(bgCtx, audit.TurnID, input, gen, vr)
		}
		audit.CompletedAt = time.Now().UTC()
		return uc.repo.Audit().Put(bgCtx, audit)
	})
	if submitErr != nil {
		errutil.Handle(ctx, submitErr, "failed to submit background revalidation")
	}

	return res, nil
}

// validateWithRefinement validates the draft and, on a plain rejection,
// spends the single refinement attempt: regenerate with the issues and
// validate the new text in full. Escalated verdicts are ambiguity, not
// fixable wording, so they skip refinement.
func (uc *UseCases) validateWithRefinement(ctx context.Context, input *GuidanceInput, gen *interfaces.Generation, rc *model.RetrievedContext) (*interfaces.Generation, *model.ValidationResult, bool, error) {
	vr, err := uc.validator.Validate(ctx, gen.Text, input.Profile, gen.Rationale)
	if err != nil {
		return gen, nil, false, err
	}
	if vr.Approved() || vr.State != types.StateRejected {
		return gen, vr, false, nil
	}

	logging.From(ctx).Info("draft rejected, attempting refinement", "issues", len(vr.Issues))

	refinedGen, genErr := uc.generator.Generate(ctx, &interfaces.GenerationRequest{
		CustomerMessage: input.Message,
		Profile:         input.Profile,
		Context:         rc,
		PriorIssues:     vr.Issues,
	})
	if genErr != nil {
		// Refinement generation failed; the original rejection stands.
		errutil.Handle(ctx, genErr, "refinement generation failed")
		return gen, vr, true, nil
	}

	refinedVR, err := uc.validator.Validate(ctx, refinedGen.Text, input.Profile, refinedGen.Rationale)
	if err != nil {
		return refinedGen, nil, true, err
	}
	if !refinedVR.Approved() {
		errutil.Handle(ctx, goerr.Wrap(ErrRefinementExhausted, "refined draft still not approved",
			goerr.V("state", refinedVR.State.String())), "refinement spent")
	}
	return refinedGen, refinedVR, true, nil
}

// escalate routes the turn to human review, falling back to the durable
// local log when the queue is unreachable. Returns the ticket ID, empty
// when only the fallback (or nothing) recorded it.
func (uc *UseCases) escalate(ctx context.Context, turnID model.TurnID, input *GuidanceInput, gen *interfaces.Generation, vr *model.ValidationResult) string {
	req := &interfaces.ReviewRequest{
		TurnID:       turnID,
		CustomerID:   input.CustomerID,
		GuidanceText: gen.Text,
		Result:       vr,
		Priority:     escalationPriority(vr),
	}

	if uc.reviews != nil {
		ticketID, err := uc.reviews.Enqueue(ctx, req)
		if err == nil {
			logging.From(ctx).Info("turn escalated to human review", "ticketID", ticketID)
			return ticketID
		}
		errutil.Handle(ctx, err, "review queue unavailable, recording to fallback log")
		uc.recordFallback(ctx, req, err)
		return ""
	}

	uc.recordFallback(ctx, req, nil)
	return ""
}

func (uc *UseCases) recordFallback(ctx context.Context, req *interfaces.ReviewRequest, queueErr error) {
	if uc.fallback == nil {
		errutil.Handle(ctx, goerr.Wrap(ErrEscalationFailed, "no review queue and no fallback log configured",
			goerr.V("turnID", req.TurnID)), "escalation lost")
		return
	}
	if err := uc.fallback.Record(ctx, req, queueErr); err != nil {
		errutil.Handle(ctx, goerr.Wrap(ErrEscalationFailed, "fallback log write failed",
			goerr.V("turnID", req.TurnID), goerr.V("cause", err.Error())), "escalation lost")
	}
}

func (uc *UseCases) deliverGuidance(ctx context.Context, audit *model.TurnAudit, text string, stream StreamFunc) (*GuidanceResult, error) {
	if err := streamChunks(text, stream); err != nil {
		return nil, goerr.Wrap(err, "failed to stream guidance", goerr.V("turnID", audit.TurnID))
	}

	audit.GuidanceDelivered = true
	audit.DeliveredText = text
	audit.CompletedAt = time.Now().UTC()
	if err := uc.repo.Audit().Put(ctx, audit); err != nil {
		return nil, goerr.Wrap(err, "failed to write audit record", goerr.V("turnID", audit.TurnID))
	}

	return &GuidanceResult{
		Delivered:          true,
		Text:               text,
		Validation:         audit.ValidationResult,
		EscalationTicketID: audit.EscalationTicketID,
	}, nil
}

func (uc *UseCases) deliverHolding(ctx context.Context, audit *model.TurnAudit, ticketID string, stream StreamFunc) (*GuidanceResult, error) {
	if err := streamChunks(uc.holdingMessage, stream); err != nil {
		return nil, goerr.Wrap(err, "failed to stream holding message", goerr.V("turnID", audit.TurnID))
	}

	audit.GuidanceDelivered = false
	audit.DeliveredText = uc.holdingMessage
	audit.EscalationTicketID = ticketID
	audit.CompletedAt = time.Now().UTC()
	if err := uc.repo.Audit().Put(ctx, audit); err != nil {
		return nil, goerr.Wrap(err, "failed to write audit record", goerr.V("turnID", audit.TurnID))
	}

	return &GuidanceResult{
		Delivered:          false,
		Text:               uc.holdingMessage,
		Validation:         audit.ValidationResult,
		EscalationTicketID: ticketID,
	}, nil
}

// escalationPriority derives the ticket priority from the worst issue in
// the verdict. An absent verdict (validator unavailable) is high priority.
func escalationPriority(vr *model.ValidationResult) types.Severity {
	if vr == nil {
		return types.SeverityHigh
	}

	worst := types.SeverityMedium
	for _, issue := range vr.Issues {
		if issue.Severity.Rank() > worst.Rank() {
			worst = issue.Severity
		}
	}
	return worst
}

const streamChunkSize = 160

// streamChunks delivers text in fixed-size chunks split on rune
// boundaries
func streamChunks(text string, stream StreamFunc) error {
	runes := []rune(text)
	for start := 0; start < len(runes); start += streamChunkSize {
		end := start + streamChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		if err := stream(string(runes[start:end])); err != nil {
			return err
		}
	}
	return nil
}
