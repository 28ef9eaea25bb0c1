package usecase

import (
	"github.com/advisory-lab/themis/pkg/domain/interfaces"
	"github.com/advisory-lab/themis/pkg/domain/types"
	"github.com/advisory-lab/themis/pkg/service/compliance"
	"github.com/advisory-lab/themis/pkg/service/conversation"
	"github.com/advisory-lab/themis/pkg/service/rerank"
	"github.com/advisory-lab/themis/pkg/service/retrieval"
	"github.com/advisory-lab/themis/pkg/service/review"
	"github.com/advisory-lab/themis/pkg/service/worker"
)

// DefaultHoldingMessage is shown to the customer when guidance could not
// be approved this turn.
const DefaultHoldingMessage = "Thanks for your patience. I want to make sure you get this right, so a colleague is going to take a closer look at your question. We'll come back to you shortly."

// UseCases wires the guidance pipeline: conversational tracking,
// retrieval, re-ranking, generation, validation and escalation.
type UseCases struct {
	repo      interfaces.Repository
	retriever *retrieval.Service
	reranker  *rerank.Reranker
	tracker   *conversation.Tracker
	generator interfaces.Generator
	validator *compliance.Validator
	reviews   interfaces.ReviewQueue
	fallback  *review.FallbackLog
	cache     interfaces.ValidationCache
	workers   *worker.Registry

	defaultStrategy types.ValidationStrategy
	holdingMessage  string
}

// Option is a functional option for UseCases configuration
type Option func(*UseCases)

// WithReviewQueue sets the human review queue for escalations
func WithReviewQueue(q interfaces.ReviewQueue) Option {
	return func(uc *UseCases) {
		uc.reviews = q
	}
}

// WithFallbackLog sets the durable escalation log used when the review
// queue is unavailable
func WithFallbackLog(l *review.FallbackLog) Option {
	return func(uc *UseCases) {
		uc.fallback = l
	}
}

// WithValidationCache enables the hybrid strategy's cache
func WithValidationCache(c interfaces.ValidationCache) Option {
	return func(uc *UseCases) {
		uc.cache = c
	}
}

// WithDefaultStrategy sets the strategy applied when a request does not
// name one
func WithDefaultStrategy(s types.ValidationStrategy) Option {
	return func(uc *UseCases) {
		uc.defaultStrategy = s
	}
}

// WithHoldingMessage overrides the text delivered in place of unapproved
// guidance
func WithHoldingMessage(msg string) Option {
	return func(uc *UseCases) {
		uc.holdingMessage = msg
	}
}

// New assembles the guidance pipeline from its collaborators
func New(
	repo interfaces.Repository,
	retriever *retrieval.Service,
	reranker *rerank.Reranker,
	tracker *conversation.Tracker,
	generator interfaces.Generator,
	validator *compliance.Validator,
	opts ...Option,
) *UseCases {
	uc := &UseCases{
		repo:            repo,
		retriever:       retriever,
		reranker:        reranker,
		tracker:         tracker,
		generator:       generator,
		validator:       validator,
		workers:         worker.New(),
		defaultStrategy: types.StrategyPreStream,
		holdingMessage:  DefaultHoldingMessage,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// Workers exposes the background task registry so the server can drain
// it on shutdown.
func (uc *UseCases) Workers() *worker.Registry {
	return uc.workers
}
