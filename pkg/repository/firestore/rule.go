package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/advisory-lab/themis/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ruleDoc is the Firestore document representation of model.Rule
type ruleDoc struct {
	ID                 model.RuleID       `firestore:"ID"`
	PrincipleText      string             `firestore:"PrincipleText"`
	Domain             string             `firestore:"Domain"`
	Confidence         float64            `firestore:"Confidence"`
	SupportingEvidence []string           `firestore:"SupportingEvidence,omitempty"`
	Embedding          firestore.Vector32 `firestore:"Embedding,omitempty"`
	CreatedAt          time.Time          `firestore:"CreatedAt"`
	UpdatedAt          time.Time          `firestore:"UpdatedAt"`
}

func toRuleDoc(r *model.Rule) *ruleDoc {
	doc := &ruleDoc{
		ID:                 r.ID,
		PrincipleText:      r.PrincipleText,
		Domain:             r.Domain,
		Confidence:         r.Confidence,
		SupportingEvidence: r.SupportingEvidence,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if len(r.Embedding) > 0 {
		doc.Embedding = firestore.Vector32(r.Embedding)
	}
	return doc
}

func fromRuleDoc(d *ruleDoc) *model.Rule {
	r := &model.Rule{
		ID:                 d.ID,
		PrincipleText:      d.PrincipleText,
		Domain:             d.Domain,
		Confidence:         d.Confidence,
		SupportingEvidence: d.SupportingEvidence,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
	if len(d.Embedding) > 0 {
		r.Embedding = []float32(d.Embedding)
	}
	return r
}

type ruleRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newRuleRepository(client *firestore.Client) *ruleRepository {
	return &ruleRepository{client: client}
}

func (r *ruleRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + "rules")
}

func (r *ruleRepository) Create(ctx context.Context, rule *model.Rule) (*model.Rule, error) {
	if rule.ID == "" {
		rule.ID = model.NewRuleID()
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = now
	}

	docRef := r.collection().Doc(string(rule.ID))
	if _, err := docRef.Set(ctx, toRuleDoc(rule)); err != nil {
		return nil, goerr.Wrap(err, "failed to create rule")
	}

	return rule, nil
}

func (r *ruleRepository) Get(ctx context.Context, id model.RuleID) (*model.Rule, error) {
	doc, err := r.collection().Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "rule not found", goerr.V("ruleID", id))
		}
		return nil, goerr.Wrap(err, "failed to get rule", goerr.V("ruleID", id))
	}

	var d ruleDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal rule", goerr.V("ruleID", id))
	}

	return fromRuleDoc(&d), nil
}

func (r *ruleRepository) FindByEmbedding(ctx context.Context, embedding []float32, limit int, minConfidence float64) ([]*model.Rule, error) {
	// Confidence filters before FindNearest so limit returns the best
	// eligible rules. Requires the composite vector index created by
	// `themis migrate`.
	vq := r.collection().
		Where("Confidence", ">=", minConfidence).
		FindNearest("Embedding", firestore.Vector32(embedding), limit, firestore.DistanceMeasureCosine, nil)

	iter := vq.Documents(ctx)
	defer iter.Stop()

	rules := make([]*model.Rule, 0, limit)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate rule vector search results")
		}

		var d ruleDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal rule from vector search")
		}

		rules = append(rules, fromRuleDoc(&d))
	}

	return rules, nil
}
