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

// caseDoc is the Firestore document representation of model.Case
type caseDoc struct {
	ID            model.CaseID       `firestore:"ID"`
	SituationText string             `firestore:"SituationText"`
	GuidanceText  string             `firestore:"GuidanceText"`
	TaskType      string             `firestore:"TaskType"`
	Embedding     firestore.Vector32 `firestore:"Embedding,omitempty"`
	Outcome       map[string]any     `firestore:"Outcome,omitempty"`
	HasEmbedding  bool               `firestore:"HasEmbedding"`
	CreatedAt     time.Time          `firestore:"CreatedAt"`
}

func toCaseDoc(c *model.Case) *caseDoc {
	doc := &caseDoc{
		ID:            c.ID,
		SituationText: c.SituationText,
		GuidanceText:  c.GuidanceText,
		TaskType:      c.TaskType,
		Outcome:       c.Outcome,
		HasEmbedding:  c.HasEmbedding,
		CreatedAt:     c.CreatedAt,
	}
	if len(c.Embedding) > 0 {
		doc.Embedding = firestore.Vector32(c.Embedding)
	}
	return doc
}

func fromCaseDoc(d *caseDoc) *model.Case {
	c := &model.Case{
		ID:            d.ID,
		SituationText: d.SituationText,
		GuidanceText:  d.GuidanceText,
		TaskType:      d.TaskType,
		Outcome:       d.Outcome,
		HasEmbedding:  d.HasEmbedding,
		CreatedAt:     d.CreatedAt,
	}
	if len(d.Embedding) > 0 {
		c.Embedding = []float32(d.Embedding)
	}
	return c
}

type caseRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newCaseRepository(client *firestore.Client) *caseRepository {
	return &caseRepository{client: client}
}

func (r *caseRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + "cases")
}

func (r *caseRepository) Create(ctx context.Context, c *model.Case) (*model.Case, error) {
	if c.ID == "" {
		c.ID = model.NewCaseID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.HasEmbedding = len(c.Embedding) > 0

	docRef := r.collection().Doc(string(c.ID))
	if _, err := docRef.Set(ctx, toCaseDoc(c)); err != nil {
		return nil, goerr.Wrap(err, "failed to create case")
	}

	return c, nil
}

func (r *caseRepository) Get(ctx context.Context, id model.CaseID) (*model.Case, error) {
	doc, err := r.collection().Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "case not found", goerr.V("caseID", id))
		}
		return nil, goerr.Wrap(err, "failed to get case", goerr.V("caseID", id))
	}

	var d caseDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal case", goerr.V("caseID", id))
	}

	return fromCaseDoc(&d), nil
}

func (r *caseRepository) FindByEmbedding(ctx context.Context, embedding []float32, limit int) ([]*model.Case, error) {
	// HasEmbedding pre-filter keeps unembedded cases out of the candidate
	// pool rather than erroring the search.
	vq := r.collection().
		Where("HasEmbedding", "==", true).
		FindNearest("Embedding", firestore.Vector32(embedding), limit, firestore.DistanceMeasureCosine, nil)

	iter := vq.Documents(ctx)
	defer iter.Stop()

	cases := make([]*model.Case, 0, limit)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate case vector search results")
		}

		var d caseDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal case from vector search")
		}

		cases = append(cases, fromCaseDoc(&d))
	}

	return cases, nil
}
