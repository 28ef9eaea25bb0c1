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

// memoryNodeDoc is the Firestore document representation of
// model.MemoryNode. Embedding is stored as firestore.Vector32 so that
// FindNearest vector search works.
type memoryNodeDoc struct {
	ID             model.MemoryID     `firestore:"ID"`
	Description    string             `firestore:"Description"`
	Importance     float64            `firestore:"Importance"`
	Embedding      firestore.Vector32 `firestore:"Embedding,omitempty"`
	CreatedAt      time.Time          `firestore:"CreatedAt"`
	LastAccessedAt time.Time          `firestore:"LastAccessedAt"`
}

func toMemoryNodeDoc(n *model.MemoryNode) *memoryNodeDoc {
	doc := &memoryNodeDoc{
		ID:             n.ID,
		Description:    n.Description,
		Importance:     n.Importance,
		CreatedAt:      n.CreatedAt,
		LastAccessedAt: n.LastAccessedAt,
	}
	if len(n.Embedding) > 0 {
		doc.Embedding = firestore.Vector32(n.Embedding)
	}
	return doc
}

func fromMemoryNodeDoc(d *memoryNodeDoc) *model.MemoryNode {
	n := &model.MemoryNode{
		ID:             d.ID,
		Description:    d.Description,
		Importance:     d.Importance,
		CreatedAt:      d.CreatedAt,
		LastAccessedAt: d.LastAccessedAt,
	}
	if len(d.Embedding) > 0 {
		n.Embedding = []float32(d.Embedding)
	}
	return n
}

type memoryNodeRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newMemoryNodeRepository(client *firestore.Client) *memoryNodeRepository {
	return &memoryNodeRepository{client: client}
}

func (r *memoryNodeRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + "memories")
}

func (r *memoryNodeRepository) Create(ctx context.Context, node *model.MemoryNode) (*model.MemoryNode, error) {
	if node.ID == "" {
		node.ID = model.NewMemoryID()
	}
	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now().UTC()
	}

	docRef := r.collection().Doc(string(node.ID))
	if _, err := docRef.Set(ctx, toMemoryNodeDoc(node)); err != nil {
		return nil, goerr.Wrap(err, "failed to create memory node")
	}

	return node, nil
}

func (r *memoryNodeRepository) Get(ctx context.Context, id model.MemoryID) (*model.MemoryNode, error) {
	doc, err := r.collection().Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "memory node not found", goerr.V("memoryID", id))
		}
		return nil, goerr.Wrap(err, "failed to get memory node", goerr.V("memoryID", id))
	}

	var d memoryNodeDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal memory node", goerr.V("memoryID", id))
	}

	return fromMemoryNodeDoc(&d), nil
}

func (r *memoryNodeRepository) List(ctx context.Context) ([]*model.MemoryNode, error) {
	iter := r.collection().
		OrderBy("CreatedAt", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	nodes := make([]*model.MemoryNode, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate memory nodes")
		}

		var d memoryNodeDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal memory node")
		}

		nodes = append(nodes, fromMemoryNodeDoc(&d))
	}

	return nodes, nil
}

func (r *memoryNodeRepository) FindByEmbedding(ctx context.Context, embedding []float32, limit int) ([]*model.MemoryNode, error) {
	vq := r.collection().
		FindNearest("Embedding", firestore.Vector32(embedding), limit, firestore.DistanceMeasureCosine, nil)

	iter := vq.Documents(ctx)
	defer iter.Stop()

	nodes := make([]*model.MemoryNode, 0, limit)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate memory node vector search results")
		}

		var d memoryNodeDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal memory node from vector search")
		}

		nodes = append(nodes, fromMemoryNodeDoc(&d))
	}

	return nodes, nil
}

func (r *memoryNodeRepository) TouchAccess(ctx context.Context, ids []model.MemoryID, at time.Time) error {
	// Best-effort batched update; missing documents are skipped rather
	// than failing the whole touch.
	bw := r.client.BulkWriter(ctx)
	for _, id := range ids {
		_, err := bw.Update(r.collection().Doc(string(id)), []firestore.Update{
			{Path: "LastAccessedAt", Value: at},
		})
		if err != nil {
			return goerr.Wrap(err, "failed to queue access-time update", goerr.V("memoryID", id))
		}
	}
	bw.End()

	return nil
}
