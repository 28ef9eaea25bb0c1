package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/advisory-lab/themis/pkg/domain/model"
	"github.com/advisory-lab/themis/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// auditIssueDoc flattens model.ValidationIssue for Firestore
type auditIssueDoc struct {
	Type        string `firestore:"Type"`
	Description string `firestore:"Description"`
	Severity    string `firestore:"Severity"`
}

// auditJudgeDoc records one judge's verdict inside the audit document
type auditJudgeDoc struct {
	JudgeName  string          `firestore:"JudgeName"`
	Passed     bool            `firestore:"Passed"`
	Confidence float64         `firestore:"Confidence"`
	Issues     []auditIssueDoc `firestore:"Issues,omitempty"`
	Reasoning  string          `firestore:"Reasoning,omitempty"`
}

// auditResultDoc embeds the validation verdict in the audit document
type auditResultDoc struct {
	Passed              bool            `firestore:"Passed"`
	Confidence          float64         `firestore:"Confidence"`
	Source              string          `firestore:"Source"`
	State               string          `firestore:"State"`
	Issues              []auditIssueDoc `firestore:"Issues,omitempty"`
	RequiresHumanReview bool            `firestore:"RequiresHumanReview"`
	JudgeDetails        []auditJudgeDoc `firestore:"JudgeDetails,omitempty"`
	CreatedAt           time.Time       `firestore:"CreatedAt"`
}

// auditDoc is the Firestore document representation of model.TurnAudit
type auditDoc struct {
	TurnID              model.TurnID    `firestore:"TurnID"`
	CustomerID          string          `firestore:"CustomerID"`
	Strategy            string          `firestore:"Strategy"`
	GuidanceDelivered   bool            `firestore:"GuidanceDelivered"`
	DeliveredText       string          `firestore:"DeliveredText,omitempty"`
	ValidationResult    *auditResultDoc `firestore:"ValidationResult,omitempty"`
	RetrievedContextIDs []string        `firestore:"RetrievedContextIDs,omitempty"`
	RefinementAttempted bool            `firestore:"RefinementAttempted"`
	EscalationTicketID  string          `firestore:"EscalationTicketID,omitempty"`
	StartedAt           time.Time       `firestore:"StartedAt"`
	CompletedAt         time.Time       `firestore:"CompletedAt"`
}

func toIssueDocs(issues []model.ValidationIssue) []auditIssueDoc {
	if len(issues) == 0 {
		return nil
	}
	docs := make([]auditIssueDoc, len(issues))
	for i, issue := range issues {
		docs[i] = auditIssueDoc{
			Type:        issue.Type.String(),
			Description: issue.Description,
			Severity:    issue.Severity.String(),
		}
	}
	return docs
}

func fromIssueDocs(docs []auditIssueDoc) []model.ValidationIssue {
	if len(docs) == 0 {
		return nil
	}
	issues := make([]model.ValidationIssue, len(docs))
	for i, d := range docs {
		issues[i] = model.ValidationIssue{
			Type:        types.IssueType(d.Type),
			Description: d.Description,
			Severity:    types.Severity(d.Severity),
		}
	}
	return issues
}

func toAuditDoc(a *model.TurnAudit) *auditDoc {
	doc := &auditDoc{
		TurnID:              a.TurnID,
		CustomerID:          a.CustomerID,
		Strategy:            a.Strategy.String(),
		GuidanceDelivered:   a.GuidanceDelivered,
		DeliveredText:       a.DeliveredText,
		RetrievedContextIDs: a.RetrievedContextIDs,
		RefinementAttempted: a.RefinementAttempted,
		EscalationTicketID:  a.EscalationTicketID,
		StartedAt:           a.StartedAt,
		CompletedAt:         a.CompletedAt,
	}

	if r := a.ValidationResult; r != nil {
		rd := &auditResultDoc{
			Passed:              r.Passed,
			Confidence:          r.Confidence,
			Source:              r.Source.String(),
			State:               r.State.String(),
			Issues:              toIssueDocs(r.Issues),
			RequiresHumanReview: r.RequiresHumanReview,
			CreatedAt:           r.CreatedAt,
		}
		for _, j := range r.JudgeDetails {
			rd.JudgeDetails = append(rd.JudgeDetails, auditJudgeDoc{
				JudgeName:  j.JudgeName,
				Passed:     j.Passed,
				Confidence: j.Confidence,
				Issues:     toIssueDocs(j.Issues),
				Reasoning:  j.Reasoning,
			})
		}
		doc.ValidationResult = rd
	}

	return doc
}

func fromAuditDoc(d *auditDoc) *model.TurnAudit {
	a := &model.TurnAudit{
		TurnID:              d.TurnID,
		CustomerID:          d.CustomerID,
		Strategy:            types.ValidationStrategy(d.Strategy),
		GuidanceDelivered:   d.GuidanceDelivered,
		DeliveredText:       d.DeliveredText,
		RetrievedContextIDs: d.RetrievedContextIDs,
		RefinementAttempted: d.RefinementAttempted,
		EscalationTicketID:  d.EscalationTicketID,
		StartedAt:           d.StartedAt,
		CompletedAt:         d.CompletedAt,
	}

	if rd := d.ValidationResult; rd != nil {
		r := &model.ValidationResult{
			Passed:              rd.Passed,
			Confidence:          rd.Confidence,
			Source:              types.ValidationSource(rd.Source),
			State:               types.ValidationState(rd.State),
			Issues:              fromIssueDocs(rd.Issues),
			RequiresHumanReview: rd.RequiresHumanReview,
			CreatedAt:           rd.CreatedAt,
		}
		for _, jd := range rd.JudgeDetails {
			r.JudgeDetails = append(r.JudgeDetails, model.JudgeVerdict{
				JudgeName:  jd.JudgeName,
				Passed:     jd.Passed,
				Confidence: jd.Confidence,
				Issues:     fromIssueDocs(jd.Issues),
				Reasoning:  jd.Reasoning,
			})
		}
		a.ValidationResult = r
	}

	return a
}

type auditRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newAuditRepository(client *firestore.Client) *auditRepository {
	return &auditRepository{client: client}
}

func (r *auditRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + "audits")
}

func (r *auditRepository) Put(ctx context.Context, audit *model.TurnAudit) error {
	if audit.TurnID == "" {
		return goerr.New("audit record requires a turn ID")
	}

	docRef := r.collection().Doc(string(audit.TurnID))
	if _, err := docRef.Set(ctx, toAuditDoc(audit)); err != nil {
		return goerr.Wrap(err, "failed to put audit record", goerr.V("turnID", audit.TurnID))
	}

	return nil
}

func (r *auditRepository) Get(ctx context.Context, turnID model.TurnID) (*model.TurnAudit, error) {
	doc, err := r.collection().Doc(string(turnID)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "audit record not found", goerr.V("turnID", turnID))
		}
		return nil, goerr.Wrap(err, "failed to get audit record", goerr.V("turnID", turnID))
	}

	var d auditDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal audit record", goerr.V("turnID", turnID))
	}

	return fromAuditDoc(&d), nil
}

func (r *auditRepository) ListRecent(ctx context.Context, limit int) ([]*model.TurnAudit, error) {
	q := r.collection().OrderBy("StartedAt", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	records := make([]*model.TurnAudit, 0, limit)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate audit records")
		}

		var d auditDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal audit record")
		}

		records = append(records, fromAuditDoc(&d))
	}

	return records, nil
}
