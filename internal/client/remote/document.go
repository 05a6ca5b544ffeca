package remote

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/cyclesync/internal/client/models"
	"github.com/dmitrijs2005/cyclesync/internal/docpath"
	"github.com/dmitrijs2005/cyclesync/internal/rpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// envelope holds the fields every document carries. Pointers let decoding
// tell a missing field from a zero value.
type envelope struct {
	ID            *string            `json:"id"`
	Collection    *models.Collection `json:"collection"`
	CreatedAt     *int64             `json:"createdAt"`
	UpdatedAt     *int64             `json:"updatedAt"`
	DateEpochDays *int64             `json:"dateEpochDays"`
	V             *int               `json:"v"`
}

func newEnvelope(r *models.Record) envelope {
	v := models.SchemaVersion
	date := int64(r.Date)
	return envelope{
		ID:            &r.ID,
		Collection:    &r.Collection,
		CreatedAt:     &r.CreatedAt,
		UpdatedAt:     &r.UpdatedAt,
		DateEpochDays: &date,
		V:             &v,
	}
}

func (e *envelope) check(want models.Collection) error {
	switch {
	case e.ID == nil || *e.ID == "":
		return errors.New("missing id")
	case e.Collection == nil:
		return errors.New("missing collection")
	case *e.Collection != want:
		return fmt.Errorf("collection %q in %s document", *e.Collection, want)
	case e.CreatedAt == nil:
		return errors.New("missing createdAt")
	case e.UpdatedAt == nil:
		return errors.New("missing updatedAt")
	case e.DateEpochDays == nil:
		return errors.New("missing dateEpochDays")
	case e.V == nil:
		return errors.New("missing v")
	case *e.V < 1 || *e.V > models.SchemaVersion:
		return fmt.Errorf("%w: v=%d", models.ErrUnsupportedVersion, *e.V)
	}
	return nil
}

func (e *envelope) record(userID string, p models.Payload) *models.Record {
	return &models.Record{
		UserID:     userID,
		ID:         *e.ID,
		Collection: *e.Collection,
		Date:       models.Date(*e.DateEpochDays),
		CreatedAt:  *e.CreatedAt,
		UpdatedAt:  *e.UpdatedAt,
		Payload:    p,
	}
}

type dailyLogDocument struct {
	envelope
	models.DailyLog
}

func (d *dailyLogDocument) Validate() error {
	if err := d.check(models.CollectionDailyLogs); err != nil {
		return err
	}
	return d.DailyLog.Validate()
}

type cycleDocument struct {
	envelope
	models.Cycle
}

func (d *cycleDocument) Validate() error {
	if err := d.check(models.CollectionCycles); err != nil {
		return err
	}
	return d.Cycle.Validate()
}

type insightDocument struct {
	envelope
	models.Insight
}

func (d *insightDocument) Validate() error {
	if err := d.check(models.CollectionInsights); err != nil {
		return err
	}
	return d.Insight.Validate()
}

// EncodeRecord renders r as a wire document.
func EncodeRecord(r *models.Record) (*structpb.Struct, error) {
	env := newEnvelope(r)
	switch p := r.Payload.(type) {
	case models.DailyLog:
		return rpc.EncodeDocument(dailyLogDocument{env, p})
	case models.Cycle:
		return rpc.EncodeDocument(cycleDocument{env, p})
	case models.Insight:
		return rpc.EncodeDocument(insightDocument{env, p})
	default:
		return nil, fmt.Errorf("%w: unsupported payload %T", rpc.ErrMalformed, r.Payload)
	}
}

// DecodeRecord strictly decodes a wire document owned by userID.
func DecodeRecord(userID string, s *structpb.Struct) (*models.Record, error) {
	coll := models.Collection(s.GetFields()[docpath.FieldCollection].GetStringValue())
	switch coll {
	case models.CollectionDailyLogs:
		var d dailyLogDocument
		if err := rpc.DecodeDocument(s, &d); err != nil {
			return nil, err
		}
		return d.record(userID, d.DailyLog), nil
	case models.CollectionCycles:
		var d cycleDocument
		if err := rpc.DecodeDocument(s, &d); err != nil {
			return nil, err
		}
		return d.record(userID, d.Cycle), nil
	case models.CollectionInsights:
		var d insightDocument
		if err := rpc.DecodeDocument(s, &d); err != nil {
			return nil, err
		}
		return d.record(userID, d.Insight), nil
	default:
		return nil, fmt.Errorf("%w: unknown collection %q", rpc.ErrMalformed, coll)
	}
}

// Path returns the document path of r.
func Path(r *models.Record) (string, error) {
	return docpath.Document(r.UserID, string(r.Collection), r.ID)
}
