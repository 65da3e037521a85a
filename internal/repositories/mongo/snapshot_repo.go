package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/calloway-health/consultline/internal/models"
	"github.com/calloway-health/consultline/internal/utils"
)

type SnapshotRepository interface {
	Upsert(ctx context.Context, s *models.CallSnapshot) error
	GetByCallSID(ctx context.Context, callSID string) (*models.CallSnapshot, error)
	Delete(ctx context.Context, callSID string) error
}

type snapshotRepo struct {
	col *mongo.Collection
	ttl time.Duration
}

func NewSnapshotRepo(db *mongo.Database, ttl time.Duration) SnapshotRepository {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &snapshotRepo{col: db.Collection("call_snapshots"), ttl: ttl}
}

func (r *snapshotRepo) Upsert(ctx context.Context, s *models.CallSnapshot) error {
	now := time.Now().UTC()
	s.UpdatedAt = now
	s.ExpiresAt = now.Add(r.ttl)

	_, err := r.col.UpdateOne(ctx,
		bson.M{"call_sid": s.CallSID},
		bson.M{"$set": bson.M{
			"call_id":    s.CallID,
			"patient_id": s.PatientID,
			"status":     s.Status,
			"history":    s.History,
			"summary":    s.Summary,
			"started_at": s.StartedAt.UTC(),
			"updated_at": s.UpdatedAt,
			"expires_at": s.ExpiresAt,
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *snapshotRepo) GetByCallSID(ctx context.Context, callSID string) (*models.CallSnapshot, error) {
	var s models.CallSnapshot
	err := r.col.FindOne(ctx, bson.M{"call_sid": callSID}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	return &s, err
}

func (r *snapshotRepo) Delete(ctx context.Context, callSID string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"call_sid": callSID})
	return err
}
