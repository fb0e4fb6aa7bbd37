package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"stayhub/internal/domain/property"
	"stayhub/internal/domain/shared/money"
)

type PropertyRepository struct {
	col *mongo.Collection
}

func (r *PropertyRepository) ByID(ctx context.Context, id property.PropertyID) (*property.Property, error) {
	var doc propertyDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, property.ErrPropertyNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

// ByIDForUpdate touches the document inside the transaction so a concurrent
// writer of the same property aborts with a write conflict.
func (r *PropertyRepository) ByIDForUpdate(ctx context.Context, id property.PropertyID) (*property.Property, error) {
	var doc propertyDocument
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": string(id)}, bson.M{"$inc": bson.M{"lock_seq": 1}}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, property.ErrPropertyNotFound
		}
		return nil, mapWriteErr(err, nil)
	}
	return doc.toAggregate(), nil
}

func (r *PropertyRepository) Save(ctx context.Context, p *property.Property) error {
	doc := newPropertyDocument(p)
	_, err := r.col.UpdateByID(ctx, doc.ID, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	return mapWriteErr(err, nil)
}

type propertyDocument struct {
	ID        string `bson:"_id"`
	HostID    string `bson:"host_id"`
	Name      string `bson:"name"`
	City      string `bson:"city"`
	Country   string `bson:"country"`
	RateMinor int64  `bson:"nightly_rate_minor"`
	Currency  string `bson:"currency"`
	CreatedAt int64  `bson:"created_at"`
	UpdatedAt int64  `bson:"updated_at"`
}

func newPropertyDocument(p *property.Property) propertyDocument {
	return propertyDocument{
		ID:        string(p.ID),
		HostID:    string(p.HostID),
		Name:      p.Name,
		City:      p.City,
		Country:   p.Country,
		RateMinor: p.NightlyRate.Amount,
		Currency:  p.NightlyRate.Currency,
		CreatedAt: p.CreatedAt.UnixMilli(),
		UpdatedAt: p.UpdatedAt.UnixMilli(),
	}
}

func (d propertyDocument) toAggregate() *property.Property {
	return &property.Property{
		ID:          property.PropertyID(d.ID),
		HostID:      property.HostID(d.HostID),
		Name:        d.Name,
		City:        d.City,
		Country:     d.Country,
		NightlyRate: money.Money{Amount: d.RateMinor, Currency: d.Currency},
		CreatedAt:   timestampToTime(d.CreatedAt),
		UpdatedAt:   timestampToTime(d.UpdatedAt),
	}
}

func timestampToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func timeToTimestamp(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
