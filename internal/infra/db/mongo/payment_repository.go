package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbooking "stayhub/internal/domain/booking"
	"stayhub/internal/domain/payment"
	"stayhub/internal/domain/shared/money"
)

// PaymentRepository relies on the partial unique indexes created by
// Client.EnsureIndexes: one PENDING payment per booking and unique external ids.
type PaymentRepository struct {
	col *mongo.Collection
}

func (r *PaymentRepository) ByID(ctx context.Context, id payment.PaymentID) (*payment.Payment, error) {
	return r.findOne(ctx, bson.M{"_id": string(id)}, nil)
}

func (r *PaymentRepository) LatestByBooking(ctx context.Context, id domainbooking.BookingID) (*payment.Payment, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "seq", Value: -1}})
	return r.findOne(ctx, bson.M{"booking_id": string(id)}, opts)
}

func (r *PaymentRepository) ByExternalID(ctx context.Context, externalID string) (*payment.Payment, error) {
	if externalID == "" {
		return nil, payment.ErrPaymentNotFound
	}
	return r.findOne(ctx, bson.M{"external_id": externalID}, nil)
}

func (r *PaymentRepository) Insert(ctx context.Context, p *payment.Payment) error {
	doc := newPaymentDocument(p)
	doc.Version = 1
	doc.Seq = time.Now().UnixNano()
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return mapWriteErr(err, payment.ErrDuplicate)
	}
	p.Version = 1
	return nil
}

func (r *PaymentRepository) Save(ctx context.Context, p *payment.Payment) error {
	doc := newPaymentDocument(p)
	filter := bson.M{"_id": doc.ID, "version": p.Version}
	doc.Version = p.Version + 1
	set := bson.M{
		"amount_minor": doc.AmountMinor,
		"currency":     doc.Currency,
		"method":       doc.Method,
		"status":       doc.Status,
		"external_id":  doc.ExternalID,
		"initiated_at": doc.InitiatedAt,
		"completed_at": doc.CompletedAt,
		"updated_at":   doc.UpdatedAt,
		"version":      doc.Version,
	}
	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return mapWriteErr(err, payment.ErrDuplicate)
	}
	if res.MatchedCount == 0 {
		return payment.ErrDuplicate
	}
	p.Version = doc.Version
	return nil
}

func (r *PaymentRepository) ListByBooking(ctx context.Context, id domainbooking.BookingID) ([]*payment.Payment, error) {
	return r.find(ctx, bson.M{"booking_id": string(id)})
}

func (r *PaymentRepository) ListByStatus(ctx context.Context, status payment.Status) ([]*payment.Payment, error) {
	return r.find(ctx, bson.M{"status": string(status)})
}

func (r *PaymentRepository) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*payment.Payment, error) {
	var doc paymentDocument
	var err error
	if opts != nil {
		err = r.col.FindOne(ctx, filter, opts).Decode(&doc)
	} else {
		err = r.col.FindOne(ctx, filter).Decode(&doc)
	}
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, payment.ErrPaymentNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *PaymentRepository) find(ctx context.Context, filter bson.M) ([]*payment.Payment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "seq", Value: -1}})
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var docs []paymentDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*payment.Payment, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toAggregate())
	}
	return out, nil
}

type paymentDocument struct {
	ID          string `bson:"_id"`
	BookingID   string `bson:"booking_id"`
	AmountMinor int64  `bson:"amount_minor"`
	Currency    string `bson:"currency"`
	Method      string `bson:"method"`
	Status      string `bson:"status"`
	ExternalID  string `bson:"external_id,omitempty"`
	InitiatedAt int64  `bson:"initiated_at"`
	CompletedAt int64  `bson:"completed_at"`
	CreatedAt   int64  `bson:"created_at"`
	UpdatedAt   int64  `bson:"updated_at"`
	Seq         int64  `bson:"seq"`
	Version     int64  `bson:"version"`
}

func newPaymentDocument(p *payment.Payment) paymentDocument {
	return paymentDocument{
		ID:          string(p.ID),
		BookingID:   string(p.BookingID),
		AmountMinor: p.Amount.Amount,
		Currency:    p.Amount.Currency,
		Method:      string(p.Method),
		Status:      string(p.Status),
		ExternalID:  p.ExternalID,
		InitiatedAt: timeToTimestamp(p.InitiatedAt),
		CompletedAt: timeToTimestamp(p.CompletedAt),
		CreatedAt:   timeToTimestamp(p.CreatedAt),
		UpdatedAt:   timeToTimestamp(p.UpdatedAt),
		Version:     p.Version,
	}
}

func (d paymentDocument) toAggregate() *payment.Payment {
	return &payment.Payment{
		ID:          payment.PaymentID(d.ID),
		BookingID:   domainbooking.BookingID(d.BookingID),
		Amount:      money.Money{Amount: d.AmountMinor, Currency: d.Currency},
		Method:      payment.Method(d.Method),
		Status:      payment.Status(d.Status),
		ExternalID:  d.ExternalID,
		InitiatedAt: timestampToTime(d.InitiatedAt),
		CompletedAt: timestampToTime(d.CompletedAt),
		CreatedAt:   timestampToTime(d.CreatedAt),
		UpdatedAt:   timestampToTime(d.UpdatedAt),
		Version:     d.Version,
	}
}
