package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	appoutbox "stayhub/internal/app/outbox"
	"stayhub/internal/app/uow"
	"stayhub/internal/domain/availability"
	"stayhub/internal/domain/booking"
	"stayhub/internal/domain/payment"
	"stayhub/internal/domain/property"
	"stayhub/internal/domain/shared/apperr"
)

var (
	ErrUnitClosed   = errors.New("memory: unit of work already finished")
	ErrReadOnlyUnit = errors.New("memory: write in read-only unit of work")
	ErrDuplicateID  = fmt.Errorf("%w: memory: duplicate id", apperr.ErrConflict)
	errNilStore     = errors.New("memory: store is nil")
)

// Factory begins units over a shared Store.
type Factory struct {
	Store *Store
}

func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.Store == nil {
		return nil, errNilStore
	}
	return &Unit{
		store:       f.Store,
		readOnly:    opts.ReadOnly,
		properties:  make(map[property.PropertyID]*property.Property),
		bookings:    make(map[booking.BookingID]*booking.Booking),
		bookingBase: make(map[booking.BookingID]int64),
		payments:    make(map[payment.PaymentID]*payment.Payment),
		paymentBase: make(map[payment.PaymentID]int64),
		paymentSeq:  make(map[payment.PaymentID]int64),
	}, nil
}

// Unit stages writes in memory. Base versions recorded on the first write are
// compared with the store on Commit, giving optimistic conflict detection.
type Unit struct {
	store    *Store
	readOnly bool
	done     bool

	properties  map[property.PropertyID]*property.Property
	bookings    map[booking.BookingID]*booking.Booking
	bookingBase map[booking.BookingID]int64
	payments    map[payment.PaymentID]*payment.Payment
	paymentBase map[payment.PaymentID]int64
	paymentSeq  map[payment.PaymentID]int64
	events      []appoutbox.EventRecord
}

func (u *Unit) Properties() property.Repository { return propertyRepo{u} }
func (u *Unit) Bookings() booking.Repository    { return bookingRepo{u} }
func (u *Unit) Payments() payment.Repository    { return paymentRepo{u} }

func (u *Unit) Commit(ctx context.Context) error {
	if u.done {
		return ErrUnitClosed
	}
	u.done = true
	if u.readOnly {
		return nil
	}
	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, base := range u.bookingBase {
		if cur, ok := s.bookings[id]; ok && cur.Version != base {
			return booking.ErrConcurrentUpdate
		}
	}
	for id, base := range u.paymentBase {
		if cur, ok := s.payments[id]; ok && cur.Version != base {
			return fmt.Errorf("%w: payment %s modified concurrently", apperr.ErrPersistenceRace, id)
		}
	}
	for _, p := range u.payments {
		if err := s.checkPaymentUniqueLocked(p, u.payments); err != nil {
			return err
		}
	}

	for id, p := range u.properties {
		s.properties[id] = p
	}
	for id, b := range u.bookings {
		s.bookings[id] = b
	}
	for id, p := range u.payments {
		s.payments[id] = p
		if seq, ok := u.paymentSeq[id]; ok {
			s.paymentSeq[id] = seq
		}
	}
	for _, rec := range u.events {
		s.outbox = append(s.outbox, &outboxRow{record: rec, state: stateNew})
	}
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	u.done = true
	return nil
}

func (u *Unit) writable() error {
	if u.done {
		return ErrUnitClosed
	}
	if u.readOnly {
		return ErrReadOnlyUnit
	}
	return nil
}

// checkPaymentUniqueLocked enforces one PENDING payment per booking and unique
// external ids against committed rows not overridden by staged.
func (s *Store) checkPaymentUniqueLocked(p *payment.Payment, staged map[payment.PaymentID]*payment.Payment) error {
	for id, other := range s.payments {
		if id == p.ID {
			continue
		}
		if o, ok := staged[id]; ok {
			other = o
		}
		if other.BookingID == p.BookingID && other.Status == payment.StatusPending && p.Status == payment.StatusPending {
			return payment.ErrDuplicate
		}
		if p.ExternalID != "" && other.ExternalID == p.ExternalID {
			return payment.ErrDuplicate
		}
	}
	return nil
}

type propertyRepo struct{ u *Unit }

func (r propertyRepo) ByID(ctx context.Context, id property.PropertyID) (*property.Property, error) {
	if p, ok := r.u.properties[id]; ok {
		cp := *p
		return &cp, nil
	}
	r.u.store.mu.RLock()
	defer r.u.store.mu.RUnlock()
	p, ok := r.u.store.properties[id]
	if !ok {
		return nil, property.ErrPropertyNotFound
	}
	cp := *p
	return &cp, nil
}

func (r propertyRepo) ByIDForUpdate(ctx context.Context, id property.PropertyID) (*property.Property, error) {
	return r.ByID(ctx, id)
}

func (r propertyRepo) Save(ctx context.Context, p *property.Property) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	cp := *p
	r.u.properties[p.ID] = &cp
	return nil
}

type bookingRepo struct{ u *Unit }

func (r bookingRepo) ByID(ctx context.Context, id booking.BookingID) (*booking.Booking, error) {
	if b, ok := r.u.bookings[id]; ok {
		return b.Clone(), nil
	}
	r.u.store.mu.RLock()
	defer r.u.store.mu.RUnlock()
	b, ok := r.u.store.bookings[id]
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	return b.Clone(), nil
}

// ByIDForUpdate has no row lock in memory; callers serialize through a Locker.
func (r bookingRepo) ByIDForUpdate(ctx context.Context, id booking.BookingID) (*booking.Booking, error) {
	return r.ByID(ctx, id)
}

func (r bookingRepo) Insert(ctx context.Context, b *booking.Booking) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	if _, err := r.ByID(ctx, b.ID); err == nil {
		return ErrDuplicateID
	}
	b.Version = 1
	r.u.bookings[b.ID] = b.Clone()
	return nil
}

func (r bookingRepo) Save(ctx context.Context, b *booking.Booking) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	if _, staged := r.u.bookings[b.ID]; !staged {
		r.u.store.mu.RLock()
		cur, ok := r.u.store.bookings[b.ID]
		r.u.store.mu.RUnlock()
		if !ok {
			return booking.ErrBookingNotFound
		}
		if cur.Version != b.Version {
			return booking.ErrConcurrentUpdate
		}
		r.u.bookingBase[b.ID] = cur.Version
	}
	b.Version++
	r.u.bookings[b.ID] = b.Clone()
	return nil
}

func (r bookingRepo) ListActiveByProperty(ctx context.Context, id property.PropertyID) ([]*booking.Booking, error) {
	return r.filter(func(b *booking.Booking) bool {
		return b.PropertyID == id && availability.IsActive(b.State)
	}), nil
}

func (r bookingRepo) ListByGuest(ctx context.Context, guestID string) ([]*booking.Booking, error) {
	return r.filter(func(b *booking.Booking) bool { return b.GuestID == guestID }), nil
}

func (r bookingRepo) ListByHost(ctx context.Context, hostID property.HostID) ([]*booking.Booking, error) {
	return r.filter(func(b *booking.Booking) bool { return b.HostID == hostID }), nil
}

func (r bookingRepo) ListByState(ctx context.Context, state booking.BookingState) ([]*booking.Booking, error) {
	return r.filter(func(b *booking.Booking) bool { return b.State == state }), nil
}

func (r bookingRepo) filter(keep func(*booking.Booking) bool) []*booking.Booking {
	merged := make(map[booking.BookingID]*booking.Booking)
	r.u.store.mu.RLock()
	for id, b := range r.u.store.bookings {
		merged[id] = b
	}
	r.u.store.mu.RUnlock()
	for id, b := range r.u.bookings {
		merged[id] = b
	}
	var out []*booking.Booking
	for _, b := range merged {
		if keep(b) {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

type paymentRepo struct{ u *Unit }

func (r paymentRepo) ByID(ctx context.Context, id payment.PaymentID) (*payment.Payment, error) {
	if p, ok := r.u.payments[id]; ok {
		return p.Clone(), nil
	}
	r.u.store.mu.RLock()
	defer r.u.store.mu.RUnlock()
	p, ok := r.u.store.payments[id]
	if !ok {
		return nil, payment.ErrPaymentNotFound
	}
	return p.Clone(), nil
}

func (r paymentRepo) LatestByBooking(ctx context.Context, id booking.BookingID) (*payment.Payment, error) {
	items := r.filter(func(p *payment.Payment) bool { return p.BookingID == id })
	if len(items) == 0 {
		return nil, payment.ErrPaymentNotFound
	}
	return items[0], nil
}

func (r paymentRepo) ByExternalID(ctx context.Context, externalID string) (*payment.Payment, error) {
	if externalID == "" {
		return nil, payment.ErrPaymentNotFound
	}
	items := r.filter(func(p *payment.Payment) bool { return p.ExternalID == externalID })
	if len(items) == 0 {
		return nil, payment.ErrPaymentNotFound
	}
	return items[0], nil
}

func (r paymentRepo) Insert(ctx context.Context, p *payment.Payment) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	if _, err := r.ByID(ctx, p.ID); err == nil {
		return ErrDuplicateID
	}
	if err := r.checkUnique(p); err != nil {
		return err
	}
	p.Version = 1
	r.u.store.mu.Lock()
	r.u.store.seq++
	r.u.paymentSeq[p.ID] = r.u.store.seq
	r.u.store.mu.Unlock()
	r.u.payments[p.ID] = p.Clone()
	return nil
}

func (r paymentRepo) Save(ctx context.Context, p *payment.Payment) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	if _, staged := r.u.payments[p.ID]; !staged {
		r.u.store.mu.RLock()
		cur, ok := r.u.store.payments[p.ID]
		r.u.store.mu.RUnlock()
		if !ok {
			return payment.ErrPaymentNotFound
		}
		if cur.Version != p.Version {
			return fmt.Errorf("%w: payment %s modified concurrently", apperr.ErrPersistenceRace, p.ID)
		}
		r.u.paymentBase[p.ID] = cur.Version
	}
	if err := r.checkUnique(p); err != nil {
		return err
	}
	p.Version++
	r.u.payments[p.ID] = p.Clone()
	return nil
}

func (r paymentRepo) ListByBooking(ctx context.Context, id booking.BookingID) ([]*payment.Payment, error) {
	return r.filter(func(p *payment.Payment) bool { return p.BookingID == id }), nil
}

func (r paymentRepo) ListByStatus(ctx context.Context, status payment.Status) ([]*payment.Payment, error) {
	return r.filter(func(p *payment.Payment) bool { return p.Status == status }), nil
}

// checkUnique mirrors the unique indexes of the database drivers.
func (r paymentRepo) checkUnique(p *payment.Payment) error {
	others := r.filter(func(o *payment.Payment) bool {
		if o.ID == p.ID {
			return false
		}
		samePending := o.BookingID == p.BookingID && o.Status == payment.StatusPending && p.Status == payment.StatusPending
		sameExternal := p.ExternalID != "" && o.ExternalID == p.ExternalID
		return samePending || sameExternal
	})
	if len(others) > 0 {
		return payment.ErrDuplicate
	}
	return nil
}

// filter returns matching payments newest first.
func (r paymentRepo) filter(keep func(*payment.Payment) bool) []*payment.Payment {
	type row struct {
		p   *payment.Payment
		seq int64
	}
	merged := make(map[payment.PaymentID]row)
	r.u.store.mu.RLock()
	for id, p := range r.u.store.payments {
		merged[id] = row{p: p, seq: r.u.store.paymentSeq[id]}
	}
	r.u.store.mu.RUnlock()
	for id, p := range r.u.payments {
		seq := merged[id].seq
		if s, ok := r.u.paymentSeq[id]; ok {
			seq = s
		}
		merged[id] = row{p: p, seq: seq}
	}
	rows := make([]row, 0, len(merged))
	for _, rw := range merged {
		if keep(rw.p) {
			rows = append(rows, rw)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].p.CreatedAt.Equal(rows[j].p.CreatedAt) {
			return rows[i].seq > rows[j].seq
		}
		return rows[i].p.CreatedAt.After(rows[j].p.CreatedAt)
	})
	out := make([]*payment.Payment, 0, len(rows))
	for _, rw := range rows {
		out = append(out, rw.p.Clone())
	}
	return out
}

var _ uow.UoWFactory = Factory{}
