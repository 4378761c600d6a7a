// Package memstore keeps the engine's ledgers in process memory. Every
// conditional write is applied under one mutex, which gives the same
// compare-and-set guarantees the Postgres adapters get from single-row
// UPDATE ... WHERE statements.
package memstore

import (
	"bytes"
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/groupoffer/internal/domain"
	"github.com/set-night/groupoffer/internal/repository"
)

type responseKey struct {
	offer, member uuid.UUID
}

type Store struct {
	mu            sync.Mutex
	offers        map[uuid.UUID]domain.GroupOffer
	responses     map[responseKey]domain.MemberResponse
	contracts     map[uuid.UUID]domain.FulfillmentContract
	members       map[uuid.UUID]map[uuid.UUID]string
	notifications []domain.Notification
	chats         map[uuid.UUID]int64

	contractReadErr map[uuid.UUID]error
	notifyErr       error
}

func New() *Store {
	return &Store{
		offers:          make(map[uuid.UUID]domain.GroupOffer),
		responses:       make(map[responseKey]domain.MemberResponse),
		contracts:       make(map[uuid.UUID]domain.FulfillmentContract),
		members:         make(map[uuid.UUID]map[uuid.UUID]string),
		chats:           make(map[uuid.UUID]int64),
		contractReadErr: make(map[uuid.UUID]error),
	}
}

// Repositories wires the store behind the repository interfaces. Payout
// tables are consulted in the order given.
func (s *Store) Repositories(payouts ...*PayoutTable) *repository.Repositories {
	stores := make([]repository.PayoutStore, len(payouts))
	for i, p := range payouts {
		stores[i] = p
	}
	return &repository.Repositories{
		Offers:        offerRepo{s},
		Responses:     responseRepo{s},
		Contracts:     contractRepo{s},
		Payouts:       stores,
		Members:       memberReader{s},
		Notifications: notificationRepo{s},
		Channels:      channelRepo{s},
	}
}

func (s *Store) AddMember(groupID, userID uuid.UUID, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[groupID] == nil {
		s.members[groupID] = make(map[uuid.UUID]string)
	}
	s.members[groupID][userID] = role
}

func (s *Store) RemoveMember(groupID, userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[groupID], userID)
}

func (s *Store) LinkTelegram(userID uuid.UUID, chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[userID] = chatID
}

func (s *Store) PutOffer(o domain.GroupOffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers[o.ID] = o
}

func (s *Store) Offer(id uuid.UUID) (domain.GroupOffer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[id]
	return o, ok
}

func (s *Store) PutResponse(r domain.MemberResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[responseKey{r.OfferID, r.MemberUserID}] = r
}

func (s *Store) Response(offerID, memberID uuid.UUID) (domain.MemberResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.responses[responseKey{offerID, memberID}]
	return r, ok
}

func (s *Store) ResponseCount(offerID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.responses {
		if k.offer == offerID {
			n++
		}
	}
	return n
}

// UpdateContract mutates a stored contract the way the external fulfillment
// system would.
func (s *Store) UpdateContract(id uuid.UUID, fn func(*domain.FulfillmentContract)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return false
	}
	fn(&c)
	s.contracts[id] = c
	return true
}

func (s *Store) ContractCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contracts)
}

func (s *Store) FailContractRead(id uuid.UUID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.contractReadErr, id)
		return
	}
	s.contractReadErr[id] = err
}

func (s *Store) FailNotifications(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyErr = err
}

func (s *Store) Notifications() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.notifications)
}

type offerRepo struct{ s *Store }

func (r offerRepo) Create(_ context.Context, o *domain.GroupOffer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if _, ok := r.s.offers[o.ID]; ok {
		return domain.ErrConflict
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	r.s.offers[o.ID] = *o
	return nil
}

func (r offerRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.GroupOffer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.offers[id]
	if !ok {
		return nil, domain.ErrOfferNotFound
	}
	return &o, nil
}

func (r offerRepo) ListByGroup(_ context.Context, groupID uuid.UUID) ([]domain.GroupOffer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.GroupOffer
	for _, o := range r.s.offers {
		if o.GroupID == groupID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r offerRepo) ListDue(_ context.Context, asOf time.Time, limit int) ([]domain.GroupOffer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	y, m, d := asOf.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	var out []domain.GroupOffer
	for _, o := range r.s.offers {
		dy, dm, dd := o.Deadline.Date()
		if o.Status.Open() && time.Date(dy, dm, dd, 0, 0, 0, 0, time.UTC).Before(today) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r offerRepo) ListUpcoming(_ context.Context, asOf time.Time, after uuid.UUID, limit int) ([]domain.GroupOffer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	y, m, d := asOf.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	var out []domain.GroupOffer
	for _, o := range r.s.offers {
		dy, dm, dd := o.Deadline.Date()
		if o.Status.Open() && !time.Date(dy, dm, dd, 0, 0, 0, 0, time.UTC).Before(today) &&
			bytes.Compare(o.ID[:], after[:]) > 0 {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0 })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r offerRepo) UpdateStatus(_ context.Context, id uuid.UUID, from []domain.OfferStatus, to domain.OfferStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.offers[id]
	if !ok || !slices.Contains(from, o.Status) {
		return false, nil
	}
	o.Status = to
	r.s.offers[id] = o
	return true, nil
}

type responseRepo struct{ s *Store }

func (r responseRepo) Get(_ context.Context, offerID, memberID uuid.UUID) (*domain.MemberResponse, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	resp, ok := r.s.responses[responseKey{offerID, memberID}]
	if !ok {
		return nil, domain.ErrResponseNotFound
	}
	return &resp, nil
}

func (r responseRepo) ListByOffer(_ context.Context, offerID uuid.UUID) ([]domain.MemberResponse, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.MemberResponse
	for k, resp := range r.s.responses {
		if k.offer == offerID {
			out = append(out, resp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].MemberUserID.String() < out[j].MemberUserID.String()
	})
	return out, nil
}

func (r responseRepo) Upsert(_ context.Context, offerID, memberID uuid.UUID, from []domain.ResponseStatus, to domain.ResponseStatus, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := responseKey{offerID, memberID}
	resp, ok := r.s.responses[key]
	if !ok {
		if !slices.Contains(from, domain.ResponsePending) {
			return false, nil
		}
		resp = domain.PendingResponse(offerID, memberID)
	}
	if !slices.Contains(from, resp.Status) {
		return false, nil
	}
	resp.Status = to
	switch to {
	case domain.ResponseAccepted:
		if resp.AcceptedAt == nil {
			resp.AcceptedAt = &at
		}
	case domain.ResponseRejected:
		if resp.RejectedAt == nil {
			resp.RejectedAt = &at
		}
	}
	r.s.responses[key] = resp
	return true, nil
}

func (r responseRepo) LinkFulfillment(_ context.Context, offerID, memberID, ref uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := responseKey{offerID, memberID}
	resp, ok := r.s.responses[key]
	if !ok || resp.FulfillmentRef != nil {
		return false, nil
	}
	resp.FulfillmentRef = &ref
	r.s.responses[key] = resp
	return true, nil
}

func (r responseRepo) MarkCompleted(_ context.Context, offerID, memberID uuid.UUID, liveURL *string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := responseKey{offerID, memberID}
	resp, ok := r.s.responses[key]
	if !ok || resp.Status != domain.ResponseAccepted {
		return false, nil
	}
	resp.Status = domain.ResponseCompleted
	resp.CompletedAt = &at
	if liveURL != nil {
		resp.LiveURL = liveURL
	}
	r.s.responses[key] = resp
	return true, nil
}

type contractRepo struct{ s *Store }

func (r contractRepo) CreateIfAbsent(_ context.Context, c *domain.FulfillmentContract) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.contracts[c.ID]; ok {
		return false, nil
	}
	r.s.contracts[c.ID] = *c
	return true, nil
}

func (r contractRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.FulfillmentContract, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.contractReadErr[id]; err != nil {
		return nil, err
	}
	c, ok := r.s.contracts[id]
	if !ok {
		return nil, domain.ErrContractNotFound
	}
	return &c, nil
}

type memberReader struct{ s *Store }

func (r memberReader) IsMember(_ context.Context, groupID, userID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.members[groupID][userID]
	return ok, nil
}

func (r memberReader) IsAdmin(_ context.Context, groupID, userID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.members[groupID][userID] == "admin", nil
}

func (r memberReader) ListMembers(_ context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]uuid.UUID, 0, len(r.s.members[groupID]))
	for id := range r.s.members[groupID] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

type notificationRepo struct{ s *Store }

func (r notificationRepo) Create(_ context.Context, n domain.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.notifyErr != nil {
		return r.s.notifyErr
	}
	r.s.notifications = append(r.s.notifications, n)
	return nil
}

type channelRepo struct{ s *Store }

func (r channelRepo) TelegramChatID(_ context.Context, userID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.chats[userID], nil
}
