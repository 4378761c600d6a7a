package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/groupoffer/internal/config"
	"github.com/set-night/groupoffer/internal/domain"
	"github.com/set-night/groupoffer/internal/repository"
)

// Actor is the authenticated user on whose behalf a command runs.
type Actor struct {
	UserID uuid.UUID
}

type OfferService struct {
	repos  *repository.Repositories
	notify *Dispatcher
	audit  Auditor
	nowFn  func() time.Time
}

func NewOfferService(repos *repository.Repositories, notify *Dispatcher, audit Auditor) *OfferService {
	return &OfferService{
		repos:  repos,
		notify: notify,
		audit:  auditorOrNop(audit),
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateOffer posts a new pending offer to a group and tells every member.
func (s *OfferService) CreateOffer(ctx context.Context, actor Actor, in domain.CreateOfferInput) (*domain.GroupOffer, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, in.GroupID, actor.UserID); err != nil {
		return nil, err
	}

	y, m, d := in.Deadline.Date()
	offer := &domain.GroupOffer{
		ID:          uuid.New(),
		GroupID:     in.GroupID,
		SponsorID:   actor.UserID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		TotalAmount: in.TotalAmount,
		Deadline:    time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Status:      domain.OfferStatusPending,
		CreatedAt:   s.nowFn(),
	}
	if err := s.repos.Offers.Create(ctx, offer); err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}

	members, err := s.repos.Members.ListMembers(ctx, offer.GroupID)
	if err != nil {
		slog.Warn("list members for new offer notice", "offer_id", offer.ID, "error", err)
		return offer, nil
	}
	members = slices.DeleteFunc(members, func(id uuid.UUID) bool { return id == offer.SponsorID })
	s.notify.sendAll(ctx, members, offer.ID, config.TitleNewOffer,
		fmt.Sprintf("%s: %s for the group, respond by %s.",
			offer.Title, offer.TotalAmount.String(), offer.Deadline.Format(time.DateOnly)))

	return offer, nil
}

// AcceptOffer records the member's acceptance and makes sure a fulfillment
// contract is linked to the response. Accepting again is a no-op that repairs
// a missing contract link.
func (s *OfferService) AcceptOffer(ctx context.Context, actor Actor, offerID, memberID uuid.UUID) (*domain.MemberResponse, error) {
	offer, err := s.openOfferFor(ctx, actor, offerID, memberID)
	if err != nil {
		return nil, err
	}

	changed, err := s.repos.Responses.Upsert(ctx, offerID, memberID,
		[]domain.ResponseStatus{domain.ResponsePending}, domain.ResponseAccepted, s.nowFn())
	if err != nil {
		return nil, fmt.Errorf("accept offer: %w", err)
	}

	resp, err := s.repos.Responses.Get(ctx, offerID, memberID)
	if err != nil {
		return nil, fmt.Errorf("load response: %w", err)
	}
	if !changed && resp.Status != domain.ResponseAccepted {
		return nil, fmt.Errorf("accept offer from %s: %w", resp.Status, domain.ErrResponseFinal)
	}

	if resp.FulfillmentRef == nil {
		if resp, err = s.linkContract(ctx, offer, memberID); err != nil {
			return nil, err
		}
	}

	if changed {
		s.notify.Send(ctx, domain.Notification{
			ToUserID: offer.SponsorID,
			OfferID:  offer.ID,
			Title:    config.TitleOfferAccepted,
			Message:  fmt.Sprintf("A member accepted %q.", offer.Title),
		})
	}
	return resp, nil
}

// linkContract creates the member's contract if absent and links it. The id
// is derived from (offer, member), so racing accepts converge on one contract.
func (s *OfferService) linkContract(ctx context.Context, offer *domain.GroupOffer, memberID uuid.UUID) (*domain.MemberResponse, error) {
	contract := domain.NewContractForOffer(offer, memberID, s.nowFn())
	if _, err := s.repos.Contracts.CreateIfAbsent(ctx, contract); err != nil {
		return nil, fmt.Errorf("create contract: %w", err)
	}
	if _, err := s.repos.Responses.LinkFulfillment(ctx, offer.ID, memberID, contract.ID); err != nil {
		return nil, fmt.Errorf("link contract: %w", err)
	}
	resp, err := s.repos.Responses.Get(ctx, offer.ID, memberID)
	if err != nil {
		return nil, fmt.Errorf("load response: %w", err)
	}
	return resp, nil
}

// RejectOffer declines the offer for a member who has not responded yet.
func (s *OfferService) RejectOffer(ctx context.Context, actor Actor, offerID, memberID uuid.UUID) (*domain.MemberResponse, error) {
	offer, err := s.openOfferFor(ctx, actor, offerID, memberID)
	if err != nil {
		return nil, err
	}

	changed, err := s.repos.Responses.Upsert(ctx, offerID, memberID,
		[]domain.ResponseStatus{domain.ResponsePending}, domain.ResponseRejected, s.nowFn())
	if err != nil {
		return nil, fmt.Errorf("reject offer: %w", err)
	}
	if !changed {
		resp, err := s.repos.Responses.Get(ctx, offerID, memberID)
		if err != nil {
			return nil, fmt.Errorf("load response: %w", err)
		}
		return nil, fmt.Errorf("reject offer from %s: %w", resp.Status, domain.ErrResponseFinal)
	}

	s.notify.Send(ctx, domain.Notification{
		ToUserID: offer.SponsorID,
		OfferID:  offer.ID,
		Title:    config.TitleOfferRejected,
		Message:  fmt.Sprintf("A member declined %q.", offer.Title),
	})

	resp, err := s.repos.Responses.Get(ctx, offerID, memberID)
	if err != nil {
		return nil, fmt.Errorf("load response: %w", err)
	}
	return resp, nil
}

func (s *OfferService) openOfferFor(ctx context.Context, actor Actor, offerID, memberID uuid.UUID) (*domain.GroupOffer, error) {
	if actor.UserID != memberID {
		return nil, domain.ErrNotResponseOwner
	}
	offer, err := s.repos.Offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, offer.GroupID, memberID); err != nil {
		return nil, err
	}
	if !offer.Status.Open() {
		return nil, fmt.Errorf("offer is %s: %w", offer.Status, domain.ErrOfferClosed)
	}
	return offer, nil
}

func (s *OfferService) requireMember(ctx context.Context, groupID, userID uuid.UUID) error {
	ok, err := s.repos.Members.IsMember(ctx, groupID, userID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return domain.ErrNotGroupMember
	}
	return nil
}

// SetOfferStatus applies an admin status change. Setting the status the offer
// already has is a no-op.
func (s *OfferService) SetOfferStatus(ctx context.Context, actor Actor, offerID uuid.UUID, status string) (*domain.GroupOffer, error) {
	target, err := domain.ParseOfferStatus(status)
	if err != nil {
		return nil, err
	}
	from, err := domain.AdminTransitionFrom(target)
	if err != nil {
		return nil, err
	}

	offer, err := s.repos.Offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	admin, err := s.repos.Members.IsAdmin(ctx, offer.GroupID, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("check admin: %w", err)
	}
	if !admin {
		return nil, domain.ErrNotGroupAdmin
	}

	if offer.Status == target {
		return offer, nil
	}
	if !slices.Contains(from, offer.Status) {
		return nil, fmt.Errorf("set %s on %s offer: %w", target, offer.Status, domain.ErrInvalidState)
	}

	changed, err := s.repos.Offers.UpdateStatus(ctx, offerID, from, target)
	if err != nil {
		return nil, fmt.Errorf("update offer status: %w", err)
	}
	if !changed {
		// Lost a race with another writer; report against what it left.
		current, err := s.repos.Offers.GetByID(ctx, offerID)
		if err != nil {
			return nil, err
		}
		if current.Status == target {
			return current, nil
		}
		return nil, fmt.Errorf("set %s on %s offer: %w", target, current.Status, domain.ErrInvalidState)
	}
	offer.Status = target

	if target == domain.OfferStatusCancelled {
		s.audit.LogCancellation(offer, actor.UserID)
		s.notifyCancelled(ctx, offer)
	}
	return offer, nil
}

func (s *OfferService) notifyCancelled(ctx context.Context, offer *domain.GroupOffer) {
	responses, err := s.repos.Responses.ListByOffer(ctx, offer.ID)
	if err != nil {
		slog.Warn("list responses for cancel notice", "offer_id", offer.ID, "error", err)
		return
	}
	var accepted []uuid.UUID
	for _, r := range responses {
		if r.Status == domain.ResponseAccepted || r.Status == domain.ResponseCompleted {
			accepted = append(accepted, r.MemberUserID)
		}
	}
	s.notify.sendAll(ctx, accepted, offer.ID, config.TitleOfferCancelled,
		fmt.Sprintf("%q was cancelled by a group admin.", offer.Title))
}

// MemberStatus is one row of an offer summary.
type MemberStatus struct {
	MemberUserID uuid.UUID
	Status       domain.ResponseStatus
	Response     *domain.MemberResponse // nil while no row exists
}

type OfferSummary struct {
	Offer   *domain.GroupOffer
	Members []MemberStatus
	Counts  map[domain.ResponseStatus]int
}

// OfferStatus lists every current member with their response. Members without
// a stored row show as pending; responders who have since left the group are
// still listed.
func (s *OfferService) OfferStatus(ctx context.Context, offerID uuid.UUID) (*OfferSummary, error) {
	offer, err := s.repos.Offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	members, err := s.repos.Members.ListMembers(ctx, offer.GroupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	responses, err := s.repos.Responses.ListByOffer(ctx, offerID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}

	byMember := make(map[uuid.UUID]*domain.MemberResponse, len(responses))
	for i := range responses {
		byMember[responses[i].MemberUserID] = &responses[i]
	}

	summary := &OfferSummary{Offer: offer, Counts: make(map[domain.ResponseStatus]int)}
	add := func(id uuid.UUID, r *domain.MemberResponse) {
		st := domain.ResponsePending
		if r != nil {
			st = r.Status
		}
		summary.Members = append(summary.Members, MemberStatus{MemberUserID: id, Status: st, Response: r})
		summary.Counts[st]++
	}
	for _, id := range members {
		add(id, byMember[id])
		delete(byMember, id)
	}
	for _, r := range responses {
		if _, left := byMember[r.MemberUserID]; left {
			add(r.MemberUserID, byMember[r.MemberUserID])
		}
	}
	return summary, nil
}
