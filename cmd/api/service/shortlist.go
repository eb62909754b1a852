package service

import (
	"context"
	"fmt"

	"github.com/DEEPML1818/dsoc/common/logger"
	"github.com/DEEPML1818/dsoc/common/models"
	"github.com/DEEPML1818/dsoc/common/repository"
)

// ShortlistService handles analyst applications to tickets
type ShortlistService struct {
	shortlist repository.ShortlistStore
	tickets   repository.TicketStore
	users     repository.UserStore
	log       *logger.Logger
}

// NewShortlistService creates a new shortlist service
func NewShortlistService(
	shortlist repository.ShortlistStore,
	tickets repository.TicketStore,
	users repository.UserStore,
	log *logger.Logger,
) *ShortlistService {
	return &ShortlistService{shortlist: shortlist, tickets: tickets, users: users, log: log}
}

// Add shortlists the calling analyst for a ticket that is still taking analysts
func (s *ShortlistService) Add(ctx context.Context, ticketID int64, analyst, note string) (*models.ShortlistEntry, error) {
	t, err := s.tickets.GetByTicketID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if t.Status != models.StatusOpen && t.Status != models.StatusAssigned {
		return nil, fmt.Errorf("ticket %d is %s and no longer takes analysts: %w", ticketID, t.Status, repository.ErrConflict)
	}

	user, err := s.users.GetByAddress(ctx, analyst)
	if err != nil {
		return nil, err
	}
	if user.Role != models.RoleAnalyst {
		return nil, forbidden("only analysts can apply to tickets")
	}
	if t.ClientAddress == user.WalletAddress {
		return nil, forbidden("the client cannot apply to their own ticket")
	}
	if t.HasAnalyst(user.WalletAddress) {
		return nil, fmt.Errorf("analyst already assigned to ticket %d: %w", ticketID, repository.ErrConflict)
	}

	entry := &models.ShortlistEntry{TicketID: ticketID, AnalystAddress: user.WalletAddress, Note: note}
	if err := s.shortlist.Add(ctx, entry); err != nil {
		return nil, err
	}

	s.log.WithTicketID(ticketID).Info("analyst shortlisted", "analyst", entry.AnalystAddress)
	return entry, nil
}

// List returns the shortlist of a ticket
func (s *ShortlistService) List(ctx context.Context, ticketID int64) ([]*models.ShortlistEntry, error) {
	if _, err := s.tickets.GetByTicketID(ctx, ticketID); err != nil {
		return nil, err
	}
	return s.shortlist.List(ctx, ticketID)
}

// Remove withdraws an application; the analyst or the ticket client may do it
func (s *ShortlistService) Remove(ctx context.Context, ticketID int64, analyst, caller string) error {
	t, err := s.tickets.GetByTicketID(ctx, ticketID)
	if err != nil {
		return err
	}

	caller = models.NormalizeAddress(caller)
	if caller != models.NormalizeAddress(analyst) && caller != t.ClientAddress {
		return forbidden("only the analyst or the ticket client can remove a shortlist entry")
	}

	if err := s.shortlist.Remove(ctx, ticketID, analyst); err != nil {
		return err
	}

	s.log.WithTicketID(ticketID).Info("shortlist entry removed", "analyst", models.NormalizeAddress(analyst), "by", caller)
	return nil
}
