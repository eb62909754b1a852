package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/DEEPML1818/dsoc/common/chain"
	"github.com/DEEPML1818/dsoc/common/logger"
	"github.com/DEEPML1818/dsoc/common/models"
	"github.com/DEEPML1818/dsoc/common/policy"
	"github.com/DEEPML1818/dsoc/common/repository"
	"github.com/DEEPML1818/dsoc/common/reward"
)

const (
	analystReputation   = 10
	certifierReputation = 5
)

// TicketService handles the ticket workflow: every write goes through the
// policy check, then the chain, then the database, then the transaction
// record and finally the event.
type TicketService struct {
	tickets   repository.TicketStore
	reports   repository.IncidentReportStore
	users     repository.UserStore
	shortlist repository.ShortlistStore
	tokens    repository.TokenStore
	ledger    chain.Ledger
	machine   *policy.Machine
	rewards   *reward.Calculator
	events    *EventPublisher
	recorder  *txRecorder
	log       *logger.Logger
}

// TicketServiceOpts contains options for creating a TicketService
type TicketServiceOpts struct {
	Tickets      repository.TicketStore
	Reports      repository.IncidentReportStore
	Users        repository.UserStore
	Shortlist    repository.ShortlistStore
	Transactions repository.TransactionStore
	Tokens       repository.TokenStore
	Ledger       chain.Ledger
	Machine      *policy.Machine
	Rewards      *reward.Calculator
	Events       *EventPublisher
	Logger       *logger.Logger
}

// NewTicketService creates a new ticket service with options pattern
func NewTicketService(opts *TicketServiceOpts) *TicketService {
	rewards := opts.Rewards
	if rewards == nil {
		rewards = reward.Default()
	}
	return &TicketService{
		tickets:   opts.Tickets,
		reports:   opts.Reports,
		users:     opts.Users,
		shortlist: opts.Shortlist,
		tokens:    opts.Tokens,
		ledger:    opts.Ledger,
		machine:   opts.Machine,
		rewards:   rewards,
		events:    opts.Events,
		recorder:  &txRecorder{txs: opts.Transactions, backend: opts.Ledger.Name(), log: opts.Logger},
		log:       opts.Logger,
	}
}

// CreateTicketRequest represents a request to open a ticket
type CreateTicketRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Severity    string `json:"severity"`
	// ReportID links an existing incident report; its fields fill any left empty
	ReportID *int64 `json:"report_id,omitempty"`
}

// TicketView is a ticket with the actions the caller can take on it
type TicketView struct {
	*models.Ticket
	Actions []policy.Action `json:"actions"`
}

// Create opens a ticket for client and registers it on chain
func (s *TicketService) Create(ctx context.Context, client string, req *CreateTicketRequest) (*models.Ticket, error) {
	client = models.NormalizeAddress(client)

	var report *models.IncidentReport
	if req.ReportID != nil {
		r, err := s.reports.GetByID(ctx, *req.ReportID)
		if err != nil {
			return nil, err
		}
		if r.ReporterAddress != client {
			return nil, forbidden("incident report %d belongs to another wallet", r.ID)
		}
		if r.TicketID != nil {
			return nil, fmt.Errorf("incident report %d already has ticket %d: %w", r.ID, *r.TicketID, repository.ErrConflict)
		}
		report = r
		if req.Title == "" {
			req.Title = r.Title
		}
		if req.Description == "" {
			req.Description = r.Description
		}
		if req.Category == "" {
			req.Category = r.Category
		}
		if req.Severity == "" {
			req.Severity = string(r.Severity)
		}
	}

	if strings.TrimSpace(req.Title) == "" {
		return nil, invalid("title is required")
	}
	severity, err := models.ParseSeverity(req.Severity)
	if err != nil {
		return nil, invalid("%v", err)
	}

	ticketID, err := s.tickets.NextTicketID(ctx)
	if err != nil {
		return nil, err
	}

	log := s.log.WithTicketID(ticketID).WithAddress(client)

	receipt, err := s.ledger.CreateTicket(ctx, ticketID, client, severity, req.Title)
	if err != nil {
		log.Warn("chain rejected ticket creation", "error", err)
		return nil, err
	}

	t := &models.Ticket{
		TicketID:      ticketID,
		Title:         strings.TrimSpace(req.Title),
		Description:   req.Description,
		Category:      req.Category,
		Severity:      severity,
		Status:        models.StatusOpen,
		ClientAddress: client,
		Chain:         s.ledger.Name(),
		TxHash:        receipt.TxHash,
	}
	if err := s.tickets.Create(ctx, t); err != nil {
		s.recorder.record(ctx, receipt, models.TxCreateTicket, client, ticketRef(ticketID), "ticket row not persisted: "+err.Error())
		return nil, err
	}
	s.recorder.record(ctx, receipt, models.TxCreateTicket, client, ticketRef(ticketID), "")

	evt := ticketEvent(t, models.EventTicketCreated, client, receipt.TxHash)
	if report != nil {
		report.TicketID = ticketRef(ticketID)
		report.Status = models.ReportLinked
		if err := s.reports.Update(ctx, report); err != nil {
			log.Error("failed to link incident report", "report_id", report.ID, "error", err)
		} else {
			evt.ReportID = report.ID
		}
	}
	s.events.Publish(ctx, evt)

	log.Info("ticket created", "severity", severity, "tx_hash", receipt.TxHash)
	return t, nil
}

// Get returns a ticket by id
func (s *TicketService) Get(ctx context.Context, ticketID int64) (*models.Ticket, error) {
	return s.tickets.GetByTicketID(ctx, ticketID)
}

// View returns a ticket with the actions viewer may take
func (s *TicketService) View(ctx context.Context, ticketID int64, viewer string) (*TicketView, error) {
	t, err := s.tickets.GetByTicketID(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	view := &TicketView{Ticket: t, Actions: []policy.Action{}}
	if viewer != "" {
		actor, err := s.Actor(ctx, viewer)
		if err != nil {
			return nil, err
		}
		if actions := s.machine.Available(t, actor); actions != nil {
			view.Actions = actions
		}
	}
	return view, nil
}

// List returns tickets matching filter
func (s *TicketService) List(ctx context.Context, filter models.TicketFilter) ([]*models.Ticket, error) {
	return s.tickets.List(ctx, filter)
}

// ListByClient returns the tickets a client opened
func (s *TicketService) ListByClient(ctx context.Context, client string, limit, offset int) ([]*models.Ticket, error) {
	return s.tickets.List(ctx, models.TicketFilter{ClientAddress: client, Limit: limit, Offset: offset})
}

// PendingAnalysis returns tickets an analyst can still join, oldest first
func (s *TicketService) PendingAnalysis(ctx context.Context, limit int) ([]*models.Ticket, error) {
	return s.tickets.PendingAnalysis(ctx, s.machine.MaxAnalysts(), limit)
}

// Actor resolves the role of address from its registration. Unregistered
// wallets act as clients.
func (s *TicketService) Actor(ctx context.Context, address string) (policy.Actor, error) {
	address = models.NormalizeAddress(address)
	user, err := s.users.GetByAddress(ctx, address)
	if errors.Is(err, repository.ErrNotFound) {
		return policy.Actor{Address: address, Role: models.RoleClient}, nil
	}
	if err != nil {
		return policy.Actor{}, err
	}
	return policy.Actor{Address: address, Role: user.Role}, nil
}

// AssignAnalyst adds the calling analyst to the ticket
func (s *TicketService) AssignAnalyst(ctx context.Context, ticketID int64, analyst string) (*models.Ticket, error) {
	return withTicketLock(ctx, s.tickets, ticketID, func(ctx context.Context) (*models.Ticket, error) {
		return s.assignAnalyst(ctx, ticketID, analyst)
	})
}

func (s *TicketService) assignAnalyst(ctx context.Context, ticketID int64, analyst string) (*models.Ticket, error) {
	t, actor, next, err := s.authorize(ctx, policy.ActionAssignAnalyst, ticketID, analyst, policy.Input{})
	if err != nil {
		return nil, err
	}

	receipt, err := s.ledger.AssignAsAnalyst(ctx, ticketID, actor.Address)
	if err != nil {
		return nil, err
	}

	t.Analysts = append(t.Analysts, actor.Address)
	t.Status = next
	t.TxHash = receipt.TxHash
	if err := s.commit(ctx, t, receipt, models.TxAssignAnalyst, actor.Address, models.EventAnalystAssigned); err != nil {
		return nil, err
	}

	if err := s.shortlist.Remove(ctx, ticketID, actor.Address); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.log.Warn("failed to clear shortlist entry", "ticket_id", ticketID, "analyst", actor.Address, "error", err)
	}
	return t, nil
}

// SubmitReport stores the analysis of an assigned analyst. The contracts do
// not hold reports, so this write is off chain only.
func (s *TicketService) SubmitReport(ctx context.Context, ticketID int64, analyst, report string) (*models.Ticket, error) {
	report = strings.TrimSpace(report)
	if report == "" {
		return nil, invalid("report is required")
	}
	return withTicketLock(ctx, s.tickets, ticketID, func(ctx context.Context) (*models.Ticket, error) {
		return s.submitReport(ctx, ticketID, analyst, report)
	})
}

func (s *TicketService) submitReport(ctx context.Context, ticketID int64, analyst, report string) (*models.Ticket, error) {
	t, actor, next, err := s.authorize(ctx, policy.ActionSubmitReport, ticketID, analyst, policy.Input{Report: report})
	if err != nil {
		return nil, err
	}

	t.Report = report
	t.Status = next
	if err := s.commit(ctx, t, nil, "", actor.Address, models.EventReportSubmitted); err != nil {
		return nil, err
	}
	return t, nil
}

// AssignCertifier sets the calling certifier on the ticket
func (s *TicketService) AssignCertifier(ctx context.Context, ticketID int64, certifier string) (*models.Ticket, error) {
	return withTicketLock(ctx, s.tickets, ticketID, func(ctx context.Context) (*models.Ticket, error) {
		return s.assignCertifier(ctx, ticketID, certifier)
	})
}

func (s *TicketService) assignCertifier(ctx context.Context, ticketID int64, certifier string) (*models.Ticket, error) {
	t, actor, next, err := s.authorize(ctx, policy.ActionAssignCertifier, ticketID, certifier, policy.Input{})
	if err != nil {
		return nil, err
	}

	receipt, err := s.ledger.AssignAsCertifier(ctx, ticketID, actor.Address)
	if err != nil {
		return nil, err
	}

	t.CertifierAddress = actor.Address
	t.Status = next
	t.TxHash = receipt.TxHash
	if err := s.commit(ctx, t, receipt, models.TxAssignCertifier, actor.Address, models.EventCertifierAssigned); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate records the certifier's verdict. A rejection sends the ticket back
// to its analysts.
func (s *TicketService) Validate(ctx context.Context, ticketID int64, certifier string, approved bool) (*models.Ticket, error) {
	return withTicketLock(ctx, s.tickets, ticketID, func(ctx context.Context) (*models.Ticket, error) {
		return s.validate(ctx, ticketID, certifier, approved)
	})
}

func (s *TicketService) validate(ctx context.Context, ticketID int64, certifier string, approved bool) (*models.Ticket, error) {
	t, actor, next, err := s.authorize(ctx, policy.ActionValidate, ticketID, certifier, policy.Input{Approved: approved})
	if err != nil {
		return nil, err
	}

	receipt, err := s.ledger.ValidateTicket(ctx, ticketID, approved)
	if err != nil {
		return nil, err
	}

	evt := models.EventTicketValidated
	if !approved {
		evt = models.EventTicketRejected
	}

	t.Status = next
	t.TxHash = receipt.TxHash
	if err := s.commit(ctx, t, receipt, models.TxValidate, actor.Address, evt); err != nil {
		return nil, err
	}
	return t, nil
}

// CompleteResult is a completed ticket and the rewards paid for it
type CompleteResult struct {
	Ticket    *models.Ticket    `json:"ticket"`
	Breakdown *reward.Breakdown `json:"breakdown"`
	TxHashes  []string          `json:"tx_hashes"`
}

// Complete closes a validated ticket and mints CLT to its analysts and
// certifier. Mints already recorded for the ticket are skipped, so a retry
// after a partial failure does not pay twice.
func (s *TicketService) Complete(ctx context.Context, ticketID int64, caller string) (*CompleteResult, error) {
	return withTicketLock(ctx, s.tickets, ticketID, func(ctx context.Context) (*CompleteResult, error) {
		return s.complete(ctx, ticketID, caller)
	})
}

func (s *TicketService) complete(ctx context.Context, ticketID int64, caller string) (*CompleteResult, error) {
	t, actor, next, err := s.authorize(ctx, policy.ActionComplete, ticketID, caller, policy.Input{})
	if err != nil {
		return nil, err
	}

	breakdown, err := s.rewards.Calculate(t.Severity, len(t.Analysts))
	if err != nil {
		return nil, err
	}

	result := &CompleteResult{Ticket: t, Breakdown: breakdown, TxHashes: []string{}}

	for _, analyst := range t.Analysts {
		hash, err := s.pay(ctx, t, analyst, breakdown.PerAnalyst)
		if err != nil {
			return nil, err
		}
		if hash != "" {
			result.TxHashes = append(result.TxHashes, hash)
		}
	}
	if t.CertifierAddress != "" {
		hash, err := s.pay(ctx, t, t.CertifierAddress, breakdown.CertifierReward)
		if err != nil {
			return nil, err
		}
		if hash != "" {
			result.TxHashes = append(result.TxHashes, hash)
		}
	}

	t.Status = next
	t.RewardAmount = breakdown.Total
	if err := s.commit(ctx, t, nil, "", actor.Address, models.EventTicketCompleted); err != nil {
		return nil, err
	}

	for _, analyst := range t.Analysts {
		if err := s.users.AddReputation(ctx, analyst, analystReputation); err != nil {
			s.log.Warn("failed to add reputation", "address", analyst, "error", err)
		}
	}
	if t.CertifierAddress != "" {
		if err := s.users.AddReputation(ctx, t.CertifierAddress, certifierReputation); err != nil {
			s.log.Warn("failed to add reputation", "address", t.CertifierAddress, "error", err)
		}
	}

	s.log.WithTicketID(ticketID).Info("ticket completed",
		"total_reward", breakdown.Total.String(),
		"mints", len(result.TxHashes))
	return result, nil
}

// Dashboard summarizes the tickets relevant to address for its role
type Dashboard struct {
	Address string                      `json:"address"`
	Role    models.Role                 `json:"role"`
	Counts  map[models.TicketStatus]int `json:"counts"`
	Recent  []*models.Ticket            `json:"recent"`
	Pending []*models.Ticket            `json:"pending,omitempty"`
}

// Dashboard returns role-aware ticket counts and lists for address
func (s *TicketService) Dashboard(ctx context.Context, address string) (*Dashboard, error) {
	actor, err := s.Actor(ctx, address)
	if err != nil {
		return nil, err
	}

	filter := models.TicketFilter{Limit: 10}
	switch actor.Role {
	case models.RoleAnalyst:
		filter.Analyst = actor.Address
	case models.RoleCertifier:
		filter.Certifier = actor.Address
	default:
		filter.ClientAddress = actor.Address
	}

	counts, err := s.tickets.CountByStatus(ctx, filter)
	if err != nil {
		return nil, err
	}
	recent, err := s.tickets.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{Address: actor.Address, Role: actor.Role, Counts: counts, Recent: recent}
	if actor.Role == models.RoleAnalyst {
		if d.Pending, err = s.PendingAnalysis(ctx, 10); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// pay mints amount to the address for t unless a reward for t is already recorded
func (s *TicketService) pay(ctx context.Context, t *models.Ticket, to string, amount decimal.Decimal) (string, error) {
	if !amount.IsPositive() {
		return "", nil
	}

	paid, err := s.tokens.FindReward(ctx, to, t.TicketID)
	if err == nil {
		s.log.Info("reward already paid", "ticket_id", t.TicketID, "address", to, "tx_hash", paid.TxHash)
		return "", nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return "", err
	}

	receipt, err := s.ledger.MintCLT(ctx, to, amount)
	if err != nil {
		return "", err
	}
	s.recorder.record(ctx, receipt, models.TxMint, to, ticketRef(t.TicketID), "")

	entry := &models.CLTEntry{
		WalletAddress: to,
		Amount:        amount,
		Kind:          models.CLTReward,
		TicketID:      ticketRef(t.TicketID),
		TxHash:        receipt.TxHash,
	}
	if err := s.tokens.AddCLTEntry(ctx, entry); err != nil {
		s.log.Error("failed to record reward entry", "ticket_id", t.TicketID, "address", to, "error", err)
	}
	return receipt.TxHash, nil
}

// withTicketLock runs op while holding the ticket's workflow lock
func withTicketLock[T any](ctx context.Context, tickets repository.TicketStore, ticketID int64, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := tickets.Lock(ctx, ticketID, func(ctx context.Context) error {
		var err error
		out, err = op(ctx)
		return err
	})
	return out, err
}

// authorize loads the ticket, resolves the actor and checks the transition
func (s *TicketService) authorize(ctx context.Context, action policy.Action, ticketID int64, address string, input policy.Input) (*models.Ticket, policy.Actor, models.TicketStatus, error) {
	t, err := s.tickets.GetByTicketID(ctx, ticketID)
	if err != nil {
		return nil, policy.Actor{}, "", err
	}
	actor, err := s.Actor(ctx, address)
	if err != nil {
		return nil, policy.Actor{}, "", err
	}

	next, err := s.machine.Apply(action, t, actor, input)
	if err != nil {
		s.log.Debug("transition refused",
			"ticket_id", ticketID,
			"action", action,
			"address", actor.Address,
			"error", err)
		return nil, policy.Actor{}, "", err
	}
	return t, actor, next, nil
}

// commit persists t, records receipt (when there was a chain write) and
// publishes evt
func (s *TicketService) commit(ctx context.Context, t *models.Ticket, receipt *chain.Receipt, kind models.TxKind, actor string, evt models.EventType) error {
	if err := s.tickets.UpdateWorkflow(ctx, t); err != nil {
		if receipt != nil {
			s.recorder.record(ctx, receipt, kind, actor, ticketRef(t.TicketID), "ticket update not persisted: "+err.Error())
		}
		s.log.WithTicketID(t.TicketID).Error("failed to persist ticket update", "event", evt, "error", err)
		return err
	}

	txHash := ""
	if receipt != nil {
		txHash = receipt.TxHash
		s.recorder.record(ctx, receipt, kind, actor, ticketRef(t.TicketID), "")
	}

	s.events.Publish(ctx, ticketEvent(t, evt, actor, txHash))
	s.log.WithTicketID(t.TicketID).Info("ticket updated", "event", evt, "status", t.Status, "actor", actor)
	return nil
}
