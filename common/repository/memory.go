package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DEEPML1818/dsoc/common/models"
)

// MemoryStore is an in-process implementation of every store, used by tests
// and by tools that run without Postgres. It follows the same rules as the
// SQL repositories: normalized addresses, ErrNotFound, ErrConflict and the
// optimistic updated_at check on tickets.
type MemoryStore struct {
	mu   sync.Mutex
	last time.Time

	nextID   map[string]int64
	locks    map[int64]*sync.Mutex
	users    map[string]*models.User
	tickets  map[int64]*models.Ticket
	reports  map[int64]*models.IncidentReport
	shortlst map[int64][]*models.ShortlistEntry
	txs      map[int64]*models.Transaction
	clt      []*models.CLTEntry
	stakes   []*models.StakePosition
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:   make(map[string]int64),
		locks:    make(map[int64]*sync.Mutex),
		users:    make(map[string]*models.User),
		tickets:  make(map[int64]*models.Ticket),
		reports:  make(map[int64]*models.IncidentReport),
		shortlst: make(map[int64][]*models.ShortlistEntry),
		txs:      make(map[int64]*models.Transaction),
	}
}

// Tickets returns the ticket store view
func (s *MemoryStore) Tickets() *MemoryTickets { return &MemoryTickets{s} }

// Reports returns the incident report store view
func (s *MemoryStore) Reports() *MemoryReports { return &MemoryReports{s} }

// Users returns the user store view
func (s *MemoryStore) Users() *MemoryUsers { return &MemoryUsers{s} }

// Shortlist returns the shortlist store view
func (s *MemoryStore) Shortlist() *MemoryShortlist { return &MemoryShortlist{s} }

// Transactions returns the transaction store view
func (s *MemoryStore) Transactions() *MemoryTransactions { return &MemoryTransactions{s} }

// Tokens returns the token store view
func (s *MemoryStore) Tokens() *MemoryTokens { return &MemoryTokens{s} }

// Backdate shifts a transaction's created_at into the past, for reconciler tests
func (s *MemoryStore) Backdate(txID int64, by time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx, ok := s.txs[txID]; ok {
		tx.CreatedAt = tx.CreatedAt.Add(-by)
	}
}

// now returns a strictly increasing timestamp at Postgres precision
func (s *MemoryStore) now() time.Time {
	t := time.Now().UTC().Truncate(time.Microsecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func (s *MemoryStore) id(table string) int64 {
	s.nextID[table]++
	return s.nextID[table]
}

// MemoryTickets implements TicketStore
type MemoryTickets struct{ s *MemoryStore }

// MemoryReports implements IncidentReportStore
type MemoryReports struct{ s *MemoryStore }

// MemoryUsers implements UserStore
type MemoryUsers struct{ s *MemoryStore }

// MemoryShortlist implements ShortlistStore
type MemoryShortlist struct{ s *MemoryStore }

// MemoryTransactions implements TransactionStore
type MemoryTransactions struct{ s *MemoryStore }

// MemoryTokens implements TokenStore
type MemoryTokens struct{ s *MemoryStore }

var (
	_ TicketStore         = (*MemoryTickets)(nil)
	_ IncidentReportStore = (*MemoryReports)(nil)
	_ UserStore           = (*MemoryUsers)(nil)
	_ ShortlistStore      = (*MemoryShortlist)(nil)
	_ TransactionStore    = (*MemoryTransactions)(nil)
	_ TokenStore          = (*MemoryTokens)(nil)
)

// Tickets

func (m *MemoryTickets) NextTicketID(ctx context.Context) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.s.id("ticket_id_seq"), nil
}

func (m *MemoryTickets) Create(ctx context.Context, t *models.Ticket) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, exists := m.s.tickets[t.TicketID]; exists {
		return fmt.Errorf("create ticket: %w", ErrConflict)
	}

	t.ClientAddress = models.NormalizeAddress(t.ClientAddress)
	t.Analysts = nonNil(t.Analysts)
	t.ID = m.s.id("tickets")
	t.CreatedAt = m.s.now()
	t.UpdatedAt = t.CreatedAt
	m.s.tickets[t.TicketID] = cloneTicket(t)
	return nil
}

func (m *MemoryTickets) GetByTicketID(ctx context.Context, ticketID int64) (*models.Ticket, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	t, ok := m.s.tickets[ticketID]
	if !ok {
		return nil, fmt.Errorf("get ticket: %w", ErrNotFound)
	}
	return cloneTicket(t), nil
}

func (m *MemoryTickets) List(ctx context.Context, filter models.TicketFilter) ([]*models.Ticket, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	matched := m.match(filter)
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	limit := clampLimit(filter.Limit)
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []*models.Ticket{}, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*models.Ticket, 0, len(matched))
	for _, t := range matched {
		out = append(out, cloneTicket(t))
	}
	return out, nil
}

func (m *MemoryTickets) PendingAnalysis(ctx context.Context, maxAnalysts, limit int) ([]*models.Ticket, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	out := []*models.Ticket{}
	for _, t := range m.s.tickets {
		if len(t.Analysts) >= maxAnalysts {
			continue
		}
		if t.Status == models.StatusOpen || t.Status == models.StatusAssigned {
			out = append(out, cloneTicket(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if l := clampLimit(limit); len(out) > l {
		out = out[:l]
	}
	return out, nil
}

func (m *MemoryTickets) CountByStatus(ctx context.Context, filter models.TicketFilter) (map[models.TicketStatus]int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	counts := make(map[models.TicketStatus]int)
	for _, t := range m.match(filter) {
		counts[t.Status]++
	}
	return counts, nil
}

func (m *MemoryTickets) UpdateWorkflow(ctx context.Context, t *models.Ticket) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	stored, ok := m.s.tickets[t.TicketID]
	if !ok || !stored.UpdatedAt.Equal(t.UpdatedAt) {
		return fmt.Errorf("update ticket %d: %w", t.TicketID, ErrConflict)
	}

	stored.Status = t.Status
	stored.Analysts = append([]string{}, t.Analysts...)
	stored.CertifierAddress = models.NormalizeAddress(t.CertifierAddress)
	stored.Report = t.Report
	stored.RewardAmount = t.RewardAmount
	stored.TxHash = t.TxHash
	stored.UpdatedAt = m.s.now()

	t.UpdatedAt = stored.UpdatedAt
	return nil
}

// Lock serializes workflow writes per ticket. The store mutex is not held
// while fn runs, so fn may call back into the store.
func (m *MemoryTickets) Lock(ctx context.Context, ticketID int64, fn func(ctx context.Context) error) error {
	m.s.mu.Lock()
	l, ok := m.s.locks[ticketID]
	if !ok {
		l = &sync.Mutex{}
		m.s.locks[ticketID] = l
	}
	m.s.mu.Unlock()

	l.Lock()
	defer l.Unlock()
	return fn(ctx)
}

func (m *MemoryTickets) match(filter models.TicketFilter) []*models.Ticket {
	var out []*models.Ticket
	for _, t := range m.s.tickets {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.ClientAddress != "" && t.ClientAddress != models.NormalizeAddress(filter.ClientAddress) {
			continue
		}
		if filter.Analyst != "" && !t.HasAnalyst(filter.Analyst) {
			continue
		}
		if filter.Certifier != "" && t.CertifierAddress != models.NormalizeAddress(filter.Certifier) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func cloneTicket(t *models.Ticket) *models.Ticket {
	c := *t
	c.Analysts = append([]string{}, t.Analysts...)
	return &c
}

// Incident reports

func (m *MemoryReports) Create(ctx context.Context, report *models.IncidentReport) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	report.ReporterAddress = models.NormalizeAddress(report.ReporterAddress)
	report.EvidenceURLs = nonNil(report.EvidenceURLs)
	report.ID = m.s.id("incident_reports")
	report.CreatedAt = m.s.now()
	report.UpdatedAt = report.CreatedAt
	m.s.reports[report.ID] = cloneReport(report)
	return nil
}

func (m *MemoryReports) GetByID(ctx context.Context, id int64) (*models.IncidentReport, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	r, ok := m.s.reports[id]
	if !ok {
		return nil, fmt.Errorf("get incident report: %w", ErrNotFound)
	}
	return cloneReport(r), nil
}

func (m *MemoryReports) GetByTicketID(ctx context.Context, ticketID int64) (*models.IncidentReport, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	var found *models.IncidentReport
	for _, r := range m.s.reports {
		if r.TicketID != nil && *r.TicketID == ticketID && (found == nil || r.ID < found.ID) {
			found = r
		}
	}
	if found == nil {
		return nil, fmt.Errorf("get incident report by ticket: %w", ErrNotFound)
	}
	return cloneReport(found), nil
}

func (m *MemoryReports) List(ctx context.Context, reporter string, limit, offset int) ([]*models.IncidentReport, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	reporter = models.NormalizeAddress(reporter)
	out := []*models.IncidentReport{}
	for _, r := range m.s.reports {
		if reporter == "" || r.ReporterAddress == reporter {
			out = append(out, cloneReport(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })

	if offset < 0 {
		offset = 0
	}
	if offset >= len(out) {
		return []*models.IncidentReport{}, nil
	}
	out = out[offset:]
	if l := clampLimit(limit); len(out) > l {
		out = out[:l]
	}
	return out, nil
}

func (m *MemoryReports) Update(ctx context.Context, report *models.IncidentReport) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	stored, ok := m.s.reports[report.ID]
	if !ok {
		return fmt.Errorf("update incident report: %w", ErrNotFound)
	}

	c := cloneReport(report)
	c.ReporterAddress = stored.ReporterAddress
	c.CreatedAt = stored.CreatedAt
	c.UpdatedAt = m.s.now()
	m.s.reports[report.ID] = c

	report.UpdatedAt = c.UpdatedAt
	return nil
}

func cloneReport(r *models.IncidentReport) *models.IncidentReport {
	c := *r
	c.EvidenceURLs = append([]string{}, r.EvidenceURLs...)
	if r.TicketID != nil {
		id := *r.TicketID
		c.TicketID = &id
	}
	return &c
}

// Users

func (m *MemoryUsers) Create(ctx context.Context, user *models.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	user.WalletAddress = models.NormalizeAddress(user.WalletAddress)
	if _, exists := m.s.users[user.WalletAddress]; exists {
		return fmt.Errorf("create user: %w", ErrConflict)
	}
	user.ID = m.s.id("users")
	user.CreatedAt = m.s.now()
	c := *user
	m.s.users[user.WalletAddress] = &c
	return nil
}

func (m *MemoryUsers) GetByAddress(ctx context.Context, address string) (*models.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	u, ok := m.s.users[models.NormalizeAddress(address)]
	if !ok {
		return nil, fmt.Errorf("get user: %w", ErrNotFound)
	}
	c := *u
	return &c, nil
}

func (m *MemoryUsers) UpdateRole(ctx context.Context, address string, role models.Role) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	u, ok := m.s.users[models.NormalizeAddress(address)]
	if !ok {
		return fmt.Errorf("update user role: %w", ErrNotFound)
	}
	u.Role = role
	return nil
}

func (m *MemoryUsers) AddReputation(ctx context.Context, address string, delta int) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if u, ok := m.s.users[models.NormalizeAddress(address)]; ok {
		u.Reputation += delta
	}
	return nil
}

func (m *MemoryUsers) ListByRole(ctx context.Context, role models.Role, limit int) ([]*models.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	out := []*models.User{}
	for _, u := range m.s.users {
		if u.Role == role {
			c := *u
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Reputation != out[j].Reputation {
			return out[i].Reputation > out[j].Reputation
		}
		return out[i].ID < out[j].ID
	})
	if l := clampLimit(limit); len(out) > l {
		out = out[:l]
	}
	return out, nil
}

// Shortlist

func (m *MemoryShortlist) Add(ctx context.Context, entry *models.ShortlistEntry) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	entry.AnalystAddress = models.NormalizeAddress(entry.AnalystAddress)
	for _, e := range m.s.shortlst[entry.TicketID] {
		if e.AnalystAddress == entry.AnalystAddress {
			return fmt.Errorf("add shortlist entry: %w", ErrConflict)
		}
	}
	entry.ID = m.s.id("ticket_shortlist")
	entry.CreatedAt = m.s.now()
	c := *entry
	m.s.shortlst[entry.TicketID] = append(m.s.shortlst[entry.TicketID], &c)
	return nil
}

func (m *MemoryShortlist) List(ctx context.Context, ticketID int64) ([]*models.ShortlistEntry, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	out := []*models.ShortlistEntry{}
	for _, e := range m.s.shortlst[ticketID] {
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

func (m *MemoryShortlist) Remove(ctx context.Context, ticketID int64, analyst string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	analyst = models.NormalizeAddress(analyst)
	entries := m.s.shortlst[ticketID]
	for i, e := range entries {
		if e.AnalystAddress == analyst {
			m.s.shortlst[ticketID] = append(entries[:i:i], entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("remove shortlist entry: %w", ErrNotFound)
}

// Transactions

func (m *MemoryTransactions) Record(ctx context.Context, tx *models.Transaction) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	tx.FromAddress = models.NormalizeAddress(tx.FromAddress)
	tx.ID = m.s.id("transactions")
	tx.CreatedAt = m.s.now()
	tx.UpdatedAt = tx.CreatedAt
	c := *tx
	m.s.txs[tx.ID] = &c
	return nil
}

func (m *MemoryTransactions) SetStatus(ctx context.Context, id int64, status models.TxStatus, reason string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	tx, ok := m.s.txs[id]
	if !ok {
		return fmt.Errorf("update transaction status: %w", ErrNotFound)
	}
	tx.Status = status
	tx.Error = reason
	tx.UpdatedAt = m.s.now()
	return nil
}

func (m *MemoryTransactions) ListPending(ctx context.Context, olderThan time.Time, limit int) ([]*models.Transaction, error) {
	return m.list(limit, func(tx *models.Transaction) bool {
		return tx.Status == models.TxPending && tx.CreatedAt.Before(olderThan)
	}), nil
}

func (m *MemoryTransactions) ListByTicket(ctx context.Context, ticketID int64) ([]*models.Transaction, error) {
	return m.list(0, func(tx *models.Transaction) bool {
		return tx.TicketID != nil && *tx.TicketID == ticketID
	}), nil
}

// Get returns a transaction by id, for tests
func (m *MemoryTransactions) Get(id int64) (*models.Transaction, bool) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	tx, ok := m.s.txs[id]
	if !ok {
		return nil, false
	}
	c := *tx
	return &c, true
}

func (m *MemoryTransactions) list(limit int, keep func(*models.Transaction) bool) []*models.Transaction {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	out := []*models.Transaction{}
	for _, tx := range m.s.txs {
		if keep(tx) {
			c := *tx
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 {
		if l := clampLimit(limit); len(out) > l {
			out = out[:l]
		}
	}
	return out
}

// Tokens

func (m *MemoryTokens) AddCLTEntry(ctx context.Context, e *models.CLTEntry) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	e.WalletAddress = models.NormalizeAddress(e.WalletAddress)
	e.ID = m.s.id("clt_tokens")
	e.CreatedAt = m.s.now()
	c := *e
	m.s.clt = append(m.s.clt, &c)
	return nil
}

func (m *MemoryTokens) ListCLTEntries(ctx context.Context, address string, limit int) ([]*models.CLTEntry, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	address = models.NormalizeAddress(address)
	out := []*models.CLTEntry{}
	for i := len(m.s.clt) - 1; i >= 0; i-- {
		if e := m.s.clt[i]; e.WalletAddress == address {
			c := *e
			out = append(out, &c)
		}
	}
	if l := clampLimit(limit); len(out) > l {
		out = out[:l]
	}
	return out, nil
}

func (m *MemoryTokens) FindReward(ctx context.Context, address string, ticketID int64) (*models.CLTEntry, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	address = models.NormalizeAddress(address)
	for _, e := range m.s.clt {
		if e.WalletAddress == address && e.Kind == models.CLTReward && e.TicketID != nil && *e.TicketID == ticketID {
			c := *e
			return &c, nil
		}
	}
	return nil, fmt.Errorf("find reward: %w", ErrNotFound)
}

func (m *MemoryTokens) AddStake(ctx context.Context, s *models.StakePosition) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	s.WalletAddress = models.NormalizeAddress(s.WalletAddress)
	s.ID = m.s.id("stake_tokens")
	s.CreatedAt = m.s.now()
	c := *s
	m.s.stakes = append(m.s.stakes, &c)
	return nil
}

func (m *MemoryTokens) ListStakes(ctx context.Context, address string) ([]*models.StakePosition, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	address = models.NormalizeAddress(address)
	out := []*models.StakePosition{}
	for _, s := range m.s.stakes {
		if s.WalletAddress == address {
			c := *s
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *MemoryTokens) RecordClaim(ctx context.Context, address string, reward decimal.Decimal, txHash string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	address = models.NormalizeAddress(address)
	var open []*models.StakePosition
	for _, s := range m.s.stakes {
		if s.WalletAddress == address && s.ClaimedAt == nil {
			open = append(open, s)
		}
	}
	if len(open) == 0 {
		return fmt.Errorf("mark stakes claimed: %w", ErrNotFound)
	}

	now := m.s.now()
	share := reward.Div(decimal.NewFromInt(int64(len(open))))
	for _, s := range open {
		s.ClaimedReward = s.ClaimedReward.Add(share)
		claimedAt := now
		s.ClaimedAt = &claimedAt
	}

	m.s.clt = append(m.s.clt, &models.CLTEntry{
		ID:            m.s.id("clt_tokens"),
		WalletAddress: address,
		Amount:        reward,
		Kind:          models.CLTReward,
		TxHash:        txHash,
		CreatedAt:     now,
	})
	return nil
}
