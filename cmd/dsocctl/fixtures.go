package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"

	"gopkg.in/yaml.v3"

	"github.com/DEEPML1818/dsoc/common/models"
	"github.com/DEEPML1818/dsoc/common/repository"
)

// seedChain marks tickets that were never written to a ledger
const seedChain = "seed"

// Fixtures is the document read by "seed --file"
type Fixtures struct {
	Users   []UserFixture   `yaml:"users"`
	Tickets []TicketFixture `yaml:"tickets"`
	Reports []ReportFixture `yaml:"reports"`
}

// UserFixture is one registered wallet
type UserFixture struct {
	Address     string `yaml:"address"`
	Role        string `yaml:"role"`
	DisplayName string `yaml:"display_name,omitempty"`
	Email       string `yaml:"email,omitempty"`
}

// TicketFixture is one ticket in any workflow state
type TicketFixture struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Category    string   `yaml:"category,omitempty"`
	Severity    string   `yaml:"severity"`
	Status      string   `yaml:"status,omitempty"`
	Client      string   `yaml:"client"`
	Analysts    []string `yaml:"analysts,omitempty"`
	Certifier   string   `yaml:"certifier,omitempty"`
	Report      string   `yaml:"report,omitempty"`
}

// ReportFixture is one incident report. Ticket is the 1-based position of
// the ticket it is linked to, or 0 when unlinked.
type ReportFixture struct {
	Title           string   `yaml:"title"`
	Description     string   `yaml:"description"`
	Severity        string   `yaml:"severity"`
	Category        string   `yaml:"category,omitempty"`
	Reporter        string   `yaml:"reporter"`
	AffectedSystems string   `yaml:"affected_systems,omitempty"`
	Evidence        []string `yaml:"evidence,omitempty"`
	Ticket          int      `yaml:"ticket,omitempty"`
}

// SeedStores are the stores written by Apply
type SeedStores struct {
	Users   repository.UserStore
	Tickets repository.TicketStore
	Reports repository.IncidentReportStore
}

// SeedResult counts rows written by Apply
type SeedResult struct {
	Users        int `json:"users"`
	UsersSkipped int `json:"users_skipped"`
	Tickets      int `json:"tickets"`
	Reports      int `json:"reports"`
}

// DecodeFixtures reads a fixtures document
func DecodeFixtures(r io.Reader) (*Fixtures, error) {
	var f Fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	return &f, f.Validate()
}

// Validate checks enumerations and cross references before anything is written
func (f *Fixtures) Validate() error {
	for i, u := range f.Users {
		if u.Address == "" {
			return fmt.Errorf("users[%d]: address is required", i)
		}
		if _, err := models.ParseRole(u.Role); err != nil {
			return fmt.Errorf("users[%d]: %w", i, err)
		}
	}
	for i, t := range f.Tickets {
		if t.Title == "" || t.Client == "" {
			return fmt.Errorf("tickets[%d]: title and client are required", i)
		}
		if _, err := models.ParseSeverity(t.Severity); err != nil {
			return fmt.Errorf("tickets[%d]: %w", i, err)
		}
		if t.Status != "" {
			if _, err := models.ParseTicketStatus(t.Status); err != nil {
				return fmt.Errorf("tickets[%d]: %w", i, err)
			}
		}
	}
	for i, r := range f.Reports {
		if r.Title == "" || r.Reporter == "" {
			return fmt.Errorf("reports[%d]: title and reporter are required", i)
		}
		if _, err := models.ParseSeverity(r.Severity); err != nil {
			return fmt.Errorf("reports[%d]: %w", i, err)
		}
		if r.Ticket < 0 || r.Ticket > len(f.Tickets) {
			return fmt.Errorf("reports[%d]: ticket %d is out of range", i, r.Ticket)
		}
	}
	return nil
}

// Apply writes f through stores. Users that already exist are skipped.
func Apply(ctx context.Context, stores SeedStores, f *Fixtures) (*SeedResult, error) {
	res := &SeedResult{}

	for _, u := range f.Users {
		role, _ := models.ParseRole(u.Role)
		err := stores.Users.Create(ctx, &models.User{
			WalletAddress: u.Address,
			Role:          role,
			DisplayName:   u.DisplayName,
			Email:         u.Email,
		})
		if errors.Is(err, repository.ErrConflict) {
			res.UsersSkipped++
			continue
		}
		if err != nil {
			return res, fmt.Errorf("seed user %s: %w", u.Address, err)
		}
		res.Users++
	}

	ticketIDs := make([]int64, len(f.Tickets))
	for i, t := range f.Tickets {
		id, err := stores.Tickets.NextTicketID(ctx)
		if err != nil {
			return res, fmt.Errorf("allocate ticket id: %w", err)
		}

		sev, _ := models.ParseSeverity(t.Severity)
		status := models.StatusOpen
		if t.Status != "" {
			status, _ = models.ParseTicketStatus(t.Status)
		}
		analysts := make([]string, 0, len(t.Analysts))
		for _, a := range t.Analysts {
			analysts = append(analysts, models.NormalizeAddress(a))
		}

		err = stores.Tickets.Create(ctx, &models.Ticket{
			TicketID:         id,
			Title:            t.Title,
			Description:      t.Description,
			Category:         t.Category,
			Severity:         sev,
			Status:           status,
			ClientAddress:    t.Client,
			Analysts:         analysts,
			CertifierAddress: models.NormalizeAddress(t.Certifier),
			Report:           t.Report,
			Chain:            seedChain,
		})
		if err != nil {
			return res, fmt.Errorf("seed ticket %q: %w", t.Title, err)
		}
		ticketIDs[i] = id
		res.Tickets++
	}

	for _, r := range f.Reports {
		sev, _ := models.ParseSeverity(r.Severity)
		report := &models.IncidentReport{
			Title:           r.Title,
			Description:     r.Description,
			Severity:        sev,
			Category:        r.Category,
			ReporterAddress: r.Reporter,
			AffectedSystems: r.AffectedSystems,
			EvidenceURLs:    r.Evidence,
			Status:          models.ReportSubmitted,
		}
		if r.Ticket > 0 {
			id := ticketIDs[r.Ticket-1]
			report.TicketID = &id
			report.Status = models.ReportLinked
		}
		if err := stores.Reports.Create(ctx, report); err != nil {
			return res, fmt.Errorf("seed report %q: %w", r.Title, err)
		}
		res.Reports++
	}

	return res, nil
}

var (
	incidentKinds = []struct{ category, title, description string }{
		{"phishing", "Credential phishing campaign", "Employees received a fake SSO login page by e-mail."},
		{"malware", "Beaconing workstation", "EDR flagged periodic outbound connections to an unknown host."},
		{"ransomware", "Encrypted file share", "Files on the finance share were renamed with a new extension."},
		{"intrusion", "Unexpected admin login", "A domain admin signed in from an unfamiliar country."},
		{"ddos", "API latency spike", "Public API traffic rose tenfold from a small set of networks."},
		{"data-leak", "Exposed storage bucket", "A bucket holding customer exports allowed anonymous reads."},
	}
	severities = []string{"low", "medium", "high", "critical"}
	statuses   = []models.TicketStatus{
		models.StatusOpen, models.StatusAssigned, models.StatusAnalyzed, models.StatusValidated, models.StatusCompleted,
	}
)

// fixtureAddress returns a stable wallet address for a role and index
func fixtureAddress(prefix byte, i int) string {
	return fmt.Sprintf("0x%02x%038x", prefix, i+1)
}

// Generate builds n tickets with their users and reports. The same seed
// always yields the same document.
func Generate(n int, seed int64) *Fixtures {
	rng := rand.New(rand.NewSource(seed))
	f := &Fixtures{}

	clients := n/4 + 1
	analysts := 3
	for i := 0; i < clients; i++ {
		f.Users = append(f.Users, UserFixture{
			Address:     fixtureAddress(0xc1, i),
			Role:        string(models.RoleClient),
			DisplayName: fmt.Sprintf("Client %d", i+1),
			Email:       fmt.Sprintf("client%d@example.com", i+1),
		})
	}
	for i := 0; i < analysts; i++ {
		f.Users = append(f.Users, UserFixture{
			Address:     fixtureAddress(0xa1, i),
			Role:        string(models.RoleAnalyst),
			DisplayName: fmt.Sprintf("Analyst %d", i+1),
		})
	}
	certifier := fixtureAddress(0xce, 0)
	f.Users = append(f.Users, UserFixture{Address: certifier, Role: string(models.RoleCertifier), DisplayName: "Certifier 1"})

	for i := 0; i < n; i++ {
		kind := incidentKinds[rng.Intn(len(incidentKinds))]
		status := statuses[i%len(statuses)]
		t := TicketFixture{
			Title:       fmt.Sprintf("%s #%d", kind.title, i+1),
			Description: kind.description,
			Category:    kind.category,
			Severity:    severities[rng.Intn(len(severities))],
			Status:      string(status),
			Client:      fixtureAddress(0xc1, i%clients),
		}
		if status != models.StatusOpen {
			t.Analysts = []string{fixtureAddress(0xa1, rng.Intn(analysts))}
		}
		if status == models.StatusAnalyzed || status == models.StatusValidated || status == models.StatusCompleted {
			t.Report = "Initial access confirmed. Containment steps documented in the attached timeline."
		}
		if status == models.StatusValidated || status == models.StatusCompleted {
			t.Certifier = certifier
		}
		f.Tickets = append(f.Tickets, t)

		if i%2 == 0 {
			f.Reports = append(f.Reports, ReportFixture{
				Title:       t.Title,
				Description: t.Description,
				Severity:    t.Severity,
				Category:    t.Category,
				Reporter:    t.Client,
				Evidence:    []string{fmt.Sprintf("https://evidence.example/%d", i+1)},
				Ticket:      i + 1,
			})
		}
	}
	return f
}

// EncodeFixtures writes f as YAML
func EncodeFixtures(w io.Writer, f *Fixtures) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encode fixtures: %w", err)
	}
	return enc.Close()
}
