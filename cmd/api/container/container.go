package container

import (
	"context"
	"fmt"

	"github.com/DEEPML1818/dsoc/cmd/api/service"
	"github.com/DEEPML1818/dsoc/common/ai"
	"github.com/DEEPML1818/dsoc/common/auth"
	"github.com/DEEPML1818/dsoc/common/bootstrap"
	"github.com/DEEPML1818/dsoc/common/cache"
	"github.com/DEEPML1818/dsoc/common/chain"
	"github.com/DEEPML1818/dsoc/common/policy"
	"github.com/DEEPML1818/dsoc/common/ratelimit"
	"github.com/DEEPML1818/dsoc/common/repository"
	"github.com/DEEPML1818/dsoc/common/reward"
)

// Stores groups the persistence ports used by the services
type Stores struct {
	Tickets      repository.TicketStore
	Reports      repository.IncidentReportStore
	Users        repository.UserStore
	Shortlist    repository.ShortlistStore
	Transactions repository.TransactionStore
	Tokens       repository.TokenStore
}

// PostgresStores returns stores backed by the components' database
func PostgresStores(components *bootstrap.Components) Stores {
	return Stores{
		Tickets:      repository.NewTicketRepository(components.DB),
		Reports:      repository.NewIncidentReportRepository(components.DB),
		Users:        repository.NewUserRepository(components.DB),
		Shortlist:    repository.NewShortlistRepository(components.DB),
		Transactions: repository.NewTransactionRepository(components.DB),
		Tokens:       repository.NewTokenRepository(components.DB),
	}
}

// MemoryStores returns stores backed by m
func MemoryStores(m *repository.MemoryStore) Stores {
	return Stores{
		Tickets:      m.Tickets(),
		Reports:      m.Reports(),
		Users:        m.Users(),
		Shortlist:    m.Shortlist(),
		Transactions: m.Transactions(),
		Tokens:       m.Tokens(),
	}
}

// Deps are the collaborators chosen outside the container
type Deps struct {
	Stores    Stores
	Ledger    chain.Ledger
	Generator ai.TextGenerator // nil disables AI features
}

// Container holds all initialized services (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components
	Stores     Stores
	Ledger     chain.Ledger
	Assistant  *ai.Assistant
	Tokens     *auth.TokenIssuer
	Limits     ratelimit.Limits
	Events     *service.EventPublisher

	// Services
	AuthService      *service.AuthService
	UserService      *service.UserService
	CertifierService *service.CertifierService
	ReportService    *service.IncidentReportService
	TicketService    *service.TicketService
	ShortlistService *service.ShortlistService
	TokenService     *service.TokenService
	AIService        *service.AIService

	cleanup []func()
}

// NewContainer wires the production collaborators: Postgres stores when a
// database is configured, the configured chain backend and the Gemini
// generator when an API key is set.
func NewContainer(ctx context.Context, components *bootstrap.Components) (*Container, error) {
	cfg := components.Config

	var stores Stores
	if components.DB != nil {
		stores = PostgresStores(components)
	} else {
		components.Logger.Warn("no database configured, using in-memory stores")
		stores = MemoryStores(repository.NewMemoryStore())
	}

	ledger, closeLedger, err := chain.New(ctx, cfg.Chain, components.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chain backend: %w", err)
	}

	var gen ai.TextGenerator
	if cfg.AI.APIKey != "" {
		g, err := ai.NewGenAIGenerator(ctx, cfg.AI.APIKey, cfg.AI.Model)
		if err != nil {
			closeLedger()
			return nil, fmt.Errorf("failed to initialize ai client: %w", err)
		}
		gen = g
	} else {
		components.Logger.Warn("AI_API_KEY not set, ai features disabled")
	}

	c, err := Assemble(components, Deps{Stores: stores, Ledger: ledger, Generator: gen})
	if err != nil {
		closeLedger()
		return nil, err
	}
	c.cleanup = append(c.cleanup, closeLedger)
	return c, nil
}

// Assemble builds the services over deps
func Assemble(components *bootstrap.Components, deps Deps) (*Container, error) {
	cfg := components.Config
	log := components.Logger

	machine, err := policy.NewMachine(cfg.Chain.MaxAnalysts)
	if err != nil {
		return nil, fmt.Errorf("failed to build ticket policy: %w", err)
	}

	rewards, err := reward.NewCalculator(cfg.Reward.BaseAmount, cfg.Reward.CertifierShare)
	if err != nil {
		return nil, fmt.Errorf("invalid reward configuration: %w", err)
	}

	c := &Container{
		Components: components,
		Stores:     deps.Stores,
		Ledger:     deps.Ledger,
		Assistant:  ai.NewAssistant(deps.Generator, cfg.AI, log),
		Tokens:     auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Limits: ratelimit.Limits{
			Global:        cfg.RateLimit.GlobalLimit,
			Address:       cfg.RateLimit.AddressLimit,
			AI:            cfg.RateLimit.AILimit,
			WindowSeconds: cfg.RateLimit.WindowSeconds,
		},
		Events: service.NewEventPublisher(components.Queue, log),
	}

	// Nonces need a shared store between nonce and verify
	nonceCache := components.Cache
	if nonceCache == nil {
		memCache := cache.NewMemoryCache(log)
		nonceCache = memCache
		c.cleanup = append(c.cleanup, func() { memCache.Close() })
	}

	limiter := components.Limiter
	if limiter == nil {
		limiter = ratelimit.NewMemoryLimiter()
	}

	// Initialize services (bottom-up: dependencies first)
	c.UserService = service.NewUserService(deps.Stores.Users, cfg.IsAdmin, log)
	c.CertifierService = service.NewCertifierService(c.UserService)
	c.AuthService = service.NewAuthService(&service.AuthServiceOpts{
		Nonces:  auth.NewNonceStore(nonceCache, cfg.Auth.NonceTTL),
		Tokens:  c.Tokens,
		Users:   deps.Stores.Users,
		Ledger:  deps.Ledger,
		Limiter: limiter,
		Window:  c.Limits.Window(),
		Logger:  log,
	})
	c.ReportService = service.NewIncidentReportService(deps.Stores.Reports, deps.Stores.Tickets, c.Assistant, c.Events, log)
	c.TicketService = service.NewTicketService(&service.TicketServiceOpts{
		Tickets:      deps.Stores.Tickets,
		Reports:      deps.Stores.Reports,
		Users:        deps.Stores.Users,
		Shortlist:    deps.Stores.Shortlist,
		Transactions: deps.Stores.Transactions,
		Tokens:       deps.Stores.Tokens,
		Ledger:       deps.Ledger,
		Machine:      machine,
		Rewards:      rewards,
		Events:       c.Events,
		Logger:       log,
	})
	c.ShortlistService = service.NewShortlistService(deps.Stores.Shortlist, deps.Stores.Tickets, deps.Stores.Users, log)
	c.TokenService = service.NewTokenService(deps.Stores.Tokens, deps.Stores.Transactions, deps.Ledger, cfg.IsAdmin, log)
	c.AIService = service.NewAIService(c.Assistant, deps.Stores.Tickets, deps.Stores.Reports, log)

	return c, nil
}

// Close releases resources owned by the container
func (c *Container) Close() {
	for i := len(c.cleanup) - 1; i >= 0; i-- {
		c.cleanup[i]()
	}
	c.cleanup = nil
}
