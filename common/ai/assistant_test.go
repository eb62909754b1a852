package ai

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DEEPML1818/dsoc/common/config"
	"github.com/DEEPML1818/dsoc/common/logger"
	"github.com/DEEPML1818/dsoc/common/models"
)

type fakeGenerator struct {
	mu       sync.Mutex
	requests []Request
	reply    string
	err      error
	delay    time.Duration
}

func (f *fakeGenerator) Generate(ctx context.Context, req Request) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newAssistant(gen TextGenerator) *Assistant {
	return NewAssistant(gen, config.AIConfig{Timeout: time.Second, Temperature: 0.2}, logger.Discard())
}

func TestAnalyzeIncident(t *testing.T) {
	gen := &fakeGenerator{reply: "Summary: credential phishing"}
	a := newAssistant(gen)

	out, err := a.AnalyzeIncident(context.Background(), IncidentInput{
		Title:       "Phishing wave",
		Description: "Users received spoofed payroll emails",
		Severity:    "high",
		Evidence:    []string{"https://evidence.example/1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Summary: credential phishing", out)

	require.Equal(t, 1, gen.calls())
	req := gen.requests[0]
	assert.Equal(t, analystSystem, req.System)
	assert.Contains(t, req.Prompt, "Phishing wave")
	assert.Contains(t, req.Prompt, "Category: not provided")
	assert.Contains(t, req.Prompt, "https://evidence.example/1")
	assert.InDelta(t, 0.2, req.Temperature, 0.0001)
}

func TestEmptyInputSkipsRemoteCall(t *testing.T) {
	gen := &fakeGenerator{reply: "x"}
	a := newAssistant(gen)
	ctx := context.Background()

	_, err := a.AnalyzeIncident(ctx, IncidentInput{})
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = a.Chat(ctx, nil, "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = a.AuditReport(ctx, &models.Ticket{Title: "t"}, "")
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = a.AuditReport(ctx, nil, "analysis")
	assert.ErrorIs(t, err, ErrEmptyInput)

	assert.Equal(t, 0, gen.calls())
}

func TestChat_TruncatesHistory(t *testing.T) {
	gen := &fakeGenerator{reply: "Use MFA."}
	a := newAssistant(gen)

	history := make([]Message, 30)
	for i := range history {
		history[i] = Message{Role: "user", Text: "q"}
	}

	out, err := a.Chat(context.Background(), history, "How do I stop credential stuffing?")
	require.NoError(t, err)
	assert.Equal(t, "Use MFA.", out)
	assert.Len(t, gen.requests[0].History, maxHistory)
}

func TestAuditReport_IncludesTicket(t *testing.T) {
	gen := &fakeGenerator{reply: "# Audit"}
	a := newAssistant(gen)

	ticket := &models.Ticket{
		TicketID: 12,
		Title:    "Ransomware on file server",
		Severity: models.SeverityCritical,
		Status:   models.StatusValidated,
		Analysts: []string{"0xa1"},
		Report:   "Entry via exposed RDP",
	}
	_, err := a.AuditReport(context.Background(), ticket, "")
	require.NoError(t, err)
	assert.Contains(t, gen.requests[0].Prompt, "Ticket #12")
	assert.Contains(t, gen.requests[0].Prompt, "Entry via exposed RDP")
	assert.Contains(t, gen.requests[0].Prompt, "Certifier: not provided")
}

func TestUpstreamFailureIsUnavailable(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("503 from upstream")}
	a := newAssistant(gen)

	_, err := a.Chat(context.Background(), nil, "hi")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("boom")}
	a := newAssistant(gen)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := a.Chat(ctx, nil, "hi")
		require.Error(t, err)
	}
	require.Equal(t, 5, gen.calls())

	_, err := a.Chat(ctx, nil, "hi")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "circuit open")
	assert.Equal(t, 5, gen.calls(), "open circuit must not call upstream")
}

func TestTimeout(t *testing.T) {
	gen := &fakeGenerator{reply: "late", delay: 200 * time.Millisecond}
	a := NewAssistant(gen, config.AIConfig{Timeout: 20 * time.Millisecond}, logger.Discard())

	_, err := a.Chat(context.Background(), nil, "hi")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNilGeneratorIsUnavailable(t *testing.T) {
	a := newAssistant(nil)
	_, err := a.Chat(context.Background(), nil, "hi")
	assert.ErrorIs(t, err, ErrUnavailable)
}
