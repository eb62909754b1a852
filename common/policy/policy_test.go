package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DEEPML1818/dsoc/common/models"
)

const (
	client    = "0xc11e47"
	analyst1  = "0xa1"
	analyst2  = "0xa2"
	certifier = "0xce47"
)

func newMachine(t *testing.T, maxAnalysts int) *Machine {
	t.Helper()
	m, err := NewMachine(maxAnalysts)
	require.NoError(t, err)
	return m
}

func analyst(addr string) Actor   { return Actor{Address: addr, Role: models.RoleAnalyst} }
func certActor(addr string) Actor { return Actor{Address: addr, Role: models.RoleCertifier} }

func TestApply_HappyPath(t *testing.T) {
	m := newMachine(t, 3)
	ticket := &models.Ticket{Status: models.StatusOpen, ClientAddress: client}

	next, err := m.Apply(ActionAssignAnalyst, ticket, analyst(analyst1), Input{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, next)
	ticket.Status = next
	ticket.Analysts = append(ticket.Analysts, analyst1)

	next, err = m.Apply(ActionAssignCertifier, ticket, certActor(certifier), Input{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, next, "certifier assignment keeps status")
	ticket.CertifierAddress = certifier

	next, err = m.Apply(ActionSubmitReport, ticket, analyst(analyst1), Input{Report: "root cause: weak creds"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusAnalyzed, next)
	ticket.Status = next

	next, err = m.Apply(ActionValidate, ticket, certActor(certifier), Input{Approved: true})
	require.NoError(t, err)
	assert.Equal(t, models.StatusValidated, next)
	ticket.Status = next

	next, err = m.Apply(ActionComplete, ticket, Actor{Address: client, Role: models.RoleClient}, Input{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, next)
}

func TestApply_RejectionReturnsToAssigned(t *testing.T) {
	m := newMachine(t, 3)
	ticket := &models.Ticket{
		Status:           models.StatusAnalyzed,
		ClientAddress:    client,
		Analysts:         []string{analyst1},
		CertifierAddress: certifier,
	}

	next, err := m.Apply(ActionValidate, ticket, certActor(certifier), Input{Approved: false})
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, next)
}

func TestApply_Refusals(t *testing.T) {
	m := newMachine(t, 2)

	tests := []struct {
		name   string
		action Action
		ticket *models.Ticket
		actor  Actor
		input  Input
		want   error
	}{
		{
			name:   "unknown action",
			action: Action("escalate"),
			ticket: &models.Ticket{Status: models.StatusOpen},
			actor:  analyst(analyst1),
			want:   ErrUnknownAction,
		},
		{
			name:   "client role cannot be assigned as analyst",
			action: ActionAssignAnalyst,
			ticket: &models.Ticket{Status: models.StatusOpen, ClientAddress: client},
			actor:  Actor{Address: "0xother", Role: models.RoleClient},
			want:   ErrForbidden,
		},
		{
			name:   "analyst assigned twice",
			action: ActionAssignAnalyst,
			ticket: &models.Ticket{Status: models.StatusAssigned, ClientAddress: client, Analysts: []string{"0xA1"}},
			actor:  analyst(analyst1),
			want:   ErrConflict,
		},
		{
			name:   "analyst cap reached",
			action: ActionAssignAnalyst,
			ticket: &models.Ticket{Status: models.StatusAssigned, ClientAddress: client, Analysts: []string{analyst1, analyst2}},
			actor:  analyst("0xa3"),
			want:   ErrConflict,
		},
		{
			name:   "assign analyst after analysis",
			action: ActionAssignAnalyst,
			ticket: &models.Ticket{Status: models.StatusAnalyzed, ClientAddress: client},
			actor:  analyst(analyst1),
			want:   ErrInvalidState,
		},
		{
			name:   "report from unassigned analyst",
			action: ActionSubmitReport,
			ticket: &models.Ticket{Status: models.StatusAssigned, Analysts: []string{analyst1}},
			actor:  analyst(analyst2),
			input:  Input{Report: "x"},
			want:   ErrForbidden,
		},
		{
			name:   "empty report",
			action: ActionSubmitReport,
			ticket: &models.Ticket{Status: models.StatusAssigned, Analysts: []string{analyst1}},
			actor:  analyst(analyst1),
			want:   ErrConflict,
		},
		{
			name:   "analyst cannot certify own ticket",
			action: ActionAssignCertifier,
			ticket: &models.Ticket{Status: models.StatusAssigned, Analysts: []string{analyst1}},
			actor:  certActor(analyst1),
			want:   ErrConflict,
		},
		{
			name:   "second certifier",
			action: ActionAssignCertifier,
			ticket: &models.Ticket{Status: models.StatusAssigned, CertifierAddress: certifier},
			actor:  certActor("0xce48"),
			want:   ErrConflict,
		},
		{
			name:   "certifier on open ticket",
			action: ActionAssignCertifier,
			ticket: &models.Ticket{Status: models.StatusOpen},
			actor:  certActor(certifier),
			want:   ErrInvalidState,
		},
		{
			name:   "validate without certifier",
			action: ActionValidate,
			ticket: &models.Ticket{Status: models.StatusAnalyzed},
			actor:  certActor(certifier),
			input:  Input{Approved: true},
			want:   ErrForbidden,
		},
		{
			name:   "validate by other certifier",
			action: ActionValidate,
			ticket: &models.Ticket{Status: models.StatusAnalyzed, CertifierAddress: certifier},
			actor:  certActor("0xce48"),
			want:   ErrForbidden,
		},
		{
			name:   "complete by analyst",
			action: ActionComplete,
			ticket: &models.Ticket{Status: models.StatusValidated, ClientAddress: client, Analysts: []string{analyst1}},
			actor:  analyst(analyst1),
			want:   ErrForbidden,
		},
		{
			name:   "complete twice",
			action: ActionComplete,
			ticket: &models.Ticket{Status: models.StatusCompleted, ClientAddress: client},
			actor:  Actor{Address: client, Role: models.RoleClient},
			want:   ErrInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Apply(tt.action, tt.ticket, tt.actor, tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var te *TransitionError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tt.action, te.Action)
		})
	}
}

func TestAvailable(t *testing.T) {
	m := newMachine(t, 3)
	ticket := &models.Ticket{
		Status:        models.StatusAssigned,
		ClientAddress: client,
		Analysts:      []string{analyst1},
	}

	assert.Equal(t, []Action{ActionSubmitReport}, m.Available(ticket, analyst(analyst1)))
	assert.Equal(t, []Action{ActionAssignAnalyst}, m.Available(ticket, analyst(analyst2)))
	assert.Equal(t, []Action{ActionAssignCertifier}, m.Available(ticket, certActor(certifier)))
	assert.Empty(t, m.Available(ticket, Actor{Address: client, Role: models.RoleClient}))
}

func TestNewMachineWith_RejectsBadExpression(t *testing.T) {
	_, err := NewMachineWith([]Transition{{
		Action: "broken",
		From:   []models.TicketStatus{models.StatusOpen},
		Target: `"open"`,
		Guards: []Guard{{Expr: `actor.role ==`, Err: ErrForbidden}},
	}}, 1)
	assert.Error(t, err)
}

func TestEvaluator_CachesPrograms(t *testing.T) {
	e, err := NewEvaluator()
	require.NoError(t, err)

	vars := map[string]interface{}{"ticket": map[string]interface{}{}, "actor": map[string]interface{}{"n": int64(2)}, "input": map[string]interface{}{}}
	for i := 0; i < 3; i++ {
		ok, err := e.EvalBool(`actor.n > 1`, vars)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 1, e.CacheSize())

	_, err = e.EvalBool(`"not bool"`, vars)
	assert.Error(t, err)
}
