// Package policy holds the ticket workflow: which action may move a ticket
// from which status, and who may take it.
package policy

import (
	"errors"
	"fmt"

	"github.com/DEEPML1818/dsoc/common/models"
)

// Action is a workflow step taken on a ticket
type Action string

const (
	ActionAssignAnalyst   Action = "assign_analyst"
	ActionSubmitReport    Action = "submit_report"
	ActionAssignCertifier Action = "assign_certifier"
	ActionValidate        Action = "validate"
	ActionComplete        Action = "complete"
)

var (
	// ErrUnknownAction is returned for actions with no transition
	ErrUnknownAction = errors.New("unknown action")

	// ErrInvalidState is returned when the ticket is not in a source status of the action
	ErrInvalidState = errors.New("invalid ticket state")

	// ErrForbidden is returned when the actor may not take the action
	ErrForbidden = errors.New("action not permitted")

	// ErrConflict is returned when the action clashes with the ticket's assignments
	ErrConflict = errors.New("action conflicts with ticket")
)

// TransitionError explains why an action was refused
type TransitionError struct {
	Action Action
	From   models.TicketStatus
	Reason string
	Err    error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s from %s: %s", e.Action, e.From, e.Reason)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// Actor is the wallet taking an action
type Actor struct {
	Address string
	Role    models.Role
}

// Input carries action parameters referenced by guards
type Input struct {
	Report   string
	Approved bool
}

// Guard is a CEL condition that must hold; Err classifies its failure
type Guard struct {
	Expr    string
	Err     error
	Message string
}

// Transition describes one action of the workflow
type Transition struct {
	Action Action
	From   []models.TicketStatus
	// Target is a CEL expression yielding the next status
	Target string
	Guards []Guard
}

// DefaultTransitions is the dSOC ticket workflow
var DefaultTransitions = []Transition{
	{
		Action: ActionAssignAnalyst,
		From:   []models.TicketStatus{models.StatusOpen, models.StatusAssigned},
		Target: `"assigned"`,
		Guards: []Guard{
			{`actor.role == "analyst"`, ErrForbidden, "only analysts can be assigned"},
			{`actor.address != ticket.client`, ErrForbidden, "the client cannot analyze their own ticket"},
			{`actor.address != ticket.certifier`, ErrConflict, "the certifier cannot also analyze"},
			{`!(actor.address in ticket.analysts)`, ErrConflict, "analyst already assigned"},
			{`size(ticket.analysts) < ticket.max_analysts`, ErrConflict, "ticket has the maximum number of analysts"},
		},
	},
	{
		Action: ActionSubmitReport,
		From:   []models.TicketStatus{models.StatusAssigned},
		Target: `"analyzed"`,
		Guards: []Guard{
			{`actor.address in ticket.analysts`, ErrForbidden, "only an assigned analyst can submit the report"},
			{`size(input.report) > 0`, ErrConflict, "report is empty"},
		},
	},
	{
		Action: ActionAssignCertifier,
		From:   []models.TicketStatus{models.StatusAssigned, models.StatusAnalyzed},
		Target: `ticket.status`,
		Guards: []Guard{
			{`actor.role == "certifier"`, ErrForbidden, "only certifiers can be assigned"},
			{`actor.address != ticket.client`, ErrForbidden, "the client cannot certify their own ticket"},
			{`!(actor.address in ticket.analysts)`, ErrConflict, "an assigned analyst cannot certify"},
			{`ticket.certifier == ""`, ErrConflict, "ticket already has a certifier"},
		},
	},
	{
		Action: ActionValidate,
		From:   []models.TicketStatus{models.StatusAnalyzed},
		Target: `input.approved ? "validated" : "assigned"`,
		Guards: []Guard{
			{`ticket.certifier != "" && actor.address == ticket.certifier`, ErrForbidden, "only the ticket certifier can validate"},
		},
	},
	{
		Action: ActionComplete,
		From:   []models.TicketStatus{models.StatusValidated},
		Target: `"completed"`,
		Guards: []Guard{
			{`actor.address == ticket.client || actor.address == ticket.certifier`, ErrForbidden, "only the client or certifier can complete the ticket"},
		},
	},
}

// Machine applies transitions to tickets
type Machine struct {
	eval        *Evaluator
	transitions map[Action]Transition
	order       []Action
	maxAnalysts int
}

// NewMachine builds a machine over DefaultTransitions
func NewMachine(maxAnalysts int) (*Machine, error) {
	return NewMachineWith(DefaultTransitions, maxAnalysts)
}

// NewMachineWith builds a machine over the given transitions, compiling every
// expression up front so a bad table fails at startup.
func NewMachineWith(transitions []Transition, maxAnalysts int) (*Machine, error) {
	eval, err := NewEvaluator()
	if err != nil {
		return nil, err
	}

	m := &Machine{
		eval:        eval,
		transitions: make(map[Action]Transition, len(transitions)),
		maxAnalysts: maxAnalysts,
	}

	for _, t := range transitions {
		if _, err := eval.program(t.Target); err != nil {
			return nil, fmt.Errorf("transition %s target: %w", t.Action, err)
		}
		for _, g := range t.Guards {
			if _, err := eval.program(g.Expr); err != nil {
				return nil, fmt.Errorf("transition %s guard %q: %w", t.Action, g.Expr, err)
			}
		}
		m.transitions[t.Action] = t
		m.order = append(m.order, t.Action)
	}

	return m, nil
}

// Apply checks action against ticket and returns the status the ticket moves to
func (m *Machine) Apply(action Action, ticket *models.Ticket, actor Actor, input Input) (models.TicketStatus, error) {
	t, ok := m.transitions[action]
	if !ok {
		return "", &TransitionError{Action: action, From: ticket.Status, Reason: "no such action", Err: ErrUnknownAction}
	}

	if !containsStatus(t.From, ticket.Status) {
		return "", &TransitionError{
			Action: action,
			From:   ticket.Status,
			Reason: fmt.Sprintf("ticket must be %v", t.From),
			Err:    ErrInvalidState,
		}
	}

	vars := m.activation(ticket, actor, input)

	for _, g := range t.Guards {
		ok, err := m.eval.EvalBool(g.Expr, vars)
		if err != nil {
			return "", fmt.Errorf("evaluate guard for %s: %w", action, err)
		}
		if !ok {
			return "", &TransitionError{Action: action, From: ticket.Status, Reason: g.Message, Err: g.Err}
		}
	}

	target, err := m.eval.EvalString(t.Target, vars)
	if err != nil {
		return "", fmt.Errorf("evaluate target for %s: %w", action, err)
	}

	next, err := models.ParseTicketStatus(target)
	if err != nil {
		return "", fmt.Errorf("transition %s: %w", action, err)
	}
	return next, nil
}

// MaxAnalysts is the number of analysts a ticket may have
func (m *Machine) MaxAnalysts() int { return m.maxAnalysts }

// Available lists the actions actor could take on ticket now. Guards that
// depend on input are evaluated with an approving, non-empty input.
func (m *Machine) Available(ticket *models.Ticket, actor Actor) []Action {
	var out []Action
	probe := Input{Report: "-", Approved: true}
	for _, action := range m.order {
		if _, err := m.Apply(action, ticket, actor, probe); err == nil {
			out = append(out, action)
		}
	}
	return out
}

func (m *Machine) activation(ticket *models.Ticket, actor Actor, input Input) map[string]interface{} {
	analysts := make([]string, 0, len(ticket.Analysts))
	for _, a := range ticket.Analysts {
		analysts = append(analysts, models.NormalizeAddress(a))
	}

	return map[string]interface{}{
		"ticket": map[string]interface{}{
			"status":       string(ticket.Status),
			"client":       models.NormalizeAddress(ticket.ClientAddress),
			"certifier":    models.NormalizeAddress(ticket.CertifierAddress),
			"analysts":     analysts,
			"max_analysts": int64(m.maxAnalysts),
		},
		"actor": map[string]interface{}{
			"address": models.NormalizeAddress(actor.Address),
			"role":    string(actor.Role),
		},
		"input": map[string]interface{}{
			"report":   input.Report,
			"approved": input.Approved,
		},
	}
}

func containsStatus(list []models.TicketStatus, s models.TicketStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
