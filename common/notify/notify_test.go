package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DEEPML1818/dsoc/common/config"
	"github.com/DEEPML1818/dsoc/common/logger"
	"github.com/DEEPML1818/dsoc/common/models"
)

func TestNew_UnconfiguredIsNoop(t *testing.T) {
	n := New(config.MailConfig{}, logger.Discard())
	_, ok := n.(*Noop)
	require.True(t, ok)
	assert.NoError(t, n.Send(context.Background(), Email{To: "a@example.com"}))

	n = New(config.MailConfig{APIKey: "key", FromEmail: "soc@example.com"}, logger.Discard())
	_, ok = n.(*MailerSend)
	assert.True(t, ok)
}

func TestTicketUpdate(t *testing.T) {
	e := &models.TicketEvent{Type: models.EventTicketValidated, TicketID: 9, Status: models.StatusValidated, TxHash: "0xabc"}

	email, ok := TicketUpdate("client@example.com", e, "Data leak")
	require.True(t, ok)
	assert.Equal(t, "client@example.com", email.To)
	assert.Equal(t, "[dSOC] Ticket #9 validated", email.Subject)
	assert.Contains(t, email.Text, "Data leak")
	assert.Contains(t, email.Text, "0xabc")

	_, ok = TicketUpdate("x", &models.TicketEvent{Type: models.EventAnalystAssigned}, "t")
	assert.False(t, ok)
}
