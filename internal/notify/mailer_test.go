package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/movieflex/internal/config"
	"github.com/iliyamo/movieflex/internal/model"
)

func TestTicketMessage(t *testing.T) {
	b := &model.Booking{ID: 7, Showtime: "18:00", Seats: []string{"A1", "A2"}}
	msg := TicketMessage("alice@example.com", b, "Inception", []byte("png"))

	assert.Equal(t, "Your Movie Ticket - Booking #7", msg.Subject)
	assert.Contains(t, msg.Body, "Seats: A1, A2")
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "ticket_7.png", msg.Attachments[0].Name)
	assert.Equal(t, "image/png", msg.Attachments[0].ContentType)
}

func TestNewSelectsLogMailerWithoutHost(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := New(config.MailConfig{}, zap.New(core))
	require.IsType(t, LogMailer{}, m)

	require.NoError(t, m.Send(context.Background(), Message{To: "a@b.c", Subject: "hi"}))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "a@b.c", logs.All()[0].ContextMap()["to"])

	assert.IsType(t, &SMTPMailer{}, New(config.MailConfig{Host: "smtp.example.com", Port: 25}, zap.NewNop()))
}
