package notify

import (
	"fmt"
	"strings"

	"github.com/iliyamo/movieflex/internal/model"
	"github.com/iliyamo/movieflex/internal/ticket"
)

// TicketMessage builds the approval email carrying the QR ticket.
func TicketMessage(to string, b *model.Booking, movieTitle string, png []byte) Message {
	var body strings.Builder
	fmt.Fprintf(&body, "Your booking has been approved.\n\n")
	fmt.Fprintf(&body, "Booking ID: %d\n", b.ID)
	fmt.Fprintf(&body, "Movie: %s\n", movieTitle)
	fmt.Fprintf(&body, "Showtime: %s\n", b.Showtime)
	fmt.Fprintf(&body, "Seats: %s\n\n", strings.Join(b.Seats, ", "))
	fmt.Fprintf(&body, "Show the attached QR code at the entrance.\n")
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Your Movie Ticket - Booking #%d", b.ID),
		Body:    body.String(),
		Attachments: []Attachment{{
			Name:        ticket.FileName(b.ID),
			ContentType: "image/png",
			Data:        png,
		}},
	}
}
