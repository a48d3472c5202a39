// Package ticket renders the QR code handed to a customer once their
// booking is approved.
package ticket

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/iliyamo/movieflex/internal/model"
)

// DefaultSize is the edge length of the generated PNG in pixels.
const DefaultSize = 256

// Payload is the text encoded in the QR code, e.g.
// "BookingID:12, Movie:Inception, Showtime:18:00, Seats:A1, A2".
func Payload(b *model.Booking, movieTitle string) string {
	return fmt.Sprintf("BookingID:%d, Movie:%s, Showtime:%s, Seats:%s",
		b.ID, movieTitle, b.Showtime, strings.Join(b.Seats, ", "))
}

// FileName is the attachment and download name for a booking's ticket.
func FileName(bookingID uint64) string {
	return fmt.Sprintf("ticket_%d.png", bookingID)
}

// PNG encodes the booking's payload as a QR code image.
func PNG(b *model.Booking, movieTitle string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(Payload(b, movieTitle), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode ticket %d: %w", b.ID, err)
	}
	return png, nil
}

// MovieTitle returns the title to print on a ticket, falling back to
// "Movie #<id>" when the movie no longer exists.
func MovieTitle(m *model.Movie, movieID uint64) string {
	if m != nil && m.Title != "" {
		return m.Title
	}
	return fmt.Sprintf("Movie #%d", movieID)
}
