package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/movieflex/internal/middleware"
	"github.com/iliyamo/movieflex/internal/model"
	"github.com/iliyamo/movieflex/internal/service"
)

// BookingHandler serves the booking lifecycle: creation, the owner's
// views, checkout redirects, ticket download and the admin decision.
type BookingHandler struct {
	Bookings *service.BookingService
	Checkout *service.CheckoutService
}

func NewBookingHandler(bookings *service.BookingService, checkout *service.CheckoutService) *BookingHandler {
	if bookings == nil || checkout == nil {
		panic("nil service passed to NewBookingHandler")
	}
	return &BookingHandler{Bookings: bookings, Checkout: checkout}
}

type createBookingReq struct {
	Showtime string     `json:"showtime"`
	Seats    stringList `json:"seats"`
}

// BookingView is a booking as returned to clients, with the movie title
// resolved and a short status label.
type BookingView struct {
	ID             uint64               `json:"booking_id"`
	UserID         uint64               `json:"user_id"`
	MovieID        uint64               `json:"movie_id"`
	MovieTitle     string               `json:"movie_title"`
	Showtime       string               `json:"showtime"`
	Seats          []string             `json:"seats"`
	SeatsBooked    int                  `json:"seats_booked"`
	PaymentStatus  model.PaymentStatus  `json:"payment_status"`
	ApprovalStatus model.ApprovalStatus `json:"approval_status"`
	Status         string               `json:"status"`
	CreatedAt      time.Time            `json:"created_at"`
}

func (h *BookingHandler) view(c echo.Context, b *model.Booking) BookingView {
	return BookingView{
		ID:             b.ID,
		UserID:         b.UserID,
		MovieID:        b.MovieID,
		MovieTitle:     h.Bookings.MovieTitle(c.Request().Context(), b.MovieID),
		Showtime:       b.Showtime,
		Seats:          b.Seats,
		SeatsBooked:    len(b.Seats),
		PaymentStatus:  b.PaymentStatus,
		ApprovalStatus: b.ApprovalStatus,
		Status:         b.StatusLabel(),
		CreatedAt:      b.CreatedAt,
	}
}

func (h *BookingHandler) views(c echo.Context, list []model.Booking) []BookingView {
	out := make([]BookingView, 0, len(list))
	for i := range list {
		out = append(out, h.view(c, &list[i]))
	}
	return out
}

// Create reserves seats for POST /movies/:id/bookings.  A clash with
// seats already booked answers 409 with the clashing seats.
func (h *BookingHandler) Create(c echo.Context) error {
	movieID, ok := parseID(c, "id")
	if !ok {
		return badID(c)
	}
	var req createBookingReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	b, err := h.Bookings.Create(c.Request().Context(), middleware.PrincipalFrom(c), movieID, req.Showtime, req.Seats)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, h.view(c, b))
}

// List returns the caller's bookings.
func (h *BookingHandler) List(c echo.Context) error {
	list, err := h.Bookings.ListByUser(c.Request().Context(), middleware.PrincipalFrom(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": h.views(c, list)})
}

func (h *BookingHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c)
	}
	b, err := h.Bookings.Get(c.Request().Context(), middleware.PrincipalFrom(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, h.view(c, b))
}

// StartCheckout opens a hosted checkout and returns the amount summary
// and the URL to redirect the customer to.
func (h *BookingHandler) StartCheckout(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c)
	}
	co, err := h.Checkout.Start(c.Request().Context(), middleware.PrincipalFrom(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"booking_id":   id,
		"session_id":   co.SessionID,
		"checkout_url": co.URL,
		"unit_price":   co.UnitPrice.StringFixed(2),
		"quantity":     co.Quantity,
		"total":        co.Total.StringFixed(2),
		"currency":     co.Currency,
	})
}

// PaymentSuccess is the provider's success redirect target.
func (h *BookingHandler) PaymentSuccess(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c)
	}
	b, err := h.Checkout.Complete(c.Request().Context(), middleware.PrincipalFrom(c), id, c.QueryParam("session_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "payment successful", "booking": h.view(c, b)})
}

// PaymentCancel is the provider's cancel redirect target.
func (h *BookingHandler) PaymentCancel(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c)
	}
	b, err := h.Checkout.Cancel(c.Request().Context(), middleware.PrincipalFrom(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "payment cancelled", "booking": h.view(c, b)})
}

// Ticket streams the QR ticket PNG as an attachment.
func (h *BookingHandler) Ticket(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c)
	}
	png, name, err := h.Bookings.TicketImage(c.Request().Context(), middleware.PrincipalFrom(c), id)
	if err != nil {
		return writeError(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename=\""+name+"\"")
	c.Response().Header().Set(echo.HeaderContentLength, strconv.Itoa(len(png)))
	return c.Blob(http.StatusOK, "image/png", png)
}

// Pending lists paid bookings waiting for a decision (admin).
func (h *BookingHandler) Pending(c echo.Context) error {
	list, err := h.Bookings.ListPendingApproval(c.Request().Context(), middleware.PrincipalFrom(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": h.views(c, list)})
}

func (h *BookingHandler) Approve(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c)
	}
	b, err := h.Bookings.Approve(c.Request().Context(), middleware.PrincipalFrom(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, h.view(c, b))
}

func (h *BookingHandler) Reject(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c)
	}
	b, err := h.Bookings.Reject(c.Request().Context(), middleware.PrincipalFrom(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, h.view(c, b))
}

// maxWebhookBody caps provider payloads.
const maxWebhookBody = 64 << 10

// Webhook receives checkout notifications from the payment provider.
// It is unauthenticated; the payload signature is verified instead.
func (h *BookingHandler) Webhook(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "read body failed"})
	}
	if err := h.Checkout.HandleWebhook(c.Request().Context(), payload, c.Request().Header.Get("Stripe-Signature")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}
