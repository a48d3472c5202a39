package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/movieflex/internal/config"
	"github.com/iliyamo/movieflex/internal/handler"
	"github.com/iliyamo/movieflex/internal/middleware"
	"github.com/iliyamo/movieflex/internal/model"
	"github.com/iliyamo/movieflex/internal/payment"
	"github.com/iliyamo/movieflex/internal/queue"
	"github.com/iliyamo/movieflex/internal/repository"
	"github.com/iliyamo/movieflex/internal/service"
	"github.com/iliyamo/movieflex/internal/utils"
)

const testSecret = "router-test-secret"

func passthrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

type api struct {
	e       *echo.Echo
	users   *repository.MemoryUsers
	gateway *payment.MockGateway
	local   *queue.LocalPublisher

	mu        sync.Mutex
	delivered []queue.BookingApprovedEvent
}

func newAPI(t *testing.T) *api {
	t.Helper()
	return newLimitedAPI(t, passthrough)
}

func newLimitedAPI(t *testing.T, limit echo.MiddlewareFunc) *api {
	t.Helper()
	log := zap.NewNop()
	cfg := config.Config{JWTSecret: testSecret, AccessTTLMin: 15, RefreshTTLDays: 7, BcryptCost: 4}

	a := &api{e: echo.New(), users: repository.NewMemoryUsers()}
	a.local = &queue.LocalPublisher{
		Handler: queue.HandlerFunc(func(ctx context.Context, ev queue.BookingApprovedEvent) error {
			a.mu.Lock()
			a.delivered = append(a.delivered, ev)
			a.mu.Unlock()
			return nil
		}),
		Log: log,
	}

	catalog := repository.NewMemoryCatalog()
	bookings := service.NewBookingService(service.BookingDeps{
		Catalog:  catalog,
		Bookings: repository.NewMemoryBookings(),
		Users:    a.users,
		Events:   a.local,
		Config:   config.BookingConfig{ReleasePolicy: config.ReleaseSeats},
		Log:      log,
	})
	pricing, err := payment.NewPricing("12.50", "usd")
	require.NoError(t, err)
	a.gateway = payment.NewMockGateway(pricing, "whsec_router")
	checkout := service.NewCheckoutService(bookings, a.gateway, "http://example.test", log)

	movies := handler.NewMovieHandler(service.NewCatalogService(catalog, nil, log))
	bh := handler.NewBookingHandler(bookings, checkout)

	RegisterRoutes(a.e, map[string]handler.Pinger{})
	RegisterAuth(a.e, handler.NewAuthHandler(cfg, a.users, repository.NewMemoryTokens()), testSecret, limit)
	RegisterPublic(a.e, movies, limit, passthrough)
	RegisterUser(a.e, bh, testSecret, limit)
	RegisterAdmin(a.e, movies, bh, testSecret, limit)
	RegisterWebhooks(a.e, bh)
	return a
}

func (a *api) token(t *testing.T, username string, staff bool) string {
	t.Helper()
	u, err := a.users.Create(context.Background(), username, username+"@example.com", "secret123", staff, 4)
	require.NoError(t, err)
	tok, err := utils.NewAccessToken(testSecret, *u, 15)
	require.NoError(t, err)
	return tok.Token
}

func (a *api) do(method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const inception = `{"title":"Inception","genre":"Sci-Fi","showtimes":["13:00","17:00"]}`

// keyRecorder stands in for the token bucket and records which bucket
// each request would draw from.
type keyRecorder struct {
	cfg  config.RateLimitConfig
	mu   sync.Mutex
	keys []string
}

func (r *keyRecorder) limit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		r.mu.Lock()
		r.keys = append(r.keys, middleware.RateKey(r.cfg, c))
		r.mu.Unlock()
		return next(c)
	}
}

func TestRateLimitKeysSignedInCallersByUser(t *testing.T) {
	rec := &keyRecorder{cfg: config.RateLimitConfig{Prefix: "mf:rl", KeyStrategy: config.RateKeyCallerRoute}}
	a := newLimitedAPI(t, rec.limit)
	ctx := context.Background()
	alice, bob, root := a.token(t, "alice", false), a.token(t, "bob", false), a.token(t, "root", true)
	id := func(name string) uint64 {
		u, err := a.users.GetByLogin(ctx, name)
		require.NoError(t, err)
		return u.ID
	}

	// httptest requests all come from 192.0.2.1.
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/v1/bookings", "", alice).Code)
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/v1/bookings", "", bob).Code)
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/v1/admin/bookings/pending", "", root).Code)
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/v1/me", "", alice).Code)
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/v1/movies", "", "").Code)

	assert.Equal(t, []string{
		fmt.Sprintf("mf:rl:user:%d:route:GET /v1/bookings", id("alice")),
		fmt.Sprintf("mf:rl:user:%d:route:GET /v1/bookings", id("bob")),
		fmt.Sprintf("mf:rl:user:%d:route:GET /v1/admin/bookings/pending", id("root")),
		fmt.Sprintf("mf:rl:user:%d:route:GET /v1/me", id("alice")),
		"mf:rl:ip:192.0.2.1:route:GET /v1/movies",
	}, rec.keys)

	// Rejected before the limiter, so no bucket is touched.
	require.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/v1/bookings", "", "").Code)
	assert.Len(t, rec.keys, 5)
}

func TestHealthRoutes(t *testing.T) {
	a := newAPI(t)
	rec := a.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = a.do(http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRoutes(t *testing.T) {
	a := newAPI(t)

	rec := a.do(http.MethodPost, "/v1/auth/register",
		`{"username":"alice","email":"Alice@Example.com","password":"pw123456","confirm_password":"pw123456"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "alice@example.com", body["user"].(map[string]any)["email"])
	assert.Equal(t, model.RoleUser, body["user"].(map[string]any)["role"])

	rec = a.do(http.MethodPost, "/v1/auth/register",
		`{"username":"alice","email":"other@example.com","password":"pw","confirm_password":"pw"}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(http.MethodPost, "/v1/auth/register",
		`{"username":"bob","email":"bob@example.com","password":"pw1","confirm_password":"pw2"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, "/v1/auth/login", `{"login":"alice","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodPost, "/v1/auth/login", `{"login":"alice@example.com","password":"pw123456"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	access := body["access"].(map[string]any)["token"].(string)
	refresh := body["refresh"].(map[string]any)["token"].(string)

	rec = a.do(http.MethodGet, "/v1/me", "", access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decode(t, rec)["username"])

	rec = a.do(http.MethodPost, "/v1/auth/refresh", fmt.Sprintf(`{"refresh_token":%q}`, refresh), "")
	require.Equal(t, http.StatusOK, rec.Code)
	// The old refresh token was rotated out.
	rec = a.do(http.MethodPost, "/v1/auth/refresh", fmt.Sprintf(`{"refresh_token":%q}`, refresh), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodPost, "/v1/logout", "", access)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = a.do(http.MethodPost, "/v1/logout", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCatalogRoutes(t *testing.T) {
	a := newAPI(t)
	user := a.token(t, "alice", false)
	admin := a.token(t, "root", true)

	rec := a.do(http.MethodPost, "/v1/admin/movies", inception, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = a.do(http.MethodPost, "/v1/admin/movies", inception, user)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = a.do(http.MethodPost, "/v1/admin/movies", `{"title":"","showtimes":"13:00"}`, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, "/v1/admin/movies", inception, admin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := uint64(decode(t, rec)["movie_id"].(float64))

	rec = a.do(http.MethodGet, "/v1/movies?q=incep", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)
	assert.Len(t, list["items"], 1)
	assert.Equal(t, []any{"Sci-Fi"}, list["genres"])

	rec = a.do(http.MethodGet, fmt.Sprintf("/v1/movies/%d", id), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	avail := decode(t, rec)["available_seats"].(map[string]any)
	assert.Equal(t, float64(model.DefaultCapacity), avail["17:00"])

	rec = a.do(http.MethodPatch, fmt.Sprintf("/v1/admin/movies/%d", id), `{"genre":"Thriller"}`, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Thriller", decode(t, rec)["genre"])

	// An explicit null leaves the showtimes as they are.
	rec = a.do(http.MethodPatch, fmt.Sprintf("/v1/admin/movies/%d", id), `{"title":"Inception (IMAX)","showtimes":null}`, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	patched := decode(t, rec)
	assert.Equal(t, "Inception (IMAX)", patched["title"])
	assert.Equal(t, []any{"13:00", "17:00"}, patched["showtimes"])

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/v1/movies/abc", "", "").Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/v1/movies/999", "", "").Code)

	rec = a.do(http.MethodDelete, fmt.Sprintf("/v1/admin/movies/%d", id), "", admin)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, fmt.Sprintf("/v1/movies/%d", id), "", "").Code)
}

func TestBookingRoutes(t *testing.T) {
	a := newAPI(t)
	alice := a.token(t, "alice", false)
	bob := a.token(t, "bob", false)
	admin := a.token(t, "root", true)

	rec := a.do(http.MethodPost, "/v1/admin/movies", inception, admin)
	require.Equal(t, http.StatusCreated, rec.Code)
	movieID := uint64(decode(t, rec)["movie_id"].(float64))
	bookPath := fmt.Sprintf("/v1/movies/%d/bookings", movieID)

	rec = a.do(http.MethodPost, bookPath, `{"showtime":"17:00","seats":"a1, a2"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodPost, bookPath, `{"showtime":"17:00","seats":"a1, a2"}`, alice)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	id := uint64(created["booking_id"].(float64))
	assert.Equal(t, float64(2), created["seats_booked"])
	assert.Equal(t, "Pending", created["status"])
	assert.Equal(t, "Inception", created["movie_title"])

	rec = a.do(http.MethodPost, bookPath, `{"showtime":"17:00","seats":["A2","A3"]}`, bob)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, []any{"A2"}, decode(t, rec)["seats"])

	rec = a.do(http.MethodPost, bookPath, `{"showtime":"23:00","seats":["A9"]}`, bob)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, fmt.Sprintf("/v1/bookings/%d", id), "", bob).Code)

	rec = a.do(http.MethodPost, fmt.Sprintf("/v1/bookings/%d/checkout", id), "", alice)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	co := decode(t, rec)
	assert.Equal(t, "25.00", co["total"])
	session := co["session_id"].(string)

	// Approval needs a paid booking.
	rec = a.do(http.MethodPost, fmt.Sprintf("/v1/admin/bookings/%d/approve", id), "", admin)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(http.MethodGet, fmt.Sprintf("/v1/bookings/%d/payment/success?session_id=%s", id, session), "", alice)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Paid", decode(t, rec)["booking"].(map[string]any)["payment_status"])

	rec = a.do(http.MethodGet, "/v1/admin/bookings/pending", "", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["items"], 1)

	rec = a.do(http.MethodPost, fmt.Sprintf("/v1/admin/bookings/%d/approve", id), "", alice)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = a.do(http.MethodPost, fmt.Sprintf("/v1/admin/bookings/%d/approve", id), "", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Confirmed", decode(t, rec)["status"])

	a.local.Wait()
	a.mu.Lock()
	require.Len(t, a.delivered, 1)
	assert.Equal(t, "alice@example.com", a.delivered[0].Email)
	a.mu.Unlock()

	rec = a.do(http.MethodGet, fmt.Sprintf("/v1/bookings/%d/ticket", id), "", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), fmt.Sprintf("ticket_%d.png", id))

	rec = a.do(http.MethodGet, "/v1/bookings", "", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["items"], 1)
}

func TestPaymentCancelRoute(t *testing.T) {
	a := newAPI(t)
	alice := a.token(t, "alice", false)
	admin := a.token(t, "root", true)
	rec := a.do(http.MethodPost, "/v1/admin/movies", inception, admin)
	require.Equal(t, http.StatusCreated, rec.Code)
	movieID := uint64(decode(t, rec)["movie_id"].(float64))

	rec = a.do(http.MethodPost, fmt.Sprintf("/v1/movies/%d/bookings", movieID), `{"showtime":"13:00","seats":["B1"]}`, alice)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := uint64(decode(t, rec)["booking_id"].(float64))

	rec = a.do(http.MethodGet, fmt.Sprintf("/v1/bookings/%d/payment/cancel", id), "", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Cancelled", decode(t, rec)["booking"].(map[string]any)["payment_status"])

	// The seat is free again.
	rec = a.do(http.MethodPost, fmt.Sprintf("/v1/movies/%d/bookings", movieID), `{"showtime":"13:00","seats":["B1"]}`, alice)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestWebhookRoute(t *testing.T) {
	a := newAPI(t)
	alice := a.token(t, "alice", false)
	admin := a.token(t, "root", true)
	rec := a.do(http.MethodPost, "/v1/admin/movies", inception, admin)
	require.Equal(t, http.StatusCreated, rec.Code)
	movieID := uint64(decode(t, rec)["movie_id"].(float64))
	rec = a.do(http.MethodPost, fmt.Sprintf("/v1/movies/%d/bookings", movieID), `{"showtime":"13:00","seats":["C1"]}`, alice)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := uint64(decode(t, rec)["booking_id"].(float64))

	payload := fmt.Sprintf(`{"id":"evt_9","type":%q,"session_id":"cs_x","booking_id":"%d"}`, payment.EventCheckoutCompleted, id)
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", "nope")
	bad := httptest.NewRecorder()
	a.e.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", a.gateway.Sign([]byte(payload)))
	ok := httptest.NewRecorder()
	a.e.ServeHTTP(ok, req)
	require.Equal(t, http.StatusOK, ok.Code, ok.Body.String())
	assert.JSONEq(t, `{"received":true}`, ok.Body.String())

	rec = a.do(http.MethodGet, fmt.Sprintf("/v1/bookings/%d", id), "", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Paid", decode(t, rec)["payment_status"])
}
