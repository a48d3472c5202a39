// Package handler exposes HTTP handlers for both authenticated and public endpoints.
// This file defines the movie catalog handlers.  Listing and detail
// routes are public; create, update and delete are mounted under the
// admin group.

package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/movieflex/internal/ledger"
	"github.com/iliyamo/movieflex/internal/middleware"
	"github.com/iliyamo/movieflex/internal/model"
	"github.com/iliyamo/movieflex/internal/service"
)

// MovieHandler serves the catalog.
type MovieHandler struct {
	Catalog *service.CatalogService
}

func NewMovieHandler(catalog *service.CatalogService) *MovieHandler {
	if catalog == nil {
		panic("nil catalog passed to NewMovieHandler")
	}
	return &MovieHandler{Catalog: catalog}
}

// stringList decodes either a JSON array of strings or a single comma
// separated string.  null leaves the list unset.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	if string(bytes.TrimSpace(b)) == "null" {
		*l = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*l = stringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

// PublicMovie is a catalog entry as shown to clients.  Booked seat codes
// are included so a seat map can be drawn.
type PublicMovie struct {
	ID           uint64              `json:"movie_id"`
	Title        string              `json:"title"`
	Genre        string              `json:"genre"`
	Duration     *int                `json:"duration,omitempty"`
	Poster       *string             `json:"poster,omitempty"`
	Showtimes    []string            `json:"showtimes"`
	Availability map[string]int      `json:"available_seats"`
	BookedSeats  map[string][]string `json:"booked_seats"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

func toPublicMovie(m *model.Movie) PublicMovie {
	booked := m.BookedSeats
	if booked == nil {
		booked = map[string][]string{}
	}
	return PublicMovie{
		ID:           m.ID,
		Title:        m.Title,
		Genre:        m.Genre,
		Duration:     m.Duration,
		Poster:       m.Poster,
		Showtimes:    m.Showtimes,
		Availability: ledger.Availability(m),
		BookedSeats:  booked,
		UpdatedAt:    m.UpdatedAt,
	}
}

// List returns movies filtered by ?q= (title substring) and ?genre=
// together with every known genre.
func (h *MovieHandler) List(c echo.Context) error {
	f := model.MovieFilter{
		Title: strings.TrimSpace(c.QueryParam("q")),
		Genre: strings.TrimSpace(c.QueryParam("genre")),
	}
	movies, genres, err := h.Catalog.List(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]PublicMovie, 0, len(movies))
	for i := range movies {
		out = append(out, toPublicMovie(&movies[i]))
	}
	if genres == nil {
		genres = []string{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out, "genres": genres})
}

// Get returns one movie with per-showtime availability.
func (h *MovieHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c)
	}
	m, err := h.Catalog.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toPublicMovie(m))
}

type movieReq struct {
	Title     string     `json:"title"`
	Genre     string     `json:"genre"`
	Duration  *int       `json:"duration"`
	Poster    *string    `json:"poster"`
	Showtimes stringList `json:"showtimes"`
}

func (r movieReq) input() model.MovieInput {
	return model.MovieInput{
		Title:     r.Title,
		Genre:     r.Genre,
		Duration:  r.Duration,
		Poster:    r.Poster,
		Showtimes: r.Showtimes,
	}
}

type moviePatchReq struct {
	Title     *string    `json:"title"`
	Genre     *string    `json:"genre"`
	Duration  *int       `json:"duration"`
	Poster    *string    `json:"poster"`
	Showtimes stringList `json:"showtimes"`
}

// Create adds a movie (admin).
func (h *MovieHandler) Create(c echo.Context) error {
	var req movieReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	m, err := h.Catalog.Create(c.Request().Context(), middleware.PrincipalFrom(c), req.input())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toPublicMovie(m))
}

// Update replaces a movie (admin).
func (h *MovieHandler) Update(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c)
	}
	var req movieReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	m, err := h.Catalog.Update(c.Request().Context(), middleware.PrincipalFrom(c), id, req.input())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toPublicMovie(m))
}

// Patch updates only the fields present in the body (admin).
func (h *MovieHandler) Patch(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c)
	}
	var req moviePatchReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	patch := model.MoviePatch{
		Title:     req.Title,
		Genre:     req.Genre,
		Duration:  req.Duration,
		Poster:    req.Poster,
		Showtimes: req.Showtimes,
	}
	m, err := h.Catalog.Patch(c.Request().Context(), middleware.PrincipalFrom(c), id, patch)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toPublicMovie(m))
}

// Delete removes a movie (admin).  Existing bookings keep their seats.
func (h *MovieHandler) Delete(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c)
	}
	if err := h.Catalog.Delete(c.Request().Context(), middleware.PrincipalFrom(c), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
