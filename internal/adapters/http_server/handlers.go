package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"roomledger/internal/app"
	"roomledger/internal/domain"
)

type Handlers struct {
	Q       *app.QueryService
	Alloc   *app.Allocator
	Trans   *app.Transitions
	BookRPS int
}

type problem struct {
	Type        string  `json:"type"`
	Title       string  `json:"title"`
	Status      int     `json:"status"`
	Detail      string  `json:"detail,omitempty"`
	ConflictIDs []int64 `json:"conflict_ids,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Get("/v1/rooms", h.listRooms)
	s.mux.Get("/v1/availability", h.searchAvailability)
	s.mux.Get("/v1/reservations/{id}", h.getReservation)
	s.mux.Get("/v1/guests/{id}/reservations", h.listGuestReservations)

	anyRole := RequireRole(RoleGuest, RoleReceptionist, RoleAdmin)
	s.mux.With(anyRole, RateLimit(h.BookRPS)).Post("/v1/reservations", h.book)
	s.mux.With(anyRole).Post("/v1/reservations/{id}/transition", h.transition)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	writeProblemConflicts(w, status, title, detail, nil)
}

func writeProblemConflicts(w http.ResponseWriter, status int, title, detail string, conflicts []int64) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	p := problem{Type: "about:blank", Title: title, Status: status, Detail: detail, ConflictIDs: conflicts}
	if err := json.NewEncoder(w).Encode(p); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeDomainErr maps the core error taxonomy onto HTTP statuses.
func writeDomainErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRange):
		writeProblem(w, http.StatusBadRequest, "Invalid Range", "check-in must be today or later and before check-out")
	case errors.Is(err, domain.ErrRoomNotFound):
		writeProblem(w, http.StatusNotFound, "Room Not Found", "unknown room id")
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", "unknown reservation id")
	case errors.Is(err, domain.ErrStaleVersion):
		writeProblem(w, http.StatusConflict, "Stale Version", "reservation changed concurrently; re-read and retry")
	case errors.Is(err, domain.ErrTerminal):
		writeProblem(w, http.StatusConflict, "Terminal State", "checked-out reservations are immutable")
	default:
		if ue, ok := domain.IsUnavailable(err); ok {
			writeProblemConflicts(w, http.StatusConflict, "Room Unavailable",
				"the requested dates overlap an existing reservation", ue.ConflictIDs)
			return
		}
		if te, ok := domain.IsIllegalTransition(err); ok {
			writeProblem(w, http.StatusUnprocessableEntity, "Illegal Transition", te.Error())
			return
		}
		log.Error().Err(err).Msg("internal error")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write response body")
	}
}

// ---- wire DTOs ----

type roomDTO struct {
	ID          int64   `json:"id"`
	Type        string  `json:"type"`
	Name        *string `json:"name,omitempty"`
	Capacity    int     `json:"capacity"`
	NightlyRate float64 `json:"nightly_rate"`
	Available   bool    `json:"available"`
}

type reservationDTO struct {
	ID       int64  `json:"id"`
	RoomID   int64  `json:"room_id"`
	GuestID  int64  `json:"guest_id"`
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
	Status   string `json:"status"`
	Version  int64  `json:"version"`
}

func toRoomDTO(r domain.Room) roomDTO {
	return roomDTO{ID: r.ID, Type: r.Type, Name: r.Name, Capacity: r.Capacity, NightlyRate: r.NightlyRate, Available: r.Available}
}

func toReservationDTO(r domain.Reservation) reservationDTO {
	return reservationDTO{
		ID:       r.ID,
		RoomID:   r.RoomID,
		GuestID:  r.GuestID,
		CheckIn:  r.Range.CheckIn.Format(domain.DateFormat),
		CheckOut: r.Range.CheckOut.Format(domain.DateFormat),
		Status:   string(r.Status),
		Version:  r.Version,
	}
}

// ---- handlers ----

func (h *Handlers) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.Q.ListRooms(r.Context())
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	out := make([]roomDTO, 0, len(rooms))
	for _, rm := range rooms {
		out = append(out, toRoomDTO(rm))
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (h *Handlers) searchAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := domain.ParseDateRange(q.Get("check_in"), q.Get("check_out"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Range", "check_in and check_out must be YYYY-MM-DD with check_in < check_out")
		return
	}
	rooms, err := h.Q.SearchAvailability(r.Context(), rng, q.Get("type"))
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	out := make([]roomDTO, 0, len(rooms))
	for _, rm := range rooms {
		out = append(out, toRoomDTO(rm))
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (h *Handlers) book(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID   int64  `json:"room_id"`
		GuestID  int64  `json:"guest_id"`
		CheckIn  string `json:"check_in"`
		CheckOut string `json:"check_out"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "malformed JSON")
		return
	}
	rng, err := domain.ParseDateRange(req.CheckIn, req.CheckOut)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	res, err := h.Alloc.Book(r.Context(), req.RoomID, rng, req.GuestID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	h.Q.InvalidateGuest(r.Context(), res.GuestID)
	writeJSON(w, r, http.StatusCreated, toReservationDTO(res))
}

func (h *Handlers) transition(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return
	}
	var req struct {
		Status          string `json:"status"`
		ExpectedVersion int64  `json:"expected_version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "malformed JSON")
		return
	}
	target, ok := domain.ParseStatus(req.Status)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid Status", "unknown target status")
		return
	}
	// front-desk operations stay with staff
	if target == domain.StatusCheckedIn || target == domain.StatusCheckedOut {
		role := Role(r.Header.Get("X-Role"))
		if role != RoleReceptionist && role != RoleAdmin {
			writeProblem(w, http.StatusForbidden, "Forbidden", "check-in/check-out requires staff role")
			return
		}
	}
	res, err := h.Trans.Apply(r.Context(), id, target, req.ExpectedVersion)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	h.Q.InvalidateGuest(r.Context(), res.GuestID)
	writeJSON(w, r, http.StatusOK, toReservationDTO(res))
}

func (h *Handlers) getReservation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return
	}
	res, err := h.Q.GetReservation(r.Context(), id)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toReservationDTO(res))
}

func (h *Handlers) listGuestReservations(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return
	}
	rs, err := h.Q.ListReservationsForGuest(r.Context(), id)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	out := make([]reservationDTO, 0, len(rs))
	for _, res := range rs {
		out = append(out, toReservationDTO(res))
	}
	writeJSON(w, r, http.StatusOK, out)
}
