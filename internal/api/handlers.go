package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"carrental/internal/domain"
	"carrental/internal/models"
	"carrental/internal/service"
)

type createRentBody struct {
	service.RentRequest
	RenterID int64 `json:"renter_id"`
}

type guestRentBody struct {
	service.RentRequest
	Guest models.GuestInfo `json:"guest"`
}

type rejectBody struct {
	Reason string `json:"reason"`
}

type issueBody struct {
	ActualStart *time.Time `json:"actual_start"`
}

type returnBody struct {
	ActualEnd      *time.Time `json:"actual_end"`
	EndingOdometer int64      `json:"ending_odometer"`
	ReturnDepotID  *int64     `json:"return_depot_id"`
}

type joinBody struct {
	UserID int64 `json:"user_id"`
}

func (s *HTTPServer) handleAvailableCars(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseInterval(r)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	cars, err := s.svc.Availability.ListAvailableCars(r.Context(), start, end)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	if cars == nil {
		cars = []models.CarSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cars": cars})
}

func (s *HTTPServer) handleCarAvailability(w http.ResponseWriter, r *http.Request) {
	carID, err := pathID(r)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	start, end, err := parseInterval(r)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	available, err := s.svc.Availability.CheckAvailability(r.Context(), carID, start, end)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"car_id": carID, "available": available})
}

func (s *HTTPServer) handleListWaitlist(w http.ResponseWriter, r *http.Request) {
	carID, err := pathID(r)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	var statuses []models.WaitingStatus
	for _, st := range splitCSV(r.URL.Query().Get("status")) {
		statuses = append(statuses, models.WaitingStatus(st))
	}
	entries, err := s.svc.Waitlist.List(r.Context(), actorFrom(r.Context()), carID, statuses...)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	if entries == nil {
		entries = []*models.WaitingListEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *HTTPServer) handleJoinWaitlist(w http.ResponseWriter, r *http.Request) {
	carID, err := pathID(r)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	var body joinBody
	if err := decodeBody(w, r, &body); err != nil {
		writeDomainError(w, s.logger, err)
		return
	}

	actor := actorFrom(r.Context())
	userID, err := onBehalfOf(actor, body.UserID)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}

	entry, err := s.svc.Waitlist.Join(r.Context(), carID, userID)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	if entry == nil {
		writeJSON(w, http.StatusOK, map[string]any{"queued": false})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"queued": true, "entry": entry})
}

func (s *HTTPServer) handleLeaveWaitlist(w http.ResponseWriter, r *http.Request) {
	entryID, err := pathID(r)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	entry, err := s.svc.Waitlist.Leave(r.Context(), actorFrom(r.Context()), entryID)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *HTTPServer) handleCreateRent(w http.ResponseWriter, r *http.Request) {
	var body createRentBody
	if err := decodeBody(w, r, &body); err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	renterID, err := onBehalfOf(actorFrom(r.Context()), body.RenterID)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}

	res, err := s.svc.Rental.CreateRent(r.Context(), renterID, body.RentRequest)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *HTTPServer) handleCreateGuestRent(w http.ResponseWriter, r *http.Request) {
	var body guestRentBody
	if err := decodeBody(w, r, &body); err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	res, err := s.svc.Rental.CreateGuestRent(r.Context(), body.Guest, body.RentRequest)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *HTTPServer) handleListRents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var userID *int64
	if raw := strings.TrimSpace(q.Get("user_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeDomainError(w, s.logger, domain.Validationf("invalid user_id %q", raw))
			return
		}
		userID = &id
	}

	rents, err := s.svc.Rental.ListRents(r.Context(), actorFrom(r.Context()), strings.TrimSpace(q.Get("filter")), userID)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	if rents == nil {
		rents = []*models.Rent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rents": rents})
}

func (s *HTTPServer) handleGetRent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	rent, err := s.svc.Rental.GetRent(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rent)
}

func (s *HTTPServer) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	rent, err := s.svc.Workflow.Approve(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rent)
}

func (s *HTTPServer) handleReject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	var body rejectBody
	if err := decodeBody(w, r, &body); err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	if err := s.svc.Workflow.Reject(r.Context(), actorFrom(r.Context()), id, strings.TrimSpace(body.Reason)); err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleIssue(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	var body issueBody
	if err := decodeBody(w, r, &body); err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	var start time.Time
	if body.ActualStart != nil {
		start = body.ActualStart.UTC()
	}
	rent, err := s.svc.Workflow.Issue(r.Context(), actorFrom(r.Context()), id, start)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rent)
}

func (s *HTTPServer) handleReturn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	var body returnBody
	if err := decodeBody(w, r, &body); err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	req := service.ReturnRequest{
		EndingOdometer: body.EndingOdometer,
		ReturnDepotID:  body.ReturnDepotID,
	}
	if body.ActualEnd != nil {
		req.ActualEnd = body.ActualEnd.UTC()
	}
	rent, err := s.svc.Workflow.Return(r.Context(), actorFrom(r.Context()), id, req)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rent)
}

// onBehalfOf resolves the user an operation targets. Only staff may act for someone else.
func onBehalfOf(actor models.Actor, requested int64) (int64, error) {
	if requested == 0 || requested == actor.UserID {
		if actor.UserID == 0 {
			return 0, domain.Validationf("caller has no user identity")
		}
		return actor.UserID, nil
	}
	if !actor.IsStaff() {
		return 0, fmt.Errorf("%w: acting for user %d", domain.ErrUnauthorized, requested)
	}
	return requested, nil
}

func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Validationf("invalid id %q", raw)
	}
	return id, nil
}

// parseInterval reads start and end as RFC 3339 and normalizes them to UTC.
func parseInterval(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	start, err := parseTime(q.Get("start"), "start")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseTime(q.Get("end"), "end")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func parseTime(raw, name string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, domain.Validationf("%s is required", name)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, domain.Validationf("invalid %s %q; expected RFC 3339", name, raw)
	}
	return t.UTC(), nil
}

// decodeBody decodes a JSON body. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return domain.Validationf("invalid JSON body: %v", err)
	}
	return nil
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
