package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"remindr/internal/export"
	"remindr/internal/models"
	"remindr/internal/service"
	"remindr/shared/reminders"
)

// reminderRequest accepts both the current field names and the legacy ones
// (name, date, email, reminderDate, frequency).
type reminderRequest struct {
	Title          *string         `json:"title"`
	Name           *string         `json:"name"`
	Description    *string         `json:"description"`
	EventAt        *string         `json:"eventAt"`
	Date           *string         `json:"date"`
	NotifyEmail    *string         `json:"notifyEmail"`
	Email          *string         `json:"email"`
	NextOccurrence *string         `json:"nextOccurrence"`
	ReminderDate   *string         `json:"reminderDate"`
	Rules          json.RawMessage `json:"rules"`
	Frequency      json.RawMessage `json:"frequency"`
}

func firstSet(values ...*string) *string {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func parseInstantField(name string, v *string) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	t, err := models.ParseInstant(*v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &t, nil
}

// parseRuleList reads a rule list given as a JSON array or a comma-separated
// string. It returns nil when the field was absent.
func parseRuleList(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		if list == nil {
			list = []string{}
		}
		return list, nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("%w: rules must be a list of strings", models.ErrValidation)
	}
	return strings.Split(single, ","), nil
}

func (req *reminderRequest) rules() ([]string, error) {
	rules, err := parseRuleList(req.Rules)
	if err != nil || rules != nil {
		return rules, err
	}
	return parseRuleList(req.Frequency)
}

func (req *reminderRequest) updateInput() (service.UpdateReminderInput, error) {
	var in service.UpdateReminderInput
	var err error

	in.Title = firstSet(req.Title, req.Name)
	in.Description = req.Description
	in.NotifyEmail = firstSet(req.NotifyEmail, req.Email)
	if in.EventAt, err = parseInstantField("eventAt", firstSet(req.EventAt, req.Date)); err != nil {
		return in, err
	}
	if in.NextOccurrence, err = parseInstantField("nextOccurrence", firstSet(req.NextOccurrence, req.ReminderDate)); err != nil {
		return in, err
	}
	if in.Rules, err = req.rules(); err != nil {
		return in, err
	}
	return in, nil
}

func (req *reminderRequest) createInput() (service.CreateReminderInput, error) {
	upd, err := req.updateInput()
	if err != nil {
		return service.CreateReminderInput{}, err
	}
	if upd.EventAt == nil {
		return service.CreateReminderInput{}, fmt.Errorf("%w: event date is required", models.ErrValidation)
	}
	if upd.NextOccurrence == nil {
		return service.CreateReminderInput{}, fmt.Errorf("%w: reminder date is required", models.ErrValidation)
	}

	deref := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	return service.CreateReminderInput{
		Title:          deref(upd.Title),
		Description:    deref(upd.Description),
		EventAt:        *upd.EventAt,
		NotifyEmail:    deref(upd.NotifyEmail),
		NextOccurrence: *upd.NextOccurrence,
		Rules:          upd.Rules,
	}, nil
}

func (s *HTTPServer) handleListReminders(w http.ResponseWriter, r *http.Request) {
	pg, err := pageFromQuery(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	rs, err := s.Reminders.List(r.Context(), identity(r).UserID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if pg != nil {
		total := len(rs)
		var pages int
		rs, pages = pg.slice(rs)
		writePageHeaders(w, total, pages)
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *HTTPServer) handleCreateReminder(w http.ResponseWriter, r *http.Request) {
	var req reminderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, err)
		return
	}
	in, err := req.createInput()
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	rem, err := s.Reminders.Create(r.Context(), identity(r).UserID, in)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rem)
}

func (s *HTTPServer) handleGetReminder(w http.ResponseWriter, r *http.Request) {
	rem, err := s.Reminders.Get(r.Context(), identity(r).UserID, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

func (s *HTTPServer) handleUpdateReminder(w http.ResponseWriter, r *http.Request) {
	var req reminderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, err)
		return
	}
	in, err := req.updateInput()
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	rem, err := s.Reminders.Update(r.Context(), identity(r).UserID, r.PathValue("id"), in)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

func (s *HTTPServer) handleDeleteReminder(w http.ResponseWriter, r *http.Request) {
	if err := s.Reminders.Delete(r.Context(), identity(r).UserID, r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "reminder deleted"})
}

func (s *HTTPServer) handleExportReminders(w http.ResponseWriter, r *http.Request) {
	rs, err := s.Reminders.List(r.Context(), identity(r).UserID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteReminders(&buf, rs); err != nil {
		s.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="reminders.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

type runNowResponse struct {
	Message string              `json:"message"`
	Stats   reminders.PassStats `json:"stats"`
}

// handleRunNow triggers an immediate pass. Operators only.
func (s *HTTPServer) handleRunNow(w http.ResponseWriter, r *http.Request) {
	if err := s.Access.RequireOperator(identity(r).Email); err != nil {
		s.writeServiceError(w, err)
		return
	}

	stats, ran := s.Runner.RunNow(r.Context())
	if !ran {
		writeError(w, http.StatusConflict, "a scheduler pass is already running")
		return
	}
	writeJSON(w, http.StatusOK, runNowResponse{Message: "reminder check completed", Stats: stats})
}

type statusResponse struct {
	State      string               `json:"state"`
	LastPass   *reminders.PassStats `json:"lastPass,omitempty"`
	PassesSeen int                  `json:"passesSeen"`
}

func (s *HTTPServer) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if err := s.Access.RequireOperator(identity(r).Email); err != nil {
		s.writeServiceError(w, err)
		return
	}

	resp := statusResponse{State: s.Runner.State().String()}
	if s.Tracker != nil {
		resp.LastPass, resp.PassesSeen = s.Tracker.Last()
	}
	writeJSON(w, http.StatusOK, resp)
}
