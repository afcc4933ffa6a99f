package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/dgnsrekt/outingsync/internal/activity"
	"github.com/dgnsrekt/outingsync/internal/api"
	"github.com/dgnsrekt/outingsync/internal/app"
	"github.com/dgnsrekt/outingsync/internal/metrics"
	"github.com/dgnsrekt/outingsync/internal/sync"
	"github.com/dgnsrekt/outingsync/internal/ws"
)

type Server struct {
	app     *app.App
	hub     *ws.Hub
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewServer creates the control surface for a. hub and collector are
// optional; their routes are not mounted when nil.
func NewServer(a *app.App, hub *ws.Hub, collector *metrics.Collector, logger *zap.Logger) *Server {
	return &Server{
		app:     a,
		hub:     hub,
		metrics: collector,
		logger:  logger,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	ActivityID int64                         `json:"activity_id"`
	Open       bool                          `json:"open"`
	Lifecycle  sync.Lifecycle                `json:"lifecycle"`
	Modal      bool                          `json:"modal"`
	VotingView bool                          `json:"voting_view"`
	Loops      map[string]sync.StatsSnapshot `json:"loops"`
	Clients    int                           `json:"ws_clients"`
}

type commentsResponse struct {
	Items   []api.Comment `json:"items"`
	Cursor  sync.Cursor   `json:"cursor"`
	Pending int           `json:"pending"`
}

type submitResponse struct {
	State   sync.WriteState `json:"state"`
	Comment *api.Comment    `json:"comment,omitempty"`
	Error   string          `json:"error,omitempty"`
	Draft   string          `json:"draft,omitempty"`
}

type activityResponse struct {
	Activity *activity.Snapshot `json:"activity,omitempty"`
	Error    string             `json:"error,omitempty"`
}

type tickView struct {
	Loop    string           `json:"loop"`
	Outcome sync.Outcome     `json:"outcome"`
	Reason  string           `json:"reason,omitempty"`
	Merge   sync.MergeResult `json:"merge"`
	Error   string           `json:"error,omitempty"`
}

func viewTick(res sync.TickResult) tickView {
	v := tickView{Loop: res.Loop, Outcome: res.Outcome, Reason: res.Reason, Merge: res.Merge}
	if res.Err != nil {
		v.Error = res.Err.Error()
	}
	return v
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		ActivityID: s.app.ActivityID(),
		Open:       s.app.Gate().Open(),
		Lifecycle:  s.app.Gate().Lifecycle(),
		Modal:      s.app.ModalOpen(),
		VotingView: s.app.VotingViewOpen(),
		Loops: map[string]sync.StatsSnapshot{
			s.app.CommentsLoop().Name(): s.app.CommentsLoop().Stats().Snapshot(),
			s.app.ActivityLoop().Name(): s.app.ActivityLoop().Stats().Snapshot(),
		},
	}
	if s.hub != nil {
		resp.Clients = s.hub.Clients()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) ListComments(w http.ResponseWriter, r *http.Request) {
	thread := s.app.Thread()
	writeJSON(w, http.StatusOK, commentsResponse{
		Items:   thread.Items(),
		Cursor:  thread.Cursor(),
		Pending: thread.Pending(),
	})
}

// SubmitComment posts the draft. A body with text replaces the draft first.
func (s *Server) SubmitComment(w http.ResponseWriter, r *http.Request) {
	var body draftBody
	if err := decode(r, &body, true); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if body.Text != "" {
		s.app.SetDraft(body.Text)
	}

	res, err := s.app.Submit(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, submitResponse{State: res.State, Comment: &res.Item})
	case errors.Is(err, sync.ErrEmptyDraft):
		writeJSON(w, http.StatusUnprocessableEntity, submitResponse{State: sync.Composing, Error: err.Error()})
	case errors.Is(err, sync.ErrSubmitInProgress):
		writeJSON(w, http.StatusConflict, submitResponse{State: sync.Submitting, Error: err.Error()})
	default:
		writeJSON(w, http.StatusBadGateway, submitResponse{
			State: res.State,
			Error: err.Error(),
			Draft: s.app.Draft(),
		})
	}
}

func (s *Server) GetDraft(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, draftBody{Text: s.app.Draft()})
}

func (s *Server) SetDraft(w http.ResponseWriter, r *http.Request) {
	var body draftBody
	if err := decode(r, &body, false); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.app.SetDraft(body.Text)
	writeJSON(w, http.StatusOK, draftBody{Text: s.app.Draft()})
}

func (s *Server) GetActivity(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.app.Activity()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: activity.ErrNoSnapshot.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) EditActivity(w http.ResponseWriter, r *http.Request) {
	var patch api.ActivityPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	snap, err := s.app.EditActivity(r.Context(), patch)
	if err == nil {
		writeJSON(w, http.StatusOK, activityResponse{Activity: &snap})
		return
	}

	status := http.StatusBadGateway
	switch {
	case errors.Is(err, activity.ErrEmptyPatch):
		status = http.StatusBadRequest
	case errors.Is(err, activity.ErrIllegalTransition), errors.Is(err, activity.ErrImpossibleFlags):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, activity.ErrNoSnapshot), errors.Is(err, activity.ErrEditInProgress):
		status = http.StatusConflict
	}

	resp := activityResponse{Error: err.Error()}
	if snap.ID != 0 {
		resp.Activity = &snap
	}
	writeJSON(w, status, resp)
}

// Refresh polls both resources once. Both ticks are skipped while the gate
// is closed.
func (s *Server) Refresh(w http.ResponseWriter, r *http.Request) {
	comments, act := s.app.Refresh(r.Context())
	writeJSON(w, http.StatusOK, []tickView{viewTick(comments), viewTick(act)})
}

func (s *Server) SetLifecycle(w http.ResponseWriter, r *http.Request) {
	var body lifecycleRequest
	if err := decode(r, &body, false); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	l, _ := sync.ParseLifecycle(body.State)

	s.app.SetLifecycle(l)
	s.logger.Debug("lifecycle changed", zap.String("state", string(l)))
	s.Status(w, r)
}

func (s *Server) SetSession(w http.ResponseWriter, r *http.Request) {
	var body sessionRequest
	if err := decode(r, &body, false); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	s.app.SetToken(body.Token)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ClearSession(w http.ResponseWriter, r *http.Request) {
	s.app.SetToken("")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) SetModal(w http.ResponseWriter, r *http.Request) {
	var body modalRequest
	if err := decode(r, &body, false); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.app.SetModal(*body.Open)
	w.WriteHeader(http.StatusNoContent)
}

// SetVotingView pauses activity polling while the voting view is shown.
func (s *Server) SetVotingView(w http.ResponseWriter, r *http.Request) {
	var body modalRequest
	if err := decode(r, &body, false); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.app.SetVotingView(*body.Open)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
