package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/npezzotti/campus-connect/internal/database"
	"github.com/npezzotti/campus-connect/internal/types"
)

const (
	msgTitleRequired  = "Event title is required"
	msgDateInPast     = "Event date must be in the future"
	msgEventNotFound  = "Event not found"
	msgCommentContent = "Comment content is required"
)

type EventRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Category    string    `json:"category"`
	Date        time.Time `json:"date"`
	Tags        string    `json:"tags"`
}

func (e EventRequest) params() database.EventParams {
	return database.EventParams{
		Title:       strings.TrimSpace(e.Title),
		Description: e.Description,
		Location:    e.Location,
		Category:    strings.TrimSpace(e.Category),
		Date:        e.Date,
		Tags:        e.Tags,
	}
}

type VoteRequest struct {
	Vote bool `json:"vote"`
}

type VoteResponse struct {
	Votes int `json:"votes"`
}

type CreateCommentRequest struct {
	Content string `json:"content"`
	EventId int    `json:"eventId"`
}

func pathId(r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(r.PathValue(name))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func toEvent(e database.Event) types.Event {
	return types.Event{
		Id:          e.Id,
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		Category:    e.Category,
		Date:        e.Date,
		Tags:        e.Tags,
		Votes:       e.Votes,
	}
}

func toEvents(events []database.Event) []types.Event {
	res := make([]types.Event, 0, len(events))
	for _, e := range events {
		res = append(res, toEvent(e))
	}
	return res
}

func (s *CampusApp) writeEvents(w http.ResponseWriter, events []database.Event, err error) {
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, toEvents(events))
}

func (s *CampusApp) listEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.db.ListEvents(r.Context())
	s.writeEvents(w, events, err)
}

func (s *CampusApp) listEventsByCategory(w http.ResponseWriter, r *http.Request) {
	events, err := s.db.ListEventsByCategory(r.Context(), r.PathValue("category"))
	s.writeEvents(w, events, err)
}

func (s *CampusApp) searchEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.db.SearchEvents(r.Context(), r.URL.Query().Get("term"))
	s.writeEvents(w, events, err)
}

func (s *CampusApp) getEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathId(r, "id")
	if !ok {
		s.writeError(w, NewNotFoundError())
		return
	}

	event, err := s.db.GetEvent(r.Context(), id)
	if err != nil {
		s.writeError(w, storeError(err))
		return
	}

	s.writeJson(w, http.StatusOK, toEvent(event))
}

func (s *CampusApp) createEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	params := req.params()
	if params.Title == "" {
		s.writeText(w, http.StatusBadRequest, msgTitleRequired)
		return
	}
	if params.Date.Before(s.now()) {
		s.writeText(w, http.StatusBadRequest, msgDateInPast)
		return
	}

	event, err := s.db.CreateEvent(r.Context(), params)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	w.Header().Set("Location", "/api/events/"+strconv.Itoa(event.Id))
	s.writeJson(w, http.StatusCreated, toEvent(event))
}

func (s *CampusApp) updateEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathId(r, "id")
	if !ok {
		s.writeError(w, NewNotFoundError())
		return
	}

	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	_, err := s.db.UpdateEvent(r.Context(), id, req.params())
	if err != nil {
		s.writeError(w, storeError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *CampusApp) deleteEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathId(r, "id")
	if !ok {
		s.writeError(w, NewNotFoundError())
		return
	}

	err := s.db.DeleteEvent(r.Context(), id)
	if err != nil {
		s.writeError(w, storeError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// voteEvent adds or removes a single vote. Votes are not tracked per user,
// so repeated votes count.
func (s *CampusApp) voteEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathId(r, "id")
	if !ok {
		s.writeError(w, NewNotFoundError())
		return
	}

	var req VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	delta := -1
	if req.Vote {
		delta = 1
	}

	votes, err := s.db.AdjustEventVotes(r.Context(), id, delta)
	if err != nil {
		s.writeError(w, storeError(err))
		return
	}

	s.writeJson(w, http.StatusOK, VoteResponse{Votes: votes})
}

func (s *CampusApp) listTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.db.ListTags(r.Context())
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	res := make([]types.Tag, 0, len(tags))
	for _, t := range tags {
		res = append(res, types.Tag{Id: t.Id, Name: t.Name})
	}

	s.writeJson(w, http.StatusOK, res)
}

func (s *CampusApp) listComments(w http.ResponseWriter, r *http.Request) {
	eventId, ok := pathId(r, "eventId")
	if !ok {
		s.writeError(w, NewNotFoundError())
		return
	}

	comments, err := s.db.ListCommentsByEvent(r.Context(), eventId)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	res := make([]types.Comment, 0, len(comments))
	for _, c := range comments {
		res = append(res, types.Comment{
			Id:        c.Id,
			Content:   c.Content,
			CreatedAt: c.CreatedAt,
			Username:  c.Username,
		})
	}

	s.writeJson(w, http.StatusOK, res)
}

func (s *CampusApp) createComment(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	var req CreateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if strings.TrimSpace(req.Content) == "" {
		s.writeText(w, http.StatusBadRequest, msgCommentContent)
		return
	}

	exists, err := s.db.EventExists(r.Context(), req.EventId)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}
	if !exists {
		s.writeText(w, http.StatusNotFound, msgEventNotFound)
		return
	}

	c, err := s.db.CreateComment(r.Context(), database.CreateCommentParams{
		EventId: req.EventId,
		UserId:  identity.UserId,
		Content: req.Content,
	})
	if errors.Is(err, database.ErrNotFound) {
		// deleted between the existence check and the insert
		s.writeText(w, http.StatusNotFound, msgEventNotFound)
		return
	}
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, types.Comment{
		Id:        c.Id,
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
		Username:  identity.Username,
	})
}
