package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
)

// Keyword is the API form of a keyword rule
type Keyword struct {
	ID        int64     `json:"id"`
	Word      string    `json:"word"`
	Category  string    `json:"category"`
	OwnerID   string    `json:"owner_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Blocked is the API form of a block entry
type Blocked struct {
	UserID    string    `json:"user_id"`
	BlockedBy string    `json:"blocked_by,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Source is the API form of a source room
type Source struct {
	RoomID  string    `json:"room_id"`
	Title   string    `json:"title"`
	Active  bool      `json:"active"`
	AddedBy string    `json:"added_by,omitempty"`
	AddedAt time.Time `json:"added_at"`
}

// Order is the API form of an order record
type Order struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	UserName  string    `json:"user_name,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Text      string    `json:"text"`
	RoomID    string    `json:"room_id"`
	RoomTitle string    `json:"room_title,omitempty"`
	Intent    string    `json:"intent"`
	Delivered int       `json:"delivered"`
	CreatedAt time.Time `json:"created_at"`
}

// ============ Keywords ============

func (s *Server) handleListKeywords(w http.ResponseWriter, r *http.Request) {
	category := domain.KeywordCategory(r.URL.Query().Get("category"))
	rules, err := s.admin.ListKeywords(r.Context(), category)
	if err != nil {
		s.writeError(w, err)
		return
	}
	result := make([]Keyword, len(rules))
	for i, k := range rules {
		result[i] = Keyword{ID: k.ID, Word: k.Word, Category: string(k.Category), OwnerID: k.OwnerID, CreatedAt: k.CreatedAt}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"keywords": result})
}

func (s *Server) handleAddKeyword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Word     string `json:"word"`
		Category string `json:"category"`
	}
	if !decode(w, r, &req) {
		return
	}

	rule, err := s.admin.AddKeyword(r.Context(), req.Word, domain.KeywordCategory(req.Category), operator(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Keyword{
		ID: rule.ID, Word: rule.Word, Category: string(rule.Category), OwnerID: rule.OwnerID, CreatedAt: rule.CreatedAt,
	})
}

func (s *Server) handleRemoveKeyword(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid keyword id")
		return
	}
	if err := s.admin.RemoveKeyword(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// ============ Block list ============

func (s *Server) handleListBlocked(w http.ResponseWriter, r *http.Request) {
	entries, err := s.admin.ListBlocked(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	result := make([]Blocked, len(entries))
	for i, e := range entries {
		result[i] = Blocked{UserID: e.UserID, BlockedBy: e.BlockedBy, Reason: e.Reason, CreatedAt: e.CreatedAt}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"blocked": result})
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Reason string `json:"reason"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.admin.Block(r.Context(), req.UserID, operator(r), req.Reason); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "blocked", "user_id": req.UserID})
}

func (s *Server) handleUnblock(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.Unblock(r.Context(), chi.URLParam(r, "userID")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unblocked"})
}

// ============ Rooms ============

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	reg, err := s.admin.Rooms(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	sources := make([]Source, len(reg.Sources))
	for i, src := range reg.Sources {
		sources[i] = Source{RoomID: src.RoomID, Title: src.Title, Active: src.Active, AddedBy: src.AddedBy, AddedAt: src.AddedAt}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sources":      sources,
		"destinations": nonNil(reg.Destinations),
		"monitored":    nonNil(reg.Monitored),
	})
}

type roomRequest struct {
	RoomID string `json:"room_id"`
	Title  string `json:"title"`
}

func (s *Server) handleAddSource(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
	if !decode(w, r, &req) {
		return
	}
	added, err := s.admin.AddSource(r.Context(), req.RoomID, req.Title, operator(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]interface{}{"room_id": req.RoomID, "added": added})
}

func (s *Server) handleToggleSource(w http.ResponseWriter, r *http.Request) {
	active, err := s.admin.ToggleSource(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"active": active})
}

func (s *Server) handleAddDestination(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.admin.AddDestination(r.Context(), req.RoomID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"room_id": req.RoomID, "kind": string(domain.RoomDestination)})
}

func (s *Server) handleAddMonitored(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.admin.AddMonitored(r.Context(), req.RoomID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"room_id": req.RoomID, "kind": string(domain.RoomMonitored)})
}

var roomKinds = map[string]domain.RoomKind{
	"sources":      domain.RoomSource,
	"destinations": domain.RoomDestination,
	"monitored":    domain.RoomMonitored,
}

func (s *Server) handleRemoveRoom(w http.ResponseWriter, r *http.Request) {
	kind, ok := roomKinds[chi.URLParam(r, "kind")]
	if !ok {
		writeErrorMessage(w, http.StatusNotFound, "unknown room kind")
		return
	}
	if err := s.admin.RemoveRoom(r.Context(), kind, chi.URLParam(r, "roomID")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// ============ Prompt ============

func (s *Server) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	prompt, custom, err := s.admin.Prompt(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"prompt": prompt, "custom": custom})
}

func (s *Server) handleSetPrompt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.admin.SetPrompt(r.Context(), req.Prompt); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleResetPrompt(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.ResetPrompt(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// ============ Stats & orders ============

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	today, total, err := s.admin.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"today": today, "total": total})
}

func (s *Server) handleRecentOrders(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}

	orders, err := s.admin.RecentOrders(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	result := make([]Order, len(orders))
	for i, o := range orders {
		result[i] = Order{
			ID: o.ID, UserID: o.UserID, UserName: o.UserName, Phone: o.Phone, Text: o.Text,
			RoomID: o.RoomID, RoomTitle: o.RoomTitle, Intent: string(o.Intent),
			Delivered: o.Delivered, CreatedAt: o.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"orders": result})
}

// ============ Helpers ============

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps domain errors to status codes
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicate), errors.Is(err, domain.ErrRoomConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidKeyword), errors.Is(err, domain.ErrInvalidRoomID),
		errors.Is(err, domain.ErrInvalidUserID), errors.Is(err, domain.ErrInvalidPrompt):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("admin request failed")
		writeErrorMessage(w, status, "internal error")
		return
	}
	writeErrorMessage(w, status, err.Error())
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
