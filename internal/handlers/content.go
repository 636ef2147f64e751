package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"neighborly/internal/engine"
	"neighborly/internal/store"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// ContentHandler exposes the community content mutations. It stands in
// for the surrounding CRUD layer: every handler commits the store
// write first and only then notifies the engine, so the index never
// observes a version the store has not durably recorded.
type ContentHandler struct {
	store  store.Store
	engine *engine.Engine
}

func NewContentHandler(contentStore store.Store, eng *engine.Engine) *ContentHandler {
	return &ContentHandler{store: contentStore, engine: eng}
}

type createPostRequest struct {
	AuthorID string `json:"author_id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category,omitempty"`
}

type createHelpRequestRequest struct {
	AuthorID    string `json:"author_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location,omitempty"`
}

type editContentRequest struct {
	Title    *string `json:"title,omitempty"`
	Content  *string `json:"content,omitempty"`
	Category *string `json:"category,omitempty"`
	Location *string `json:"location,omitempty"`
	Resolved *bool   `json:"resolved,omitempty"`
}

type volunteerRequest struct {
	UserID string `json:"user_id"`
}

func (h *ContentHandler) HandleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Content) == "" || req.AuthorID == "" {
		http.Error(w, "author_id and content are required", http.StatusBadRequest)
		return
	}

	item := &store.ContentItem{
		ID:       uuid.New().String(),
		Kind:     store.KindPost,
		AuthorID: req.AuthorID,
		Title:    req.Title,
		Text:     req.Content,
		Category: req.Category,
	}

	if err := h.store.Create(r.Context(), item); err != nil {
		slog.Error("Failed to create post", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.engine.OnContentCreated(item)
	writeJSON(w, http.StatusCreated, item)
}

func (h *ContentHandler) HandleCreateHelpRequest(w http.ResponseWriter, r *http.Request) {
	var req createHelpRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Description) == "" || req.AuthorID == "" {
		http.Error(w, "author_id and description are required", http.StatusBadRequest)
		return
	}

	item := &store.ContentItem{
		ID:       uuid.New().String(),
		Kind:     store.KindHelpRequest,
		AuthorID: req.AuthorID,
		Title:    req.Title,
		Text:     req.Description,
		Location: req.Location,
	}

	if err := h.store.Create(r.Context(), item); err != nil {
		slog.Error("Failed to create help request", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.engine.OnContentCreated(item)
	writeJSON(w, http.StatusCreated, item)
}

func (h *ContentHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req editContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	item, err := h.store.Get(r.Context(), id)
	if err == store.ErrNotFound {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Failed to load content for edit", "content_id", id, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if item.Deleted {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	if req.Title != nil {
		item.Title = *req.Title
	}
	if req.Content != nil {
		item.Text = *req.Content
	}
	if req.Category != nil {
		item.Category = *req.Category
	}
	if req.Location != nil {
		item.Location = *req.Location
	}
	if req.Resolved != nil {
		item.Resolved = *req.Resolved
	}

	if err := h.store.Update(r.Context(), item); err != nil {
		slog.Error("Failed to update content", "content_id", id, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.engine.OnContentEdited(item)
	writeJSON(w, http.StatusOK, item)
}

func (h *ContentHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	err := h.store.Delete(r.Context(), id)
	if err == store.ErrNotFound {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Failed to delete content", "content_id", id, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if err := h.engine.OnContentDeleted(r.Context(), id); err != nil {
		// The tombstone is committed; the index converges on the next
		// refresh even if the direct removal failed.
		slog.Warn("Failed to remove deleted content from index", "content_id", id, "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ContentHandler) HandleVolunteer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req volunteerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	item, err := h.store.Get(r.Context(), id)
	if err == store.ErrNotFound {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if item.Deleted || item.Kind != store.KindHelpRequest {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if item.AuthorID == req.UserID {
		http.Error(w, "Cannot volunteer for your own request", http.StatusConflict)
		return
	}

	for _, v := range item.Volunteers {
		if v == req.UserID {
			writeJSON(w, http.StatusOK, item)
			return
		}
	}
	item.Volunteers = append(item.Volunteers, req.UserID)

	if err := h.store.Update(r.Context(), item); err != nil {
		slog.Error("Failed to record volunteer", "content_id", id, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	// Dirty-mark only after the volunteer write committed.
	h.engine.OnRelationChanged(id)
	writeJSON(w, http.StatusOK, item)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
