package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-deebot/internal/entries"
	"github.com/nerrad567/gray-logic-deebot/internal/platform"
)

// defaultDomain is used when an add request names no domain.
const defaultDomain = "deebot"

// redactedKeys are entry data fields never returned by the API.
var redactedKeys = []string{"password"}

// addEntryRequest is the body of POST /entries.
type addEntryRequest struct {
	Domain string         `json:"domain"`
	Title  string         `json:"title"`
	Data   map[string]any `json:"data"`
}

// entryView returns a copy of e safe to serialise.
func entryView(e *entries.Entry) *entries.Entry {
	out := e.DeepCopy()
	for _, key := range redactedKeys {
		if _, ok := out.Data[key]; ok {
			out.Data[key] = "********"
		}
	}
	return out
}

// handleListEntries returns every config entry.
func (s *Server) handleListEntries(w http.ResponseWriter, _ *http.Request) {
	list := s.entries.List()
	views := make([]*entries.Entry, 0, len(list))
	for i := range list {
		views = append(views, entryView(&list[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": views,
		"count":   len(views),
	})
}

// handleAddEntry creates an entry and sets it up. The entry is returned
// with 201 even if setup failed; its state and reason say why.
func (s *Server) handleAddEntry(w http.ResponseWriter, r *http.Request) {
	var req addEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Domain == "" {
		req.Domain = defaultDomain
	}
	if req.Title == "" {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, "title is required")
		return
	}

	e, err := s.entries.Add(r.Context(), req.Domain, req.Title, req.Data)
	if e == nil {
		writeDomainError(w, err)
		return
	}
	if err != nil {
		s.logger.Warn("added entry failed to set up", "entry_id", e.ID, "error", err)
	}
	writeJSON(w, http.StatusCreated, entryView(e))
}

// handleGetEntry returns one entry.
func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	e, err := s.entries.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entryView(e))
}

// handleRemoveEntry unloads and deletes an entry.
func (s *Server) handleRemoveEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.entries.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReloadEntry unloads and sets up an entry again.
func (s *Server) handleReloadEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.entries.Reload(r.Context(), id); err != nil {
		if errors.Is(err, entries.ErrEntryNotFound) || errors.Is(err, entries.ErrUnloadFailed) {
			writeDomainError(w, err)
			return
		}
		s.logger.Warn("entry reload failed", "entry_id", id, "error", err)
	}
	s.respondEntry(w, r, id)
}

// handleUnloadEntry tears an entry down without deleting it.
func (s *Server) handleUnloadEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := s.entries.Unload(r.Context(), id)
	if errors.Is(err, entries.ErrEntryNotFound) {
		writeDomainError(w, err)
		return
	}
	if err != nil || !ok {
		msg := "one or more platforms failed to unload"
		if err != nil {
			msg = err.Error()
		}
		writeError(w, http.StatusConflict, ErrCodeConflict, msg)
		return
	}
	s.respondEntry(w, r, id)
}

func (s *Server) respondEntry(w http.ResponseWriter, r *http.Request, id string) {
	e, err := s.entries.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entryView(e))
}

// handleListEntities returns the entities every platform exposes for the
// entry. An entry that is not loaded has none.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.entries.Get(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	list := []platform.Entity{}
	for _, p := range s.platforms {
		list = append(list, p.Entities(id)...)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entities": list,
		"count":    len(list),
	})
}
