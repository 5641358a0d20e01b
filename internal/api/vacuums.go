package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// vacuumCommandRequest is the body of POST .../vacuums/{device}/command.
type vacuumCommandRequest struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

// handleVacuumCommand validates a command and publishes it to the robot.
// The robot's reaction arrives later as a vacuum.state event.
func (s *Server) handleVacuumCommand(w http.ResponseWriter, r *http.Request) {
	if s.vacuum == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "vacuum control is not available")
		return
	}

	var req vacuumCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, "command is required")
		return
	}

	entryID, device := chi.URLParam(r, "id"), chi.URLParam(r, "device")
	if err := s.vacuum.Command(r.Context(), entryID, device, req.Command, req.Params); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "accepted",
		"entry":   entryID,
		"device":  device,
		"command": req.Command,
	})
}

// handleCameraMap serves the latest map image of a robot.
func (s *Server) handleCameraMap(w http.ResponseWriter, r *http.Request) {
	if s.camera == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "camera is not available")
		return
	}

	img, err := s.camera.Image(chi.URLParam(r, "id"), chi.URLParam(r, "device"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(img))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(img)
}
