package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/claude/repcoach/internal/reps"
)

const maxRecentLimit = 1000

type framesResult struct {
	Frames int            `json:"frames"`
	Reps   []reps.Summary `json:"reps"`
}

type exerciseRequest struct {
	Exercise string `json:"exercise"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "session": s.session.ID()})
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	frames, err := decodeFrames(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	done := s.session.Ingest(frames...)
	if done == nil {
		done = []reps.Summary{}
	}
	writeJSON(w, http.StatusOK, framesResult{Frames: len(frames), Reps: done})
}

// decodeFrames accepts either a single frame object or an array of frames.
func decodeFrames(body io.Reader) ([]reps.Frame, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty body")
	}

	if data[0] == '[' {
		var frames []reps.Frame
		if err := json.Unmarshal(data, &frames); err != nil {
			return nil, err
		}
		return frames, nil
	}

	var f reps.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return []reps.Frame{f}, nil
}

func (s *Server) handleSetExercise(w http.ResponseWriter, r *http.Request) {
	var req exerciseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	id := strings.TrimSpace(req.Exercise)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "exercise is required"})
		return
	}

	sel := s.session.Select(id)
	s.log.Info("exercise selected", "exercise", id, "known", sel.Known, "by", userInfoFromContext(r).Login)
	writeJSON(w, http.StatusOK, sel)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleRecentReps(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRecentLimit)
	}
	writeJSON(w, http.StatusOK, s.session.Recent(limit))
}

func (s *Server) handleExercises(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Exercises())
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
