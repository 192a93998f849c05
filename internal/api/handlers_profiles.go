package api

import (
	"encoding/json"
	"io"
	"net/http"

	"steamgate/internal/api/dto"
	"steamgate/internal/queue"
)

// handleSubmitProfiles accepts either a single ProfileSubmission object or
// a JSON array of them, enqueues each, and reports per-item acceptance
// (spec.md §6). A steam_id already present in the queue is reported as a
// success with added=false rather than an error — resubmission is
// idempotent.
func (s *Server) handleSubmitProfiles(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	submissions, err := parseSubmissions(body)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(submissions) == 0 {
		writeError(w, "no profiles submitted", http.StatusBadRequest)
		return
	}

	results := make([]dto.SubmissionResult, 0, len(submissions))
	now := s.nowFunc()
	for _, sub := range submissions {
		if sub.SteamID == "" {
			results = append(results, dto.SubmissionResult{Success: false, Message: "steam_id is required"})
			continue
		}

		result, err := s.queue.Add(sub.SteamID, sub.Username, now)
		if err != nil {
			results = append(results, dto.SubmissionResult{Success: false, Message: err.Error()})
			continue
		}

		results = append(results, dto.SubmissionResult{
			Success: true,
			Added:   result == queue.Added,
		})
	}

	writeJSON(w, http.StatusOK, results)
}

// parseSubmissions accepts either a bare object or an array at the JSON
// root, since spec.md §6 allows submitting one profile or many in a
// single request.
func parseSubmissions(body []byte) ([]dto.ProfileSubmission, error) {
	var asArray []dto.ProfileSubmission
	if err := json.Unmarshal(body, &asArray); err == nil {
		return asArray, nil
	}

	var single dto.ProfileSubmission
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, errInvalidSubmissionBody
	}
	return []dto.ProfileSubmission{single}, nil
}

var errInvalidSubmissionBody = jsonShapeError("request body must be a profile object or an array of profile objects")

type jsonShapeError string

func (e jsonShapeError) Error() string { return string(e) }
