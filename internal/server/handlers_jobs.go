package server

import (
	"encoding/json"
	"net/http"

	"github.com/tideline/notebook/internal/types"
)

func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request) {
	notebookID := r.PathValue("id")
	if _, err := s.mgr.GetNotebook(r.Context(), notebookID, callerFromRequest(r)); err != nil {
		s.writeError(w, err)
		return
	}
	stats, err := s.queue.Stats(r.Context(), notebookID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleJobNext(w http.ResponseWriter, r *http.Request) {
	notebookID := r.PathValue("id")
	if _, err := s.mgr.GetNotebook(r.Context(), notebookID, callerFromRequest(r)); err != nil {
		s.writeError(w, err)
		return
	}

	q := r.URL.Query()
	workerID := q.Get("worker_id")
	var jobType *types.JobType
	if t := q.Get("type"); t != "" {
		jt := types.JobType(t)
		jobType = &jt
	}

	job, err := s.queue.LeaseNext(r.Context(), notebookID, workerID, jobType)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if job == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleJobComplete(w http.ResponseWriter, r *http.Request) {
	notebookID := r.PathValue("id")
	if _, err := s.mgr.GetNotebook(r.Context(), notebookID, callerFromRequest(r)); err != nil {
		s.writeError(w, err)
		return
	}

	var body struct {
		WorkerID string          `json:"worker_id"`
		Result   json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, types.NewError(types.KindValidation, "invalid request body"))
		return
	}
	if err := s.queue.Complete(r.Context(), r.PathValue("jid"), body.WorkerID, body.Result); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleJobFail(w http.ResponseWriter, r *http.Request) {
	notebookID := r.PathValue("id")
	if _, err := s.mgr.GetNotebook(r.Context(), notebookID, callerFromRequest(r)); err != nil {
		s.writeError(w, err)
		return
	}

	var body struct {
		WorkerID string `json:"worker_id"`
		Error    string `json:"error"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, types.NewError(types.KindValidation, "invalid request body"))
		return
	}
	if err := s.queue.Fail(r.Context(), r.PathValue("jid"), body.WorkerID, body.Error); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}
