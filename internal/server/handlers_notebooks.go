package server

import (
	"encoding/json"
	"net/http"

	"github.com/tideline/notebook/internal/types"
)

// NotebookSummary is the wire representation of a Notebook.
type NotebookSummary struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Owner        string              `json:"owner"`
	Participants []types.Participant `json:"participants"`
}

func toSummary(nb *types.Notebook) NotebookSummary {
	return NotebookSummary{ID: nb.ID, Name: nb.Name, Owner: nb.Owner, Participants: nb.Participants}
}

func (s *Server) handleListNotebooks(w http.ResponseWriter, r *http.Request) {
	caller := callerFromRequest(r)
	notebooks, err := s.mgr.ListNotebooks(r.Context(), caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]NotebookSummary, len(notebooks))
	for i, nb := range notebooks {
		out[i] = toSummary(nb)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"notebooks": out})
}

func (s *Server) handleCreateNotebook(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, types.NewError(types.KindValidation, "invalid request body"))
		return
	}
	nb, err := s.mgr.CreateNotebook(r.Context(), body.Name, callerFromRequest(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toSummary(nb))
}

func (s *Server) handleRenameNotebook(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, types.NewError(types.KindValidation, "invalid request body"))
		return
	}
	nb, err := s.mgr.RenameNotebook(r.Context(), r.PathValue("id"), callerFromRequest(r), body.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toSummary(nb))
}

func (s *Server) handleDeleteNotebook(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.DeleteNotebook(r.Context(), r.PathValue("id"), callerFromRequest(r)); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Entries []types.EntryInput `json:"entries"`
		Author  string             `json:"author"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, types.NewError(types.KindValidation, "invalid request body"))
		return
	}
	results, err := s.mgr.WriteBatch(r.Context(), r.PathValue("id"), callerFromRequest(r), body.Author, body.Entries)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	notebookID := r.PathValue("id")
	entryID := r.PathValue("eid")

	if _, err := s.mgr.GetNotebook(r.Context(), notebookID, callerFromRequest(r)); err != nil {
		s.writeError(w, err)
		return
	}

	entry, err := s.st.GetEntry(r.Context(), notebookID, entryID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	claimRows, err := s.st.GetClaims(r.Context(), entryID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	comparisons, err := s.st.ComparisonsForEntry(r.Context(), entryID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	revisions, err := s.st.ListRevisions(r.Context(), notebookID, entryID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	fragmentParent := entry.FragmentOf
	if fragmentParent == "" {
		fragmentParent = entry.ID
	}
	fragmentPage, err := s.retriever.Browse(r.Context(), notebookID, types.Filter{FragmentOf: fragmentParent, Limit: 500})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"entry":       entry,
		"claims":      claimRows,
		"comparisons": comparisons,
		"references":  entry.References,
		"revisions":   revisions,
		"fragments":   fragmentPage.Entries,
	})
}

func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request) {
	notebookID := r.PathValue("id")
	since := queryInt(r, "since", 0)

	nb, err := s.mgr.GetNotebook(r.Context(), notebookID, callerFromRequest(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	changes, err := s.st.ListChanges(r.Context(), notebookID, uint64(since))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"changes":         changes,
		"current_sequence": nb.SequenceCounter,
	})
}
