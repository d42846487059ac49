package server

import (
	"encoding/json"
	"net/http"

	"github.com/tideline/notebook/internal/catalog"
	"github.com/tideline/notebook/internal/retrieval"
	"github.com/tideline/notebook/internal/types"
)

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	notebookID := r.PathValue("id")
	if _, err := s.mgr.GetNotebook(r.Context(), notebookID, callerFromRequest(r)); err != nil {
		s.writeError(w, err)
		return
	}

	q := r.URL.Query()
	f := types.Filter{
		Query:            q.Get("query"),
		TopicPrefix:      q.Get("topic_prefix"),
		Author:           q.Get("author"),
		FragmentOf:       q.Get("fragment_of"),
		SequenceMin:      queryUint64Ptr(r, "sequence_min"),
		SequenceMax:      queryUint64Ptr(r, "sequence_max"),
		NeedsReview:      queryBoolPtr(r, "needs_review"),
		Limit:            queryInt(r, "limit", 50),
		Offset:           queryInt(r, "offset", 0),
	}
	if cs := q.Get("claims_status"); cs != "" {
		status := types.ClaimsStatus(cs)
		f.ClaimsStatus = &status
	}
	if fa := q.Get("has_friction_above"); fa != "" {
		v := queryFloat(r, "has_friction_above", 0)
		f.HasFrictionAbove = &v
	}

	page, err := s.retriever.Browse(r.Context(), notebookID, f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	notebookID := r.PathValue("id")
	if _, err := s.mgr.GetNotebook(r.Context(), notebookID, callerFromRequest(r)); err != nil {
		s.writeError(w, err)
		return
	}

	q := r.URL.Query()
	field := retrieval.SearchField(q.Get("search_in"))
	if field == "" {
		field = retrieval.SearchContent
	}
	maxResults := queryInt(r, "max_results", 20)

	results, err := s.retriever.Lexical(r.Context(), notebookID, q.Get("query"), field, maxResults)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleSemanticSearch(w http.ResponseWriter, r *http.Request) {
	notebookID := r.PathValue("id")
	if _, err := s.mgr.GetNotebook(r.Context(), notebookID, callerFromRequest(r)); err != nil {
		s.writeError(w, err)
		return
	}

	var body struct {
		Query         string  `json:"query"`
		TopK          int     `json:"top_k"`
		MinSimilarity float32 `json:"min_similarity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, types.NewError(types.KindValidation, "invalid request body"))
		return
	}

	results, err := s.retriever.Semantic(r.Context(), notebookID, body.Query, body.TopK, body.MinSimilarity)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleHybridSearch(w http.ResponseWriter, r *http.Request) {
	notebookID := r.PathValue("id")
	if _, err := s.mgr.GetNotebook(r.Context(), notebookID, callerFromRequest(r)); err != nil {
		s.writeError(w, err)
		return
	}

	var body struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, types.NewError(types.KindValidation, "invalid request body"))
		return
	}

	result, err := s.retriever.Hybrid(r.Context(), notebookID, body.Query, body.TopK)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := map[string]any{"results": result.Results}
	if result.Note != "" {
		resp["note"] = result.Note
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClaimsBatch(w http.ResponseWriter, r *http.Request) {
	notebookID := r.PathValue("id")
	if _, err := s.mgr.GetNotebook(r.Context(), notebookID, callerFromRequest(r)); err != nil {
		s.writeError(w, err)
		return
	}

	var body struct {
		EntryIDs []string `json:"entry_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, types.NewError(types.KindValidation, "invalid request body"))
		return
	}

	entries, err := s.retriever.ClaimsBatch(r.Context(), body.EntryIDs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	notebookID := r.PathValue("id")
	if _, err := s.mgr.GetNotebook(r.Context(), notebookID, callerFromRequest(r)); err != nil {
		s.writeError(w, err)
		return
	}
	clusters, err := catalog.Project(r.Context(), s.st, notebookID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"clusters": clusters})
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	notebookID := r.PathValue("id")
	if _, err := s.mgr.GetNotebook(r.Context(), notebookID, callerFromRequest(r)); err != nil {
		s.writeError(w, err)
		return
	}
	q := r.URL.Query()
	direction := retrieval.Direction(q.Get("direction"))
	if direction == "" {
		direction = retrieval.DirectionAll
	}
	maxResults := queryInt(r, "max_results", 20)

	related, err := s.retriever.Related(r.Context(), r.PathValue("eid"), direction, maxResults)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"related": related})
}
