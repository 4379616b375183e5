package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/distill/internal/logger"
	"github.com/ziadkadry99/distill/internal/model"
	"github.com/ziadkadry99/distill/internal/pipeline"
	"github.com/ziadkadry99/distill/internal/vectordb"
)

type searchHit struct {
	ID         string                 `json:"id"`
	Kind       vectordb.Kind          `json:"kind"`
	Content    string                 `json:"content"`
	Similarity float32                `json:"similarity"`
	Metadata   vectordb.EntryMetadata `json:"metadata"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := pipeline.ReadStatus(r.Context(), s.store, s.tracker)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleSearch serves GET /api/search?q=...&kind=concepts|notes&limit=N.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeMessage(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	kind := vectordb.KindConcept
	if k := q.Get("kind"); k != "" {
		kind = vectordb.Kind(k)
	}
	if kind != vectordb.KindConcept && kind != vectordb.KindNote {
		writeMessage(w, http.StatusBadRequest, "kind must be concepts or notes")
		return
	}
	limit := 10
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 {
		limit = l
	}

	hits := []searchHit{}
	if s.index != nil {
		results, err := s.index.Search(r.Context(), kind, query, limit, nil)
		if err != nil {
			writeError(w, err)
			return
		}
		for _, res := range results {
			hits = append(hits, searchHit{
				ID:         res.Entry.ID,
				Kind:       res.Kind,
				Content:    res.Entry.Content,
				Similarity: res.Similarity,
				Metadata:   res.Entry.Metadata,
			})
		}
	}
	writeJSON(w, http.StatusOK, hits)
}

// handleListConcepts serves GET /api/concepts; ?all=true includes
// superseded concepts.
func (s *Server) handleListConcepts(w http.ResponseWriter, r *http.Request) {
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	concepts, err := s.store.AllConcepts(r.Context(), all)
	if err != nil {
		writeError(w, err)
		return
	}
	if concepts == nil {
		concepts = []model.DistilledConcept{}
	}
	writeJSON(w, http.StatusOK, concepts)
}

func (s *Server) handleGetConcept(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetConcept(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleProvenance(w http.ResponseWriter, r *http.Request) {
	tr, err := s.graph.Trace(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.GetNote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	// Vectors are large and of no use to API clients.
	n.Embedding = nil
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.GetDocument(r.Context(), documentID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDocumentConcepts(w http.ResponseWriter, r *http.Request) {
	concepts, err := s.graph.ConceptsForDocument(r.Context(), documentID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if concepts == nil {
		concepts = []model.DistilledConcept{}
	}
	writeJSON(w, http.StatusOK, concepts)
}

// documentID returns the {id} parameter with escapes removed. Document ids
// are relative paths, so clients send slashes as %2F.
func documentID(r *http.Request) string {
	id := chi.URLParam(r, "id")
	if u, err := url.PathUnescape(id); err == nil {
		return u
	}
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("writing response", "err", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, model.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, err.Error())
		return
	}
	logger.Error("request failed", "err", err)
	writeMessage(w, http.StatusInternalServerError, "internal error")
}
