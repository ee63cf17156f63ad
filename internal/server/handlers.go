package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/pkarpovich/gitscope/internal/gitcore"
)

const defaultLogCount = 100

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, gitcore.ErrObjectNotFound) {
		status = http.StatusNotFound
	}
	http.Error(w, err.Error(), status)
}

// hashFromRequest validates the {hash} path value.
func hashFromRequest(r *http.Request) (gitcore.Hash, error) {
	return gitcore.NewHash(r.PathValue("hash"))
}

func (s *Server) handleRefs(w http.ResponseWriter, r *http.Request) {
	refs, err := s.repo.GetRefs(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make(map[string][]gitcore.GitRef, len(refs))
	for kind, list := range refs {
		out[kind.String()] = list
	}
	s.writeJSON(w, out)
}

func (s *Server) handleHead(w http.ResponseWriter, r *http.Request) {
	state, err := s.currentState(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{
		"head":     state.Head,
		"branch":   state.Branch,
		"detached": state.Detached,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state, err := s.currentState(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, state)
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	count := defaultLogCount
	if v := r.URL.Query().Get("n"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid count", http.StatusBadRequest)
			return
		}
		count = n
	}

	head, found, err := s.repo.GetHEAD(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !found {
		s.writeJSON(w, []*gitcore.Commit{})
		return
	}

	log, err := s.repo.CommitLog(r.Context(), head, count)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, log)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	hash, err := hashFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	commit, err := s.repo.GetCommit(r.Context(), hash)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, commit)
}

// diffEntry is the wire form of one changed file; blob bytes stay on the
// server, only the size crosses.
type diffEntry struct {
	Path     string `json:"path"`
	Change   string `json:"change"`
	FromPath string `json:"fromPath,omitempty"`
	Size     int    `json:"size"`
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	hash, err := hashFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if cached, ok := s.diffCache.Get(string(hash)); ok {
		w.Header().Set("Content-Type", "application/json")
		w.Write(cached) //nolint:errcheck // best-effort response write
		return
	}

	commit, err := s.repo.GetCommit(r.Context(), hash)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Diff against the first parent, matching what log UIs show.
	var parent gitcore.Hash
	if len(commit.Parents) > 0 {
		parent = commit.Parents[0]
	}

	diff, err := s.repo.DiffCommits(r.Context(), hash, parent)
	if err != nil {
		s.writeError(w, err)
		return
	}

	entries := make([]diffEntry, 0, len(diff))
	for _, cf := range diff {
		size := 0
		if cf.Blob != nil {
			size = len(cf.Blob.Data)
		}
		entries = append(entries, diffEntry{
			Path:     cf.Path,
			Change:   cf.Change.Kind.String(),
			FromPath: cf.Change.FromPath,
			Size:     size,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	payload, err := json.Marshal(entries)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.diffCache.Put(string(hash), payload)

	w.Header().Set("Content-Type", "application/json")
	w.Write(payload) //nolint:errcheck // best-effort response write
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	hash, err := hashFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	snap, err := s.repo.GetTreePaths(r.Context(), hash)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, snap)
}
