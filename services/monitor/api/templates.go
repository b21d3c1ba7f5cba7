package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/SaltProphet/SystemZero/pkg/signature"
	"github.com/SaltProphet/SystemZero/pkg/uitree"
	"github.com/SaltProphet/SystemZero/services/monitor/internal/archive"
	"github.com/SaltProphet/SystemZero/services/monitor/internal/baseline"
	"github.com/SaltProphet/SystemZero/services/monitor/internal/middleware"
)

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"templates": s.templates.List(),
		"count":     s.templates.Count(),
	})
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, err := s.templates.Get(id)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "template not found")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, t)
}

type createTemplateRequest struct {
	CaptureID string `json:"capture_id"`
	ScreenID  string `json:"screen_id"`
	App       string `json:"app"`
	Version   string `json:"version"`
}

// handleCreateTemplate builds a baseline template from an archived capture:
// named leaf nodes become required nodes, the stored tree supplies the
// structure signature, depth, node count, and role set.
func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req createTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}
	req.ScreenID = strings.TrimSpace(req.ScreenID)
	if req.ScreenID == "" {
		middleware.WriteError(w, http.StatusUnprocessableEntity, "screen_id is required")
		return
	}
	if req.CaptureID == "" {
		middleware.WriteError(w, http.StatusUnprocessableEntity, "capture_id is required")
		return
	}
	if s.captures == nil {
		middleware.WriteError(w, http.StatusInternalServerError, "capture archive disabled")
		return
	}

	c, err := s.captures.Get(r.Context(), req.CaptureID)
	if errors.Is(err, archive.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "capture not found")
		return
	}
	if err != nil {
		middleware.WriteError(w, http.StatusInternalServerError, "archive read failed")
		return
	}

	var raw map[string]any
	if err := json.Unmarshal(c.Tree, &raw); err != nil {
		middleware.WriteError(w, http.StatusInternalServerError, "stored capture unreadable")
		return
	}
	tree := uitree.Normalize(raw)
	if tree.IsEmpty() {
		middleware.WriteError(w, http.StatusUnprocessableEntity, "capture has no tree")
		return
	}

	depth := tree.Depth()
	nodeCount := tree.NodeCount()
	version := strings.TrimSpace(req.Version)
	if version == "" {
		version = "1.0"
	}
	t := baseline.Template{
		ScreenID:           req.ScreenID,
		RequiredNodes:      namedLeaves(tree),
		StructureSignature: signature.GenerateStructural(tree),
		ExpectedRoles:      tree.Roles(),
		Depth:              &depth,
		NodeCount:          &nodeCount,
		Version:            version,
		Metadata: map[string]string{
			"app":    req.App,
			"source": "capture:" + req.CaptureID,
		},
	}
	if err := s.templates.Put(t); err != nil {
		s.logger.Error(r.Context(), "template write failed", map[string]any{"error": err.Error()})
		middleware.WriteError(w, http.StatusInternalServerError, "failed to persist template")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, t)
}

// namedLeaves collects the names of leaf nodes, the elements a user actually
// sees or touches, in tree order.
func namedLeaves(t *uitree.Tree) []string {
	var out []string
	var walk func(n *uitree.Node)
	walk = func(n *uitree.Node) {
		if n == nil {
			return
		}
		if len(n.Children) == 0 {
			if n.Name != "" {
				out = append(out, n.Name)
			}
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(t.Root)
	return out
}
