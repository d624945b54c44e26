package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sanonone/cardgraph/pkg/dataset"
	"github.com/sanonone/cardgraph/pkg/engine"
	"github.com/sanonone/cardgraph/pkg/graph"
	"github.com/sanonone/cardgraph/pkg/structure"
	"github.com/sanonone/cardgraph/pkg/threshold"
)

// maxBodyBytes bounds request bodies; a deck with embeddings is large.
const maxBodyBytes = 256 << 20

func (s *Server) registerHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("POST /graph/build", s.handleBuild)
	mux.HandleFunc("POST /graph/rebuild", s.handleRebuild)
	mux.HandleFunc("GET /graph", s.handleGetGraph)
	mux.HandleFunc("POST /graph/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /graph/split", s.handleSplit)
	mux.HandleFunc("GET /tasks/{id}", s.handleGetTask)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeHTTPResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// engineFor applies per-request overrides to the configured engine.
func (s *Server) engineFor(req BuildRequest) (*engine.Engine, error) {
	if req.Mode == "" && req.TargetAvgDegree == 0 {
		return s.Engine, nil
	}
	opts := s.Engine.Options()
	if req.Mode != "" {
		mode, err := threshold.ParseMode(req.Mode)
		if err != nil {
			return nil, err
		}
		opts.Threshold.Mode = mode
	}
	if req.TargetAvgDegree != 0 {
		if opts.Sparsify.TargetAvgDegree == opts.TargetAvgDegree {
			opts.Sparsify.TargetAvgDegree = 0
		}
		opts.TargetAvgDegree = req.TargetAvgDegree
	}
	return engine.New(opts), nil
}

func (s *Server) decodeBuild(w http.ResponseWriter, r *http.Request) (*engine.Engine, BuildRequest, bool) {
	var req BuildRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return nil, req, false
	}
	if len(req.Cards) == 0 {
		s.writeHTTPError(w, http.StatusBadRequest, "cards are required")
		return nil, req, false
	}
	if req.Embeddings != nil {
		req.Embeddings = dataset.Normalize(req.Embeddings)
	}
	eng, err := s.engineFor(req)
	if err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, err.Error())
		return nil, req, false
	}
	return eng, req, true
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	eng, req, ok := s.decodeBuild(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	res, err := eng.Build(ctx, req.Cards, req.Embeddings)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, res)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	eng, req, ok := s.decodeBuild(w, r)
	if !ok {
		return
	}
	task := s.taskManager.Start(s.timeout, func(ctx context.Context, t *Task) error {
		t.SetProgress(fmt.Sprintf("building graph for %d cards", len(req.Cards)))
		res, err := eng.Build(ctx, req.Cards, req.Embeddings)
		if err != nil {
			return err
		}
		s.setLatest(t.Seq(), res)
		t.SetProgress(fmt.Sprintf("%d nodes, %d edges", len(res.Graph.Nodes), len(res.Graph.Edges)))
		return nil
	})
	s.writeHTTPResponse(w, http.StatusAccepted, RebuildResponse{TaskID: task.ID})
}

func (s *Server) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	res := s.getLatest()
	if res == nil {
		s.writeHTTPError(w, http.StatusNotFound, "no graph has been built yet")
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, res)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	opts := s.Engine.Options().Structure
	opts.IgnoreBridges = req.IgnoreBridges
	if req.Centrality != "" {
		kind, err := structure.ParseCentrality(req.Centrality)
		if err != nil {
			s.writeHTTPError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts.Centrality = kind
	}
	// Interactive calls trade precision for latency.
	opts.Eigen = structure.InteractiveEigenOptions()

	g, ann, err := s.Engine.Analyze(r.Context(), req.Graph, opts)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, AnalyzeResponse{Graph: g, Annotations: ann})
}

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	var req SplitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	var g graph.Graph
	switch {
	case req.Graph != nil:
		g = *req.Graph
	case s.getLatest() != nil:
		g = s.getLatest().Graph
	default:
		s.writeHTTPError(w, http.StatusNotFound, "no graph has been built yet")
		return
	}
	sp, err := engine.Split(g, req.Selection)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, sp)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.taskManager.GetTask(r.PathValue("id"))
	if !ok {
		s.writeHTTPError(w, http.StatusNotFound, "task not found")
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, task.Snapshot())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

// writeEngineError maps pipeline errors to status codes.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, graph.ErrDuplicateID), errors.Is(err, graph.ErrEmptyID), errors.Is(err, engine.ErrEmptySelection):
		s.writeHTTPError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, graph.ErrUnknownEdge), errors.Is(err, graph.ErrUnknownNode):
		s.writeHTTPError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.writeHTTPError(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the body.
		s.writeHTTPError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		s.writeHTTPError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeHTTPResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.Warn("failed to encode response", "error", err)
		}
	}
}

func (s *Server) writeHTTPError(w http.ResponseWriter, status int, msg string) {
	s.writeHTTPResponse(w, status, map[string]string{"error": msg})
}
