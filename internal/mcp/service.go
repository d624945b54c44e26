package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sanonone/cardgraph/pkg/dataset"
	"github.com/sanonone/cardgraph/pkg/engine"
	"github.com/sanonone/cardgraph/pkg/graph"
	"github.com/sanonone/cardgraph/pkg/structure"
	"github.com/sanonone/cardgraph/pkg/threshold"
)

// ErrNoGraph is returned by the structure and split tools before any build.
var ErrNoGraph = errors.New("no graph built yet, call build_graph first")

// Service holds the engine and the last graph built in this session.
type Service struct {
	engine *engine.Engine
	logger *slog.Logger

	mu     sync.RWMutex
	latest *engine.Result
}

func NewService(eng *engine.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: eng, logger: logger}
}

func (s *Service) current() (*engine.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, ErrNoGraph
	}
	return s.latest, nil
}

// --- Tool Handlers ---

func (s *Service) BuildGraph(ctx context.Context, req *mcp.CallToolRequest, args BuildGraphArgs) (*mcp.CallToolResult, BuildGraphResult, error) {
	cards := args.Cards
	if args.CardsPath != "" {
		var err error
		if cards, err = dataset.LoadCards(args.CardsPath); err != nil {
			return nil, BuildGraphResult{}, err
		}
	}
	if len(cards) == 0 {
		return nil, BuildGraphResult{}, errors.New("no cards given")
	}
	emb := args.Embeddings
	if args.EmbeddingsPath != "" {
		var err error
		if emb, err = dataset.LoadEmbeddings(args.EmbeddingsPath); err != nil {
			return nil, BuildGraphResult{}, err
		}
	} else if emb != nil {
		emb = dataset.Normalize(emb)
	}

	eng := s.engine
	if args.Mode != "" || args.TargetAvgDegree != 0 {
		opts := eng.Options()
		if args.Mode != "" {
			mode, err := threshold.ParseMode(args.Mode)
			if err != nil {
				return nil, BuildGraphResult{}, err
			}
			opts.Threshold.Mode = mode
		}
		if args.TargetAvgDegree != 0 {
			if opts.Sparsify.TargetAvgDegree == opts.TargetAvgDegree {
				opts.Sparsify.TargetAvgDegree = 0
			}
			opts.TargetAvgDegree = args.TargetAvgDegree
		}
		eng = engine.New(opts)
	}

	res, err := eng.Build(ctx, cards, emb)
	if err != nil {
		return nil, BuildGraphResult{}, err
	}
	s.mu.Lock()
	s.latest = res
	s.mu.Unlock()

	out := BuildGraphResult{
		Nodes:     len(res.Graph.Nodes),
		Edges:     len(res.Graph.Edges),
		Method:    string(res.Context.Similarity.Method),
		Mode:      string(res.Context.Threshold.Used),
		Tau:       res.Context.Diagnostics.Tau,
		AvgDegree: res.Context.Stats.Mean,
		Bridges:   len(res.Annotations.Bridges),
	}
	comps := make(map[int]bool)
	for _, n := range res.Graph.Nodes {
		comps[n.CompID] = true
		if n.IsCutVertex {
			out.CutVertices++
		}
	}
	out.Components = len(comps)
	for _, ev := range res.Context.Events {
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s: %s", ev.Stage, ev.Message))
	}
	s.logger.Info("MCP graph built", "nodes", out.Nodes, "edges", out.Edges)
	return nil, out, nil
}

func (s *Service) Structure(ctx context.Context, req *mcp.CallToolRequest, args StructureArgs) (*mcp.CallToolResult, StructureResult, error) {
	res, err := s.current()
	if err != nil {
		return nil, StructureResult{}, err
	}
	g := res.Graph
	ann := res.Annotations
	if args.Centrality != "" || args.IgnoreBridges {
		opts := s.engine.Options().Structure
		opts.IgnoreBridges = args.IgnoreBridges
		if args.Centrality != "" {
			kind, err := structure.ParseCentrality(args.Centrality)
			if err != nil {
				return nil, StructureResult{}, err
			}
			opts.Centrality = kind
		}
		opts.Eigen = structure.InteractiveEigenOptions()
		if g, ann, err = s.engine.Analyze(ctx, g, opts); err != nil {
			return nil, StructureResult{}, err
		}
	}
	return nil, describe(g, ann, args.Top), nil
}

func describe(g graph.Graph, ann graph.Annotations, top int) StructureResult {
	if top <= 0 {
		top = 10
	}
	out := StructureResult{Bridges: ann.BridgeList(), CutVertices: []string{}}
	sizes := make(map[int]int)
	central := make([]CentralCard, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		sizes[n.CompID]++
		if n.IsCutVertex {
			out.CutVertices = append(out.CutVertices, n.ID)
		}
		central = append(central, CentralCard{ID: n.ID, Centrality: n.Centrality})
	}
	sort.Strings(out.CutVertices)
	for _, sz := range sizes {
		out.ComponentSizes = append(out.ComponentSizes, sz)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out.ComponentSizes)))
	sort.SliceStable(central, func(i, j int) bool {
		if central[i].Centrality != central[j].Centrality {
			return central[i].Centrality > central[j].Centrality
		}
		return central[i].ID < central[j].ID
	})
	out.Central = central[:min(top, len(central))]
	return out
}

func (s *Service) SplitGraph(ctx context.Context, req *mcp.CallToolRequest, args SplitArgs) (*mcp.CallToolResult, SplitResult, error) {
	res, err := s.current()
	if err != nil {
		return nil, SplitResult{}, err
	}
	var sel engine.Selection
	switch {
	case args.BridgeA != "" && args.BridgeB != "":
		ref := graph.NewEdgeRef(args.BridgeA, args.BridgeB)
		sel.Bridge = &ref
	case args.Vertex != "":
		sel.Vertex = args.Vertex
	}
	sp, err := engine.Split(res.Graph, sel)
	if err != nil {
		return nil, SplitResult{}, err
	}
	out := SplitResult{Kind: sp.Kind, Pivot: sp.Pivot, SideA: sp.SideA, SideB: sp.SideB, Dropped: sp.Dropped}
	if sp.Bridge != nil {
		out.Bridge = sp.Bridge.A + "-" + sp.Bridge.B
	}
	return nil, out, nil
}
