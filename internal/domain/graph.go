package domain

import "sort"

// EdgeRelation is the direction of a citation edge.
type EdgeRelation string

const (
	// RelationCites means the From paper cites the To paper.
	RelationCites EdgeRelation = "cites"
	// RelationCitedBy means the From paper is cited by the To paper.
	RelationCitedBy EdgeRelation = "cited_by"
)

// GraphNode is a paper in the citation neighborhood with a metadata snapshot.
type GraphNode struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Year          int    `json:"year,omitempty"`
	Abstract      string `json:"abstract,omitempty"`
	CitationCount int    `json:"citation_count"`
}

// GraphEdge is a directed citation relation between two node identifiers.
// SelfLoop marks edges whose endpoints are the same paper; these are
// recorded but excluded from ranking amplification.
type GraphEdge struct {
	From     string       `json:"from"`
	To       string       `json:"to"`
	Relation EdgeRelation `json:"relation"`
	SelfLoop bool         `json:"self_loop,omitempty"`
}

// Graph is a one-hop citation neighborhood rooted at a paper. Nodes are
// deduplicated by identifier; cycles are tolerated because traversal never
// goes beyond one hop.
type Graph struct {
	Root  string
	Nodes map[string]*GraphNode
	Edges []GraphEdge
}

// NewGraph creates an empty graph rooted at the given paper identifier.
func NewGraph(root string) *Graph {
	return &Graph{
		Root:  root,
		Nodes: make(map[string]*GraphNode),
	}
}

// AddNode inserts or replaces a node. Last write wins on identifier
// collision, mirroring provider refresh semantics.
func (g *Graph) AddNode(n *GraphNode) {
	if n == nil || n.ID == "" {
		return
	}
	g.Nodes[n.ID] = n
}

// AddEdge records a citation edge. Both endpoints must already be present
// in the node set; edges referencing unknown nodes are dropped.
func (g *Graph) AddEdge(from, to string, relation EdgeRelation) {
	if _, ok := g.Nodes[from]; !ok {
		return
	}
	if _, ok := g.Nodes[to]; !ok {
		return
	}
	g.Edges = append(g.Edges, GraphEdge{
		From:     from,
		To:       to,
		Relation: relation,
		SelfLoop: from == to,
	})
}

// Neighbors returns the identifiers directly connected to the root,
// excluding the root itself and self-loop edges.
func (g *Graph) Neighbors() map[string]bool {
	neighbors := make(map[string]bool)
	for _, e := range g.Edges {
		if e.SelfLoop {
			continue
		}
		switch {
		case e.From == g.Root:
			neighbors[e.To] = true
		case e.To == g.Root:
			neighbors[e.From] = true
		}
	}
	delete(neighbors, g.Root)
	return neighbors
}

// NodeIDs returns all node identifiers in lexicographic order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
