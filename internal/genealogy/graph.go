// Package genealogy turns the single-parent evolution relation into staged
// chains. Building is pure: callers own any caching.
package genealogy

import (
	"sort"

	"pokeindex/internal/localize"
)

// Entity is one node of the relation. Key identifies the node (the species
// slug) and Parent names the key it evolves from, "" for none.
type Entity struct {
	ID     int            `json:"id"`
	Slug   string         `json:"slug"`
	Key    string         `json:"key"`
	Names  localize.Names `json:"names"`
	Parent string         `json:"parent,omitempty"`
}

// Node is one entry of a stage.
type Node struct {
	ID          int            `json:"id"`
	Slug        string         `json:"slug"`
	Names       localize.Names `json:"names"`
	DisplayName string         `json:"display_name"`
}

// Stage is the set of nodes at one depth, grouped by parent in the order the
// parents appear in the previous stage. Siblings are sorted by ID.
type Stage []Node

// Graph indexes a snapshot of entities for repeated chain lookups.
type Graph struct {
	nodes    map[string]*node
	children map[string][]string
	// slugs maps entity slugs to their key; lowest ID wins.
	slugs   map[string]string
	slugIDs map[string]int
}

type node struct {
	Node
	key    string
	parent string
}

// NewGraph indexes entities. When several entities share a key the lowest ID
// wins.
func NewGraph(entities []Entity) *Graph {
	g := &Graph{
		nodes:    make(map[string]*node, len(entities)),
		children: make(map[string][]string),
		slugs:    make(map[string]string, len(entities)),
		slugIDs:  make(map[string]int, len(entities)),
	}
	for _, e := range entities {
		key := e.Key
		if key == "" {
			key = e.Slug
		}
		if key == "" {
			continue
		}
		if e.Slug != "" {
			if id, ok := g.slugIDs[e.Slug]; !ok || e.ID < id {
				g.slugs[e.Slug] = key
				g.slugIDs[e.Slug] = e.ID
			}
		}
		if existing, ok := g.nodes[key]; ok && existing.ID <= e.ID {
			continue
		}
		g.nodes[key] = &node{
			Node: Node{
				ID:          e.ID,
				Slug:        e.Slug,
				Names:       e.Names,
				DisplayName: localize.DisplayName(e.Names),
			},
			key:    key,
			parent: e.Parent,
		}
	}
	for key, n := range g.nodes {
		if n.parent != "" && n.parent != key {
			g.children[n.parent] = append(g.children[n.parent], key)
		}
	}
	for parent, keys := range g.children {
		sort.SliceStable(keys, func(i, j int) bool { return g.less(keys[i], keys[j]) })
		g.children[parent] = keys
	}
	return g
}

func (g *Graph) less(a, b string) bool {
	na, nb := g.nodes[a], g.nodes[b]
	if na.ID != nb.ID {
		return na.ID < nb.ID
	}
	return a < b
}

// Len reports the number of indexed nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Has reports whether key is indexed.
func (g *Graph) Has(key string) bool {
	_, ok := g.nodes[key]
	return ok
}

// Resolve maps a key or an entity slug to an indexed key. Keys take
// precedence over slugs.
func (g *Graph) Resolve(name string) (string, bool) {
	if _, ok := g.nodes[name]; ok {
		return name, true
	}
	key, ok := g.slugs[name]
	if !ok {
		return "", false
	}
	_, ok = g.nodes[key]
	return key, ok
}

// Root walks parent links from key while the parent is indexed. A cycle stops
// the walk at the last node not yet visited.
func (g *Graph) Root(key string) (string, bool) {
	if _, ok := g.nodes[key]; !ok {
		return "", false
	}
	visited := map[string]bool{key: true}
	current := key
	for {
		parent := g.nodes[current].parent
		if parent == "" || visited[parent] {
			return current, true
		}
		if _, ok := g.nodes[parent]; !ok {
			return current, true
		}
		visited[parent] = true
		current = parent
	}
}

// Chain returns the stages of the family containing key, root first. An
// unknown key yields an empty slice.
func (g *Graph) Chain(key string) []Stage {
	root, ok := g.Root(key)
	if !ok {
		return []Stage{}
	}
	var stages []Stage
	visited := map[string]bool{root: true}
	level := []string{root}
	for len(level) > 0 {
		stage := make(Stage, 0, len(level))
		var next []string
		for _, k := range level {
			stage = append(stage, g.nodes[k].Node)
			for _, child := range g.children[k] {
				if visited[child] {
					continue
				}
				visited[child] = true
				next = append(next, child)
			}
		}
		stages = append(stages, stage)
		level = next
	}
	return stages
}

// BuildChains computes the chain of every indexed key.
func BuildChains(entities []Entity) map[string][]Stage {
	g := NewGraph(entities)
	out := make(map[string][]Stage, len(g.nodes))
	for key := range g.nodes {
		out[key] = g.Chain(key)
	}
	return out
}
