package plan

import (
	"github.com/yourorg/fast5-fetcher/internal/index"
)

// Groups maps container path to its members, preserving first-seen container order
// and index order within each container. Keys are exact strings; paths are not cleaned.
type Groups struct {
	keys    []string
	members map[string][]string
}

func NewGroups() *Groups { return &Groups{members: make(map[string][]string)} }

// Group folds items into Groups. Items for an already-seen container accumulate.
func Group(items []index.WorkItem) *Groups {
	g := NewGroups()
	for _, it := range items {
		g.Add(it)
	}
	return g
}

func (g *Groups) Add(it index.WorkItem) {
	if _, ok := g.members[it.Container]; !ok {
		g.keys = append(g.keys, it.Container)
	}
	g.members[it.Container] = append(g.members[it.Container], it.Member)
}

// Containers returns container keys in discovery order. The loose-file key is "".
func (g *Groups) Containers() []string { return g.keys }

func (g *Groups) Members(container string) []string { return g.members[container] }

func (g *Groups) Len() int { return len(g.keys) }
