package database

import (
	"fmt"
	"sort"
	"sync"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/face-enroll/internal/enroll"
	"github.com/kozaktomas/face-enroll/internal/fingerprint"
)

// HNSW graph parameters for the enrolled user set.
const (
	hnswMaxNeighbors = 16  // M
	hnswEfSearch     = 100 // candidate pool per search
)

// Neighbor is an enrolled user close to a query vector.
type Neighbor struct {
	ID       string  `json:"id"`
	Folder   string  `json:"folder"`
	Name     string  `json:"name"`
	Distance float64 `json:"distance"`
}

// UserIndex wraps the HNSW graph for nearest enrolled user search.
type UserIndex struct {
	graph *hnsw.Graph[string]
	users map[string]enroll.UserRecord // Maps HNSW node key to record
	dim   int
	mu    sync.RWMutex
}

// NewUserIndex creates a new empty index.
func NewUserIndex() *UserIndex {
	return &UserIndex{
		users: make(map[string]enroll.UserRecord),
	}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.EfSearch = hnswEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index content with records. The first record fixes the
// dimension; records of another length or with a zero vector are skipped and counted.
func (x *UserIndex) Build(records []enroll.UserRecord) int {
	g := newGraph()
	users := make(map[string]enroll.UserRecord, len(records))
	dim := 0
	skipped := 0

	for _, rec := range records {
		vec := rec.Vector()
		if dim == 0 {
			dim = len(vec)
		}
		if len(vec) != dim || isZero(vec) {
			skipped++
			continue
		}
		g.Add(hnsw.MakeNode(rec.ID(), vec))
		users[rec.ID()] = rec
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.users = users
	x.dim = dim
	x.graph = nil
	if len(users) > 0 {
		x.graph = g
	}
	return skipped
}

// Search finds the k nearest users to query, closest first.
func (x *UserIndex) Search(query []float32, k int) ([]Neighbor, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil || k <= 0 {
		return nil, nil
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), x.dim)
	}
	if isZero(query) {
		return nil, fmt.Errorf("query vector is zero")
	}

	nodes := x.graph.Search(query, k)
	out := make([]Neighbor, 0, len(nodes))
	for _, n := range nodes {
		rec, ok := x.users[n.Key]
		if !ok {
			continue
		}
		out = append(out, Neighbor{
			ID:       rec.ID(),
			Folder:   rec.Folder(),
			Name:     rec.Name(),
			Distance: fingerprint.CosineDistance(query, n.Value),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Distance < out[j].Distance
	})
	return out, nil
}

// Count returns the number of indexed users.
func (x *UserIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.users)
}

// Dim returns the vector length of the indexed users, 0 when empty.
func (x *UserIndex) Dim() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dim
}

func isZero(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}
