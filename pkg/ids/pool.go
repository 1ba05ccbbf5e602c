// Package ids holds the primary-key pools produced by one entity's generation phase and
// sampled, with replacement, for the foreign keys of dependent entities.
package ids

import (
	"github.com/google/uuid"

	"github.com/TFMV/rawlayer/pkg/core"
	"github.com/TFMV/rawlayer/pkg/draw"
)

// Pool is an ordered set of identifiers owned by one entity. It is written once, while its
// entity is generated, and read-only after Freeze.
type Pool struct {
	entity string
	ids    []uuid.UUID
	frozen bool

	// index is built on the first Contains call.
	index map[uuid.UUID]struct{}
}

// NewPool returns an empty, writable pool for entity.
func NewPool(entity string, capacity int) *Pool {
	if capacity < 0 {
		capacity = 0
	}
	return &Pool{
		entity: entity,
		ids:    make([]uuid.UUID, 0, capacity),
	}
}

// Generate draws n fresh identifiers from src and returns the frozen pool.
func Generate(entity string, src *draw.Source, n int) (*Pool, error) {
	if n < 0 {
		return nil, &core.ConfigError{Field: entity, Value: n, Message: "count must not be negative"}
	}
	p := NewPool(entity, n)
	for i := 0; i < n; i++ {
		p.Add(src.UUID())
	}
	p.Freeze()
	return p, nil
}

// Add appends id to the pool. Adding to a frozen pool is a programming error.
func (p *Pool) Add(id uuid.UUID) {
	if p.frozen {
		panic("ids: add to frozen pool " + p.entity)
	}
	p.ids = append(p.ids, id)
	p.index = nil
}

// Freeze marks generation of the owning entity as complete.
func (p *Pool) Freeze() {
	p.frozen = true
}

// Frozen reports whether the pool is complete.
func (p *Pool) Frozen() bool {
	return p.frozen
}

// Entity returns the name of the owning entity.
func (p *Pool) Entity() string {
	return p.entity
}

// Len returns the number of identifiers.
func (p *Pool) Len() int {
	return len(p.ids)
}

// At returns the i-th identifier in generation order.
func (p *Pool) At(i int) uuid.UUID {
	return p.ids[i]
}

// IDs returns the identifiers in generation order. The slice must not be modified.
func (p *Pool) IDs() []uuid.UUID {
	return p.ids
}

// Contains reports whether id belongs to the pool.
func (p *Pool) Contains(id uuid.UUID) bool {
	if p.index == nil {
		p.index = make(map[uuid.UUID]struct{}, len(p.ids))
		for _, v := range p.ids {
			p.index[v] = struct{}{}
		}
	}
	_, ok := p.index[id]
	return ok
}

// Sample draws one identifier uniformly, with replacement.
func (p *Pool) Sample(src *draw.Source) (uuid.UUID, error) {
	i, err := SampleIndex(p.entity, p.frozen, len(p.ids), src)
	if err != nil {
		return uuid.Nil, err
	}
	return p.ids[i], nil
}

// SampleIndex draws a uniform index into a pool of size n. It fails with an
// EmptyPoolError when the pool is not complete yet or has no members.
func SampleIndex(entity string, frozen bool, n int, src *draw.Source) (int, error) {
	if !frozen {
		return 0, &core.EmptyPoolError{Entity: entity, Reason: "sampled before generation completed"}
	}
	if n == 0 {
		return 0, &core.EmptyPoolError{Entity: entity, Reason: "pool has no identifiers"}
	}
	return src.Intn(n), nil
}
