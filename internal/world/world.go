// Package world is the authority's in-memory object store. It allocates
// object identifiers, owns the rigid bodies, and answers the correction
// engine's lookups.
package world

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"cart-flipper/server/internal/correction"
	"cart-flipper/server/internal/objectid"
)

// ErrIdentifierSpaceExhausted means every disambiguator for the owner has
// been issued.
var ErrIdentifierSpaceExhausted = errors.New("world: identifier space exhausted")

// Object is a spawned world object. A nil body means the object cannot be
// physically moved.
type Object struct {
	id   objectid.ID
	name string
	tags []string
	body *RigidBody
}

// ID returns the object's network identity.
func (o *Object) ID() objectid.ID { return o.id }

func (o *Object) Name() string { return o.name }

func (o *Object) Tags() []string {
	return append([]string(nil), o.tags...)
}

// Body implements correction.Object.
func (o *Object) Body() (correction.Body, bool) {
	if o.body == nil {
		return nil, false
	}
	return o.body, true
}

// RigidBody returns the concrete body, or nil.
func (o *Object) RigidBody() *RigidBody { return o.body }

// Spec describes an object to spawn.
type Spec struct {
	Name string
	Tags []string
	// Body may be nil for static scenery.
	Body *RigidBody
}

// World holds objects owned by one process. Identifiers are drawn at random
// within the owner's namespace and never reissued, even after removal.
type World struct {
	owner uint32

	mu      sync.RWMutex
	objects map[objectid.ID]*Object
	issued  map[uint32]struct{}
	rng     *rand.Rand
}

// New constructs an empty world whose identifiers carry owner.
func New(owner uint32) *World {
	return &World{
		owner:   owner,
		objects: make(map[objectid.ID]*Object),
		issued:  make(map[uint32]struct{}),
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Owner returns the owner half of every identifier this world issues.
func (w *World) Owner() uint32 { return w.owner }

// Spawn adds an object and returns its fresh identifier.
func (w *World) Spawn(spec Spec) (*Object, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	disambiguator, err := w.allocateLocked()
	if err != nil {
		return nil, err
	}
	obj := &Object{
		id:   objectid.ID{Owner: w.owner, Disambiguator: disambiguator},
		name: spec.Name,
		tags: append([]string(nil), spec.Tags...),
		body: spec.Body,
	}
	w.objects[obj.id] = obj
	return obj, nil
}

func (w *World) allocateLocked() (uint32, error) {
	const maxDraws = 64
	for i := 0; i < maxDraws; i++ {
		candidate := w.rng.Uint32()
		if candidate == 0 {
			continue
		}
		if _, taken := w.issued[candidate]; taken {
			continue
		}
		w.issued[candidate] = struct{}{}
		return candidate, nil
	}
	// Dense namespace: fall back to a linear scan.
	for candidate := uint32(1); candidate != 0; candidate++ {
		if _, taken := w.issued[candidate]; !taken {
			w.issued[candidate] = struct{}{}
			return candidate, nil
		}
	}
	return 0, fmt.Errorf("%w: owner %d", ErrIdentifierSpaceExhausted, w.owner)
}

// Resolve implements correction.World.
func (w *World) Resolve(id objectid.ID) (correction.Object, bool) {
	obj, ok := w.Lookup(id)
	if !ok {
		return nil, false
	}
	return obj, true
}

// Lookup returns the concrete object for id.
func (w *World) Lookup(id objectid.ID) (*Object, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	obj, ok := w.objects[id]
	return obj, ok
}

// Remove destroys the object. Its identifier stays reserved.
func (w *World) Remove(id objectid.ID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.objects[id]; !ok {
		return false
	}
	delete(w.objects, id)
	return true
}

// Len reports the number of live objects.
func (w *World) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.objects)
}

// Objects returns the live objects ordered by identifier.
func (w *World) Objects() []*Object {
	w.mu.RLock()
	objects := make([]*Object, 0, len(w.objects))
	for _, obj := range w.objects {
		objects = append(objects, obj)
	}
	w.mu.RUnlock()
	sort.Slice(objects, func(i, j int) bool {
		return objects[i].id.Disambiguator < objects[j].id.Disambiguator
	})
	return objects
}

// Step integrates every body by dt seconds.
func (w *World) Step(dt float64) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, obj := range w.objects {
		if obj.body != nil {
			obj.body.Integrate(dt)
		}
	}
}

var _ correction.World = (*World)(nil)
