// Package resolve turns root Space references into a Closure: every Space
// reachable through declared dependencies, each pinned to one commit, in a
// deterministic dependency-first Load Order.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/papapumpkin/asp/internal/dag"
	"github.com/papapumpkin/asp/internal/manifest"
	"github.com/papapumpkin/asp/internal/ref"
	"github.com/papapumpkin/asp/internal/registry"
)

// Space is one resolved Space in a Closure.
type Space struct {
	Key      ref.SpaceKey
	ID       string
	Commit   string
	Manifest *manifest.Space
	Deps     []ref.SpaceKey // direct dependencies in declared order
	Via      []string       // reference chain that first reached this Space
	Seq      int            // discovery order
}

// IsDev reports whether the Space was resolved from its working tree.
func (s *Space) IsDev() bool { return s.Commit == ref.DevCommit }

// Closure is the result of resolving a set of root references.
type Closure struct {
	Spaces    map[ref.SpaceKey]*Space
	Roots     []ref.SpaceKey
	LoadOrder []ref.SpaceKey

	graph *dag.DAG
}

// Ordered returns the Spaces in Load Order.
func (c *Closure) Ordered() []*Space {
	out := make([]*Space, len(c.LoadOrder))
	for i, k := range c.LoadOrder {
		out[i] = c.Spaces[k]
	}
	return out
}

// Options tune one resolution.
type Options struct {
	// Pinned forces id → commit. A pin must satisfy the selector of every
	// reference to that id or resolution fails with KindConflict.
	Pinned map[string]string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the writer used for verbose progress lines.
func WithLogger(w io.Writer) Option {
	return func(r *Resolver) { r.logger = w }
}

// WithVerbose enables progress lines.
func WithVerbose(v bool) Option {
	return func(r *Resolver) { r.verbose = v }
}

// Resolver resolves references against a registry.
type Resolver struct {
	reg     registry.Access
	logger  io.Writer
	verbose bool
}

// New creates a Resolver reading from reg.
func New(reg registry.Access, opts ...Option) *Resolver {
	r := &Resolver{reg: reg}
	for _, o := range opts {
		o(r)
	}
	if r.logger == nil {
		r.logger = os.Stderr
	}
	return r
}

// Resolve computes the closure of roots. Dependencies are visited depth
// first in declared order; the first visit of a Space fixes its discovery
// order, which breaks ties in the Load Order.
func (r *Resolver) Resolve(ctx context.Context, roots []ref.Reference, opts Options) (*Closure, error) {
	w := &walk{
		r:     r,
		opts:  opts,
		byID:  make(map[string]*Space),
		cache: make(map[string]selection),
	}

	c := &Closure{Spaces: make(map[ref.SpaceKey]*Space)}
	seenRoot := make(map[ref.SpaceKey]bool)
	for _, root := range roots {
		key, err := w.visit(ctx, root, []string{root.String()})
		if err != nil {
			return nil, err
		}
		if !seenRoot[key] {
			seenRoot[key] = true
			c.Roots = append(c.Roots, key)
		}
	}

	g := dag.New()
	ordered := make([]*Space, len(w.order))
	copy(ordered, w.order)
	for _, s := range ordered {
		c.Spaces[s.Key] = s
		if err := g.AddNode(string(s.Key), s.Seq); err != nil {
			return nil, err
		}
	}
	for _, s := range ordered {
		for _, dep := range s.Deps {
			if err := g.AddEdge(string(s.Key), string(dep)); err != nil {
				var ce *dag.CycleError
				if errors.As(err, &ce) {
					return nil, &Error{Kind: KindCycle, Path: ce.Path, Err: ErrCycle}
				}
				return nil, err
			}
		}
	}

	order, err := g.TopologicalSort()
	if err != nil {
		return nil, &Error{Kind: KindCycle, Err: fmt.Errorf("%w: %v", ErrCycle, err)}
	}
	c.LoadOrder = make([]ref.SpaceKey, len(order))
	for i, id := range order {
		c.LoadOrder[i] = ref.SpaceKey(id)
	}
	c.graph = g

	if r.verbose {
		fmt.Fprintf(r.logger, "[asp] resolved %d spaces from %d roots\n", len(c.LoadOrder), len(c.Roots))
	}
	return c, nil
}

// walk holds the state of one depth-first traversal.
type walk struct {
	r     *Resolver
	opts  Options
	byID  map[string]*Space
	order []*Space
	cache map[string]selection
}

func (w *walk) visit(ctx context.Context, reference ref.Reference, chain []string) (ref.SpaceKey, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sel, err := w.selectCommit(ctx, reference, chain)
	if err != nil {
		return "", err
	}

	if existing, ok := w.byID[reference.ID]; ok {
		if existing.Commit != sel.commit {
			return "", &Error{
				Kind:      KindConflict,
				Reference: reference.String(),
				Chain:     chain,
				Other:     existing.Via,
				Err: fmt.Errorf("%w: %s resolves to %s here but %s earlier",
					ErrConflict, reference.ID, ref.ShortCommit(sel.commit), ref.ShortCommit(existing.Commit)),
			}
		}
		return existing.Key, nil
	}

	s := &Space{
		Key:      ref.NewKey(reference.ID, sel.commit),
		ID:       reference.ID,
		Commit:   sel.commit,
		Manifest: sel.manifest,
		Via:      chain,
		Seq:      len(w.order),
	}
	w.byID[reference.ID] = s
	w.order = append(w.order, s)

	deps, err := sel.manifest.DepRefs()
	if err != nil {
		return "", &Error{Kind: KindInvalidManifest, Reference: reference.String(), Chain: chain, Err: fmt.Errorf("%w: %w", ErrInvalidManifest, err)}
	}
	for _, dep := range deps {
		next := append(append([]string(nil), chain...), dep.String())
		key, err := w.visit(ctx, dep, next)
		if err != nil {
			return "", err
		}
		s.Deps = append(s.Deps, key)
	}
	return s.Key, nil
}
