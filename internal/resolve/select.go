package resolve

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/papapumpkin/asp/internal/manifest"
	"github.com/papapumpkin/asp/internal/ref"
	"github.com/papapumpkin/asp/internal/registry"
)

type selection struct {
	commit   string
	manifest *manifest.Space
}

// selectCommit maps one reference to a commit and its manifest, honoring
// pins. Results are memoized per reference string for the walk.
func (w *walk) selectCommit(ctx context.Context, reference ref.Reference, chain []string) (selection, error) {
	cacheKey := reference.String()
	if pin, ok := w.opts.Pinned[reference.ID]; ok {
		cacheKey += "#" + pin
	}
	if sel, ok := w.cache[cacheKey]; ok {
		return sel, nil
	}

	fail := func(kind Kind, err error) (selection, error) {
		return selection{}, &Error{Kind: kind, Reference: reference.String(), Chain: chain, Err: err}
	}

	if reference.IsDev() {
		m, err := manifest.LoadSpace(w.r.reg.WorkingPath(reference.ID))
		if err != nil {
			if errors.Is(err, manifest.ErrNoManifest) {
				return fail(KindUnknownSpace, fmt.Errorf("%w: %w", ErrUnknownSpace, err))
			}
			return fail(KindInvalidManifest, fmt.Errorf("%w: %w", ErrInvalidManifest, err))
		}
		if err := manifest.Join(m.Validate(reference.ID)); err != nil {
			return fail(KindInvalidManifest, fmt.Errorf("%w: %w", ErrInvalidManifest, err))
		}
		sel := selection{commit: ref.DevCommit, manifest: m}
		w.cache[cacheKey] = sel
		return sel, nil
	}

	var commit string
	var err error
	if pin, ok := w.opts.Pinned[reference.ID]; ok && pin != ref.DevCommit {
		commit, err = w.checkPin(ctx, reference, pin)
	} else {
		commit, err = w.lookup(ctx, reference)
	}
	if err != nil {
		var re *Error
		if errors.As(err, &re) {
			re.Reference, re.Chain = reference.String(), chain
			return selection{}, re
		}
		return fail(classify(err))
	}

	m, err := w.readManifest(ctx, reference.ID, commit)
	if err != nil {
		return fail(classify(err))
	}
	sel := selection{commit: commit, manifest: m}
	w.cache[cacheKey] = sel
	return sel, nil
}

// lookup resolves an unpinned selector against the registry.
func (w *walk) lookup(ctx context.Context, reference ref.Reference) (string, error) {
	reg := w.r.reg
	id := reference.ID
	switch reference.Selector.Kind {
	case ref.KindGitPin:
		return reg.ResolveCommit(ctx, id, reference.Selector.Value)
	case ref.KindDistTag:
		return reg.ResolveDistTag(ctx, id, reference.Selector.Value)
	case ref.KindSemver:
		return w.highestMatching(ctx, reference)
	}
	return "", fmt.Errorf("unsupported selector kind %q", reference.Selector.Kind)
}

// highestMatching picks the greatest tagged version satisfying a semver
// selector.
func (w *walk) highestMatching(ctx context.Context, reference ref.Reference) (string, error) {
	constraint, err := semver.NewConstraint(reference.Selector.Constraint())
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnsatisfiable, reference, err)
	}
	tags, err := w.r.reg.ListTags(ctx, reference.ID)
	if err != nil {
		return "", err
	}

	var best *semver.Version
	var commit string
	for _, t := range tags {
		v, err := semver.NewVersion(t.Version)
		if err != nil || !constraint.Check(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best, commit = v, t.Commit
		}
	}
	if best == nil {
		return "", fmt.Errorf("%w: no version of %s satisfies %s", ErrUnsatisfiable, reference.ID, reference.Selector.Value)
	}
	return commit, nil
}

// checkPin verifies that a pinned commit still satisfies the selector.
// Dist-tags accept any pin; that is what makes a lock stable while the
// tag moves.
func (w *walk) checkPin(ctx context.Context, reference ref.Reference, pin string) (string, error) {
	conflict := func(reason string) error {
		return &Error{Kind: KindConflict, Err: fmt.Errorf("%w: locked %s@%s %s; upgrade %s to re-resolve",
			ErrConflict, reference.ID, ref.ShortCommit(pin), reason, reference.ID)}
	}

	switch reference.Selector.Kind {
	case ref.KindGitPin:
		want, err := w.r.reg.ResolveCommit(ctx, reference.ID, reference.Selector.Value)
		if err != nil {
			return "", err
		}
		if want != pin {
			return "", conflict("differs from git pin " + reference.Selector.Value)
		}
	case ref.KindSemver:
		m, err := w.readManifest(ctx, reference.ID, pin)
		if err != nil {
			return "", err
		}
		v, err := m.SemVersion()
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidManifest, err)
		}
		constraint, err := semver.NewConstraint(reference.Selector.Constraint())
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrUnsatisfiable, reference, err)
		}
		if !constraint.Check(v) {
			return "", conflict(fmt.Sprintf("is version %s which does not satisfy %s", v, reference.Selector.Value))
		}
	}
	return pin, nil
}

func (w *walk) readManifest(ctx context.Context, id, commit string) (*manifest.Space, error) {
	data, err := w.r.reg.ReadFile(ctx, id, commit, manifest.SpaceFileName)
	if err != nil {
		return nil, err
	}
	m, err := manifest.ParseSpace(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s@%s: %w", ErrInvalidManifest, id, ref.ShortCommit(commit), err)
	}
	if err := manifest.Join(m.Validate(id)); err != nil {
		return nil, fmt.Errorf("%w: %s@%s: %w", ErrInvalidManifest, id, ref.ShortCommit(commit), err)
	}
	return m, nil
}

// classify maps registry and manifest errors onto resolution kinds and
// ensures the matching sentinel is in the chain.
func classify(err error) (Kind, error) {
	var kind Kind
	var sentinel error
	switch {
	case errors.Is(err, registry.ErrUnknownSpace), errors.Is(err, ErrUnknownSpace):
		kind, sentinel = KindUnknownSpace, ErrUnknownSpace
	case errors.Is(err, registry.ErrAmbiguousDistTag), errors.Is(err, ErrAmbiguousDistTag):
		kind, sentinel = KindAmbiguousDistTag, ErrAmbiguousDistTag
	case errors.Is(err, registry.ErrUnknownDistTag), errors.Is(err, registry.ErrUnknownCommit), errors.Is(err, ErrUnsatisfiable):
		kind, sentinel = KindUnsatisfiable, ErrUnsatisfiable
	case errors.Is(err, ErrInvalidManifest), errors.Is(err, registry.ErrFileNotFound):
		kind, sentinel = KindInvalidManifest, ErrInvalidManifest
	default:
		return KindRegistry, err
	}
	if errors.Is(err, sentinel) {
		return kind, err
	}
	return kind, fmt.Errorf("%w: %w", sentinel, err)
}
