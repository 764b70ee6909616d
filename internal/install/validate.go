package install

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/papapumpkin/asp/internal/harness"
	"github.com/papapumpkin/asp/internal/lockfile"
	"github.com/papapumpkin/asp/internal/manifest"
	"github.com/papapumpkin/asp/internal/ref"
)

// Finding is one validation message. Space and Harness are empty for
// project-level findings.
type Finding struct {
	Space   ref.SpaceKey
	Harness harness.ID
	Message string
	Error   bool
}

// String renders the finding on one line.
func (f Finding) String() string {
	level := "warning"
	if f.Error {
		level = "error"
	}
	switch {
	case f.Space == "":
		return fmt.Sprintf("%s: %s", level, f.Message)
	case f.Harness == "":
		return fmt.Sprintf("%s: %s: %s", level, f.Space, f.Message)
	}
	return fmt.Sprintf("%s: %s [%s]: %s", level, f.Space, f.Harness, f.Message)
}

// Validate checks the project manifest and, when a lock file exists,
// every locked Space against every selected harness. It reports findings
// rather than failing on them; the error is for I/O problems only.
func (in *Installer) Validate(ctx context.Context, harnessIDs []string) ([]Finding, error) {
	project, err := manifest.LoadProject(in.opts.ProjectFile)
	if err != nil {
		return nil, err
	}
	var out []Finding
	for _, ve := range project.Validate() {
		out = append(out, Finding{Message: ve.Error(), Error: true})
	}

	lf, err := lockfile.Load(in.opts.LockFile)
	if errors.Is(err, lockfile.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	adapters, err := in.opts.Harnesses.Resolve(harnessIDs)
	if err != nil {
		return nil, err
	}
	for _, key := range sortedKeys(lf) {
		found, err := in.validateSpace(ctx, key, lf.Spaces[key], adapters)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}

func (in *Installer) validateSpace(ctx context.Context, key ref.SpaceKey, se lockfile.SpaceEntry, adapters []harness.Adapter) ([]Finding, error) {
	dir := in.opts.Registry.WorkingPath(se.ID)
	if !key.IsDev() {
		snap, err := in.opts.Store.CreateSnapshot(ctx, se.ID, se.Commit, se.Integrity)
		if err != nil {
			return []Finding{{Space: key, Message: err.Error(), Error: true}}, nil
		}
		dir = snap
	}
	m, err := manifest.LoadSpace(dir)
	if err != nil {
		return []Finding{{Space: key, Message: err.Error(), Error: true}}, nil
	}
	var out []Finding
	for _, ve := range m.Validate(se.ID) {
		out = append(out, Finding{Space: key, Message: ve.Error(), Error: true})
	}
	input := harness.SpaceInput{Key: key, Dir: dir, Manifest: m, Identity: m.Identity(), Integrity: se.Integrity}
	for _, a := range adapters {
		v := a.ValidateSpace(input)
		for _, e := range v.Errors {
			out = append(out, Finding{Space: key, Harness: a.ID(), Message: e.Error(), Error: true})
		}
		for _, w := range v.Warnings {
			out = append(out, Finding{Space: key, Harness: a.ID(), Message: w})
		}
	}
	return out, nil
}

func sortedKeys(lf *lockfile.LockFile) []ref.SpaceKey {
	keys := make([]ref.SpaceKey, 0, len(lf.Spaces))
	for k := range lf.Spaces {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
