// Package harness defines the contract every agent harness backend
// implements and the helpers they share. Orchestrators select an Adapter
// once through a Registry and never inspect the id beyond that lookup.
package harness

import (
	"context"
	"errors"

	"github.com/papapumpkin/asp/internal/manifest"
	"github.com/papapumpkin/asp/internal/ref"
)

// ID identifies a harness backend.
type ID string

// Known harness ids.
const (
	Claude ID = "claude"
	Codex  ID = "codex"
)

// String returns the id.
func (id ID) String() string { return string(id) }

// Adapter translates Spaces into one harness's runtime bundle.
type Adapter interface {
	// ID returns the harness this adapter serves.
	ID() ID
	// MaterializerVersion changes whenever MaterializeSpace output changes
	// shape; it feeds the cache key.
	MaterializerVersion() string
	// Detect locates the harness binary. A missing binary is a negative
	// result, not an error.
	Detect(ctx context.Context, opts RunOptions) DetectResult
	// ValidateSpace runs harness-specific structural checks on a Space
	// directory without modifying it.
	ValidateSpace(in SpaceInput) Validation
	// MaterializeSpace writes the harness artifact for one Space into
	// outDir, which is empty and owned by the caller.
	MaterializeSpace(ctx context.Context, in SpaceInput, outDir string) ([]string, error)
	// ComposeTarget assembles ordered artifacts into the bundle at
	// in.OutputDir, replacing whatever was there.
	ComposeTarget(ctx context.Context, in ComposeInput) (*Bundle, error)
	// BuildRunArgs derives the full argv, binary first.
	BuildRunArgs(b *Bundle, opts RunOptions) []string
	// RunEnv derives the environment delta for the harness process.
	RunEnv(b *Bundle, opts RunOptions) map[string]string
	// DefaultRunOptions fills harness defaults into project options.
	DefaultRunOptions(opts manifest.HarnessOptions) RunOptions
	// LoadTargetBundle reconstructs a Bundle from what ComposeTarget wrote.
	LoadTargetBundle(dir string) (*Bundle, error)
	// TargetOutputPath returns where a target's bundle lives.
	TargetOutputPath(modulesDir, target string) string
}

// DetectResult reports whether a harness is usable on this machine.
type DetectResult struct {
	Available    bool
	Path         string
	Version      string
	Capabilities []string
	Reason       string
}

// SpaceInput is one Space as an adapter sees it.
type SpaceInput struct {
	Key       ref.SpaceKey
	Dir       string
	Manifest  *manifest.Space
	Identity  manifest.Identity
	Integrity string
}

// Validation collects structural problems found in a Space.
type Validation struct {
	Errors   []error
	Warnings []string
}

// Err joins the errors under ErrInvalidSpace, or returns nil.
func (v Validation) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return errors.Join(append([]error{ErrInvalidSpace}, v.Errors...)...)
}

// Artifact is one materialized Space ready for composition.
type Artifact struct {
	Key      ref.SpaceKey
	Identity manifest.Identity
	Dir      string
}

// ComposeInput is everything an adapter needs to compose one target.
type ComposeInput struct {
	Target    string
	Artifacts []Artifact
	OutputDir string
	Options   RunOptions
}

// RunOptions are harness invocation options after defaults are applied.
type RunOptions struct {
	Binary      string
	Model       string
	Args        []string
	Settings    map[string]any
	Env         map[string]string
	Prompt      string
	Interactive bool
}

// FromProject converts manifest options, filling binary when unset.
func FromProject(opts manifest.HarnessOptions, binary string) RunOptions {
	ro := RunOptions{
		Binary:      opts.Binary,
		Model:       opts.Model,
		Args:        opts.Args,
		Settings:    opts.Settings,
		Env:         opts.Env,
		Interactive: true,
	}
	if ro.Binary == "" {
		ro.Binary = binary
	}
	return ro
}
