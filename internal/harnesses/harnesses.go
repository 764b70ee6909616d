// Package harnesses registers the built-in harness adapters. It is the
// only place that names them; adding a harness means adding its id to
// harness, writing its adapter, and one Register call here.
package harnesses

import (
	"github.com/papapumpkin/asp/internal/claude"
	"github.com/papapumpkin/asp/internal/codex"
	"github.com/papapumpkin/asp/internal/harness"
)

// Default returns a registry holding every built-in adapter.
func Default() *harness.Registry {
	r := harness.NewRegistry()
	for _, a := range []harness.Adapter{
		claude.New(),
		codex.New(),
	} {
		if err := r.Register(a); err != nil {
			panic(err)
		}
	}
	return r
}
