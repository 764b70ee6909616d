// Package ui renders asp command output for a terminal.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/papapumpkin/asp/internal/harness"
	"github.com/papapumpkin/asp/internal/install"
	"github.com/papapumpkin/asp/internal/materialize"
	"github.com/papapumpkin/asp/internal/ref"
)

// Printer writes styled, human-readable output.
type Printer struct {
	w io.Writer
}

// New returns a Printer writing to w, or to os.Stderr when w is nil.
func New(w io.Writer) *Printer {
	if w == nil {
		w = os.Stderr
	}
	return &Printer{w: w}
}

// Info prints a de-emphasized line.
func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintln(p.w, styleMuted.Render(fmt.Sprintf(format, args...)))
}

// Warn prints a warning line.
func (p *Printer) Warn(format string, args ...any) {
	fmt.Fprintln(p.w, styleWarning.Render(iconWarning+" "+fmt.Sprintf(format, args...)))
}

// Error prints an error line.
func (p *Printer) Error(msg string) {
	fmt.Fprintf(p.w, "%s %s\n", styleDanger.Render("error:"), msg)
}

// Success prints a completion line.
func (p *Printer) Success(format string, args ...any) {
	fmt.Fprintln(p.w, styleSuccess.Render(iconDone+" "+fmt.Sprintf(format, args...)))
}

// InstallReport summarizes an install: pruned entries, then every build.
func (p *Printer) InstallReport(r *install.Report) {
	for _, k := range r.Pruned {
		p.Info("pruned %s", k)
	}
	p.BuildResults(r.Results)
	p.Success("installed %d target(s), %d space(s) locked", len(r.Lock.Targets), len(r.Lock.Spaces))
}

// BuildResults prints one line per (target, harness) build and its warnings.
func (p *Printer) BuildResults(results []install.BuildResult) {
	for _, r := range results {
		line := fmt.Sprintf("%s %s/%s", iconItem, r.Target, r.Harness)
		stats := fmt.Sprintf("%d space(s), %d cached", len(r.Bundle.Spaces), r.CacheHits)
		fmt.Fprintf(p.w, "%s %s\n", styleHeading.Render(line), styleMuted.Render(stats))
		fmt.Fprintf(p.w, "  %s\n", styleMuted.Render(r.Bundle.Root))
		for _, w := range r.Warnings {
			fmt.Fprintf(p.w, "  %s\n", styleWarning.Render(iconWarning+" "+w))
		}
	}
}

// Explain prints a locked target's load order.
func (p *Printer) Explain(e install.Explanation) {
	fmt.Fprintln(p.w, styleHeading.Render("target "+e.Target))
	fmt.Fprintf(p.w, "  %s%s\n", styleLabel.Render("compose:"), strings.Join(e.Compose, ", "))
	for i, s := range e.Spaces {
		marker := " "
		if s.Root {
			marker = "*"
		}
		fmt.Fprintf(p.w, "  %2d %s %s %s\n", i+1, marker, s.Key.ID()+"@"+ref.ShortCommit(s.Key.Commit()),
			styleMuted.Render(fmt.Sprintf("%s %s %s", s.Plugin.Name, s.Plugin.Version, s.Integrity)))
		if len(s.Deps) > 0 {
			deps := make([]string, len(s.Deps))
			for j, d := range s.Deps {
				deps[j] = d.ID()
			}
			fmt.Fprintf(p.w, "       %s\n", styleMuted.Render("deps: "+strings.Join(deps, ", ")))
		}
		if len(s.RequiredBy) > 0 {
			roots := make([]string, len(s.RequiredBy))
			for j, r := range s.RequiredBy {
				roots[j] = r.ID()
			}
			fmt.Fprintf(p.w, "       %s\n", styleMuted.Render("required by: "+strings.Join(roots, ", ")))
		}
	}
	for _, id := range e.HarnessIDs() {
		h := e.Harnesses[id]
		fmt.Fprintf(p.w, "  %s%s\n", styleLabel.Render(id+":"), styleMuted.Render(h.EnvHash))
		for _, w := range h.Warnings {
			fmt.Fprintf(p.w, "    %s\n", styleWarning.Render(iconWarning+" "+w))
		}
	}
}

// HarnessStatus pairs a harness id with its detection result.
type HarnessStatus struct {
	ID     harness.ID
	Detect harness.DetectResult
}

// Harnesses prints the availability of each harness.
func (p *Printer) Harnesses(statuses []HarnessStatus) {
	for _, s := range statuses {
		if !s.Detect.Available {
			fmt.Fprintf(p.w, "%s %s\n", styleDanger.Render(iconFailed+" "+string(s.ID)), styleMuted.Render(s.Detect.Reason))
			continue
		}
		fmt.Fprintf(p.w, "%s %s\n", styleSuccess.Render(iconDone+" "+string(s.ID)),
			styleMuted.Render(fmt.Sprintf("%s (%s)", s.Detect.Version, s.Detect.Path)))
		if len(s.Detect.Capabilities) > 0 {
			fmt.Fprintf(p.w, "  %s%s\n", styleLabel.Render("supports:"), strings.Join(s.Detect.Capabilities, ", "))
		}
	}
}

// Findings prints validation findings and returns how many were errors.
func (p *Printer) Findings(found []install.Finding) int {
	var errs int
	for _, f := range found {
		if f.Error {
			errs++
			fmt.Fprintf(p.w, "  %s %s\n", styleDanger.Render("•"), f.String())
			continue
		}
		fmt.Fprintf(p.w, "  %s %s\n", styleWarning.Render("•"), f.String())
	}
	if errs == 0 {
		p.Success("valid (%d warning(s))", len(found))
	} else {
		fmt.Fprintln(p.w, styleDanger.Render(fmt.Sprintf("%s %d error(s)", iconFailed, errs)))
	}
	return errs
}

// GCResult summarizes a garbage collection.
func (p *Printer) GCResult(r install.GCResult) {
	for _, root := range r.DroppedRoots {
		p.Info("dropped missing root %s", root)
	}
	for _, s := range r.SkippedLeased {
		p.Info("kept leased %s", s)
	}
	p.Success("gc removed %d snapshot(s), %d cache entries, %d temp dir(s)",
		len(r.RemovedSnapshots), len(r.RemovedCache), r.RemovedTemp)
}

// WatchChange announces a rebuild triggered by a dev Space edit.
func (p *Printer) WatchChange(c materialize.Change) {
	fmt.Fprintf(p.w, "\n%s %s\n", styleHeading.Render("changed "+c.ID), styleMuted.Render(c.File))
}
