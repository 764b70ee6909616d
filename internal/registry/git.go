package registry

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DistTagsFile is the registry-relative JSON document mapping
// id → dist-tag → version, read at the registry's HEAD.
const DistTagsFile = "registry/dist-tags.json"

// Git reads a registry from a local git clone. When URL is set, Fetch
// clones into Dir on first use and pulls afterwards; otherwise Dir is
// treated as the registry itself.
type Git struct {
	Dir string
	URL string
}

// NewGit creates a git-backed registry rooted at dir.
func NewGit(dir, url string) *Git {
	return &Git{Dir: dir, URL: url}
}

// ClonePath returns the clone directory under root for a remote registry
// URL. Each URL gets its own clone.
func ClonePath(root, url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(root, "registries", hex.EncodeToString(sum[:8]))
}

// Fetch clones or updates the registry. Failures are transient.
func (g *Git) Fetch(ctx context.Context) error {
	if g.URL == "" {
		if _, err := os.Stat(g.Dir); err != nil {
			return fmt.Errorf("registry %s: %w", g.Dir, err)
		}
		return nil
	}
	if _, err := os.Stat(filepath.Join(g.Dir, ".git")); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(g.Dir), 0o755); err != nil {
			return fmt.Errorf("creating registry parent: %w", err)
		}
		cmd := exec.CommandContext(ctx, "git", "clone", "--quiet", g.URL, g.Dir)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("%w: git clone %s: %s", ErrTransient, g.URL, strings.TrimSpace(string(out)))
		}
		return nil
	}
	if _, err := g.git(ctx, "pull", "--ff-only", "--quiet", "--tags"); err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return nil
}

// ListTags implements Access by listing refs/tags/space/<id>/.
func (g *Git) ListTags(ctx context.Context, id string) ([]Tag, error) {
	out, err := g.git(ctx, "for-each-ref",
		"--format=%(refname:strip=2)%00%(objectname)%00%(*objectname)",
		"refs/tags/space/"+id)
	if err != nil {
		return nil, err
	}

	var tags []Tag
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\x00")
		if len(parts) != 3 {
			continue
		}
		version, ok := parseTagName(id, parts[0])
		if !ok {
			continue
		}
		commit := parts[1]
		if parts[2] != "" {
			commit = parts[2] // annotated tag, use the peeled commit
		}
		tags = append(tags, Tag{Name: parts[0], Version: version, Commit: commit})
	}

	if len(tags) == 0 && !g.exists(ctx, "HEAD", id) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSpace, id)
	}
	return tags, nil
}

// ResolveDistTag implements Access.
func (g *Git) ResolveDistTag(ctx context.Context, id, tag string) (string, error) {
	out, err := g.git(ctx, "show", "HEAD:"+DistTagsFile)
	if err != nil {
		return "", fmt.Errorf("%w: %s@%s (no %s)", ErrUnknownDistTag, id, tag, DistTagsFile)
	}
	var doc map[string]map[string]string
	if err := json.Unmarshal(out, &doc); err != nil {
		return "", fmt.Errorf("parsing %s: %w", DistTagsFile, err)
	}
	pointer, ok := doc[id][tag]
	if !ok {
		if _, known := doc[id]; !known && !g.exists(ctx, "HEAD", id) {
			return "", fmt.Errorf("%w: %s", ErrUnknownSpace, id)
		}
		return "", fmt.Errorf("%w: %s@%s", ErrUnknownDistTag, id, tag)
	}
	tags, err := g.ListTags(ctx, id)
	if err != nil {
		return "", err
	}
	return resolvePointer(id, tag, pointer, tags)
}

// ResolveCommit implements Access.
func (g *Git) ResolveCommit(ctx context.Context, id, rev string) (string, error) {
	out, err := g.git(ctx, "rev-parse", "--verify", "--quiet", rev+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("%w: %s@%s", ErrUnknownCommit, id, rev)
	}
	commit := strings.TrimSpace(string(out))
	if !g.exists(ctx, commit, id) {
		return "", fmt.Errorf("%w: %s has no %s at %s", ErrUnknownSpace, id, SpacePath(id), commit)
	}
	return commit, nil
}

// ReadFile implements Access.
func (g *Git) ReadFile(ctx context.Context, id, commit, name string) ([]byte, error) {
	out, err := g.git(ctx, "show", commit+":"+SpacePath(id)+"/"+name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s@%s:%s", ErrFileNotFound, id, commit, name)
	}
	return out, nil
}

// Extract implements Access by streaming git archive through a tar reader.
func (g *Git) Extract(ctx context.Context, id, commit, dest string) error {
	prefix := SpacePath(id) + "/"
	cmd := exec.CommandContext(ctx, "git", "-C", g.Dir, "archive", "--format=tar", commit, SpacePath(id))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("git archive: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("git archive: %w", err)
	}

	extractErr := untar(stdout, prefix, dest)
	if extractErr != nil {
		_, _ = io.Copy(io.Discard, stdout)
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("git archive %s@%s: %s: %w", id, commit, strings.TrimSpace(stderr.String()), err)
	}
	return extractErr
}

// SpacePath implements Access.
func (g *Git) SpacePath(id string) string { return SpacePath(id) }

// WorkingPath implements Access.
func (g *Git) WorkingPath(id string) string {
	return filepath.Join(g.Dir, SpacesDir, id)
}

// Describe implements Access.
func (g *Git) Describe() Info {
	if g.URL != "" {
		return Info{Type: "git", URL: g.URL}
	}
	return Info{Type: "git", URL: g.Dir}
}

// exists reports whether spaces/<id> is a tree at rev.
func (g *Git) exists(ctx context.Context, rev, id string) bool {
	_, err := g.git(ctx, "cat-file", "-e", rev+":"+SpacePath(id))
	return err == nil
}

func (g *Git) git(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", g.Dir}, args...)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("git %s: %s: %w", args[0], strings.TrimSpace(stderr.String()), err)
	}
	return out, nil
}

// untar writes entries under prefix into dest, rejecting paths that
// escape dest.
func untar(r io.Reader, prefix, dest string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}
		rel, ok := strings.CutPrefix(hdr.Name, prefix)
		if !ok || rel == "" {
			continue
		}
		target := filepath.Join(dest, filepath.FromSlash(rel))
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes destination", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			mode := os.FileMode(0o644)
			if hdr.Mode&0o111 != 0 {
				mode = 0o755
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
		}
	}
}
