// Package integrity computes the content hashes that identify Space
// snapshots and the cache keys that identify per-harness materializations.
//
// A tree hash is computed over a sorted manifest of the directory:
//
//	f\x00<path>\x00<mode>\x00<sha256 hex>\n   regular file
//	l\x00<path>\x00<target>\n                symlink
//
// where <path> is slash-separated and relative to the root, <mode> is 755
// when any execute bit is set and 644 otherwise. Empty directories and
// .git are ignored. The tree hash is the sha256 of the manifest, rendered
// as "sha256:<hex>".
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Prefix is the algorithm tag every integrity string starts with.
const Prefix = "sha256:"

// ErrMalformed is returned for integrity strings that are not sha256:<64 hex>.
var ErrMalformed = errors.New("malformed integrity")

type entry struct {
	path string
	line string
}

// HashDir computes the tree hash of root.
func HashDir(root string) (string, error) {
	var entries []entry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("reading link %s: %w", rel, err)
			}
			entries = append(entries, entry{rel, "l\x00" + rel + "\x00" + filepath.ToSlash(target) + "\n"})
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return err
			}
			sum, err := fileSum(path)
			if err != nil {
				return fmt.Errorf("hashing %s: %w", rel, err)
			}
			entries = append(entries, entry{rel, "f\x00" + rel + "\x00" + fileMode(info.Mode()) + "\x00" + sum + "\n"})
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("hashing tree %s: %w", root, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })

	h := sha256.New()
	for _, e := range entries {
		io.WriteString(h, e.line)
	}
	return Prefix + hex.EncodeToString(h.Sum(nil)), nil
}

// Hex returns the hex digest portion of an integrity string, validating
// its shape. Store paths are derived from it.
func Hex(integrity string) (string, error) {
	digest, ok := strings.CutPrefix(integrity, Prefix)
	if !ok || len(digest) != sha256.Size*2 {
		return "", fmt.Errorf("%w: %q", ErrMalformed, integrity)
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", fmt.Errorf("%w: %q", ErrMalformed, integrity)
	}
	return digest, nil
}

// Valid reports whether integrity is a well-formed sha256 tree hash.
func Valid(integrity string) bool {
	_, err := Hex(integrity)
	return err == nil
}

func fileMode(m fs.FileMode) string {
	if m.Perm()&0o111 != 0 {
		return "755"
	}
	return "644"
}

func fileSum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
