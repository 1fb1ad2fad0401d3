// Package filesystem implements the SourceAdapter port over a local
// directory tree. It is the reference adapter: remote sources follow
// the same contract from their own repositories.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/cairn-works/cairn/internal/core/domain"
	"github.com/cairn-works/cairn/internal/core/ports/driven"
)

// Ensure Adapter implements the port.
var _ driven.SourceAdapter = (*Adapter)(nil)

// Adapter lists and fetches documents below a root directory. Hidden
// entries (any path segment starting with ".") are never listed.
type Adapter struct {
	root string
}

// New creates a filesystem adapter rooted at the given directory.
func New(root string) *Adapter {
	return &Adapter{root: filepath.Clean(root)}
}

// Kind identifies the adapter type.
func (a *Adapter) Kind() string { return "filesystem" }

// List walks the tree under req.Path and returns one descriptor per
// regular file, paths relative to the adapter root in slash form,
// sorted for determinism.
func (a *Adapter) List(ctx context.Context, req driven.ListRequest) ([]domain.DocumentDescriptor, error) {
	base := a.root
	if req.Path != "" {
		resolved, err := a.resolve(req.Path)
		if err != nil {
			return nil, err
		}
		base = resolved
	}

	if _, err := os.Stat(base); err != nil {
		return nil, wrapFSError("list "+base, err)
	}

	include, exclude, err := compileFilters(req.Include, req.Exclude)
	if err != nil {
		return nil, err
	}

	var out []domain.DocumentDescriptor
	walkErr := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return wrapFSError("walk "+path, err)
		}

		name := d.Name()
		if path != base && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != base && !req.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(a.root, path)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", path, err)
		}
		rel = filepath.ToSlash(rel)
		if include != nil && !include.MatchString(rel) {
			return nil
		}
		if exclude != nil && exclude.MatchString(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return wrapFSError("stat "+path, err)
		}
		out = append(out, domain.DocumentDescriptor{
			Path:     rel,
			Modified: info.ModTime().UTC(),
		})
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Fetch reads the document's bytes. Paths are resolved against the
// adapter root; escaping it is treated as access denied.
func (a *Adapter) Fetch(ctx context.Context, desc domain.DocumentDescriptor) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := a.resolve(desc.Path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapFSError("read "+desc.Path, err)
	}
	return data, nil
}

// resolve joins the relative path onto the root and rejects escapes.
func (a *Adapter) resolve(rel string) (string, error) {
	joined := filepath.Join(a.root, filepath.FromSlash(rel))
	if joined != a.root && !strings.HasPrefix(joined, a.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path %q escapes the source root", domain.ErrSourceAccessDenied, rel)
	}
	return joined, nil
}

func compileFilters(include, exclude string) (*regexp.Regexp, *regexp.Regexp, error) {
	var inc, exc *regexp.Regexp
	var err error
	if include != "" {
		if inc, err = regexp.Compile(include); err != nil {
			return nil, nil, fmt.Errorf("%w: include pattern: %v", domain.ErrInvalidInput, err)
		}
	}
	if exclude != "" {
		if exc, err = regexp.Compile(exclude); err != nil {
			return nil, nil, fmt.Errorf("%w: exclude pattern: %v", domain.ErrInvalidInput, err)
		}
	}
	return inc, exc, nil
}

// wrapFSError maps filesystem failures onto the source error taxonomy.
func wrapFSError(op string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s: %w: %v", op, domain.ErrSourceNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%s: %w: %v", op, domain.ErrSourceAccessDenied, err)
	default:
		return fmt.Errorf("%s: %w: %v", op, domain.ErrSourceUnavailable, err)
	}
}
