package settings

import (
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

// ResourceKind groups serialized containers by file type.
type ResourceKind int

const (
	ResourceDefinitions ResourceKind = iota + 1
	ResourceInstances
	ResourceStacks
)

// Dir is the conventional sub-directory for the kind inside a search path.
func (k ResourceKind) Dir() string {
	switch k {
	case ResourceDefinitions:
		return "definitions"
	case ResourceInstances:
		return "instances"
	case ResourceStacks:
		return "stacks"
	default:
		return ""
	}
}

// Suffix is the file name suffix for the kind.
func (k ResourceKind) Suffix() string {
	switch k {
	case ResourceDefinitions:
		return ".def.json"
	case ResourceInstances:
		return ".inst.cfg"
	case ResourceStacks:
		return ".stack.cfg"
	default:
		return ""
	}
}

// Locator resolves named documents to readable paths.
type Locator interface {
	Locate(kind ResourceKind, name string) (string, error)
	ReadFile(path string) ([]byte, error)
}

// Discoverer lists every document of a kind.
type Discoverer interface {
	Locator
	Discover(kind ResourceKind) ([]string, error)
}

// Resources locates documents below an ordered list of search paths. Earlier
// paths win.
type Resources struct {
	fs    afero.Fs
	mu    sync.RWMutex
	paths []string
}

// NewResources returns a locator over fsys. A nil fsys uses the OS filesystem.
func NewResources(fsys afero.Fs, searchPaths ...string) *Resources {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	r := &Resources{fs: fsys}
	for _, p := range searchPaths {
		r.AddSearchPath(p)
	}
	return r
}

// AddSearchPath appends path unless it is already present.
func (r *Resources) AddSearchPath(path string) {
	path = filepath.Clean(path)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.paths {
		if existing == path {
			return
		}
	}
	r.paths = append(r.paths, path)
}

// SearchPaths returns the configured search paths.
func (r *Resources) SearchPaths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.paths...)
}

// Locate returns the first existing file for name, checking the kind
// sub-directory of each search path before the search path itself. A miss
// returns an *fs.PathError wrapping fs.ErrNotExist.
func (r *Resources) Locate(kind ResourceKind, name string) (string, error) {
	file := name
	if suffix := kind.Suffix(); !strings.HasSuffix(file, suffix) {
		file += suffix
	}
	for _, root := range r.SearchPaths() {
		for _, candidate := range []string{
			filepath.Join(root, kind.Dir(), file),
			filepath.Join(root, file),
		} {
			if ok, _ := afero.Exists(r.fs, candidate); ok {
				return candidate, nil
			}
		}
	}
	return "", &fs.PathError{Op: "locate", Path: file, Err: fs.ErrNotExist}
}

// ReadFile reads path from the underlying filesystem.
func (r *Resources) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(r.fs, path)
}

// Discover lists every file of kind below the search paths, in search path
// order. Missing search paths are skipped.
func (r *Resources) Discover(kind ResourceKind) ([]string, error) {
	seen := map[string]struct{}{}
	var found []string
	for _, root := range r.SearchPaths() {
		if ok, _ := afero.DirExists(r.fs, root); !ok {
			continue
		}
		sub := afero.NewIOFS(afero.NewBasePathFs(r.fs, root))
		matches, err := doublestar.Glob(sub, "**/*"+kind.Suffix())
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			path := filepath.Join(root, filepath.FromSlash(match))
			if _, dup := seen[path]; dup {
				continue
			}
			seen[path] = struct{}{}
			found = append(found, path)
		}
	}
	return found, nil
}

// resourceID derives a container id from a document path.
func resourceID(kind ResourceKind, path string) string {
	return strings.TrimSuffix(filepath.Base(path), kind.Suffix())
}
