package vm

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/wippyai/resumable/classfile"
	"github.com/wippyai/resumable/errors"
)

// ClassExt is the file extension of encoded classes on disk.
const ClassExt = ".cls"

// ClassPath finds encoded classes by name: builtins first, then classes
// added in memory, then each directory in order ("a/B" is read from
// dir/a/B.cls).
type ClassPath struct {
	mem  map[string][]byte
	dirs []string
	mu   sync.RWMutex
}

// NewClassPath creates a class path searching dirs.
func NewClassPath(dirs ...string) *ClassPath {
	return &ClassPath{
		mem:  make(map[string][]byte),
		dirs: dirs,
	}
}

// Add registers encoded class bytes under name, replacing any previous
// registration.
func (cp *ClassPath) Add(name string, data []byte) {
	cp.mu.Lock()
	cp.mem[name] = data
	cp.mu.Unlock()
}

// AddClass encodes c and registers it.
func (cp *ClassPath) AddClass(c *classfile.Class) error {
	data, err := c.Encode()
	if err != nil {
		return errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, c.Name)
	}
	cp.Add(c.Name, data)
	return nil
}

// Resolve returns the encoded bytes of the named class.
func (cp *ClassPath) Resolve(name string) ([]byte, error) {
	if data, ok := loadBuiltins().encoded[name]; ok {
		return data, nil
	}

	cp.mu.RLock()
	data, ok := cp.mem[name]
	cp.mu.RUnlock()
	if ok {
		return data, nil
	}

	if name == "" || strings.Contains(name, "..") || strings.HasPrefix(name, "/") {
		return nil, errors.InvalidInput(errors.PhaseResolve, "bad class name "+name)
	}
	for _, dir := range cp.dirs {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)+ClassExt))
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, errors.Resolution(name, err)
		}
	}
	return nil, errors.NotFound(errors.PhaseResolve, "class", name)
}

// Names lists the classes added in memory and found in the directories.
// Builtins are not included.
func (cp *ClassPath) Names() ([]string, error) {
	seen := make(map[string]bool)
	cp.mu.RLock()
	for name := range cp.mem {
		seen[name] = true
	}
	cp.mu.RUnlock()

	for _, dir := range cp.dirs {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, ClassExt) {
				return nil
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			seen[filepath.ToSlash(strings.TrimSuffix(rel, ClassExt))] = true
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(errors.PhaseResolve, errors.KindInvalidInput, err, dir)
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
