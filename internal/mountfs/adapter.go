// Package mountfs adapts a *sofs.FileSystem to the narrow callback shape
// a kernel-facing mount daemon would drive. It does not bind to any
// actual kernel mount point or FUSE library; that binding is left as the
// boundary a real implementation would sit behind.
package mountfs

import (
	"sync"

	"github.com/joelpinheiro/sofs13/pkg/sofs"
)

// Adapter serializes every call into a *sofs.FileSystem behind one
// mutex, standing in for the single-threaded execution model the core
// assumes a caller already provides.
type Adapter struct {
	mu   sync.Mutex
	fsys *sofs.FileSystem
}

// New wraps fsys for serialized access through Adapter's methods.
func New(fsys *sofs.FileSystem) *Adapter {
	return &Adapter{fsys: fsys}
}

// Lookup resolves a path to its Stat.
func (a *Adapter) Lookup(path string, proc sofs.Process) (sofs.Stat, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fsys.Lookup(path, proc)
}

// Getattr is an alias for Lookup kept distinct because a real mount
// daemon calls it on a resolved handle rather than a path in the
// common case; here both resolve through the same path-based lookup.
func (a *Adapter) Getattr(path string, proc sofs.Process) (sofs.Stat, error) {
	return a.Lookup(path, proc)
}

// Readdir lists a directory's in-use entry names.
func (a *Adapter) Readdir(path string, proc sofs.Process) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fsys.ReadDir(path, proc)
}

// Read reads into buf starting at off.
func (a *Adapter) Read(path string, off int64, buf []byte, proc sofs.Process) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fsys.ReadFile(path, off, buf, proc)
}

// Write writes data starting at off, growing the file as needed.
func (a *Adapter) Write(path string, off int64, data []byte, proc sofs.Process) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fsys.WriteFile(path, off, data, proc)
}

// Create makes a new regular file.
func (a *Adapter) Create(path string, proc sofs.Process) (sofs.Stat, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fsys.Create(path, proc)
}

// Mkdir makes a new, empty directory.
func (a *Adapter) Mkdir(path string, proc sofs.Process) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fsys.Mkdir(path, proc)
}

// Remove unlinks a file, symlink, or empty directory.
func (a *Adapter) Remove(path string, proc sofs.Process) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fsys.Remove(path, proc)
}

// Rename moves oldPath to newPath within the same parent directory.
func (a *Adapter) Rename(oldPath, newPath string, proc sofs.Process) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fsys.Rename(oldPath, newPath, proc)
}

// Symlink creates a symbolic link whose literal target is target.
func (a *Adapter) Symlink(path, target string, proc sofs.Process) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fsys.Symlink(path, target, proc)
}

// Readlink returns a symbolic link's literal target without following it.
func (a *Adapter) Readlink(path string, proc sofs.Process) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fsys.Readlink(path, proc)
}

// Check runs the consistency checker against the wrapped volume.
func (a *Adapter) Check() ([]sofs.Violation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return sofs.Check(a.fsys)
}

// Close releases the wrapped volume.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fsys.Close()
}
