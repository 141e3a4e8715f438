// Package ramfs is the in-memory Pure64 file tree and its binary codec. The
// tree is fully materialized before it is exported and fully decoded before
// it is used; there is no on-disk random access.
package ramfs

import (
	"fmt"
	"path"
	"strings"

	"github.com/mikalv/Pure64/internal/errdefs"
)

// File is a named byte buffer.
type File struct {
	Name string
	Data []byte
}

// Size returns the length of the file contents.
func (f *File) Size() uint64 {
	return uint64(len(f.Data))
}

// SetData replaces the file contents with a copy of data.
func (f *File) SetData(data []byte) {
	f.Data = append([]byte(nil), data...)
}

// Dir is a directory. Names of its subdirectories and files share one
// namespace and are unique within it.
type Dir struct {
	Name    string
	Subdirs []*Dir
	Files   []*File
}

// NameExists reports whether name is used by a file or a subdirectory.
func (d *Dir) NameExists(name string) bool {
	for _, f := range d.Files {
		if f.Name == name {
			return true
		}
	}
	for _, s := range d.Subdirs {
		if s.Name == name {
			return true
		}
	}
	return false
}

// AddFile appends an empty file. The directory is unchanged on error.
func (d *Dir) AddFile(name string) (*File, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if d.NameExists(name) {
		return nil, fmt.Errorf("%w: %q", errdefs.ErrExist, name)
	}
	f := &File{Name: name}
	d.Files = append(d.Files, f)
	return f, nil
}

// AddSubdir appends an empty subdirectory. The directory is unchanged on
// error.
func (d *Dir) AddSubdir(name string) (*Dir, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if d.NameExists(name) {
		return nil, fmt.Errorf("%w: %q", errdefs.ErrExist, name)
	}
	s := &Dir{Name: name}
	d.Subdirs = append(d.Subdirs, s)
	return s, nil
}

// Subdir returns the named subdirectory, or nil.
func (d *Dir) Subdir(name string) *Dir {
	for _, s := range d.Subdirs {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// File returns the named file, or nil.
func (d *Dir) File(name string) *File {
	for _, f := range d.Files {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
		return fmt.Errorf("%w: bad entry name %q", errdefs.ErrInvalidArgument, name)
	}
	return nil
}

// FileSystem is a tree rooted at "/".
type FileSystem struct {
	Root *Dir
}

// New returns an empty file system.
func New() *FileSystem {
	return &FileSystem{Root: &Dir{}}
}

// Reset drops every file and directory.
func (fs *FileSystem) Reset() {
	fs.Root = &Dir{}
}

// normalizePath makes p absolute and clean.
func normalizePath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// splitPath returns the elements of a normalized path, none for "/".
func splitPath(p string) []string {
	p = normalizePath(p)
	if p == "/" {
		return nil
	}
	return strings.Split(p[1:], "/")
}

func (fs *FileSystem) walkDirs(parts []string) *Dir {
	d := fs.Root
	for _, part := range parts {
		d = d.Subdir(part)
		if d == nil {
			return nil
		}
	}
	return d
}

// parent resolves the directory holding the last element of p.
func (fs *FileSystem) parent(p string) (*Dir, string, error) {
	parts := splitPath(p)
	if len(parts) == 0 {
		return nil, "", fmt.Errorf("%w: %q is the root directory", errdefs.ErrExist, "/")
	}
	dir := fs.walkDirs(parts[:len(parts)-1])
	if dir == nil {
		return nil, "", fmt.Errorf("%w: parent of %q", errdefs.ErrNotFound, normalizePath(p))
	}
	return dir, parts[len(parts)-1], nil
}

// MakeFile creates an empty file. The parent directory must exist.
func (fs *FileSystem) MakeFile(p string) error {
	_, err := fs.makeFile(p)
	return err
}

func (fs *FileSystem) makeFile(p string) (*File, error) {
	dir, name, err := fs.parent(p)
	if err != nil {
		return nil, err
	}
	return dir.AddFile(name)
}

// MakeDir creates an empty directory. The parent directory must exist.
func (fs *FileSystem) MakeDir(p string) error {
	dir, name, err := fs.parent(p)
	if err != nil {
		return err
	}
	_, err = dir.AddSubdir(name)
	return err
}

// MakeDirAll creates p and any missing parents. Existing directories along
// the way are fine; an existing file is not.
func (fs *FileSystem) MakeDirAll(p string) (*Dir, error) {
	d := fs.Root
	for _, part := range splitPath(p) {
		if next := d.Subdir(part); next != nil {
			d = next
			continue
		}
		next, err := d.AddSubdir(part)
		if err != nil {
			return nil, err
		}
		d = next
	}
	return d, nil
}

// WriteFile creates a new file at p holding a copy of data. Missing parent
// directories are created.
func (fs *FileSystem) WriteFile(p string, data []byte) error {
	if _, err := fs.MakeDirAll(path.Dir(normalizePath(p))); err != nil {
		return err
	}
	f, err := fs.makeFile(p)
	if err != nil {
		return err
	}
	f.SetData(data)
	return nil
}

// RemoveFile deletes the file at p.
func (fs *FileSystem) RemoveFile(p string) error {
	dir, name, err := fs.parent(p)
	if err != nil {
		return err
	}
	for i, f := range dir.Files {
		if f.Name == name {
			dir.Files = append(dir.Files[:i], dir.Files[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: file %q", errdefs.ErrNotFound, normalizePath(p))
}

// RemoveDir deletes the empty directory at p.
func (fs *FileSystem) RemoveDir(p string) error {
	if normalizePath(p) == "/" {
		return fmt.Errorf("%w: cannot remove the root directory", errdefs.ErrInvalidArgument)
	}
	dir, name, err := fs.parent(p)
	if err != nil {
		return err
	}
	for i, s := range dir.Subdirs {
		if s.Name != name {
			continue
		}
		if len(s.Subdirs) > 0 || len(s.Files) > 0 {
			return fmt.Errorf("%w: directory %q is not empty", errdefs.ErrExist, normalizePath(p))
		}
		dir.Subdirs = append(dir.Subdirs[:i], dir.Subdirs[i+1:]...)
		return nil
	}
	return fmt.Errorf("%w: directory %q", errdefs.ErrNotFound, normalizePath(p))
}

// OpenFile returns the file at p, or nil when there is none.
func (fs *FileSystem) OpenFile(p string) *File {
	parts := splitPath(p)
	if len(parts) == 0 {
		return nil
	}
	dir := fs.walkDirs(parts[:len(parts)-1])
	if dir == nil {
		return nil
	}
	return dir.File(parts[len(parts)-1])
}

// OpenDir returns the directory at p, or nil when there is none.
func (fs *FileSystem) OpenDir(p string) *Dir {
	return fs.walkDirs(splitPath(p))
}

// WalkFunc is called for every directory (file == nil) and file in the tree.
type WalkFunc func(p string, dir *Dir, file *File) error

// Walk visits the tree in the order it is encoded: a directory, its
// subdirectories recursively, then its files.
func (fs *FileSystem) Walk(fn WalkFunc) error {
	return walk("/", fs.Root, fn)
}

func walk(p string, d *Dir, fn WalkFunc) error {
	if err := fn(p, d, nil); err != nil {
		return err
	}
	for _, s := range d.Subdirs {
		if err := walk(path.Join(p, s.Name), s, fn); err != nil {
			return err
		}
	}
	for _, f := range d.Files {
		if err := fn(path.Join(p, f.Name), d, f); err != nil {
			return err
		}
	}
	return nil
}
