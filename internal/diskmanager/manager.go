package diskmanager

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/mikalv/Pure64/internal/errdefs"
	"github.com/mikalv/Pure64/internal/ramfs"
	"github.com/mikalv/Pure64/internal/stream"
)

var (
	ErrDiskNotInitialized = errors.New("disk not initialized")
	ErrFileNotFound       = fmt.Errorf("file %w", errdefs.ErrNotFound)
	ErrNotADirectory      = fmt.Errorf("directory %w", errdefs.ErrNotFound)
	ErrPathExists         = errdefs.ErrExist
	ErrInvalidPath        = fmt.Errorf("%w: invalid path", errdefs.ErrInvalidArgument)
)

type Config struct {
	DiskPath string

	// Boot binaries used when formatting. Transactions reuse the binaries
	// already present in the image.
	Boot BootImages

	Image ImageOptions
}

type Manager struct {
	// configuration
	config Config

	// sync so concurrent requests won't step on each other
	mu sync.RWMutex

	// tree of the image as last read or written
	fs *ramfs.FileSystem

	// USB gadget handler (injected dependency)
	gadget Gadget
}

// New opens an existing image and exposes it through gadget. The caller is
// responsible for calling Close() when done to clean up resources.
//
// Example usage:
//
//	config := diskmanager.Config{DiskPath: "pure64.img"}
//	manager, err := diskmanager.New(config, diskmanager.NewNoOpGadget())
//	if err != nil {
//	    return err
//	}
//	defer manager.Close()
func New(config Config, gadget Gadget) (*Manager, error) {
	m := &Manager{
		config: config,
		gadget: gadget,
	}

	if _, err := os.Stat(m.config.DiskPath); err != nil {
		return nil, fmt.Errorf("disk image %s doesn't exist: %w", m.config.DiskPath, err)
	}
	fs, _, err := openImage(m.config.DiskPath)
	if err != nil {
		return nil, err
	}
	m.fs = fs

	if err := m.gadget.Initialize(); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}

func openImage(diskPath string) (*ramfs.FileSystem, BootImages, error) {
	f, err := os.Open(diskPath)
	if err != nil {
		return nil, BootImages{}, fmt.Errorf("failed to open disk: %w", err)
	}
	defer f.Close()

	s := stream.New(f)
	boot, err := ReadBootImages(s)
	if err != nil {
		return nil, BootImages{}, fmt.Errorf("failed to read boot loaders from %s: %w", diskPath, err)
	}
	fs, err := ImportImage(s)
	if err != nil {
		return nil, BootImages{}, fmt.Errorf("failed to read %s: %w", diskPath, err)
	}
	return fs, boot, nil
}

// writeImageFile runs write against a temporary file next to diskPath and
// renames it over diskPath once write succeeds. On failure the previous
// image is left as it was.
func writeImageFile(diskPath string, write func(stream.Stream) error) error {
	dir := filepath.Dir(diskPath)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(diskPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary image: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if err := write(stream.New(tmp)); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close image: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to set image permissions: %w", err)
	}
	if err := os.Rename(tmpPath, diskPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", diskPath, err)
	}
	return nil
}

// CreateDiskImage writes an empty GPT disk to diskPath.
func CreateDiskImage(diskPath string, mbrCode []byte, opts GPTOptions) error {
	err := writeImageFile(diskPath, func(s stream.Stream) error {
		_, err := InitGPTDisk(s, mbrCode, opts)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create disk: %w", err)
	}
	log.Infof("Created GPT disk %s", diskPath)
	return nil
}

// Format writes a bootable image holding an empty tree to diskPath.
func Format(diskPath string, boot BootImages, opts ImageOptions) (Layout, error) {
	var layout Layout
	err := writeImageFile(diskPath, func(s stream.Stream) error {
		var err error
		layout, err = BuildImage(s, ramfs.New(), boot, opts)
		return err
	})
	if err != nil {
		return Layout{}, fmt.Errorf("failed to format disk: %w", err)
	}
	log.Infof("Formatted %s: %s", diskPath, layout)
	return layout, nil
}

// Format replaces the managed image with an empty one built from the
// configured boot binaries.
func (m *Manager) Format() (Layout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.gadget.Disconnect(); err != nil {
		return Layout{}, fmt.Errorf("failed to disconnect USB gadget: %w", err)
	}
	defer m.reconnect()

	layout, err := Format(m.config.DiskPath, m.config.Boot, m.config.Image)
	if err != nil {
		return Layout{}, err
	}
	m.fs = ramfs.New()
	return layout, nil
}

func (m *Manager) reconnect() {
	if err := m.gadget.Reconnect(); err != nil {
		log.Warnf("Failed to reconnect USB gadget: %v", err)
	}
}

// normalizePath normalizes a file path
func normalizePath(p string) string {
	// Ensure path starts with /
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	// Clean the path
	p = path.Clean(p)

	return p
}

// Transaction is a batch of edits against a private copy of the tree. The
// edits reach the image only when the transaction function returns nil.
type Transaction struct {
	fs *ramfs.FileSystem
}

// WriteFile writes a file within the transaction, replacing any file of the
// same name. The file path is normalized and parent directories are created
// automatically.
func (t *Transaction) WriteFile(filePath string, reader io.Reader, size int64) error {
	filePath = normalizePath(filePath)
	if filePath == "/" {
		return ErrInvalidPath
	}

	if size < 0 {
		return fmt.Errorf("%w: %s: negative size %d", errdefs.ErrInvalidArgument, filePath, size)
	}

	// size comes from the caller, so the buffer grows with what is read
	data, err := io.ReadAll(io.LimitReader(reader, size+1))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filePath, err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("%w: %s: got %d bytes, expected %d", errdefs.ErrIO, filePath, len(data), size)
	}

	if f := t.fs.OpenFile(filePath); f != nil {
		f.SetData(data)
		return nil
	}
	if err := t.fs.WriteFile(filePath, data); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// MakeDir creates dirPath and any missing parents. An existing directory is
// not an error.
func (t *Transaction) MakeDir(dirPath string) error {
	if _, err := t.fs.MakeDirAll(normalizePath(dirPath)); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}

// Remove deletes a file, or a directory when it is empty.
func (t *Transaction) Remove(filePath string) error {
	filePath = normalizePath(filePath)
	if t.fs.OpenDir(filePath) != nil {
		return t.fs.RemoveDir(filePath)
	}
	return t.fs.RemoveFile(filePath)
}

// RemoveFile deletes a file. Directories are not touched.
func (t *Transaction) RemoveFile(filePath string) error {
	return t.fs.RemoveFile(normalizePath(filePath))
}

// RemoveDir deletes an empty directory.
func (t *Transaction) RemoveDir(dirPath string) error {
	return t.fs.RemoveDir(normalizePath(dirPath))
}

// BeginTransaction starts a new transaction for batch write operations. The
// tree is re-read from the image, fn edits it, and the image is rebuilt
// with the boot loaders it already carries.
//
// Example usage:
//
//	err := manager.BeginTransaction(func(tx *diskmanager.Transaction) error {
//	    if err := tx.WriteFile("/file1.txt", reader1, size1); err != nil {
//	        return err
//	    }
//	    return tx.MakeDir("/boot")
//	})
func (m *Manager) BeginTransaction(fn func(*Transaction) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fs == nil {
		return ErrDiskNotInitialized
	}

	fs, boot, err := openImage(m.config.DiskPath)
	if err != nil {
		return err
	}

	tx := &Transaction{fs: fs}
	if err := fn(tx); err != nil {
		return err
	}

	// the host must not read the image while it is being replaced
	if err := m.gadget.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect USB gadget: %w", err)
	}
	defer m.reconnect()

	var layout Layout
	err = writeImageFile(m.config.DiskPath, func(s stream.Stream) error {
		var err error
		layout, err = BuildImage(s, fs, boot, m.config.Image)
		return err
	})
	if err != nil {
		return err
	}
	log.Debugf("Rewrote %s: %s", m.config.DiskPath, layout)

	m.fs = fs
	return nil
}

// ReadFile reads a file from the disk
func (m *Manager) ReadFile(filePath string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.fs == nil {
		return nil, ErrDiskNotInitialized
	}

	f := m.fs.OpenFile(normalizePath(filePath))
	if f == nil {
		return nil, ErrFileNotFound
	}
	// transactions replace the tree rather than mutate it, so the data
	// slice stays valid after the lock is released
	return io.NopCloser(bytes.NewReader(f.Data)), nil
}

// DirEntry is one line of a directory listing.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  uint64 `json:"size"`
}

// ListDir lists a directory: subdirectories first, then files, each in
// insertion order.
func (m *Manager) ListDir(dirPath string) ([]DirEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.fs == nil {
		return nil, ErrDiskNotInitialized
	}

	d := m.fs.OpenDir(normalizePath(dirPath))
	if d == nil {
		return nil, ErrNotADirectory
	}
	entries := make([]DirEntry, 0, len(d.Subdirs)+len(d.Files))
	for _, sub := range d.Subdirs {
		entries = append(entries, DirEntry{Name: sub.Name, IsDir: true})
	}
	for _, f := range d.Files {
		entries = append(entries, DirEntry{Name: f.Name, Size: f.Size()})
	}
	return entries, nil
}

// Walk visits every directory and file of the image in export order.
func (m *Manager) Walk(fn ramfs.WalkFunc) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.fs == nil {
		return ErrDiskNotInitialized
	}
	return m.fs.Walk(fn)
}

// Close cleans up resources held by the Manager
// It implements the io.Closer interface
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gadget != nil {
		m.gadget.destroy()
	}
	m.fs = nil
	return nil
}
