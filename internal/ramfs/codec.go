package ramfs

import (
	"encoding/binary"
	"fmt"

	"github.com/mikalv/Pure64/internal/errdefs"
	"github.com/mikalv/Pure64/internal/stream"
)

// On the wire every integer is an unsigned 64-bit little-endian value.
//
//	dir  := name_len | subdir_count | file_count | name | dir... | file...
//	file := name_len | data_len | name | data
const (
	// MaxNameLength bounds decoded names.
	MaxNameLength = 4096

	// reserveLimit caps slice capacity reserved from an untrusted count.
	reserveLimit = 1024

	// dataChunk is the read size for file payloads.
	dataChunk = 64 * 1024
)

// Export encodes the whole tree at the current position of out.
func (fs *FileSystem) Export(out stream.Stream) error {
	return exportDir(fs.Root, out)
}

// Import decodes a tree from the current position of in.
func Import(in stream.Stream) (*FileSystem, error) {
	root := &Dir{}
	if err := importDir(root, in, true); err != nil {
		return nil, err
	}
	return &FileSystem{Root: root}, nil
}

func encodeUint64(out stream.Stream, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return out.WriteFull(b[:])
}

func decodeUint64(in stream.Stream) (uint64, error) {
	var b [8]byte
	if err := in.ReadFull(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func exportDir(d *Dir, out stream.Stream) error {
	for _, v := range []uint64{uint64(len(d.Name)), uint64(len(d.Subdirs)), uint64(len(d.Files))} {
		if err := encodeUint64(out, v); err != nil {
			return err
		}
	}
	if err := out.WriteFull([]byte(d.Name)); err != nil {
		return err
	}
	for _, s := range d.Subdirs {
		if err := exportDir(s, out); err != nil {
			return err
		}
	}
	for _, f := range d.Files {
		if err := exportFile(f, out); err != nil {
			return err
		}
	}
	return nil
}

func exportFile(f *File, out stream.Stream) error {
	if err := encodeUint64(out, uint64(len(f.Name))); err != nil {
		return err
	}
	if err := encodeUint64(out, uint64(len(f.Data))); err != nil {
		return err
	}
	if err := out.WriteFull([]byte(f.Name)); err != nil {
		return err
	}
	return out.WriteFull(f.Data)
}

func readName(in stream.Stream, size uint64, root bool) (string, error) {
	if size > MaxNameLength {
		return "", fmt.Errorf("%w: name length %d", errdefs.ErrCorrupt, size)
	}
	buf := make([]byte, size)
	if err := in.ReadFull(buf); err != nil {
		return "", err
	}
	name := string(buf)
	if !root {
		if err := validateName(name); err != nil {
			return "", fmt.Errorf("%w: %v", errdefs.ErrCorrupt, err)
		}
	}
	return name, nil
}

func reserve(count uint64) int {
	if count > reserveLimit {
		return reserveLimit
	}
	return int(count)
}

func importDir(d *Dir, in stream.Stream, root bool) error {
	nameSize, err := decodeUint64(in)
	if err != nil {
		return err
	}
	subdirCount, err := decodeUint64(in)
	if err != nil {
		return err
	}
	fileCount, err := decodeUint64(in)
	if err != nil {
		return err
	}

	if subdirCount > 0 {
		d.Subdirs = make([]*Dir, 0, reserve(subdirCount))
	}
	if fileCount > 0 {
		d.Files = make([]*File, 0, reserve(fileCount))
	}

	if d.Name, err = readName(in, nameSize, root); err != nil {
		return err
	}

	for i := uint64(0); i < subdirCount; i++ {
		s := &Dir{}
		if err := importDir(s, in, false); err != nil {
			return err
		}
		if d.NameExists(s.Name) {
			return fmt.Errorf("%w: duplicate name %q in %q", errdefs.ErrCorrupt, s.Name, d.Name)
		}
		d.Subdirs = append(d.Subdirs, s)
	}

	for i := uint64(0); i < fileCount; i++ {
		f := &File{}
		if err := importFile(f, in); err != nil {
			return err
		}
		if d.NameExists(f.Name) {
			return fmt.Errorf("%w: duplicate name %q in %q", errdefs.ErrCorrupt, f.Name, d.Name)
		}
		d.Files = append(d.Files, f)
	}

	return nil
}

func importFile(f *File, in stream.Stream) error {
	nameSize, err := decodeUint64(in)
	if err != nil {
		return err
	}
	dataSize, err := decodeUint64(in)
	if err != nil {
		return err
	}
	if f.Name, err = readName(in, nameSize, false); err != nil {
		return err
	}
	f.Data, err = readData(in, dataSize)
	return err
}

// readData grows the buffer chunk by chunk so a corrupt length runs into the
// end of the medium instead of a giant allocation.
func readData(in stream.Stream, size uint64) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	data := make([]byte, 0, reserve(size))
	for remaining := size; remaining > 0; {
		n := uint64(dataChunk)
		if remaining < n {
			n = remaining
		}
		start := len(data)
		data = append(data, make([]byte, n)...)
		if err := in.ReadFull(data[start:]); err != nil {
			return nil, err
		}
		remaining -= n
	}
	return data, nil
}
