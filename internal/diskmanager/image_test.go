package diskmanager

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikalv/Pure64/internal/errdefs"
	"github.com/mikalv/Pure64/internal/mbr"
	"github.com/mikalv/Pure64/internal/ramfs"
	"github.com/mikalv/Pure64/internal/stream"
)

// testBoot returns boot binaries with recognizable contents: a boot sector
// with both packet templates filled in, and stages of 1000 and 3000 bytes.
func testBoot() BootImages {
	sector := make([]byte, SectorSize)
	for i := range sector[:mbr.Stage2DAPOffset] {
		sector[i] = 0xF4
	}
	for _, off := range []int{mbr.Stage2DAPOffset, mbr.Stage3DAPOffset} {
		sector[off] = 0x10
		binary.LittleEndian.PutUint16(sector[off+6:], 0x0800)
	}
	sector[510], sector[511] = 0x55, 0xAA

	return BootImages{
		MBR:    sector,
		Stage2: bytes.Repeat([]byte{0x22}, 1000),
		Stage3: bytes.Repeat([]byte{0x33}, 3000),
	}
}

func testTree(t *testing.T) *ramfs.FileSystem {
	t.Helper()
	fs := ramfs.New()
	require.NoError(t, fs.WriteFile("/boot/kernel", bytes.Repeat([]byte{0xAB}, 70000)))
	require.NoError(t, fs.WriteFile("/etc/motd", []byte("hello\n")))
	require.NoError(t, fs.MakeDir("/empty"))
	return fs
}

func TestBuildImageLayoutAndDescriptors(t *testing.T) {
	s := stream.NewMemory(0)
	boot := testBoot()

	layout, err := BuildImage(s, ramfs.New(), boot, ImageOptions{})
	require.NoError(t, err)
	assert.Equal(t, uint64(0x2000), layout.Stage2Offset)
	assert.Equal(t, uint64(0x2400), layout.Stage3Offset)
	assert.Equal(t, uint64(0x3000), layout.FilesystemOffset)

	img := s.Bytes()
	assert.Len(t, img, DefaultMinimumImageSize)
	assert.Equal(t, boot.Stage2, img[0x2000:0x2000+1000])
	assert.Equal(t, boot.Stage3, img[0x2400:0x2400+3000])
	// an empty tree is the root record: three zero counts
	assert.Equal(t, make([]byte, 24), img[0x3000:0x3000+24])

	m, err := mbr.FromBytes(img[:SectorSize])
	require.NoError(t, err)
	st2, st3 := m.Stage2(), m.Stage3()
	assert.Equal(t, uint64(0x2000/SectorSize), st2.Sector)
	assert.Equal(t, uint16(2), st2.SectorCount)
	assert.Equal(t, uint64(0x2400/SectorSize), st3.Sector)
	assert.Equal(t, uint16(6), st3.SectorCount)
	assert.Equal(t, uint8(0x10), st3.Size, "packet template is preserved")
	assert.Equal(t, uint16(0x0800), st3.BufferSegment, "packet template is preserved")
	assert.Equal(t, boot.MBR[:mbr.Stage2DAPOffset], img[:mbr.Stage2DAPOffset], "boot code is untouched")
}

func TestBuildImagePadding(t *testing.T) {
	t.Run("below minimum", func(t *testing.T) {
		s := stream.NewMemory(0)
		_, err := BuildImage(s, ramfs.New(), testBoot(), ImageOptions{MinimumSize: 64 * 1024})
		require.NoError(t, err)
		assert.Equal(t, 64*1024, s.Len())
	})

	t.Run("above minimum", func(t *testing.T) {
		s := stream.NewMemory(0)
		_, err := BuildImage(s, testTree(t), testBoot(), ImageOptions{MinimumSize: SectorSize})
		require.NoError(t, err)
		assert.Zero(t, s.Len()%SectorSize)
		assert.Greater(t, s.Len(), 70000)
	})
}

func TestBuildImageRejectsBadBoot(t *testing.T) {
	boot := testBoot()
	boot.MBR = boot.MBR[:100]
	_, err := BuildImage(stream.NewMemory(0), ramfs.New(), boot, ImageOptions{})
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)

	boot = testBoot()
	boot.Stage3 = make([]byte, MaxStageSize+1)
	s := stream.NewMemory(0)
	_, err = BuildImage(s, ramfs.New(), boot, ImageOptions{})
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
	assert.Zero(t, s.Len(), "nothing is written for an oversized stage")
}

func TestBuildImportRoundTrip(t *testing.T) {
	s := stream.NewMemory(0)
	tree := testTree(t)
	_, err := BuildImage(s, tree, testBoot(), ImageOptions{})
	require.NoError(t, err)

	got, err := ImportImage(s)
	require.NoError(t, err)
	assert.Equal(t, tree, got)
}

func TestImportImageWithoutDescriptors(t *testing.T) {
	s := stream.NewMemory(0)
	require.NoError(t, stream.Pad(s, 64*1024))

	_, err := ImportImage(s)
	assert.ErrorIs(t, err, errdefs.ErrCorrupt)
}

func TestReadBootImagesKeepsLayout(t *testing.T) {
	s := stream.NewMemory(0)
	first, err := BuildImage(s, testTree(t), testBoot(), ImageOptions{})
	require.NoError(t, err)

	boot, err := ReadBootImages(s)
	require.NoError(t, err)
	assert.Len(t, boot.Stage2, 2*SectorSize)
	assert.Len(t, boot.Stage3, 6*SectorSize)
	assert.Equal(t, testBoot().Stage2, boot.Stage2[:1000])

	second, err := BuildImage(stream.NewMemory(0), testTree(t), boot, ImageOptions{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
