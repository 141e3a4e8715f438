package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikalv/Pure64/internal/diskmanager"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pure64.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"image": {"path": "/srv/boot.img"},
		"gpt": {"disk_uuid": "0fc63daf-8483-4772-8e79-3d69d8477de4"},
		"log": {"level": "debug"}
	}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/boot.img", cfg.Image.Path)
	assert.Equal(t, "1M", cfg.Image.MinimumSize, "unset fields keep their default")
	assert.Equal(t, "0fc63daf-8483-4772-8e79-3d69d8477de4", cfg.GPT.DiskUUID)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pure64.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"image":`), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pure64.json")
	cfg := Default()
	cfg.Server.Port = 9000
	cfg.USBGadget.UseNoOp = false

	require.NoError(t, cfg.Save(path))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestParseHex(t *testing.T) {
	v, err := ParseHex("0x1d6b")
	require.NoError(t, err)
	assert.Equal(t, 0x1d6b, v)

	_, err = ParseHex("1d6b")
	assert.Error(t, err)
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"512", 512},
		{"34816", 34816},
		{"0x8800", 0x8800},
		{"64K", 64 * 1024},
		{"1M", 1024 * 1024},
		{"1MiB", 1024 * 1024},
		{"2g", 2 * 1024 * 1024 * 1024},
		{" 4k ", 4096},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		require.NoError(t, err, "ParseSize(%q)", tt.in)
		assert.Equal(t, tt.want, got, "ParseSize(%q)", tt.in)
	}

	for _, bad := range []string{"", "lots", "0x", "0xzz", "-1"} {
		_, err := ParseSize(bad)
		assert.Error(t, err, "ParseSize(%q)", bad)
	}
}

func TestOptions(t *testing.T) {
	cfg := Default()

	img, err := cfg.ImageOptions()
	require.NoError(t, err)
	assert.Equal(t, diskmanager.ImageOptions{MinimumSize: 1024 * 1024}, img)

	gpt, err := cfg.GPTOptions()
	require.NoError(t, err)
	assert.Equal(t, uint64(1024*1024), gpt.DiskSize)
	assert.Empty(t, gpt.DiskUUID)

	gadget, err := cfg.GadgetConfig()
	require.NoError(t, err)
	assert.Equal(t, 0x1d6b, gadget.VendorID)
	assert.Equal(t, 0x0104, gadget.ProductID)
	assert.Equal(t, 0x0100, gadget.BcdDevice)
	assert.Equal(t, 0x0200, gadget.BcdUSB)
	assert.True(t, gadget.ReadOnly)

	cfg.USBGadget.VendorID = "nope"
	_, err = cfg.GadgetConfig()
	assert.ErrorContains(t, err, "vendor_id")

	cfg.GPT.DiskSize = "huge"
	_, err = cfg.GPTOptions()
	assert.ErrorContains(t, err, "gpt.disk_size")
}

func TestLoadBootImages(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Boot = BootConfig{
		MBR:    filepath.Join(dir, "mbr.sys"),
		Stage2: filepath.Join(dir, "pure64.sys"),
		Stage3: filepath.Join(dir, "stage3.sys"),
	}

	_, err := cfg.LoadBootImages()
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, os.WriteFile(cfg.Boot.MBR, make([]byte, 512), 0644))
	require.NoError(t, os.WriteFile(cfg.Boot.Stage2, []byte("two"), 0644))
	require.NoError(t, os.WriteFile(cfg.Boot.Stage3, []byte("three"), 0644))

	boot, err := cfg.LoadBootImages()
	require.NoError(t, err)
	assert.Len(t, boot.MBR, 512)
	assert.Equal(t, []byte("two"), boot.Stage2)
	assert.Equal(t, []byte("three"), boot.Stage3)
}
