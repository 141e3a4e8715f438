package webui

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/cors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikalv/Pure64/internal/diskmanager"
	"github.com/mikalv/Pure64/internal/mbr"
)

func testBoot() diskmanager.BootImages {
	sector := make([]byte, diskmanager.SectorSize)
	for _, off := range []int{mbr.Stage2DAPOffset, mbr.Stage3DAPOffset} {
		sector[off] = 0x10
		binary.LittleEndian.PutUint16(sector[off+6:], 0x0800)
	}
	sector[510], sector[511] = 0x55, 0xAA
	return diskmanager.BootImages{
		MBR:    sector,
		Stage2: bytes.Repeat([]byte{0x22}, 600),
		Stage3: bytes.Repeat([]byte{0x33}, 700),
	}
}

func setupTestServer(t *testing.T, maxUpload int64) (http.Handler, *diskmanager.Manager) {
	t.Helper()
	diskPath := filepath.Join(t.TempDir(), "pure64.img")
	_, err := diskmanager.Format(diskPath, testBoot(), diskmanager.ImageOptions{})
	require.NoError(t, err)

	dm, err := diskmanager.New(diskmanager.Config{DiskPath: diskPath, Boot: testBoot()}, diskmanager.NewNoOpGadget())
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })

	h, err := New(dm, maxUpload)
	require.NoError(t, err)
	return NewServerHandler(h, cors.Options{AllowedOrigins: []string{"*"}}), dm
}

func multipartBody(t *testing.T, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	require.NoError(t, w.WriteField("comment", "ignored"))
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func do(t *testing.T, srv http.Handler, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func listing(t *testing.T, srv http.Handler, dir string) []diskmanager.DirEntry {
	t.Helper()
	rec := do(t, srv, "GET", "/api/ls?path="+dir, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Entries
}

func TestHealthHandler(t *testing.T) {
	srv, _ := setupTestServer(t, 0)
	rec := do(t, srv, "GET", "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestIndexHandler(t *testing.T) {
	srv, _ := setupTestServer(t, 0)
	rec := do(t, srv, "POST", "/api/mkdir?path=/boot", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, "GET", "/", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "<td>boot</td><td>dir</td>")
}

func TestUploadAndCat(t *testing.T) {
	srv, dm := setupTestServer(t, 0)

	body, ct := multipartBody(t, "kernel.bin", []byte("kernel bytes"))
	rec := do(t, srv, "POST", "/api/upload?dir=/boot", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp successResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "/boot/kernel.bin", resp.Path)
	assert.Equal(t, int64(12), resp.Size)

	rec = do(t, srv, "GET", "/api/cat?path=/boot/kernel.bin", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "kernel bytes", rec.Body.String())

	// the manager sees the same tree
	entries, err := dm.ListDir("/boot")
	require.NoError(t, err)
	assert.Equal(t, []diskmanager.DirEntry{{Name: "kernel.bin", Size: 12}}, entries)
}

func TestUploadStripsClientDirectories(t *testing.T) {
	srv, _ := setupTestServer(t, 0)

	body, ct := multipartBody(t, "../../etc/passwd", []byte("x"))
	rec := do(t, srv, "POST", "/api/upload", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, []diskmanager.DirEntry{{Name: "passwd", Size: 1}}, listing(t, srv, "/"))
}

func TestUploadOverwritesFile(t *testing.T) {
	srv, _ := setupTestServer(t, 0)

	for _, content := range []string{"first", "second version"} {
		body, ct := multipartBody(t, "motd", []byte(content))
		rec := do(t, srv, "POST", "/api/upload", body, ct)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := do(t, srv, "GET", "/api/cat?path=/motd", nil, "")
	assert.Equal(t, "second version", rec.Body.String())
}

func TestUploadErrors(t *testing.T) {
	srv, _ := setupTestServer(t, 4096)

	rec := do(t, srv, "POST", "/api/upload", bytes.NewBufferString("plain"), "text/plain")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	require.NoError(t, w.WriteField("comment", "no file here"))
	require.NoError(t, w.Close())
	rec = do(t, srv, "POST", "/api/upload", body, w.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	big, ct := multipartBody(t, "big.bin", bytes.Repeat([]byte{1}, 64*1024))
	rec = do(t, srv, "POST", "/api/upload", big, ct)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, listing(t, srv, "/"))

	// a file in the way of the target directory
	small, ct := multipartBody(t, "boot", []byte("x"))
	rec = do(t, srv, "POST", "/api/upload", small, ct)
	require.Equal(t, http.StatusOK, rec.Code)
	small, ct = multipartBody(t, "kernel", []byte("x"))
	rec = do(t, srv, "POST", "/api/upload?dir=/boot", small, ct)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func makeZip(t *testing.T, files map[string]string, dirs ...string) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, d := range dirs {
		_, err := zw.Create(d)
		require.NoError(t, err)
	}
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestUploadZipExtracts(t *testing.T) {
	srv, _ := setupTestServer(t, 0)

	archive := makeZip(t, map[string]string{
		"kernel":         "k",
		"modules/a.ko":   "aaa",
		"../escape.txt":  "nope",
		"modules/b/c.ko": "cc",
	}, "empty/")

	body, ct := multipartBody(t, "bundle.ZIP", archive)
	rec := do(t, srv, "POST", "/api/upload?dir=/sys", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp successResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.FilesExtracted)
	assert.Equal(t, int64(6), resp.Size)

	rec = do(t, srv, "GET", "/api/cat?path=/sys/modules/b/c.ko", nil, "")
	assert.Equal(t, "cc", rec.Body.String())

	names := map[string]bool{}
	for _, e := range listing(t, srv, "/sys") {
		names[e.Name] = e.IsDir
	}
	assert.Equal(t, map[string]bool{"empty": true, "modules": true, "kernel": false}, names)
	assert.Equal(t, []diskmanager.DirEntry{{Name: "sys", IsDir: true}}, listing(t, srv, "/"))
}

func TestUploadBadZipLeavesImage(t *testing.T) {
	srv, _ := setupTestServer(t, 0)

	body, ct := multipartBody(t, "broken.zip", []byte("not a zip"))
	rec := do(t, srv, "POST", "/api/upload", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, listing(t, srv, "/"))
}

func TestMkdirAndRemove(t *testing.T) {
	srv, _ := setupTestServer(t, 0)

	rec := do(t, srv, "POST", "/api/mkdir?path=/a/b", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []diskmanager.DirEntry{{Name: "b", IsDir: true}}, listing(t, srv, "/a"))

	rec = do(t, srv, "DELETE", "/api/rm?path=/a", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code, "non-empty directory")

	rec = do(t, srv, "DELETE", "/api/rm?path=/a/b", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, srv, "DELETE", "/api/rm?path=/a", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, listing(t, srv, "/"))

	rec = do(t, srv, "DELETE", "/api/rm?path=/a", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, "DELETE", "/api/rm", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, srv, "POST", "/api/mkdir", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotFound(t *testing.T) {
	srv, _ := setupTestServer(t, 0)

	rec := do(t, srv, "GET", "/api/cat?path=/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not found")

	rec = do(t, srv, "GET", "/api/ls?path=/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, "GET", "/api/rm?path=/x", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestClearFiles(t *testing.T) {
	srv, _ := setupTestServer(t, 0)

	body, ct := multipartBody(t, "motd", []byte("hi"))
	require.Equal(t, http.StatusOK, do(t, srv, "POST", "/api/upload", body, ct).Code)
	require.Len(t, listing(t, srv, "/"), 1)

	rec := do(t, srv, "POST", "/api/clear", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, listing(t, srv, "/"))
}

func TestCORSHeaders(t *testing.T) {
	srv, _ := setupTestServer(t, 0)

	req := httptest.NewRequest("GET", "/api/health", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUploadZipWithForgedSizeIsRefused(t *testing.T) {
	srv, _ := setupTestServer(t, 0)

	payload := []byte("abc")
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	w, err := zw.CreateRaw(&zip.FileHeader{
		Name:               "huge.bin",
		Method:             zip.Store,
		CRC32:              crc32.ChecksumIEEE(payload),
		CompressedSize64:   uint64(len(payload)),
		UncompressedSize64: 1 << 40,
	})
	require.NoError(t, err)
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	body, ct := multipartBody(t, "forged.zip", buf.Bytes())
	rec := do(t, srv, "POST", "/api/upload", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Empty(t, listing(t, srv, "/"))
}

func TestUploadZipRespectsUncompressedLimit(t *testing.T) {
	srv, _ := setupTestServer(t, 4096)

	// compresses to far less than the limit, inflates past it
	archive := makeZip(t, map[string]string{
		"a.bin": string(make([]byte, 3000)),
		"b.bin": string(make([]byte, 3000)),
	})
	require.Less(t, len(archive), 1024)

	body, ct := multipartBody(t, "bomb.zip", archive)
	rec := do(t, srv, "POST", "/api/upload", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "upload limit")
	assert.Empty(t, listing(t, srv, "/"))
}

func TestUploadZipKeepsDottedNames(t *testing.T) {
	srv, _ := setupTestServer(t, 0)

	archive := makeZip(t, map[string]string{
		"kernel..bak":     "old",
		"a/../../out.txt": "nope",
		"dir..x/file":     "ok",
	})
	body, ct := multipartBody(t, "dots.zip", archive)
	rec := do(t, srv, "POST", "/api/upload", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp successResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.FilesExtracted)

	rec = do(t, srv, "GET", "/api/cat?path=/kernel..bak", nil, "")
	assert.Equal(t, "old", rec.Body.String())
	rec = do(t, srv, "GET", "/api/cat?path=/dir..x/file", nil, "")
	assert.Equal(t, "ok", rec.Body.String())
}
