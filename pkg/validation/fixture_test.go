package validation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	packagetypes "github.com/libreseed/pkgverify/pkg/package"
)

// testPackage builds an extracted package directory on disk together with the
// manifest describing it.
type testPackage struct {
	dir   string
	paths *packagetypes.PathsJSON
}

func newTestPackage(t *testing.T) *testPackage {
	t.Helper()

	dir := t.TempDir()
	index := `{"name":"zlib","version":"1.2.13","build":"h166bdaf_4","build_number":4,"subdir":"linux-64","timestamp":1664365240000}`
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "info"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "info", "index.json"), []byte(index), 0644))

	return &testPackage{dir: dir, paths: &packagetypes.PathsJSON{PathsVersion: 1}}
}

func (p *testPackage) addFile(t *testing.T, rel, content string, withSize, withDigest bool) {
	t.Helper()

	full := filepath.Join(p.dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))

	entry := packagetypes.PathsEntry{RelativePath: rel, PathType: packagetypes.PathTypeHardLink}
	if withSize {
		size := uint64(len(content))
		entry.SizeInBytes = &size
	}
	if withDigest {
		d := digestOf(t, content)
		entry.SHA256 = &d
	}
	p.paths.Paths = append(p.paths.Paths, entry)
}

func (p *testPackage) addSymlink(t *testing.T, rel, target string) {
	t.Helper()

	full := filepath.Join(p.dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.Symlink(target, full))

	p.paths.Paths = append(p.paths.Paths, packagetypes.PathsEntry{RelativePath: rel, PathType: packagetypes.PathTypeSoftLink})
}

func (p *testPackage) addDir(t *testing.T, rel string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Join(p.dir, filepath.FromSlash(rel)), 0755))
	p.paths.Paths = append(p.paths.Paths, packagetypes.PathsEntry{RelativePath: rel, PathType: packagetypes.PathTypeDirectory})
}

func (p *testPackage) writePathsJSON(t *testing.T) {
	t.Helper()

	data, err := json.MarshalIndent(p.paths, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(p.dir, "info", "paths.json"), data, 0644))
}

func (p *testPackage) path(rel string) string {
	return filepath.Join(p.dir, filepath.FromSlash(rel))
}

// standardPackage has files with full, partial and no integrity data, a symlink
// and an empty directory.
func standardPackage(t *testing.T) *testPackage {
	t.Helper()

	p := newTestPackage(t)
	p.addFile(t, "include/zlib.h", "/* zlib.h -- interface of the 'zlib' library */\n", true, true)
	p.addFile(t, "lib/libz.so.1.2.13", "\x7fELF not really a shared object", true, true)
	p.addFile(t, "lib/pkgconfig/zlib.pc", "prefix=/opt/anaconda1anaconda2anaconda3\n", true, false)
	p.addFile(t, "share/doc/README", "readme", false, false)
	if runtime.GOOS != "windows" {
		p.addSymlink(t, "lib/libz.so", "libz.so.1.2.13")
	}
	p.addDir(t, "share/empty")
	p.writePathsJSON(t)
	return p
}

func digestOf(t *testing.T, content string) packagetypes.Digest {
	t.Helper()

	sum := sha256.Sum256([]byte(content))
	d, err := packagetypes.ParseDigest(hex.EncodeToString(sum[:]))
	require.NoError(t, err)
	return d
}

func skipWithoutSymlinks(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require extra privileges on windows")
	}
}
