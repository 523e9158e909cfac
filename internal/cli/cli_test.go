package cli

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const readme = "zlib general purpose compression library\n"

// writePackage creates a small extracted package with a valid paths.json.
func writePackage(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	sum := sha256.Sum256([]byte(readme))
	files := map[string]string{
		"info/index.json": `{"name":"zlib","version":"1.2.13","build":"h166bdaf_4","build_number":4,"subdir":"linux-64","timestamp":1664365240}`,
		"info/about.json": `{"summary":"compression library","license":"Zlib","home":"https://zlib.net","dev_url":"not a url"}`,
		"info/paths.json": fmt.Sprintf(`{"paths":[{"_path":"share/README","path_type":"hardlink","sha256":"%s","size_in_bytes":%d},{"_path":"share/empty","path_type":"directory"}],"paths_version":1}`,
			hex.EncodeToString(sum[:]), len(readme)),
		"share/README": readme,
	}
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, "share", "empty"), 0755); err != nil {
		t.Fatalf("failed to create empty dir: %v", err)
	}
	return dir
}

// run executes the command line with args and returns stdout and the exit code.
func run(t *testing.T, args ...string) (string, int) {
	t.Helper()

	// Keep any pkgverify.yaml in the working directory out of the test
	t.Chdir(t.TempDir())

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))

	err := cmd.ExecuteContext(context.Background())
	if err == nil {
		return out.String(), ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return out.String(), exitErr.Code
	}
	return out.String() + err.Error(), ExitUsage
}

func TestVerifyCommand(t *testing.T) {
	dir := writePackage(t)

	out, code := run(t, "verify", dir)
	if code != ExitOK {
		t.Fatalf("expected exit code 0, got %d: %s", code, out)
	}
	if !strings.HasPrefix(out, "OK    zlib-1.2.13-h166bdaf_4: 2 entries") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestVerifyCommand_Corrupted(t *testing.T) {
	dir := writePackage(t)
	if err := os.WriteFile(filepath.Join(dir, "share", "README"), []byte(strings.ToUpper(readme)), 0644); err != nil {
		t.Fatalf("failed to tamper: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, "share", "empty")); err != nil {
		t.Fatalf("failed to remove dir: %v", err)
	}

	reportFile := filepath.Join(t.TempDir(), "report.json")
	out, code := run(t, "verify", dir, "--mode", "collect-all", "--workers", "2", "--format", "json", "--report-file", reportFile)
	if code != ExitCorrupted {
		t.Fatalf("expected exit code 1, got %d: %s", code, out)
	}

	var doc struct {
		Reports []struct {
			Status   string `json:"status"`
			Failures []struct {
				Path string `json:"path"`
				Kind string `json:"kind"`
			} `json:"failures"`
		} `json:"reports"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(doc.Reports) != 1 || doc.Reports[0].Status != "corrupted" {
		t.Fatalf("unexpected reports: %+v", doc.Reports)
	}
	failures := doc.Reports[0].Failures
	if len(failures) != 2 || failures[0].Kind != "hash_mismatch" || failures[1].Kind != "not_found" {
		t.Errorf("unexpected failures: %+v", failures)
	}

	written, err := os.ReadFile(reportFile)
	if err != nil {
		t.Fatalf("report file not written: %v", err)
	}
	if string(written) != out {
		t.Error("report file should match stdout")
	}
}

func TestVerifyCommand_Unverifiable(t *testing.T) {
	good := writePackage(t)
	empty := t.TempDir()

	out, code := run(t, "verify", good, empty)
	if code != ExitUnverifiable {
		t.Fatalf("expected exit code 2, got %d: %s", code, out)
	}
	if !strings.Contains(out, "ERROR "+empty) {
		t.Errorf("expected an error line for %s, got %q", empty, out)
	}
}

func TestVerifyCommand_ConfigFile(t *testing.T) {
	dir := writePackage(t)
	if err := os.Remove(filepath.Join(dir, "share", "README")); err != nil {
		t.Fatalf("failed to remove file: %v", err)
	}

	cfgFile := filepath.Join(t.TempDir(), "pkgverify.yaml")
	if err := os.WriteFile(cfgFile, []byte("output:\n  format: yaml\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	out, code := run(t, "--config", cfgFile, "verify", dir)
	if code != ExitCorrupted {
		t.Fatalf("expected exit code 1, got %d: %s", code, out)
	}
	if !strings.Contains(out, "status: corrupted") || !strings.Contains(out, "kind: not_found") {
		t.Errorf("expected yaml report, got %q", out)
	}
}

func TestVerifyCommand_Usage(t *testing.T) {
	if _, code := run(t, "verify"); code != ExitUsage {
		t.Errorf("expected usage error without arguments, got %d", code)
	}
	if _, code := run(t, "verify", t.TempDir(), "--mode", "sometimes"); code != ExitUsage {
		t.Errorf("expected usage error for invalid mode, got %d", code)
	}
}

func TestInspectCommand(t *testing.T) {
	dir := writePackage(t)

	out, code := run(t, "inspect", dir)
	if code != ExitOK {
		t.Fatalf("expected exit code 0, got %d: %s", code, out)
	}
	for _, want := range []string{
		"Package:   zlib-1.2.13-h166bdaf_4",
		"Summary:   compression library",
		"Home:      https://zlib.net",
		"Manifest:  paths.json (version 1)",
		"Entries:   1 directory, 1 hardlink",
		"Declared:  41 B, 1 with sha256",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, code = run(t, "inspect", dir, "--format", "json")
	if code != ExitOK {
		t.Fatalf("expected exit code 0, got %d: %s", code, out)
	}
	var info struct {
		ManifestSource string `json:"manifest_source"`
		WithDigest     int    `json:"with_digest"`
	}
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if info.ManifestSource != "paths.json" || info.WithDigest != 1 {
		t.Errorf("unexpected inspection: %+v", info)
	}
}

func TestVersionCommand(t *testing.T) {
	out, code := run(t, "version")
	if code != ExitOK {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(out, "Version:    "+Version) {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestServeCommand_StopsOnCancel(t *testing.T) {
	t.Chdir(t.TempDir())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--log-level", "error", "serve", "--listen", "127.0.0.1:0", "--root", t.TempDir()})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve should stop cleanly on cancel: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after the context was cancelled")
	}
}

func TestServeCommand_InvalidListen(t *testing.T) {
	out, code := run(t, "serve", "--listen", "127.0.0.1:notaport")
	if code != ExitUsage {
		t.Errorf("expected usage error for a bad listen address, got %d: %s", code, out)
	}
}
