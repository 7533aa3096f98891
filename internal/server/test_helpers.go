package server

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"testing"
)

// makeZipPayload builds a base64-encoded ZIP archive from path -> content
// pairs. This is a test helper shared across multiple test files.
func makeZipPayload(t *testing.T, entries map[string]string) string {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for path, content := range entries {
		w, err := zw.Create(path)
		if err != nil {
			t.Fatalf("Failed to create zip entry %s: %v", path, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("Failed to write zip entry %s: %v", path, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to close zip writer: %v", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}
