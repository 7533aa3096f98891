package upload

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
)

// makeZip builds a base64-encoded ZIP archive from path -> content pairs.
func makeZip(t *testing.T, entries map[string]string) string {
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

func TestValidate_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"no name", Request{FileData: "aGk=", FileName: "site.zip"}},
		{"no fileData", Request{Name: "mysite", FileName: "site.zip"}},
		{"no fileName", Request{Name: "mysite", FileData: "aGk="}},
		{"empty request", Request{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate(tt.req); !errors.Is(err, ErrMissingFields) {
				t.Errorf("Expected ErrMissingFields, got %v", err)
			}
		})
	}
}

func TestValidate_NameFormat(t *testing.T) {
	req := Request{Name: "My Site", FileData: "aGk=", FileName: "site.zip"}
	if err := Validate(req); err == nil {
		t.Errorf("Expected rejection of name with uppercase and space")
	}

	req.Name = "my-site-1"
	if err := Validate(req); err != nil {
		t.Errorf("Expected valid name to pass, got %v", err)
	}
}

func TestProcess_UnsupportedFileType(t *testing.T) {
	req := Request{Name: "mysite", FileData: "aGk=", FileName: "site.tar.gz"}
	if _, err := Process(req); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("Expected ErrUnsupportedType, got %v", err)
	}
}

func TestProcess_RawHTMLPassthrough(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("<h1>hi</h1>"))

	for _, fileName := range []string{"page.html", "page.htm", "PAGE.HTML"} {
		files, err := Process(Request{Name: "mysite", FileData: payload, FileName: fileName})
		if err != nil {
			t.Fatalf("Process(%s) failed: %v", fileName, err)
		}
		if len(files) != 1 {
			t.Fatalf("Expected exactly one file, got %d", len(files))
		}
		if files[0].Path != "index.html" {
			t.Errorf("Expected path index.html, got %s", files[0].Path)
		}
		if files[0].Content != payload {
			t.Errorf("Content must pass through unchanged")
		}
	}
}

func TestProcess_ArchiveExtraction(t *testing.T) {
	data := makeZip(t, map[string]string{
		"index.html": "<h1>home</h1>",
		"style.css":  "body{}",
	})

	files, err := Process(Request{Name: "mysite", FileData: data, FileName: "site.zip"})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("Expected 2 files, got %d", len(files))
	}

	byPath := map[string]string{}
	for _, f := range files {
		byPath[f.Path] = f.Content
	}

	decoded, err := base64.StdEncoding.DecodeString(byPath["index.html"])
	if err != nil {
		t.Fatalf("Content is not valid base64: %v", err)
	}
	if string(decoded) != "<h1>home</h1>" {
		t.Errorf("Unexpected index.html content: %s", decoded)
	}
}

func TestProcess_ArchiveFiltersUnsafeEntries(t *testing.T) {
	data := makeZip(t, map[string]string{
		"index.html":       "<h1>home</h1>",
		"a.exe":            "MZ",
		"../../etc/passwd": "root:x:0:0",
	})

	files, err := Process(Request{Name: "mysite", FileData: data, FileName: "site.zip"})
	if err != nil {
		t.Fatalf("Unsafe entries must be dropped, not fail the upload: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("Expected only index.html to survive, got %d files", len(files))
	}
	if files[0].Path != "index.html" {
		t.Errorf("Expected index.html, got %s", files[0].Path)
	}
}

func TestProcess_ArchiveRequiresIndex(t *testing.T) {
	data := makeZip(t, map[string]string{
		"about.html": "<h1>about</h1>",
		"style.css":  "body{}",
	})

	if _, err := Process(Request{Name: "mysite", FileData: data, FileName: "site.zip"}); !errors.Is(err, ErrNoIndex) {
		t.Errorf("Expected ErrNoIndex, got %v", err)
	}
}

func TestProcess_ArchiveIndexCaseInsensitive(t *testing.T) {
	data := makeZip(t, map[string]string{
		"INDEX.html": "<h1>home</h1>",
	})

	files, err := Process(Request{Name: "mysite", FileData: data, FileName: "site.zip"})
	if err != nil {
		t.Fatalf("Uppercase index must satisfy the entry point check: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("Expected 1 file, got %d", len(files))
	}
}

func TestProcess_ArchiveSkipsDirectories(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if _, err := zw.Create("assets/"); err != nil {
		t.Fatalf("Failed to create dir entry: %v", err)
	}
	w, err := zw.Create("index.html")
	if err != nil {
		t.Fatalf("Failed to create entry: %v", err)
	}
	if _, err := w.Write([]byte("<h1>hi</h1>")); err != nil {
		t.Fatalf("Failed to write entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	data := base64.StdEncoding.EncodeToString(buf.Bytes())
	files, err := Process(Request{Name: "mysite", FileData: data, FileName: "site.zip"})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("Directory entries must be skipped, got %d files", len(files))
	}
}

func TestExtractArchive_DecompressedSizeCapped(t *testing.T) {
	data := makeZip(t, map[string]string{
		"index.html": "<h1>home</h1>",
		"big.txt":    string(bytes.Repeat([]byte("a"), 4096)),
	})

	if _, err := extractArchiveLimit(data, 64); !errors.Is(err, ErrArchiveTooLarge) {
		t.Errorf("Expected ErrArchiveTooLarge, got %v", err)
	}

	// The same archive fits when the cumulative limit is large enough.
	if _, err := extractArchiveLimit(data, 1<<20); err != nil {
		t.Errorf("Expected archive under the limit to extract, got %v", err)
	}
}

func TestProcess_InvalidBase64(t *testing.T) {
	_, err := Process(Request{Name: "mysite", FileData: "not-base64!!!", FileName: "site.zip"})
	if err == nil {
		t.Errorf("Expected error for invalid base64 payload")
	}
}

func TestProcess_CorruptArchive(t *testing.T) {
	data := base64.StdEncoding.EncodeToString([]byte("this is not a zip"))
	_, err := Process(Request{Name: "mysite", FileData: data, FileName: "site.zip"})
	if err == nil {
		t.Errorf("Expected error for corrupt archive")
	}
}
