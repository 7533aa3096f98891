// Package upload validates incoming site payloads and turns them into
// the deployable file set sent to the hosting provider.
//
// Two payload shapes are accepted: a base64-encoded ZIP archive, whose
// entries are extracted and filtered, and a raw (already base64-encoded)
// HTML document, which becomes the site's index.html as-is.
package upload

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"sitedrop/internal/security"
)

// maxExtractedBytes caps the cumulative decompressed size of an archive,
// so a high-ratio ZIP cannot expand far past the request body limit.
const maxExtractedBytes = 50 << 20 // 50 MB

var (
	// ErrMissingFields rejects a request without name, payload or file name.
	ErrMissingFields = errors.New("missing required fields: name, fileData, fileName")

	// ErrUnsupportedType rejects payloads that are neither ZIP nor HTML.
	ErrUnsupportedType = errors.New("unsupported file type: only .zip, .html and .htm are accepted")

	// ErrNoIndex rejects archives without an index.html entry point.
	ErrNoIndex = errors.New("archive must contain an index.html file")

	// ErrArchiveTooLarge rejects archives whose extracted contents exceed
	// the size limit.
	ErrArchiveTooLarge = errors.New("archive contents exceed the extraction size limit")
)

// Request is the client-supplied deployment payload.
type Request struct {
	Name     string `json:"name"`
	FileData string `json:"fileData"`
	FileName string `json:"fileName"`
}

// SiteFile is one deployable file. Content is base64-encoded.
type SiteFile struct {
	Path    string
	Content string
}

// Validate performs the cheap request checks that run before any quota
// bookkeeping: field presence and the deployment name format.
func Validate(req Request) error {
	if req.Name == "" || req.FileData == "" || req.FileName == "" {
		return ErrMissingFields
	}

	if err := security.ValidateSiteName(req.Name); err != nil {
		return fmt.Errorf("invalid site name: %w", err)
	}

	return nil
}

// Process turns a validated request into the deployable file set.
// The branch is chosen by file extension: archives are extracted and
// filtered, raw HTML becomes a single index.html.
func Process(req Request) ([]SiteFile, error) {
	name := strings.ToLower(req.FileName)

	switch {
	case strings.HasSuffix(name, ".zip"):
		return extractArchive(req.FileData)
	case strings.HasSuffix(name, ".html"), strings.HasSuffix(name, ".htm"):
		// Payload arrives base64-encoded already; pass it through.
		return []SiteFile{{Path: "index.html", Content: req.FileData}}, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// extractArchive decodes a base64 ZIP payload and collects every entry
// that passes the safety filter. Unsafe entries are dropped silently;
// the upload only fails when no index.html survives.
func extractArchive(fileData string) ([]SiteFile, error) {
	return extractArchiveLimit(fileData, maxExtractedBytes)
}

func extractArchiveLimit(fileData string, sizeLimit int64) ([]SiteFile, error) {
	raw, err := base64.StdEncoding.DecodeString(fileData)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payload: %w", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("invalid zip archive: %w", err)
	}

	var files []SiteFile
	hasIndex := false
	remaining := sizeLimit

	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		if !security.IsSafeFile(entry.Name) {
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("reading archive entry %s: %w", entry.Name, err)
		}
		content, err := io.ReadAll(io.LimitReader(rc, remaining+1))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading archive entry %s: %w", entry.Name, err)
		}
		if int64(len(content)) > remaining {
			return nil, ErrArchiveTooLarge
		}
		remaining -= int64(len(content))

		files = append(files, SiteFile{
			Path:    entry.Name,
			Content: base64.StdEncoding.EncodeToString(content),
		})

		if strings.EqualFold(entry.Name, "index.html") {
			hasIndex = true
		}
	}

	if !hasIndex {
		return nil, ErrNoIndex
	}

	return files, nil
}
