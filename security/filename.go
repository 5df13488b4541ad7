package security

import (
	"path/filepath"
	"strings"
)

// AllowedEvidenceExtensions is the whitelist of file types accepted as
// evidence. Executables and scripts never belong in an evidence bundle.
var AllowedEvidenceExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".svg",
	".txt", ".json", ".html", ".md", ".csv", ".pdf",
	".mp4", ".webm", ".zip",
}

// SanitizeFilename removes dangerous path sequences and normalizes filename
func SanitizeFilename(filename string) string {
	if filename == "" {
		return "file"
	}

	filename = filepath.Base(filename)

	filename = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, filename)

	if len(filename) > 255 {
		filename = filename[:255]
	}

	if filename == "" || filename == "." || filename == ".." {
		filename = "file"
	}

	return filename
}

// ValidateExtension checks if file extension is in whitelist
func ValidateExtension(filename string, allowed []string) bool {
	if filename == "" || len(allowed) == 0 {
		return false
	}

	ext := strings.ToLower(filepath.Ext(filename))
	ext = strings.TrimPrefix(ext, ".")

	for _, allowedExt := range allowed {
		allowedLower := strings.ToLower(allowedExt)
		allowedLower = strings.TrimPrefix(allowedLower, ".")
		if allowedLower == ext {
			return true
		}
	}
	return false
}
