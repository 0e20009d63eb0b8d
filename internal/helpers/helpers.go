package helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"

	"go-bookfetch/internal/models"
)

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9._\- ]`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// ConvertToSlug converts a title or author into a filesystem-friendly slug.
// Colons become dashes, whitespace becomes underscores, everything else
// outside [a-z0-9._-] is dropped.
func ConvertToSlug(s string) string {
	slug := strings.ToLower(s)
	slug = strings.ReplaceAll(slug, ":", "-")
	slug = nonSlugChars.ReplaceAllString(slug, "")
	slug = whitespace.ReplaceAllString(slug, "_")
	slug = strings.ReplaceAll(slug, "_-", "-")
	slug = strings.ReplaceAll(slug, "-_", "-")
	return strings.Trim(slug, "_-")
}

// BytesToSize renders a byte count as a human readable string.
func BytesToSize(bytes uint64) string {
	const unit = 1024
	sizes := []string{"B", "KB", "MB", "GB", "TB", "PB"}
	if bytes == 0 {
		return "0B"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(unit)))
	if i >= len(sizes) {
		i = len(sizes) - 1
	}
	return fmt.Sprintf("%.2f%s", float64(bytes)/math.Pow(unit, float64(i)), sizes[i])
}

// SanitizePath cleans a relative path and strips any traversal or leading
// slashes so server-supplied filenames cannot escape the save directory.
func SanitizePath(path string) string {
	cleaned := filepath.Clean(path)
	for strings.HasPrefix(cleaned, "../") {
		cleaned = strings.TrimPrefix(cleaned, "../")
	}
	cleaned = strings.TrimPrefix(cleaned, "/")
	cleaned = strings.TrimPrefix(cleaned, "..")
	return filepath.Clean(cleaned)
}

// StringSliceContains reports whether slice contains item, ignoring case.
func StringSliceContains(slice []string, item string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, item) {
			return true
		}
	}
	return false
}

// bookExtensions maps MIME types the shelf server serves to file extensions.
var bookExtensions = map[string]string{
	"application/epub+zip":             ".epub",
	"application/pdf":                  ".pdf",
	"application/x-mobipocket-ebook":   ".mobi",
	"application/vnd.amazon.ebook":     ".azw3",
	"application/x-cbz":                ".cbz",
	"audio/mpeg":                       ".mp3",
	"audio/mp4":                        ".m4b",
	"audio/x-m4b":                      ".m4b",
	"audio/flac":                       ".flac",
	"audio/ogg":                        ".ogg",
}

// GetExtensionFromMimeType returns the extension for a known book or
// audiobook MIME type. Parameters after a semicolon are ignored.
func GetExtensionFromMimeType(mimeType string) (string, bool) {
	base := strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	ext, ok := bookExtensions[strings.ToLower(base)]
	return ext, ok
}

// CheckAndMakeDir sanitizes dir and creates it if missing.
func CheckAndMakeDir(dir string) bool {
	cleaned := SanitizePath(dir)
	if err := os.MkdirAll(cleaned, 0700); err != nil {
		log.WithError(err).Errorf("Failed to create directory %s", cleaned)
		return false
	}
	return true
}

// CounterWriter counts bytes passing through to the wrapped writer.
type CounterWriter struct {
	Writer io.Writer
	Total  uint64
}

func (cw *CounterWriter) Write(p []byte) (int, error) {
	n, err := cw.Writer.Write(p)
	cw.Total += uint64(n)
	return n, err
}

// CheckHash verifies a downloaded file against the server-provided hashes.
// BLAKE3 is preferred when present, falling back to SHA256. Returns false
// when no hash is available to check against.
func CheckHash(path string, hashes models.Hashes) bool {
	if hashes.BLAKE3 == "" && hashes.SHA256 == "" {
		log.Warnf("No hashes available to verify %s", path)
		return false
	}

	f, err := os.Open(path)
	if err != nil {
		log.WithError(err).Errorf("Failed to open %s for hash check", path)
		return false
	}
	defer f.Close()

	if hashes.BLAKE3 != "" {
		hasher := blake3.New()
		if _, err := io.Copy(hasher, f); err != nil {
			log.WithError(err).Errorf("Failed to hash %s", path)
			return false
		}
		got := hex.EncodeToString(hasher.Sum(nil))
		if strings.EqualFold(got, hashes.BLAKE3) {
			return true
		}
		log.Errorf("BLAKE3 mismatch for %s: got %s, want %s", path, got, hashes.BLAKE3)
		return false
	}

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		log.WithError(err).Errorf("Failed to hash %s", path)
		return false
	}
	got := hex.EncodeToString(hasher.Sum(nil))
	if strings.EqualFold(got, hashes.SHA256) {
		return true
	}
	log.Errorf("SHA256 mismatch for %s: got %s, want %s", path, got, hashes.SHA256)
	return false
}
