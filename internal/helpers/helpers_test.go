package helpers

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/zeebo/blake3"

	"go-bookfetch/internal/models"
)

func TestConvertToSlug(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple string",
			input:    "Hello World",
			expected: "hello_world",
		},
		{
			name:     "already lowercase",
			input:    "hello world",
			expected: "hello_world",
		},
		{
			name:     "with numbers",
			input:    "Catch-22 v2.0",
			expected: "catch-22_v2.0",
		},
		{
			name:     "with colons",
			input:    "Dune: Messiah",
			expected: "dune-messiah", // colon becomes dash, _- simplified to -
		},
		{
			name:     "special characters removed",
			input:    "Test@Title#With$Special%Chars",
			expected: "testtitlewithspecialchars",
		},
		{
			name:     "multiple spaces",
			input:    "Hello   World",
			expected: "hello_world",
		},
		{
			name:     "underscores preserved",
			input:    "some_file_name",
			expected: "some_file_name",
		},
		{
			name:     "dashes preserved",
			input:    "my-cool-book",
			expected: "my-cool-book",
		},
		{
			name:     "dots preserved",
			input:    "v1.0.0",
			expected: "v1.0.0",
		},
		{
			name:     "leading/trailing separators removed",
			input:    "__test__",
			expected: "test",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "only special chars",
			input:    "@#$%^&*()",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertToSlug(tt.input)
			if got != tt.expected {
				t.Errorf("ConvertToSlug(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestBytesToSize(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		bytes    uint64
	}{
		{
			name:     "zero bytes",
			bytes:    0,
			expected: "0B",
		},
		{
			name:     "one byte",
			bytes:    1,
			expected: "1.00B",
		},
		{
			name:     "kilobytes",
			bytes:    1024,
			expected: "1.00KB",
		},
		{
			name:     "megabytes",
			bytes:    1024 * 1024,
			expected: "1.00MB",
		},
		{
			name:     "gigabytes",
			bytes:    1024 * 1024 * 1024,
			expected: "1.00GB",
		},
		{
			name:     "terabytes",
			bytes:    1024 * 1024 * 1024 * 1024,
			expected: "1.00TB",
		},
		{
			name:     "fractional megabytes",
			bytes:    1536 * 1024, // 1.5 MB
			expected: "1.50MB",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BytesToSize(tt.bytes)
			if got != tt.expected {
				t.Errorf("BytesToSize(%d) = %q, want %q", tt.bytes, got, tt.expected)
			}
		})
	}
}

func TestSanitizePath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple path",
			input:    "folder/file.txt",
			expected: "folder/file.txt",
		},
		{
			name:     "path with dots",
			input:    "folder/../other/file.txt",
			expected: "other/file.txt",
		},
		{
			name:     "path traversal attempt",
			input:    "../../etc/passwd",
			expected: "etc/passwd",
		},
		{
			name:     "absolute path",
			input:    "/absolute/path/file.txt",
			expected: "absolute/path/file.txt",
		},
		{
			name:     "current directory",
			input:    "./file.txt",
			expected: "file.txt",
		},
		{
			name:     "complex traversal",
			input:    "a/b/../c/../d",
			expected: "a/d",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizePath(tt.input)
			if got != tt.expected {
				t.Errorf("SanitizePath(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestStringSliceContains(t *testing.T) {
	tests := []struct {
		name     string
		item     string
		slice    []string
		expected bool
	}{
		{
			name:     "item present exact case",
			slice:    []string{"epub", "mobi", "pdf"},
			item:     "mobi",
			expected: true,
		},
		{
			name:     "item present different case",
			slice:    []string{"EPUB", "MOBI", "PDF"},
			item:     "mobi",
			expected: true,
		},
		{
			name:     "item not present",
			slice:    []string{"epub", "mobi", "pdf"},
			item:     "azw3",
			expected: false,
		},
		{
			name:     "empty slice",
			slice:    []string{},
			item:     "anything",
			expected: false,
		},
		{
			name:     "empty item",
			slice:    []string{"epub", "mobi", ""},
			item:     "",
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StringSliceContains(tt.slice, tt.item)
			if got != tt.expected {
				t.Errorf("StringSliceContains(%v, %q) = %v, want %v", tt.slice, tt.item, got, tt.expected)
			}
		})
	}
}

func TestGetExtensionFromMimeType(t *testing.T) {
	tests := []struct {
		name        string
		mimeType    string
		expectedExt string
		expectedOk  bool
	}{
		{
			name:        "epub",
			mimeType:    "application/epub+zip",
			expectedExt: ".epub",
			expectedOk:  true,
		},
		{
			name:        "pdf",
			mimeType:    "application/pdf",
			expectedExt: ".pdf",
			expectedOk:  true,
		},
		{
			name:        "mobi",
			mimeType:    "application/x-mobipocket-ebook",
			expectedExt: ".mobi",
			expectedOk:  true,
		},
		{
			name:        "mp3",
			mimeType:    "audio/mpeg",
			expectedExt: ".mp3",
			expectedOk:  true,
		},
		{
			name:        "m4b",
			mimeType:    "audio/x-m4b",
			expectedExt: ".m4b",
			expectedOk:  true,
		},
		{
			name:        "unknown type",
			mimeType:    "application/octet-stream",
			expectedExt: "",
			expectedOk:  false,
		},
		{
			name:        "mime with params",
			mimeType:    "application/epub+zip; charset=utf-8",
			expectedExt: ".epub",
			expectedOk:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, ok := GetExtensionFromMimeType(tt.mimeType)
			if ext != tt.expectedExt || ok != tt.expectedOk {
				t.Errorf("GetExtensionFromMimeType(%q) = (%q, %v), want (%q, %v)",
					tt.mimeType, ext, ok, tt.expectedExt, tt.expectedOk)
			}
		})
	}
}

func TestCheckAndMakeDir(t *testing.T) {
	// CheckAndMakeDir runs input through SanitizePath, which strips leading
	// slashes, so work relative to a temp directory.
	origDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get current directory: %v", err)
	}

	tempDir := t.TempDir()
	if err := os.Chdir(tempDir); err != nil {
		t.Fatalf("Failed to change to temp directory: %v", err)
	}
	defer os.Chdir(origDir)

	tests := []struct {
		name     string
		dir      string
		expected bool
	}{
		{
			name:     "create new directory",
			dir:      "new_dir",
			expected: true,
		},
		{
			name:     "create nested directory",
			dir:      "nested/path/here",
			expected: true,
		},
		{
			name:     "existing directory (current dir)",
			dir:      ".",
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckAndMakeDir(tt.dir)
			if got != tt.expected {
				t.Errorf("CheckAndMakeDir(%q) = %v, want %v", tt.dir, got, tt.expected)
			}
			if tt.expected && tt.dir != "." {
				fullPath := filepath.Join(tempDir, tt.dir)
				if _, err := os.Stat(fullPath); os.IsNotExist(err) {
					t.Errorf("Directory %q was not created", fullPath)
				}
			}
		})
	}
}

func TestCounterWriter(t *testing.T) {
	var buf bytes.Buffer
	cw := &CounterWriter{Writer: &buf}

	data := []byte("Hello, World!")
	n, err := cw.Write(data)

	if err != nil {
		t.Errorf("CounterWriter.Write() error = %v", err)
	}
	if n != len(data) {
		t.Errorf("CounterWriter.Write() wrote %d bytes, want %d", n, len(data))
	}
	if cw.Total != uint64(len(data)) {
		t.Errorf("CounterWriter.Total = %d, want %d", cw.Total, len(data))
	}

	moreData := []byte(" More data!")
	_, err = cw.Write(moreData)

	if err != nil {
		t.Errorf("CounterWriter.Write() second error = %v", err)
	}
	expectedTotal := uint64(len(data) + len(moreData))
	if cw.Total != expectedTotal {
		t.Errorf("CounterWriter.Total after second write = %d, want %d", cw.Total, expectedTotal)
	}

	if buf.String() != "Hello, World! More data!" {
		t.Errorf("Buffer contents = %q, want %q", buf.String(), "Hello, World! More data!")
	}
}

func TestCheckHash(t *testing.T) {
	tempDir := t.TempDir()
	testFile := filepath.Join(tempDir, "test_file.txt")
	testContent := []byte("Hello, World!")

	if err := os.WriteFile(testFile, testContent, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	sha := sha256.Sum256(testContent)
	shaHex := hex.EncodeToString(sha[:])
	b3 := blake3.Sum256(testContent)
	b3Hex := hex.EncodeToString(b3[:])

	t.Run("no hashes provided", func(t *testing.T) {
		if CheckHash(testFile, models.Hashes{}) {
			t.Error("CheckHash() with no hashes should return false")
		}
	})

	t.Run("nonexistent file", func(t *testing.T) {
		if CheckHash("/nonexistent/file.txt", models.Hashes{BLAKE3: "somehash"}) {
			t.Error("CheckHash() with nonexistent file should return false")
		}
	})

	t.Run("matching blake3", func(t *testing.T) {
		if !CheckHash(testFile, models.Hashes{BLAKE3: b3Hex}) {
			t.Error("CheckHash() with matching BLAKE3 should return true")
		}
	})

	t.Run("matching sha256 fallback", func(t *testing.T) {
		if !CheckHash(testFile, models.Hashes{SHA256: shaHex}) {
			t.Error("CheckHash() with matching SHA256 should return true")
		}
	})

	t.Run("blake3 preferred over sha256", func(t *testing.T) {
		// Wrong BLAKE3 fails even when SHA256 matches.
		if CheckHash(testFile, models.Hashes{BLAKE3: "deadbeef", SHA256: shaHex}) {
			t.Error("CheckHash() with mismatched BLAKE3 should return false")
		}
	})

	t.Run("mismatched sha256", func(t *testing.T) {
		if CheckHash(testFile, models.Hashes{SHA256: "deadbeef"}) {
			t.Error("CheckHash() with mismatched SHA256 should return false")
		}
	})
}
