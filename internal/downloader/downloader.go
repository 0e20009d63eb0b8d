package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"go-bookfetch/internal/helpers"
	"go-bookfetch/internal/models"
	"go-bookfetch/internal/paths"
)

var (
	ErrHashMismatch = errors.New("fetched file hash mismatch")
	ErrHttpStatus   = errors.New("unexpected HTTP status code")
	ErrFileSystem   = errors.New("filesystem error") // Covers create, remove, rename
)

// FileSource streams a completed task's file from the shelf server. The
// caller owns the response body.
type FileSource interface {
	FetchFile(ctx context.Context, taskID string) (*http.Response, error)
}

// Downloader saves completed task files locally, with existing-file reuse
// and hash verification.
type Downloader struct {
	source      FileSource
	savePath    string
	pathPattern string
}

// New creates a downloader rooted at savePath. pathPattern, when non-empty,
// overrides the default author/title directory layout (see paths.GeneratePath).
func New(source FileSource, savePath, pathPattern string) *Downloader {
	return &Downloader{source: source, savePath: savePath, pathPattern: pathPattern}
}

// findExistingFile scans dirPath for a file with the given base name and
// extension whose hash matches. With no hashes provided, a name match is
// not enough: the file must be re-verified against server hashes, so we
// report no match and let the fetch overwrite.
func findExistingFile(dirPath, baseNameWithoutExt, expectedExt string, hashes models.Hashes) (string, bool, error) {
	if hashes.SHA256 == "" && hashes.BLAKE3 == "" {
		return "", false, nil
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading directory %s: %w", dirPath, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if !strings.EqualFold(strings.TrimSuffix(name, ext), baseNameWithoutExt) {
			continue
		}
		if !strings.EqualFold(ext, expectedExt) {
			continue
		}
		fullPath := filepath.Join(dirPath, name)
		if helpers.CheckHash(fullPath, hashes) {
			return fullPath, true, nil
		}
		log.Debugf("Hash mismatch for existing file %s, will re-fetch", fullPath)
	}
	return "", false, nil
}

func (d *Downloader) checkExistingFile(targetFilepath string, hashes models.Hashes) (string, bool, error) {
	targetDir := filepath.Dir(targetFilepath)
	baseName := filepath.Base(targetFilepath)
	ext := filepath.Ext(baseName)

	foundPath, exists, err := findExistingFile(targetDir, strings.TrimSuffix(baseName, ext), ext, hashes)
	if err != nil {
		return "", false, fmt.Errorf("%w: check for existing file: %v", ErrFileSystem, err)
	}
	if exists {
		log.Infof("Found valid existing file %s, skipping fetch", foundPath)
		return foundPath, true, nil
	}
	return "", false, nil
}

// filenameFromResponse extracts a filename from the Content-Disposition
// header, empty when absent or unparseable.
func filenameFromResponse(resp *http.Response) string {
	contentDisposition := resp.Header.Get("Content-Disposition")
	if contentDisposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentDisposition)
	if err != nil {
		log.WithError(err).Warnf("Could not parse Content-Disposition header: %s", contentDisposition)
		return ""
	}
	return params["filename"]
}

// targetPath builds the local save path for a book's file. Server-supplied
// filenames are sanitized and only their base name is trusted.
func (d *Downloader) targetPath(book models.Book, serverFilename string) string {
	dir := d.savePath
	if d.pathPattern != "" {
		if rel, err := paths.GeneratePath(d.pathPattern, paths.BookData(book)); err == nil {
			dir = filepath.Join(dir, rel)
		} else {
			log.WithError(err).Warnf("Invalid save path pattern %q, using default layout", d.pathPattern)
		}
	}
	if dir == d.savePath {
		if author := helpers.ConvertToSlug(book.Author); author != "" {
			dir = filepath.Join(dir, author)
		}
	}

	if serverFilename != "" {
		return filepath.Join(dir, filepath.Base(helpers.SanitizePath(serverFilename)))
	}

	name := helpers.ConvertToSlug(book.Title)
	if name == "" {
		name = book.ID
	}
	if book.Format != "" {
		name += "." + strings.ToLower(book.Format)
	}
	return filepath.Join(dir, name)
}

func writeToTemp(resp *http.Response, tempFile *os.File) error {
	size, _ := strconv.ParseUint(resp.Header.Get("Content-Length"), 10, 64)
	counter := &helpers.CounterWriter{Writer: tempFile}

	log.Infof("Fetching %s (%s)...", filepath.Base(tempFile.Name()), helpers.BytesToSize(size))

	if _, err := io.Copy(counter, resp.Body); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("writing to temporary file %s: %w", tempFile.Name(), err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("%w: closing temporary file %s: %w", ErrFileSystem, tempFile.Name(), err)
	}
	return nil
}

// correctExtension sniffs the file's MIME type and fixes the target
// extension when the server's filename disagrees with the content.
func correctExtension(tempFilePath, finalPath string) string {
	f, err := os.Open(tempFilePath)
	if err != nil {
		return finalPath
	}
	defer f.Close()

	buffer := make([]byte, 512)
	n, err := f.Read(buffer)
	if err != nil && err != io.EOF {
		return finalPath
	}

	mimeType := http.DetectContentType(buffer[:n])
	correctExt, ok := helpers.GetExtensionFromMimeType(mimeType)
	if !ok {
		return finalPath
	}

	ext := filepath.Ext(finalPath)
	if strings.EqualFold(ext, correctExt) {
		return finalPath
	}
	log.Debugf("Correcting extension %s to %s based on detected type %s", ext, correctExt, mimeType)
	return strings.TrimSuffix(finalPath, ext) + correctExt
}

func verifyHash(filePath string, hashes models.Hashes) error {
	if hashes.SHA256 == "" && hashes.BLAKE3 == "" {
		log.Debugf("No expected hashes for %s, skipping verification", filePath)
		return nil
	}
	if !helpers.CheckHash(filePath, hashes) {
		return ErrHashMismatch
	}
	log.Infof("Hash verified for %s", filePath)
	return nil
}

// Fetch streams a completed task's file to the save directory and returns
// the final local path. Existing files with matching hashes are reused.
func (d *Downloader) Fetch(ctx context.Context, taskID string, book models.Book, hashes models.Hashes) (string, error) {
	resp, err := d.source.FetchFile(ctx, taskID)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: received status %d fetching task %s", ErrHttpStatus, resp.StatusCode, taskID)
	}

	finalPath := d.targetPath(book, filenameFromResponse(resp))

	existingPath, exists, err := d.checkExistingFile(finalPath, hashes)
	if err != nil {
		return "", err
	}
	if exists {
		return existingPath, nil
	}

	targetDir := filepath.Dir(finalPath)
	if !helpers.CheckAndMakeDir(targetDir) {
		return "", fmt.Errorf("%w: failed to create target directory %s", ErrFileSystem, targetDir)
	}

	tempFile, err := os.CreateTemp(targetDir, filepath.Base(finalPath)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: creating temporary file in %s: %w", ErrFileSystem, targetDir, err)
	}

	shouldCleanupTemp := true
	defer func() {
		if shouldCleanupTemp {
			if removeErr := os.Remove(tempFile.Name()); removeErr != nil {
				log.WithError(removeErr).Warnf("Failed to remove temporary file %s", tempFile.Name())
			}
		}
	}()

	if err := writeToTemp(resp, tempFile); err != nil {
		return "", err
	}

	finalPath = correctExtension(tempFile.Name(), finalPath)
	if err := os.Rename(tempFile.Name(), finalPath); err != nil {
		return "", fmt.Errorf("%w: renaming temporary file %s to %s: %w", ErrFileSystem, tempFile.Name(), finalPath, err)
	}
	shouldCleanupTemp = false

	if err := verifyHash(finalPath, hashes); err != nil {
		return "", err
	}

	log.Infof("Saved %s", finalPath)
	return finalPath, nil
}
