// Package paths expands save-path patterns like {author}/{title} into
// sanitized relative directories for fetched files.
package paths

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"go-bookfetch/internal/helpers"
	"go-bookfetch/internal/models"
)

// allowedTags are the placeholders a save-path pattern may use.
var allowedTags = map[string]struct{}{
	"author":   {},
	"title":    {},
	"bookId":   {},
	"format":   {},
	"provider": {},
	"year":     {},
}

var tagRegex = regexp.MustCompile(`\{([^}]+)\}`)

// BookData flattens a book into the tag values a pattern can reference.
func BookData(book models.Book) map[string]string {
	data := map[string]string{
		"author":   book.Author,
		"title":    book.Title,
		"bookId":   book.ID,
		"format":   book.Format,
		"provider": book.Provider,
	}
	if book.Year != 0 {
		data["year"] = fmt.Sprintf("%d", book.Year)
	}
	return data
}

// GeneratePath substitutes placeholders in pattern with sanitized values
// from data and returns the resulting relative path. Unknown tags are an
// error; a tag with no usable value falls back to "unknown_<tag>".
func GeneratePath(pattern string, data map[string]string) (string, error) {
	generated := pattern

	for _, match := range tagRegex.FindAllStringSubmatch(pattern, -1) {
		if len(match) < 2 {
			continue
		}
		tagName := match[1]
		tagWithBraces := match[0]

		if _, allowed := allowedTags[tagName]; !allowed {
			return "", fmt.Errorf("unknown tag in save path pattern: %s", tagWithBraces)
		}

		value := helpers.ConvertToSlug(data[tagName])
		if value == "" {
			value = "unknown_" + strings.ToLower(tagName)
		}
		generated = strings.ReplaceAll(generated, tagWithBraces, value)
	}

	cleaned := filepath.Clean(generated)
	if cleaned == "." || cleaned == "" {
		return "", fmt.Errorf("save path pattern %q produced an empty path", pattern)
	}
	cleaned = strings.TrimPrefix(cleaned, string(filepath.Separator))

	if strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("save path pattern produced traversal sequence: %s", cleaned)
	}

	return cleaned, nil
}
