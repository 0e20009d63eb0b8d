package paths

import (
	"strings"
	"testing"

	"go-bookfetch/internal/models"
)

func TestGeneratePath(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		data     map[string]string
		expected string
		wantErr  bool
	}{
		{
			name:     "single placeholder",
			pattern:  "{author}",
			data:     map[string]string{"author": "Frank Herbert"},
			expected: "frank_herbert",
		},
		{
			name:     "author and title",
			pattern:  "{author}/{title}",
			data:     map[string]string{"author": "Frank Herbert", "title": "Dune Messiah"},
			expected: "frank_herbert/dune_messiah",
		},
		{
			name:     "provider and id",
			pattern:  "{provider}/{bookId}",
			data:     map[string]string{"provider": "openlib", "bookId": "OL123"},
			expected: "openlib/ol123",
		},
		{
			name:     "literal segments survive",
			pattern:  "library/{format}/{title}",
			data:     map[string]string{"format": "EPUB", "title": "Hyperion"},
			expected: "library/epub/hyperion",
		},
		{
			name:     "missing value falls back",
			pattern:  "{author}/{title}",
			data:     map[string]string{"title": "Beowulf"},
			expected: "unknown_author/beowulf",
		},
		{
			name:    "unknown tag rejected",
			pattern: "{modelName}/{title}",
			data:    map[string]string{"title": "Dune"},
			wantErr: true,
		},
		{
			name:     "no placeholders",
			pattern:  "flat",
			data:     nil,
			expected: "flat",
		},
		{
			name:    "traversal rejected",
			pattern: "../{title}",
			data:    map[string]string{"title": "Dune"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GeneratePath(tt.pattern, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("GeneratePath() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.expected {
				t.Errorf("GeneratePath() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestGeneratePathStripsLeadingSeparator(t *testing.T) {
	got, err := GeneratePath("/{title}", map[string]string{"title": "Dune"})
	if err != nil {
		t.Fatalf("GeneratePath() error = %v", err)
	}
	if strings.HasPrefix(got, "/") {
		t.Errorf("GeneratePath() = %q, expected a relative path", got)
	}
}

func TestBookData(t *testing.T) {
	book := models.Book{
		ID:       "book-1",
		Provider: "openlib",
		Title:    "Dune",
		Author:   "Frank Herbert",
		Year:     1965,
		Format:   "epub",
	}

	data := BookData(book)
	if data["author"] != "Frank Herbert" || data["title"] != "Dune" {
		t.Errorf("BookData() = %v, missing author/title", data)
	}
	if data["year"] != "1965" {
		t.Errorf("BookData() year = %q, want %q", data["year"], "1965")
	}

	data = BookData(models.Book{ID: "book-2"})
	if _, ok := data["year"]; ok {
		t.Error("BookData() should omit year when unset")
	}
}
