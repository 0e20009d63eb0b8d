package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"go-bookfetch/internal/models"
)

// cliNotifier prints transient notices to the terminal. It stands in for
// the toast surface of a richer frontend.
type cliNotifier struct{}

func newNotifier() cliNotifier { return cliNotifier{} }

func (cliNotifier) Info(msg string)  { fmt.Println(msg) }
func (cliNotifier) Warn(msg string)  { fmt.Println("Warning: " + msg) }
func (cliNotifier) Error(msg string) { fmt.Fprintln(os.Stderr, "Error: "+msg) }

// promptConfirmer runs request confirmation interactively on stdin. With
// --yes it confirms without prompting and submits no note.
type promptConfirmer struct {
	skipPrompt bool
	reader     *bufio.Reader
}

func newConfirmer() *promptConfirmer {
	return &promptConfirmer{skipPrompt: yesFlag, reader: bufio.NewReader(os.Stdin)}
}

func (p *promptConfirmer) ConfirmRequest(ctx context.Context, draft models.RequestPayload, allowNotes bool) (bool, string, error) {
	what := draft.BookData.Title
	if draft.Context.RequestLevel == models.RequestLevelRelease && draft.ReleaseData != nil {
		what = fmt.Sprintf("%s (%s release)", draft.BookData.Title, draft.ReleaseData.Source)
	}
	fmt.Printf("Policy requires a request for this item: %s\n", what)

	if p.skipPrompt {
		return true, "", nil
	}

	fmt.Print("Submit request? [y/N]: ")
	answer, err := p.reader.ReadString('\n')
	if err != nil {
		return false, "", fmt.Errorf("reading confirmation: %w", err)
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer != "y" && answer != "yes" {
		return false, "", nil
	}

	var note string
	if allowNotes {
		fmt.Print("Optional note (enter to skip): ")
		note, err = p.reader.ReadString('\n')
		if err != nil {
			return false, "", fmt.Errorf("reading note: %w", err)
		}
		note = strings.TrimSpace(note)
	}
	return true, note, nil
}

// confirmAction is a generic y/N prompt honoring --yes.
func confirmAction(prompt string) (bool, error) {
	if yesFlag {
		return true, nil
	}
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("reading confirmation: %w", err)
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}
