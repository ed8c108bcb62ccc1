// Package startup runs the one-time first launch steps: the disclaimer and
// the prompt for a first game directory.
package startup

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/spf13/afero"

	"github.com/yuzu-emu-archive/yuzu-2-electric-boogaloo/storage"
)

// Disclaimer is shown once, on first launch
const Disclaimer = `yuzu-catalog indexes the game dumps on this computer and starts them in an
external emulator. It does not download, decrypt or distribute games.

Only use games and system files you have dumped from hardware you own.`

// Prompter is the interface the first launch steps talk through
type Prompter interface {
	// ShowDisclaimer displays text and returns once it was dismissed
	ShowDisclaimer(text string) error
	// PromptDirectory asks for a game directory. An empty path skips.
	PromptDirectory() (path string, recursive bool, err error)
}

// Handler runs the first launch steps if the config says they are due
type Handler struct {
	FS         afero.Fs
	ConfigPath string
	Config     *storage.Config
	Prompt     Prompter

	// AddDirectory receives the directory chosen in the follow-up prompt
	AddDirectory func(path string, recursive bool) error
}

// Run shows the disclaimer and follow-up prompt on first launch. The first
// launch flag is cleared and saved before anything is shown, so an
// interrupted first run is not repeated. It reports whether the steps ran.
func (h *Handler) Run() (bool, error) {
	if !h.Config.FirstLaunch {
		return false, nil
	}

	h.Config.FirstLaunch = false
	if err := storage.SaveConfig(h.FS, h.ConfigPath, h.Config); err != nil {
		return true, fmt.Errorf("failed to save config: %w", err)
	}

	if err := h.Prompt.ShowDisclaimer(Disclaimer); err != nil {
		log.Printf("[startup] disclaimer: %v", err)
	}

	// The follow-up runs however the disclaimer was dismissed
	path, recursive, err := h.Prompt.PromptDirectory()
	if err != nil {
		return true, err
	}
	if path == "" || h.AddDirectory == nil {
		return true, nil
	}
	return true, h.AddDirectory(path, recursive)
}

// Console prompts on a line-oriented terminal
type Console struct {
	in  *bufio.Reader
	out io.Writer
}

// NewConsole creates a prompter reading answers from in
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewReader(in), out: out}
}

// ShowDisclaimer prints text and waits for Enter
func (c *Console) ShowDisclaimer(text string) error {
	fmt.Fprintf(c.out, "%s\n\nPress Enter to continue.", text)
	_, err := c.readLine()
	fmt.Fprintln(c.out)
	return err
}

// PromptDirectory asks for a directory and whether to scan below it
func (c *Console) PromptDirectory() (string, bool, error) {
	fmt.Fprint(c.out, "Add a game directory (leave empty to skip): ")
	path, err := c.readLine()
	if errors.Is(err, io.EOF) {
		return "", false, nil
	}
	if err != nil || path == "" {
		return "", false, err
	}

	fmt.Fprint(c.out, "Scan subdirectories? [Y/n]: ")
	answer, err := c.readLine()
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false, err
	}
	answer = strings.ToLower(answer)
	return path, answer == "" || answer == "y" || answer == "yes", nil
}

// readLine returns the next trimmed line. End of input after a partial
// line is not an error; end of input with nothing read is io.EOF.
func (c *Console) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
