// Package launcher starts the emulator for a catalog entry.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"

	"github.com/yuzu-emu-archive/yuzu-2-electric-boogaloo/catalog"
	"github.com/yuzu-emu-archive/yuzu-2-electric-boogaloo/storage"
)

// ErrNotLaunchable is returned for locators the emulator cannot open directly
var ErrNotLaunchable = errors.New("game cannot be launched directly")

// ErrNoCommand is returned when no emulator command is configured
var ErrNoCommand = errors.New("no emulator command configured")

// Placeholders substituted in command arguments
const (
	PathPlaceholder  = "{path}"
	TitlePlaceholder = "{title}"
)

// Launcher starts a game
type Launcher interface {
	Launch(ctx context.Context, locator, title string) error
}

// Command launches games by running an external emulator and waiting for
// it to exit.
type Command struct {
	Path   string
	Args   []string
	Env    []string // Added to the current environment
	Stdout io.Writer
	Stderr io.Writer
}

// New creates a Command from the launch configuration
func New(config storage.LaunchConfig) *Command {
	return &Command{
		Path: config.Command,
		Args: append([]string(nil), config.Args...),
	}
}

// Launch runs the emulator with locator and title substituted into its
// arguments. If no argument mentions {path} the locator is appended.
func (c *Command) Launch(ctx context.Context, locator, title string) error {
	if !catalog.IsLaunchable(catalog.Entry{Locator: locator}) {
		return fmt.Errorf("%w: %s", ErrNotLaunchable, locator)
	}
	if c.Path == "" {
		return ErrNoCommand
	}

	cmd := exec.CommandContext(ctx, c.Path, ExpandArgs(c.Args, locator, title)...)
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	log.Printf("[launcher] starting %s for %q", c.Path, title)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to run %s: %w", c.Path, err)
	}
	return nil
}

// ExpandArgs substitutes the placeholders in args
func ExpandArgs(args []string, locator, title string) []string {
	out := make([]string, 0, len(args)+1)
	hasPath := false
	for _, arg := range args {
		if strings.Contains(arg, PathPlaceholder) {
			hasPath = true
		}
		arg = strings.ReplaceAll(arg, PathPlaceholder, locator)
		arg = strings.ReplaceAll(arg, TitlePlaceholder, title)
		out = append(out, arg)
	}
	if !hasPath {
		out = append(out, locator)
	}
	return out
}
