package startup

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/yuzu-emu-archive/yuzu-2-electric-boogaloo/storage"
)

type fakePrompter struct {
	disclaimers   int
	disclaimerErr error
	path          string
	recursive     bool
	promptErr     error
	prompts       int
}

func (p *fakePrompter) ShowDisclaimer(text string) error {
	p.disclaimers++
	return p.disclaimerErr
}

func (p *fakePrompter) PromptDirectory() (string, bool, error) {
	p.prompts++
	return p.path, p.recursive, p.promptErr
}

type added struct {
	path      string
	recursive bool
}

func newHandler(fs afero.Fs, config *storage.Config, prompt Prompter, dirs *[]added) *Handler {
	return &Handler{
		FS:         fs,
		ConfigPath: "/data/config.yaml",
		Config:     config,
		Prompt:     prompt,
		AddDirectory: func(path string, recursive bool) error {
			*dirs = append(*dirs, added{path, recursive})
			return nil
		},
	}
}

func TestRunFirstLaunch(t *testing.T) {
	fs := afero.NewMemMapFs()
	prompt := &fakePrompter{path: "/games", recursive: true}
	var dirs []added

	h := newHandler(fs, storage.DefaultConfig(), prompt, &dirs)
	ran, err := h.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !ran {
		t.Error("expected first launch steps to run")
	}
	if prompt.disclaimers != 1 || prompt.prompts != 1 {
		t.Errorf("disclaimer shown %d times, prompt %d times", prompt.disclaimers, prompt.prompts)
	}
	if len(dirs) != 1 || dirs[0] != (added{"/games", true}) {
		t.Errorf("directories added = %v", dirs)
	}

	saved, err := storage.LoadConfig(fs, "/data/config.yaml")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if saved.FirstLaunch {
		t.Error("first launch flag not persisted")
	}

	// Second run does nothing
	ran, err = newHandler(fs, saved, prompt, &dirs).Run()
	if ran || err != nil {
		t.Errorf("second Run = %v, %v", ran, err)
	}
	if prompt.disclaimers != 1 {
		t.Error("disclaimer shown twice")
	}
}

func TestRunSkipsDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	prompt := &fakePrompter{}
	var dirs []added

	if _, err := newHandler(fs, storage.DefaultConfig(), prompt, &dirs).Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(dirs) != 0 {
		t.Errorf("expected no directories, got %v", dirs)
	}
}

func TestRunFollowUpAfterDismissError(t *testing.T) {
	fs := afero.NewMemMapFs()
	prompt := &fakePrompter{disclaimerErr: errors.New("closed"), path: "/games"}
	var dirs []added

	if _, err := newHandler(fs, storage.DefaultConfig(), prompt, &dirs).Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if prompt.prompts != 1 || len(dirs) != 1 {
		t.Error("follow-up prompt should run however the disclaimer closed")
	}
}

func TestRunMarksFirstLaunchBeforePrompting(t *testing.T) {
	fs := afero.NewMemMapFs()
	boom := errors.New("boom")
	prompt := &fakePrompter{promptErr: boom}
	var dirs []added

	config := storage.DefaultConfig()
	if _, err := newHandler(fs, config, prompt, &dirs).Run(); !errors.Is(err, boom) {
		t.Fatalf("expected prompt error, got %v", err)
	}

	saved, _ := storage.LoadConfig(fs, "/data/config.yaml")
	if saved.FirstLaunch {
		t.Error("first launch should be cleared even when the follow-up fails")
	}
}

func TestRunSaveFailure(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	prompt := &fakePrompter{}
	var dirs []added

	if _, err := newHandler(fs, storage.DefaultConfig(), prompt, &dirs).Run(); err == nil {
		t.Error("expected save error")
	}
	if prompt.disclaimers != 0 {
		t.Error("nothing should be shown when the flag cannot be saved")
	}
}

func TestConsole(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		path      string
		recursive bool
	}{
		{"default recursive", "\n/games\n\n", "/games", true},
		{"explicit yes", "\n/games\nyes\n", "/games", true},
		{"no", "\n/games\nn\n", "/games", false},
		{"skip", "\n\n", "", false},
		{"eof after disclaimer", "\n", "", false},
		{"no trailing newline", "\n /games \nN", "/games", false},
		{"eof before recursion answer", "\n/games\n", "/games", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			c := NewConsole(strings.NewReader(tc.input), &out)

			if err := c.ShowDisclaimer(Disclaimer); err != nil {
				t.Fatalf("ShowDisclaimer failed: %v", err)
			}
			path, recursive, err := c.PromptDirectory()
			if err != nil {
				t.Fatalf("PromptDirectory failed: %v", err)
			}
			if path != tc.path || recursive != tc.recursive {
				t.Errorf("got (%q, %v), want (%q, %v)", path, recursive, tc.path, tc.recursive)
			}
			if !strings.Contains(out.String(), "dumped from hardware you own") {
				t.Error("disclaimer not printed")
			}
		})
	}
}

func TestConsoleDisclaimerEOF(t *testing.T) {
	c := NewConsole(strings.NewReader(""), &bytes.Buffer{})
	if err := c.ShowDisclaimer(Disclaimer); err == nil {
		t.Error("expected EOF when nothing acknowledges the disclaimer")
	}
}
