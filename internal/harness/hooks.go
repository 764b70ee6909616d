package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Hook events a Space may declare.
const (
	EventSessionStart     = "session_start"
	EventUserPromptSubmit = "user_prompt_submit"
	EventPreToolUse       = "pre_tool_use"
	EventPostToolUse      = "post_tool_use"
	EventStop             = "stop"
	EventNotification     = "notification"
)

// Hook is one harness-agnostic hook declaration.
type Hook struct {
	Event   string `toml:"event"`
	Matcher string `toml:"matcher,omitempty"`
	Script  string `toml:"script"`
	Timeout int    `toml:"timeout,omitempty"`
}

type hooksFile struct {
	Hooks []Hook `toml:"hook"`
}

// KnownEvent reports whether event is a declared hook event.
func KnownEvent(event string) bool {
	return slices.Contains([]string{
		EventSessionStart, EventUserPromptSubmit, EventPreToolUse,
		EventPostToolUse, EventStop, EventNotification,
	}, event)
}

// ReadHooks loads hooks/hooks.toml from a Space. A missing file yields no
// hooks.
func ReadHooks(dir string) ([]Hook, error) {
	data, err := os.ReadFile(filepath.Join(dir, HooksFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var f hooksFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", HooksFile, err)
	}
	return f.Hooks, nil
}

// CheckHooks validates events and script paths against the Space at dir.
func CheckHooks(dir string, hooks []Hook) []error {
	var errs []error
	for i, h := range hooks {
		if !KnownEvent(h.Event) {
			errs = append(errs, fmt.Errorf("hook %d: unknown event %q", i, h.Event))
		}
		if h.Script == "" {
			errs = append(errs, fmt.Errorf("hook %d: script is required", i))
			continue
		}
		clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(h.Script)))
		if filepath.IsAbs(h.Script) || clean == ".." || strings.HasPrefix(clean, "../") {
			errs = append(errs, fmt.Errorf("hook %d: script %q escapes the space", i, h.Script))
			continue
		}
		if !Exists(filepath.Join(dir, filepath.FromSlash(clean))) {
			errs = append(errs, fmt.Errorf("hook %d: script %q not found", i, h.Script))
		}
		if h.Timeout < 0 {
			errs = append(errs, fmt.Errorf("hook %d: negative timeout", i))
		}
	}
	return errs
}

// CopyHookScripts copies every declared hook script into outDir at the same
// relative path.
func CopyHookScripts(dir, outDir string, hooks []Hook) error {
	for _, h := range hooks {
		if err := CopyIfExists(dir, outDir, h.Script); err != nil {
			return fmt.Errorf("copying hook script %s: %w", h.Script, err)
		}
	}
	return nil
}
