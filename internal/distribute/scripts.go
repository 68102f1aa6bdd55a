// ABOUTME: Script directory listing and file loading for distribution.
// ABOUTME: One subdirectory level, an ignored obsolete directory, extension-based typing.

package distribute

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrScriptNotFound indicates the named script does not exist under the
// configured scripts directory.
var ErrScriptNotFound = errors.New("script not found")

// obsoleteDir is excluded from listings by convention.
const obsoleteDir = "_obsolete_"

// scriptTypes maps file extensions to the type tag reported alongside each
// script and carried in delivery envelopes.
var scriptTypes = map[string]string{
	".ps1": "powershell",
	".bat": "bat",
	".py":  "python",
	".sh":  "linuxshell",
	".txt": "text",
}

// Script is one distributable file. Name is the path relative to the
// scripts directory, always with forward slashes.
type Script struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ScriptTypeFor returns the type tag for a script file name, or "text" for
// extensions without a dedicated tag.
func ScriptTypeFor(name string) string {
	if t, ok := scriptTypes[filepath.Ext(name)]; ok {
		return t
	}
	return "text"
}

// ListScripts returns the distributable scripts under dir: files in the
// directory itself plus files one subdirectory deep. Deeper nesting and the
// obsolete directory are skipped, as are files with unrecognized extensions.
func ListScripts(dir string) ([]Script, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("script directory: %w", err)
	}

	var scripts []Script
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil || rel == "." {
			return nil
		}

		if info.IsDir() {
			if info.Name() == obsoleteDir {
				return filepath.SkipDir
			}
			if strings.Count(rel, string(filepath.Separator)) >= 1 {
				return filepath.SkipDir
			}
			return nil
		}

		if _, ok := scriptTypes[filepath.Ext(rel)]; !ok {
			return nil
		}

		scripts = append(scripts, Script{
			Name: filepath.ToSlash(rel),
			Type: ScriptTypeFor(rel),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking script directory: %w", err)
	}
	return scripts, nil
}

// readScript loads the named script from dir. The name is cleaned and
// confined to dir so relative paths cannot escape it.
func readScript(dir, name string) ([]byte, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return nil, fmt.Errorf("%w: %q", ErrScriptNotFound, name)
	}

	b, err := os.ReadFile(filepath.Join(dir, clean))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", ErrScriptNotFound, name)
		}
		return nil, fmt.Errorf("reading script %q: %w", name, err)
	}
	return b, nil
}
