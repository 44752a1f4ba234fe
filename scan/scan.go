// Package scan finds the base-language locale files of a project.
package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// Layout is the locales directory convention: <dir>/<lang>/<file>.json.
type Layout struct {
	Dir      string
	BaseLang string
	// Ignore holds gitignore-style patterns relative to the base directory.
	Ignore []string
}

// BaseDir returns the directory holding the base-language files.
func (l Layout) BaseDir() string {
	return filepath.Join(l.Dir, l.BaseLang)
}

// TargetPath returns the path of rel (slash separated, relative to the base
// directory) for lang.
func (l Layout) TargetPath(lang, rel string) string {
	return filepath.Join(l.Dir, lang, filepath.FromSlash(rel))
}

// BasePath returns the path of rel in the base directory.
func (l Layout) BasePath(rel string) string {
	return l.TargetPath(l.BaseLang, rel)
}

// Rel converts a path inside the base directory to the slash-separated
// relative form used as a file id. ok is false for paths outside it.
func (l Layout) Rel(path string) (rel string, ok bool) {
	r, err := filepath.Rel(l.BaseDir(), path)
	if err != nil || r == "." || strings.HasPrefix(r, "..") {
		return "", false
	}
	return filepath.ToSlash(r), true
}

// matcher compiles the ignore patterns, nil when there are none.
func (l Layout) matcher() *ignore.GitIgnore {
	if len(l.Ignore) == 0 {
		return nil
	}
	return ignore.CompileIgnoreLines(l.Ignore...)
}

// Ignored reports whether rel is excluded by the ignore patterns.
func (l Layout) Ignored(rel string) bool {
	m := l.matcher()
	return m != nil && m.MatchesPath(rel)
}

// IsLocaleFile reports whether rel names a JSON file that is not ignored.
func (l Layout) IsLocaleFile(rel string) bool {
	return strings.EqualFold(filepath.Ext(rel), ".json") && !l.Ignored(rel)
}

// BaseFiles walks the base directory and returns every JSON file as a
// sorted slash-separated path relative to it.
func (l Layout) BaseFiles() ([]string, error) {
	root := l.BaseDir()
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("base locale directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("base locale directory %s is not a directory", root)
	}

	m := l.matcher()
	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel := filepath.ToSlash(strings.TrimPrefix(path, root+string(filepath.Separator)))
		if d.IsDir() {
			if m != nil && (m.MatchesPath(rel) || m.MatchesPath(rel+"/")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(rel), ".json") {
			return nil
		}
		if m != nil && m.MatchesPath(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// TargetFiles returns the JSON files present under lang's directory, in
// the same relative form as BaseFiles. A missing directory yields none.
func (l Layout) TargetFiles(lang string) ([]string, error) {
	sub := Layout{Dir: l.Dir, BaseLang: lang, Ignore: l.Ignore}
	if _, err := os.Stat(sub.BaseDir()); os.IsNotExist(err) {
		return nil, nil
	}
	return sub.BaseFiles()
}

// Stale returns the files of lang whose base file no longer exists.
func (l Layout) Stale(lang string, base []string) ([]string, error) {
	targets, err := l.TargetFiles(lang)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(base))
	for _, f := range base {
		have[f] = true
	}
	var stale []string
	for _, f := range targets {
		if !have[f] {
			stale = append(stale, f)
		}
	}
	return stale, nil
}
