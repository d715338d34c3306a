// Package scenario writes generated Gherkin to .feature files and serves
// them back.
package scenario

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/gherkit/pkg/models"
)

// Extension of every generated file.
const Extension = ".feature"

// ErrInvalidName is returned for file names that are not plain generated feature files.
var ErrInvalidName = errors.New("invalid feature file name")

// Artifact is a written feature file.
type Artifact struct {
	Path      string    `json:"path"`
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
}

// FileInfo describes a feature file in the output directory.
type FileInfo struct {
	Filename string    `json:"filename"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Writer owns the output directory.
type Writer struct {
	dir    string
	now    func() time.Time
	logger *zap.Logger
}

// NewWriter returns a Writer for dir. The directory is created on first write.
func NewWriter(dir string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{dir: dir, now: time.Now, logger: logger.With(zap.String("component", "scenario"))}
}

// Dir is the output directory.
func (w *Writer) Dir() string { return w.dir }

// Header is the comment block written above the scenarios.
func Header(ts time.Time) string {
	return "# Auto-generated Gherkin scenarios\n# Generated: " + ts.Format("2006-01-02 15:04:05") + "\n\n"
}

// FileName is the generated name for a mode at ts.
func FileName(mode models.Mode, ts time.Time) string {
	return fmt.Sprintf("%s_generated_%s_%03d%s", mode, ts.Format("20060102_150405"), ts.Nanosecond()/int(time.Millisecond), Extension)
}

// Write stores content with the standard header. With an empty outputPath
// the file gets a fresh timestamped name in the output directory and never
// replaces an existing file; otherwise outputPath is written as given.
func (w *Writer) Write(mode models.Mode, content, outputPath string) (Artifact, error) {
	ts := w.now()
	data := Header(ts) + strings.TrimRight(content, "\n") + "\n"

	if outputPath != "" {
		if dir := filepath.Dir(outputPath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return Artifact{}, fmt.Errorf("create output dir: %w", err)
			}
		}
		if err := os.WriteFile(outputPath, []byte(data), 0o644); err != nil {
			return Artifact{}, fmt.Errorf("write feature file: %w", err)
		}
		w.logged(outputPath, len(data))
		return Artifact{Path: outputPath, Filename: filepath.Base(outputPath), Timestamp: ts}, nil
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("create output dir: %w", err)
	}
	base := strings.TrimSuffix(FileName(mode, ts), Extension)
	for i := 0; ; i++ {
		name := base + Extension
		if i > 0 {
			name = fmt.Sprintf("%s_%d%s", base, i, Extension)
		}
		path := filepath.Join(w.dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return Artifact{}, fmt.Errorf("create feature file: %w", err)
		}
		if _, err := f.WriteString(data); err != nil {
			f.Close()
			os.Remove(path)
			return Artifact{}, fmt.Errorf("write feature file: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			return Artifact{}, fmt.Errorf("write feature file: %w", err)
		}
		w.logged(path, len(data))
		return Artifact{Path: path, Filename: name, Timestamp: ts}, nil
	}
}

func (w *Writer) logged(path string, size int) {
	w.logger.Info("feature file written", zap.String("path", path), zap.Int("bytes", size))
}

// List returns the feature files in the output directory, newest first.
func (w *Writer) List() ([]FileInfo, error) {
	entries, err := os.ReadDir(w.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []FileInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list output dir: %w", err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != Extension {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{Filename: e.Name(), Size: info.Size(), Modified: info.ModTime()})
	}
	slices.SortFunc(files, func(a, b FileInfo) int {
		if c := b.Modified.Compare(a.Modified); c != 0 {
			return c
		}
		return strings.Compare(b.Filename, a.Filename)
	})
	return files, nil
}

// Open returns a generated file by name. Names with path components are rejected.
func (w *Writer) Open(name string) (*os.File, FileInfo, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) ||
		strings.HasPrefix(name, ".") || filepath.Ext(name) != Extension {
		return nil, FileInfo{}, ErrInvalidName
	}
	f, err := os.Open(filepath.Join(w.dir, name))
	if err != nil {
		return nil, FileInfo{}, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, FileInfo{}, err
	}
	return f, FileInfo{Filename: name, Size: st.Size(), Modified: st.ModTime()}, nil
}
