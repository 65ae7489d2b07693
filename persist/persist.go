package persist

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gr-butler/wxcore/env"
	logger "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

const timeLayout = time.RFC3339Nano

// File is a sectioned key=value file rewritten in full on every save.
type File struct {
	path    string
	mu      sync.Mutex
	retries int
	delay   time.Duration
}

func NewFile(path string) *File {
	return &File{path: path, retries: env.PersistRetries, delay: env.PersistRetryDelay}
}

func (f *File) Path() string {
	return f.path
}

func (f *File) Exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

// Load reads the file. A missing file yields an empty document.
func (f *File) Load() (*ini.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, err := ini.LoadSources(ini.LoadOptions{Loose: true}, f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", f.path, err)
	}
	return cfg, nil
}

// Save writes the document atomically, retrying a bounded number of times.
func (f *File) Save(cfg *ini.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var err error
	for attempt := 1; attempt <= f.retries; attempt++ {
		if err = f.write(cfg); err == nil {
			return nil
		}
		logger.Warnf("Failed to write [%v] attempt [%d] [%v]", f.path, attempt, err)
		if attempt < f.retries {
			time.Sleep(f.delay)
		}
	}
	return fmt.Errorf("failed to save %s: %w", f.path, err)
}

func (f *File) write(cfg *ini.File) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := cfg.WriteTo(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

// Archive copies the current file to <name>-<suffix>.ini next to it, used for month and year snapshots.
func (f *File) Archive(suffix string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ext := filepath.Ext(f.path)
	dst := strings.TrimSuffix(f.path, ext) + "-" + suffix + ext

	src, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to archive %s: %w", f.path, err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to archive %s: %w", f.path, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return "", fmt.Errorf("failed to archive %s: %w", f.path, err)
	}
	return dst, out.Close()
}

func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}

func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		logger.Warnf("Bad timestamp in scope file [%v] [%v]", s, err)
		return time.Time{}
	}
	return t
}

func FormatFloat(v float64) string {
	return fmt.Sprintf("%g", v)
}
