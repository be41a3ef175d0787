package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/pdf-qa/internal/core/domain"
)

const (
	defaultFilename = "document.pdf"
	// Leaves room for the numeric prefix within the usual 255-byte limit.
	maxNameBytes = 200
)

var storagePrefix = regexp.MustCompile(`^[0-9]+_`)

// Storage keeps one directory per session under basePath. Files are stored
// as "<unix-nanos>_<sanitized name>"; the numeric prefix keeps names unique
// and preserves upload order when listed.
type Storage struct {
	basePath string
	now      func() time.Time
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/uploads"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath, now: time.Now}, nil
}

func (s *Storage) Create(_ context.Context, sessionID string) error {
	if err := os.Mkdir(s.sessionDir(sessionID), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	return nil
}

func (s *Storage) Adopt(_ context.Context, sessionID string, upload domain.Upload) (domain.Document, error) {
	dir := s.sessionDir(sessionID)
	safeName := sanitizeFilename(upload.Filename)

	stamp := s.now().UnixNano()
	var dest, storageName string
	for {
		storageName = strconv.FormatInt(stamp, 10) + "_" + safeName
		dest = filepath.Join(dir, storageName)
		if _, err := os.Lstat(dest); errors.Is(err, os.ErrNotExist) {
			break
		}
		stamp++
	}

	if err := moveFile(upload.TempPath, dest); err != nil {
		return domain.Document{}, err
	}

	size := upload.Size
	if info, err := os.Stat(dest); err == nil {
		size = info.Size()
	}

	return domain.Document{
		DisplayName: DisplayName(storageName),
		StorageName: storageName,
		SizeBytes:   size,
		Path:        dest,
	}, nil
}

func (s *Storage) List(_ context.Context, sessionID string) ([]domain.Document, bool, error) {
	dir := s.sessionDir(sessionID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read session dir: %w", err)
	}

	// Reads count as use, so Sweep measures age from the last request.
	now := s.now()
	if err := os.Chtimes(dir, now, now); err != nil {
		slog.Warn("session_touch_failed", "upload_id", sessionID, "error", err)
	}

	docs := make([]domain.Document, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, true, fmt.Errorf("stat %s: %w", entry.Name(), err)
		}
		docs = append(docs, domain.Document{
			DisplayName: DisplayName(entry.Name()),
			StorageName: entry.Name(),
			SizeBytes:   info.Size(),
			Path:        filepath.Join(dir, entry.Name()),
		})
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].StorageName < docs[j].StorageName
	})
	return docs, true, nil
}

// Remove deletes a session area and everything in it. A missing area is not
// an error.
func (s *Storage) Remove(_ context.Context, sessionID string) error {
	if name := filepath.Base(sessionID); name == "." || name == ".." || name == string(filepath.Separator) {
		return fmt.Errorf("remove session dir: invalid session id %q", sessionID)
	}
	if err := os.RemoveAll(s.sessionDir(sessionID)); err != nil {
		return fmt.Errorf("remove session dir: %w", err)
	}
	return nil
}

// Sweep removes session directories not used within maxAge. List refreshes a
// session's modification time, so follow-up requests keep it alive. With
// dryRun it only reports what would be removed.
func (s *Storage) Sweep(_ context.Context, maxAge time.Duration, dryRun bool) ([]string, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("read storage dir: %w", err)
	}

	cutoff := s.now().Add(-maxAge)
	removed := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return removed, fmt.Errorf("stat %s: %w", entry.Name(), err)
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if !dryRun {
			if err := os.RemoveAll(filepath.Join(s.basePath, entry.Name())); err != nil {
				return removed, fmt.Errorf("remove %s: %w", entry.Name(), err)
			}
		}
		removed = append(removed, entry.Name())
	}
	return removed, nil
}

func (s *Storage) sessionDir(sessionID string) string {
	return filepath.Join(s.basePath, filepath.Base(sessionID))
}

// DisplayName strips the disambiguation prefix added at upload time. A name
// that itself started with digits and an underscore loses only the prefix
// this package added.
func DisplayName(storageName string) string {
	return storagePrefix.ReplaceAllString(storageName, "")
}

// moveFile renames src to dest and falls back to copy-then-delete when the
// rename is refused, e.g. across devices.
func moveFile(src, dest string) error {
	err := os.Rename(src, dest)
	if err == nil {
		return nil
	}
	slog.Debug("rename_failed_copying", "src", src, "dest", dest, "error", err)

	if err := copyFile(src, dest); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("remove_upload_temp_failed", "path", src, "error", err)
	}
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return fmt.Errorf("write file: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dest)
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}

// sanitizeFilename keeps the caller's name readable, Unicode letters and
// spaces included. Only path components, control characters and leading
// dots are removed, and overlong names are shortened before the extension.
func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		if r == '/' || r == utf8.RuneError || unicode.IsControl(r) {
			return -1
		}
		return r
	}, base)
	base = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(base), "."))
	if base == "" {
		return defaultFilename
	}
	return truncateName(base, maxNameBytes)
}

func truncateName(name string, limit int) string {
	if len(name) <= limit {
		return name
	}
	ext := filepath.Ext(name)
	if len(ext) > limit/4 {
		ext = ""
	}
	stem := strings.TrimSuffix(name, ext)
	for len(stem)+len(ext) > limit {
		_, size := utf8.DecodeLastRuneInString(stem)
		stem = stem[:len(stem)-size]
	}
	return strings.TrimSpace(stem) + ext
}
