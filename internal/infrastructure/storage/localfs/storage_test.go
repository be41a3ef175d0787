package localfs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/pdf-qa/internal/core/domain"
)

func writeTemp(t *testing.T, dir, name, body string) domain.Upload {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp upload: %v", err)
	}
	return domain.Upload{Filename: name, TempPath: path, Size: int64(len(body))}
}

func TestAdoptMovesUploadIntoSession(t *testing.T) {
	root := t.TempDir()
	staging := t.TempDir()
	storage, err := New(root)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	if err := storage.Create(ctx, "s1"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	upload := writeTemp(t, staging, "annual report.pdf", "pdf-bytes")
	doc, err := storage.Adopt(ctx, "s1", upload)
	if err != nil {
		t.Fatalf("Adopt() error = %v", err)
	}
	if doc.DisplayName != "annual report.pdf" {
		t.Fatalf("expected original display name, got %q", doc.DisplayName)
	}
	if DisplayName(doc.StorageName) != doc.DisplayName {
		t.Fatalf("storage name %q does not recover display name %q", doc.StorageName, doc.DisplayName)
	}
	if doc.SizeBytes != int64(len("pdf-bytes")) {
		t.Fatalf("unexpected size %d", doc.SizeBytes)
	}
	if _, err := os.Stat(upload.TempPath); !os.IsNotExist(err) {
		t.Fatalf("expected temp file to be moved away, stat err = %v", err)
	}
	raw, err := doc.Content()
	if err != nil {
		t.Fatalf("Content() error = %v", err)
	}
	if string(raw) != "pdf-bytes" {
		t.Fatalf("unexpected content %q", raw)
	}
}

func TestAdoptDisambiguatesSameName(t *testing.T) {
	root := t.TempDir()
	staging := t.TempDir()
	storage, _ := New(root)
	fixed := time.Unix(1700000000, 0)
	storage.now = func() time.Time { return fixed }
	ctx := context.Background()
	_ = storage.Create(ctx, "s1")

	first, err := storage.Adopt(ctx, "s1", writeTemp(t, staging, "a.pdf", "one"))
	if err != nil {
		t.Fatalf("Adopt() error = %v", err)
	}
	if err := os.MkdirAll(filepath.Join(staging, "second"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	second, err := storage.Adopt(ctx, "s1", writeTemp(t, filepath.Join(staging, "second"), "a.pdf", "two"))
	if err != nil {
		t.Fatalf("Adopt() error = %v", err)
	}
	if first.StorageName == second.StorageName {
		t.Fatalf("expected distinct storage names, both %q", first.StorageName)
	}

	docs, ok, err := storage.List(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("List() = ok %v, err %v", ok, err)
	}
	if len(docs) != 2 || docs[0].StorageName != first.StorageName {
		t.Fatalf("expected upload order preserved, got %+v", docs)
	}
}

func TestListMissingSession(t *testing.T) {
	storage, _ := New(t.TempDir())
	docs, ok, err := storage.List(context.Background(), "missing")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if ok || len(docs) != 0 {
		t.Fatalf("expected missing session, got ok=%v docs=%d", ok, len(docs))
	}
}

func TestListStripsDisambiguationPrefix(t *testing.T) {
	root := t.TempDir()
	storage, _ := New(root)
	dir := filepath.Join(root, "s1")
	if err := os.MkdirAll(filepath.Join(dir, ".cache"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	_ = os.WriteFile(filepath.Join(dir, "1700000000000000000_2024_report.pdf"), []byte("x"), 0o644)

	docs, ok, err := storage.List(context.Background(), "s1")
	if err != nil || !ok {
		t.Fatalf("List() = ok %v, err %v", ok, err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected cache dir to be skipped, got %d docs", len(docs))
	}
	if docs[0].DisplayName != "2024_report.pdf" {
		t.Fatalf("expected single prefix stripped, got %q", docs[0].DisplayName)
	}
}

func TestMoveFileFallsBackToCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.pdf")
	_ = os.WriteFile(src, []byte("payload"), 0o644)
	// Renaming onto an existing directory fails, which forces the copy path.
	dest := filepath.Join(dir, "dest")
	if err := os.Mkdir(dest, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := moveFile(src, dest); err == nil {
		t.Fatalf("expected copy onto directory to fail")
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("source must survive a failed move: %v", err)
	}

	if err := copyFile(src, filepath.Join(dir, "copy.pdf")); err != nil {
		t.Fatalf("copyFile() error = %v", err)
	}
	raw, _ := os.ReadFile(filepath.Join(dir, "copy.pdf"))
	if string(raw) != "payload" {
		t.Fatalf("unexpected copy content %q", raw)
	}
}

func TestSweepRemovesOldSessions(t *testing.T) {
	root := t.TempDir()
	storage, _ := New(root)
	ctx := context.Background()
	_ = storage.Create(ctx, "old")
	_ = storage.Create(ctx, "fresh")
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(filepath.Join(root, "old"), past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	planned, err := storage.Sweep(ctx, 24*time.Hour, true)
	if err != nil {
		t.Fatalf("Sweep(dry) error = %v", err)
	}
	if len(planned) != 1 || planned[0] != "old" {
		t.Fatalf("unexpected dry-run plan %v", planned)
	}
	if _, err := os.Stat(filepath.Join(root, "old")); err != nil {
		t.Fatalf("dry run must not remove: %v", err)
	}

	removed, err := storage.Sweep(ctx, 24*time.Hour, false)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if len(removed) != 1 {
		t.Fatalf("expected one removal, got %v", removed)
	}
	if _, err := os.Stat(filepath.Join(root, "old")); !os.IsNotExist(err) {
		t.Fatalf("expected old session removed")
	}
	if _, err := os.Stat(filepath.Join(root, "fresh")); err != nil {
		t.Fatalf("fresh session must stay: %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"report 1.pdf":        "report 1.pdf",
		"Отчёт за 2024.pdf":   "Отчёт за 2024.pdf",
		"résumé (v2).pdf":     "résumé (v2).pdf",
		"../../etc/passwd":    "passwd",
		"C:\\docs\\plan.pdf":  "plan.pdf",
		"":                    "document.pdf",
		"..":                  "document.pdf",
		".hidden.pdf":         "hidden.pdf",
		"tab\there\x00.pdf":   "tabthere.pdf",
		"  padded name.pdf  ": "padded name.pdf",
		" .hidden.pdf":        "hidden.pdf",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeFilenameShortensLongNames(t *testing.T) {
	long := strings.Repeat("я", 300) + ".pdf"
	got := sanitizeFilename(long)
	if len(got) > maxNameBytes {
		t.Fatalf("expected at most %d bytes, got %d", maxNameBytes, len(got))
	}
	if !strings.HasSuffix(got, ".pdf") || !utf8.ValidString(got) {
		t.Fatalf("expected valid name keeping extension, got %q", got)
	}
}

func TestAdoptKeepsUnicodeNamesDistinct(t *testing.T) {
	storage, _ := New(t.TempDir())
	staging := t.TempDir()
	ctx := context.Background()
	_ = storage.Create(ctx, "s1")

	names := []string{"Отчёт.pdf", "Письмо.pdf", "My Report.pdf"}
	for _, name := range names {
		doc, err := storage.Adopt(ctx, "s1", writeTemp(t, staging, name, "x"))
		if err != nil {
			t.Fatalf("Adopt(%q) error = %v", name, err)
		}
		if doc.DisplayName != name {
			t.Fatalf("Adopt display name = %q, want %q", doc.DisplayName, name)
		}
	}

	docs, _, err := storage.List(ctx, "s1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	got := map[string]bool{}
	for _, doc := range docs {
		got[doc.DisplayName] = true
	}
	for _, name := range names {
		if !got[name] {
			t.Fatalf("List() lost display name %q, got %v", name, got)
		}
	}
}

func TestListKeepsSessionAliveForSweep(t *testing.T) {
	root := t.TempDir()
	storage, _ := New(root)
	ctx := context.Background()
	_ = storage.Create(ctx, "active")
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(filepath.Join(root, "active"), past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if _, ok, err := storage.List(ctx, "active"); err != nil || !ok {
		t.Fatalf("List() = ok %v, err %v", ok, err)
	}

	removed, err := storage.Sweep(ctx, 24*time.Hour, false)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if len(removed) != 0 {
		t.Fatalf("recently read session must survive the sweep, removed %v", removed)
	}
}

func TestRemoveDeletesSessionArea(t *testing.T) {
	root := t.TempDir()
	storage, _ := New(root)
	ctx := context.Background()
	_ = storage.Create(ctx, "s1")
	if _, err := storage.Adopt(ctx, "s1", writeTemp(t, t.TempDir(), "a.pdf", "x")); err != nil {
		t.Fatalf("Adopt() error = %v", err)
	}

	if err := storage.Remove(ctx, "s1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "s1")); !os.IsNotExist(err) {
		t.Fatalf("expected session dir removed, stat err = %v", err)
	}
	if err := storage.Remove(ctx, "s1"); err != nil {
		t.Fatalf("Remove() of missing session error = %v", err)
	}
	if err := storage.Remove(ctx, ""); err == nil {
		t.Fatalf("expected empty session id to be rejected")
	}
	if _, err := os.Stat(root); err != nil {
		t.Fatalf("storage root must survive: %v", err)
	}
}
