package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/labfin/invoice-archiver/internal/models"
)

// Store is the directory-backed archive: `{root}/{YYYY-MM}/` holds the
// archived files plus their sidecars. The filesystem is the only shared
// mutable resource; a single process is assumed to own the root at a time.
// The dedup scan in particular is not safe against a second process racing
// the same name.
type Store struct {
	root   string
	logger *zap.Logger
}

// NewStore creates a Store over the given archive root.
func NewStore(root string, logger *zap.Logger) *Store {
	return &Store{root: root, logger: logger}
}

// Root returns the managed archive root directory.
func (s *Store) Root() string {
	return s.root
}

// Archive moves the record's source file into the managed tree, writes the
// sidecar, and transitions the record to archived. The source must exist;
// since archival relocates it, a second call for the same source fails with
// ErrSourceMissing. A sidecar write failure is logged but does not roll
// back the completed move: later reads degrade to filename parsing.
func (s *Store) Archive(rec *models.InvoiceRecord) error {
	if err := rec.ValidateForArchive(); err != nil {
		return err
	}
	next, err := models.Advance(rec.Status, models.EventArchive)
	if err != nil {
		return err
	}
	if rec.FilePath == "" {
		return fmt.Errorf("%w: record has no file path", ErrSourceMissing)
	}
	if _, err := os.Stat(rec.FilePath); err != nil {
		return fmt.Errorf("%w: %s", ErrSourceMissing, rec.FilePath)
	}

	targetDir := filepath.Join(s.root, rec.InvoiceDate.Format("2006-01"))
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return fmt.Errorf("failed to create archive directory %s: %w", targetDir, err)
	}

	targetPath := s.nextFreePath(filepath.Join(targetDir, EncodeName(rec)))

	if err := os.Rename(rec.FilePath, targetPath); err != nil {
		return fmt.Errorf("failed to move %s into archive: %w", rec.FilePath, err)
	}

	rec.FilePath = targetPath
	rec.FileName = filepath.Base(targetPath)
	rec.Status = next

	data, err := MarshalSidecar(rec)
	if err == nil {
		err = os.WriteFile(SidecarPath(targetPath), data, 0644)
	}
	if err != nil {
		s.logger.Warn("Failed to write sidecar, future reads will fall back to filename parsing",
			zap.String("file", targetPath),
			zap.Error(err))
	}

	s.logger.Info("Invoice archived",
		zap.String("target", targetPath),
		zap.String("amount", rec.Amount.String()))

	return nil
}

// nextFreePath appends _1, _2, ... before the extension until the name does
// not collide with an existing file. Existing files are never overwritten.
func (s *Store) nextFreePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)

	for counter := 1; ; counter++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, counter, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// List enumerates the archive: year-month directories in descending order
// (lexical equals chronological for the YYYY-MM naming), files ascending
// within each, sidecars skipped. Listing is best-effort; walk failures
// degrade to a partial or empty result.
func (s *Store) List() []models.ArchiveEntry {
	entries := []models.ArchiveEntry{}

	monthDirs, err := os.ReadDir(s.root)
	if err != nil {
		s.logger.Warn("Failed to read archive root", zap.String("root", s.root), zap.Error(err))
		return entries
	}

	var months []string
	for _, d := range monthDirs {
		if d.IsDir() {
			months = append(months, d.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(months)))

	for _, yearMonth := range months {
		monthPath := filepath.Join(s.root, yearMonth)
		files, err := os.ReadDir(monthPath)
		if err != nil {
			s.logger.Warn("Failed to read archive month directory",
				zap.String("dir", monthPath), zap.Error(err))
			continue
		}

		// os.ReadDir returns names in ascending order already.
		for _, f := range files {
			if f.IsDir() || strings.EqualFold(filepath.Ext(f.Name()), SidecarExt) {
				continue
			}

			filePath := filepath.Join(monthPath, f.Name())
			rec := s.decode(f.Name(), filePath)

			entries = append(entries, models.ArchiveEntry{
				YearMonth: yearMonth,
				Date:      rec.InvoiceDate.Format("2006-01-02"),
				FileName:  f.Name(),
				FilePath:  filePath,
				Record:    rec,
			})
		}
	}

	return entries
}

// decode reads one archived file's record: sidecar first, filename parsing
// as the degraded fallback.
func (s *Store) decode(fileName, filePath string) *models.InvoiceRecord {
	data, err := os.ReadFile(SidecarPath(filePath))
	if err == nil {
		rec, derr := DecodeSidecar(fileName, filePath, data)
		if derr == nil {
			return rec
		}
		s.logger.Warn("Unreadable sidecar, falling back to filename parsing",
			zap.String("file", filePath), zap.Error(derr))
	}
	return ParseFileName(fileName, filePath)
}

// Delete removes an archived file, its sidecar if present (best-effort),
// and then its parent directory if that is now empty and lies under the
// archive root. The root itself is never removed.
func (s *Store) Delete(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", ErrSourceMissing, path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}

	if err := os.Remove(SidecarPath(path)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("Failed to delete sidecar", zap.String("file", path), zap.Error(err))
	}

	s.pruneEmptyDir(filepath.Dir(path))
	return nil
}

// DeleteMany deletes each path independently, never aborting on a failure.
// If any deletion failed the aggregate error reports the success count and
// the per-file reasons.
func (s *Store) DeleteMany(paths []string) error {
	succeeded := 0
	var failures []string

	for _, path := range paths {
		if err := s.Delete(path); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", filepath.Base(path), err))
			continue
		}
		succeeded++
	}

	if len(failures) > 0 {
		return &BatchDeleteError{Succeeded: succeeded, Total: len(paths), Failures: failures}
	}
	return nil
}

// pruneEmptyDir removes dir when it is empty and strictly inside the
// archive root. The safety check keeps a bad path from deleting arbitrary
// directories, and the root itself always survives.
func (s *Store) pruneEmptyDir(dir string) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return
	}
	absRoot, err := filepath.Abs(s.root)
	if err != nil {
		return
	}
	if absDir == absRoot || !strings.HasPrefix(absDir, absRoot+string(filepath.Separator)) {
		return
	}

	entries, err := os.ReadDir(absDir)
	if err != nil || len(entries) > 0 {
		return
	}
	if err := os.Remove(absDir); err != nil {
		s.logger.Warn("Failed to remove empty archive directory",
			zap.String("dir", absDir), zap.Error(err))
	}
}
