// Package filestore persists application attachments under a protected
// directory and registers a metadata row per stored file.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jameswitika/iei.org.au/internal/models"
	"github.com/jameswitika/iei.org.au/pkg/config"
	"github.com/jameswitika/iei.org.au/pkg/errs"
	"github.com/jameswitika/iei.org.au/pkg/tool"
)

// Upload is a received file ready for storage. Validation (count, size,
// extension allow-list) happens before Store is called.
type Upload struct {
	Filename string
	MimeType string
	Size     int64
	Content  io.Reader
}

type Store struct {
	cfg *config.Config
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewStore(cfg *config.Config, db *gorm.DB, log *zap.SugaredLogger) *Store {
	return &Store{cfg: cfg, db: db, log: log}
}

// Save writes the upload to disk under a generated name and records the
// metadata row. The row is removed from disk again if metadata persistence
// fails, so the two stay consistent.
func (s *Store) Save(ctx context.Context, applicationID uint64, upload *Upload, label string, uploadedBy *uint64) (*models.ApplicationFile, error) {
	if applicationID == 0 {
		return nil, errs.Validationf("invalid application id")
	}
	if upload == nil || upload.Filename == "" {
		return nil, errs.Validationf("invalid upload payload")
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(upload.Filename), "."))
	if !s.cfg.Files.ExtensionAllowed(ext) {
		return nil, errs.Validationf("file type %q is not allowed", ext)
	}

	if err := os.MkdirAll(s.cfg.Files.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: create storage dir: %v", errs.ErrStorageFailure, err)
	}

	storageFilename := tool.GenerateUUIDV7() + "." + ext
	destination := filepath.Join(s.cfg.Files.Dir, storageFilename)

	out, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("%w: open destination: %v", errs.ErrStorageFailure, err)
	}
	written, err := io.Copy(out, upload.Content)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(destination)
		return nil, fmt.Errorf("%w: write file: %v", errs.ErrStorageFailure, err)
	}

	record := &models.ApplicationFile{
		ApplicationID:    applicationID,
		FileLabel:        label,
		OriginalFilename: filepath.Base(upload.Filename),
		StorageFilename:  storageFilename,
		MimeType:         upload.MimeType,
		FileSizeBytes:    written,
		UploadedByUserID: uploadedBy,
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		_ = os.Remove(destination)
		return nil, fmt.Errorf("%w: persist file metadata: %v", errs.ErrStorageFailure, err)
	}

	s.log.Infow("application_file_stored",
		"application_id", applicationID,
		"storage_filename", storageFilename,
		"size_bytes", written,
	)
	return record, nil
}

// Get loads a file metadata row.
func (s *Store) Get(ctx context.Context, fileID uint64) (*models.ApplicationFile, error) {
	var record models.ApplicationFile
	if err := s.db.WithContext(ctx).First(&record, fileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFoundf("file %d", fileID)
		}
		return nil, fmt.Errorf("%w: load file record: %v", errs.ErrStorageFailure, err)
	}
	return &record, nil
}

// AbsolutePath resolves the on-disk location of a stored file.
func (s *Store) AbsolutePath(storageFilename string) string {
	return filepath.Join(s.cfg.Files.Dir, filepath.Base(storageFilename))
}

var Module = fx.Options(
	fx.Provide(NewStore),
)
