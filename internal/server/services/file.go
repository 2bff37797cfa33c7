package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/cryptox"
	"github.com/dmitrijs2005/cloudvault/internal/dbx"
	"github.com/dmitrijs2005/cloudvault/internal/logging"
	"github.com/dmitrijs2005/cloudvault/internal/server/blobstore"
	"github.com/dmitrijs2005/cloudvault/internal/server/metrics"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cloudvault/internal/server/validation"
	"github.com/google/uuid"
)

const (
	defaultMimeType = "application/octet-stream"
	presignTTL      = 15 * time.Minute
)

type UploadRequest struct {
	OwnerID       string `validate:"required"`
	Name          string `validate:"required,max=255"`
	MimeType      string `validate:"max=255"`
	Body          io.Reader
	OriginAddress string
	UserAgent     string
}

// FileDetails is a file together with its replica bookkeeping.
type FileDetails struct {
	File     models.File
	Replicas []models.FileReplica
}

// FileService stores uploads on the least loaded online node and keeps their
// metadata. Every operation is restricted to the file's owner.
type FileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       blobstore.Store
	placement   *PlacementService
	audit       *AuditService
	validator   *validation.Validator
	logger      logging.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewFileService(
	db *sql.DB,
	m repomanager.RepositoryManager,
	blobs blobstore.Store,
	placement *PlacementService,
	audit *AuditService,
	logger logging.Logger,
	mtr *metrics.Metrics,
) *FileService {
	return &FileService{
		db:          db,
		repomanager: m,
		blobs:       blobs,
		placement:   placement,
		audit:       audit,
		validator:   validation.NewValidator(),
		logger:      logger.With("module", "files"),
		metrics:     mtr,
		now:         time.Now,
	}
}

// StoragePath lays objects out as nodes/<node>/users/<owner>/<yyyy>/<m>/<d>/<name>.
func StoragePath(nodeName, ownerID, storedName string, t time.Time) string {
	return path.Join(
		"nodes", nodeName,
		"users", ownerID,
		fmt.Sprintf("%04d", t.Year()), fmt.Sprint(int(t.Month())), fmt.Sprint(t.Day()),
		storedName,
	)
}

// Upload places the bytes on the primary node, records the file and its
// replicas and charges the primary's used space. Nothing is written when no
// node is online.
func (s *FileService) Upload(ctx context.Context, req UploadRequest) (*FileDetails, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	if req.Body == nil {
		return nil, fmt.Errorf("%w: body is required", common.ErrorValidation)
	}

	primary, err := s.placement.SelectPrimary(ctx)
	if err != nil {
		s.metrics.Uploads.WithLabelValues("no_nodes").Inc()
		return nil, err
	}

	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read upload: %v", common.ErrorValidation, err)
	}

	mime := strings.TrimSpace(req.MimeType)
	if mime == "" {
		mime = defaultMimeType
	}

	now := s.now().UTC()
	id := uuid.NewString()
	storedName := id + strings.ToLower(filepath.Ext(req.Name))
	file := models.File{
		ID:            id,
		StoredName:    storedName,
		OriginalName:  filepath.Base(req.Name),
		Size:          int64(len(data)),
		MimeType:      mime,
		Checksum:      cryptox.Checksum(data),
		OwnerID:       req.OwnerID,
		PrimaryNodeID: primary.ID,
		StoragePath:   StoragePath(primary.Name, req.OwnerID, storedName, now),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.blobs.Put(ctx, file.StoragePath, bytes.NewReader(data), file.Size, file.MimeType); err != nil {
		s.metrics.Uploads.WithLabelValues("error").Inc()
		s.logger.Error(ctx, "failed to store blob", "path", file.StoragePath, "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}

	var replicas []models.FileReplica
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Files(tx).Create(ctx, &file); err != nil {
			return err
		}
		if err := s.repomanager.Nodes(tx).AddUsedSpace(ctx, primary.ID, file.Size); err != nil {
			return err
		}
		var err error
		replicas, err = s.placement.selectReplicas(ctx, tx, file.ID, primary.ID)
		return err
	})
	if err != nil {
		s.metrics.Uploads.WithLabelValues("error").Inc()
		s.logger.Error(ctx, "failed to record upload", "file_id", file.ID, "error", err)
		if derr := s.blobs.Delete(ctx, file.StoragePath); derr != nil {
			s.logger.Warn(ctx, "failed to remove orphaned blob", "path", file.StoragePath, "error", derr)
		}
		if errors.Is(err, common.ErrorStorage) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}

	s.metrics.Uploads.WithLabelValues("success").Inc()
	s.metrics.UploadedBytes.Add(float64(file.Size))
	s.audit.Record(ctx, AuditEntry{
		Subject:       req.OwnerID,
		EventType:     models.EventUpload,
		Description:   fmt.Sprintf("Uploaded %s", file.OriginalName),
		OriginAddress: req.OriginAddress,
		UserAgent:     req.UserAgent,
		Metadata: map[string]any{
			"file_id":  file.ID,
			"size":     file.Size,
			"node":     primary.Name,
			"replicas": len(replicas),
		},
		Success: true,
	})

	return &FileDetails{File: file, Replicas: replicas}, nil
}

func (s *FileService) List(ctx context.Context, ownerID string) ([]models.File, error) {
	files, err := s.repomanager.Files(s.db).ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}
	return files, nil
}

// Get returns the file with its replicas. Files of other owners are reported
// as not found.
func (s *FileService) Get(ctx context.Context, ownerID, id string) (*FileDetails, error) {
	file, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	replicas, err := s.repomanager.Replicas(s.db).ListByFile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}
	return &FileDetails{File: *file, Replicas: replicas}, nil
}

// Download opens the file bytes. The caller closes the reader.
func (s *FileService) Download(ctx context.Context, ownerID, id, originAddress, userAgent string) (*models.File, io.ReadCloser, error) {
	file, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, nil, err
	}

	body, err := s.open(ctx, file)
	if err != nil {
		return nil, nil, err
	}

	s.audit.Record(ctx, AuditEntry{
		Subject:       ownerID,
		EventType:     models.EventDownload,
		Description:   fmt.Sprintf("Downloaded %s", file.OriginalName),
		OriginAddress: originAddress,
		UserAgent:     userAgent,
		Metadata:      map[string]any{"file_id": file.ID, "size": file.Size},
		Success:       true,
	})
	return file, body, nil
}

// Delete soft-deletes the record, releases the primary node's used space and
// then removes the bytes. A blob left behind by a failed removal is logged and
// does not fail the call.
func (s *FileService) Delete(ctx context.Context, ownerID, id, originAddress, userAgent string) error {
	file, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Files(tx).MarkDeleted(ctx, file.ID, s.now().UTC()); err != nil {
			return err
		}
		err := s.repomanager.Nodes(tx).AddUsedSpace(ctx, file.PrimaryNodeID, -file.Size)
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}

	if err := s.blobs.Delete(ctx, file.StoragePath); err != nil && !errors.Is(err, common.ErrorNotFound) {
		s.logger.Warn(ctx, "failed to remove blob of deleted file", "file_id", file.ID, "path", file.StoragePath, "error", err)
	}

	s.audit.Record(ctx, AuditEntry{
		Subject:       ownerID,
		EventType:     models.EventDelete,
		Description:   fmt.Sprintf("Deleted %s", file.OriginalName),
		OriginAddress: originAddress,
		UserAgent:     userAgent,
		Metadata:      map[string]any{"file_id": file.ID, "size": file.Size},
		Success:       true,
	})
	return nil
}

func (s *FileService) owned(ctx context.Context, ownerID, id string) (*models.File, error) {
	if !validID(id) {
		return nil, common.ErrorNotFound
	}
	file, err := s.repomanager.Files(s.db).Get(ctx, id)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}
	if file.OwnerID != ownerID {
		return nil, common.ErrorNotFound
	}
	return file, nil
}

// validID reports whether id has the shape of a row id. Other strings cannot
// name a row and are rejected before they reach the database.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *FileService) open(ctx context.Context, file *models.File) (io.ReadCloser, error) {
	body, err := s.blobs.Get(ctx, file.StoragePath)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}
	return body, nil
}

// presign returns a temporary direct URL, or "" when the store cannot
// produce one and the bytes must be streamed.
func (s *FileService) presign(ctx context.Context, file *models.File) (string, error) {
	url, err := s.blobs.PresignGet(ctx, file.StoragePath, presignTTL)
	if errors.Is(err, blobstore.ErrPresignUnsupported) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}
	return url, nil
}
