package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/cryptox"
	"github.com/dmitrijs2005/cloudvault/internal/logging"
	"github.com/dmitrijs2005/cloudvault/internal/server/metrics"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cloudvault/internal/server/validation"
	"github.com/google/uuid"
)

const shareTokenBytes = 32

type CreateShareRequest struct {
	OwnerID       string        `validate:"required"`
	FileID        string        `validate:"required"`
	Permission    string        `validate:"omitempty,permission"`
	ExpiresIn     time.Duration `validate:"gte=0"`
	Password      string        `validate:"max=72"`
	MaxDownloads  *int          `validate:"omitempty,min=1"`
	OriginAddress string
	UserAgent     string
}

// SharedFile is what a share token resolves to.
type SharedFile struct {
	Link models.ShareLink
	File models.File
}

// ShareDownload carries either a presigned URL or, when the blob store cannot
// presign, an open reader the caller must close.
type ShareDownload struct {
	SharedFile
	URL  string
	Body io.ReadCloser
}

// ShareService manages share links. Download counting is enforced by the
// store so concurrent downloads never exceed a link's cap.
type ShareService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	files       *FileService
	audit       *AuditService
	validator   *validation.Validator
	logger      logging.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewShareService(db *sql.DB, m repomanager.RepositoryManager, files *FileService, audit *AuditService, logger logging.Logger, mtr *metrics.Metrics) *ShareService {
	return &ShareService{
		db:          db,
		repomanager: m,
		files:       files,
		audit:       audit,
		validator:   validation.NewValidator(),
		logger:      logger.With("module", "shares"),
		metrics:     mtr,
		now:         time.Now,
	}
}

func (s *ShareService) Create(ctx context.Context, req CreateShareRequest) (*models.ShareLink, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	permission, err := models.ParsePermission(req.Permission)
	if err != nil {
		return nil, err
	}

	file, err := s.files.owned(ctx, req.OwnerID, req.FileID)
	if err != nil {
		return nil, err
	}

	token, err := common.MakeRandHexString(shareTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	now := s.now().UTC()
	link := &models.ShareLink{
		ID:           uuid.NewString(),
		FileID:       file.ID,
		OwnerID:      req.OwnerID,
		Token:        token,
		Permission:   permission,
		MaxDownloads: req.MaxDownloads,
		IsActive:     true,
		CreatedAt:    now,
	}
	if req.ExpiresIn > 0 {
		exp := now.Add(req.ExpiresIn)
		link.ExpiresAt = &exp
	}
	if req.Password != "" {
		hash, err := cryptox.HashPassword(req.Password)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
		}
		link.PasswordHash = &hash
	}

	if err := s.repomanager.ShareLinks(s.db).Create(ctx, link); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}

	s.audit.Record(ctx, AuditEntry{
		Subject:       req.OwnerID,
		EventType:     models.EventShareCreated,
		Description:   fmt.Sprintf("Shared %s", file.OriginalName),
		OriginAddress: req.OriginAddress,
		UserAgent:     req.UserAgent,
		Metadata: map[string]any{
			"file_id":    file.ID,
			"link_id":    link.ID,
			"permission": string(permission),
			"protected":  link.PasswordHash != nil,
		},
		Success: true,
	})
	return link, nil
}

// Resolve checks that the link is usable and the password, if any, matches.
func (s *ShareService) Resolve(ctx context.Context, token, password string) (*SharedFile, error) {
	link, err := s.lookup(ctx, token, password)
	if err != nil {
		return nil, err
	}
	if link.Exhausted() {
		return nil, common.ErrorLinkUnavailable
	}

	file, err := s.repomanager.Files(s.db).Get(ctx, link.FileID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrorLinkUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}
	return &SharedFile{Link: *link, File: *file}, nil
}

// Download claims one download on a link with download permission.
func (s *ShareService) Download(ctx context.Context, token, password, originAddress, userAgent string) (*ShareDownload, error) {
	link, err := s.lookup(ctx, token, password)
	if err != nil {
		s.metrics.ShareDownloads.WithLabelValues("rejected").Inc()
		return nil, err
	}
	if link.Permission != models.PermissionDownload {
		s.metrics.ShareDownloads.WithLabelValues("rejected").Inc()
		return nil, common.ErrorForbidden
	}

	file, err := s.repomanager.Files(s.db).Get(ctx, link.FileID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrorLinkUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}

	claimed, err := s.repomanager.ShareLinks(s.db).ClaimDownload(ctx, link.ID, s.now().UTC())
	if errors.Is(err, common.ErrorNotFound) {
		s.metrics.ShareDownloads.WithLabelValues("exhausted").Inc()
		return nil, common.ErrorLinkUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}

	res := &ShareDownload{SharedFile: SharedFile{Link: *claimed, File: *file}}
	res.URL, err = s.files.presign(ctx, file)
	if err == nil && res.URL == "" {
		res.Body, err = s.files.open(ctx, file)
	}
	if err != nil {
		s.metrics.ShareDownloads.WithLabelValues("error").Inc()
		s.release(ctx, claimed, err)
		return nil, err
	}

	s.metrics.ShareDownloads.WithLabelValues("success").Inc()
	s.audit.Record(ctx, AuditEntry{
		EventType:     models.EventShareDownload,
		Description:   fmt.Sprintf("Shared download of %s", file.OriginalName),
		OriginAddress: originAddress,
		UserAgent:     userAgent,
		Metadata: map[string]any{
			"file_id":        file.ID,
			"link_id":        claimed.ID,
			"owner_id":       claimed.OwnerID,
			"download_count": claimed.DownloadCount,
		},
		Success: true,
	})
	return res, nil
}

func (s *ShareService) Deactivate(ctx context.Context, ownerID, id, originAddress, userAgent string) error {
	if !validID(id) {
		return common.ErrorNotFound
	}
	repo := s.repomanager.ShareLinks(s.db)

	link, err := repo.Get(ctx, id)
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrorNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}
	if link.OwnerID != ownerID {
		return common.ErrorNotFound
	}

	if err := repo.Deactivate(ctx, id); err != nil {
		return fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}

	s.audit.Record(ctx, AuditEntry{
		Subject:       ownerID,
		EventType:     models.EventShareDeactivated,
		Description:   "Share link deactivated",
		OriginAddress: originAddress,
		UserAgent:     userAgent,
		Metadata:      map[string]any{"link_id": id, "file_id": link.FileID},
		Success:       true,
	})
	return nil
}

func (s *ShareService) ListForFile(ctx context.Context, ownerID, fileID string) ([]models.ShareLink, error) {
	if _, err := s.files.owned(ctx, ownerID, fileID); err != nil {
		return nil, err
	}
	links, err := s.repomanager.ShareLinks(s.db).ListByFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}
	return links, nil
}

// release returns a claimed download whose bytes could not be served.
func (s *ShareService) release(ctx context.Context, link *models.ShareLink, cause error) {
	if err := s.repomanager.ShareLinks(s.db).ReleaseDownload(ctx, link.ID); err != nil {
		s.logger.Error(ctx, "failed to release share download", "link_id", link.ID, "cause", cause, "error", err)
		return
	}
	s.logger.Warn(ctx, "share download released", "link_id", link.ID, "cause", cause)
}

// lookup finds a usable link by token and checks its password. Unknown tokens
// are not found; inactive or expired links are unavailable.
func (s *ShareService) lookup(ctx context.Context, token, password string) (*models.ShareLink, error) {
	if token == "" {
		return nil, common.ErrorNotFound
	}

	link, err := s.repomanager.ShareLinks(s.db).GetByToken(ctx, token)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}

	if !link.Usable(s.now().UTC()) {
		return nil, common.ErrorLinkUnavailable
	}
	if link.PasswordHash != nil && !cryptox.CheckPassword(*link.PasswordHash, password) {
		return nil, common.ErrorUnauthorized
	}
	return link, nil
}
