package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/cryptox"
	"github.com/dmitrijs2005/cloudvault/internal/dbx"
	"github.com/dmitrijs2005/cloudvault/internal/logging"
	"github.com/dmitrijs2005/cloudvault/internal/server/auth"
	"github.com/dmitrijs2005/cloudvault/internal/server/config"
	"github.com/dmitrijs2005/cloudvault/internal/server/metrics"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/dmitrijs2005/cloudvault/internal/server/ratelimit"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cloudvault/internal/server/validation"
	"github.com/google/uuid"
)

// SupersedePurpose limits supersession on issue to codes of the same purpose.
// Any other scope value removes every unused code of the subject.
const SupersedePurpose = "purpose"

type IssueRequest struct {
	Subject       string `validate:"required,max=320"`
	Purpose       string `validate:"omitempty,purpose"`
	OriginAddress string
	UserAgent     string
}

type IssueResult struct {
	ExpiresAt time.Time
	// Code is only set when codes are exposed for testing.
	Code string
}

type VerifyRequest struct {
	Subject       string `validate:"required,max=320"`
	Code          string `validate:"otpcode"`
	Purpose       string `validate:"omitempty,purpose"`
	OriginAddress string
	UserAgent     string
}

type VerifyResult struct {
	Token     string
	ExpiresAt time.Time
}

// OTPService issues and verifies one-time passcodes used as a second factor.
type OTPService struct {
	db              *sql.DB
	repomanager     repomanager.RepositoryManager
	hasher          cryptox.Hasher
	limiter         ratelimit.Limiter
	deliverer       Deliverer
	audit           *AuditService
	validator       *validation.Validator
	logger          logging.Logger
	metrics         *metrics.Metrics
	secretKey       []byte
	validity        time.Duration
	sessionValidity time.Duration
	supersedeScope  string
	exposeCode      bool
	admins          map[string]struct{}
	now             func() time.Time
}

func NewOTPService(
	db *sql.DB,
	m repomanager.RepositoryManager,
	cfg *config.Config,
	hasher cryptox.Hasher,
	limiter ratelimit.Limiter,
	deliverer Deliverer,
	audit *AuditService,
	logger logging.Logger,
	mtr *metrics.Metrics,
) *OTPService {
	admins := make(map[string]struct{})
	for _, s := range strings.Split(cfg.AdminSubjects, ",") {
		if s = strings.TrimSpace(s); s != "" {
			admins[s] = struct{}{}
		}
	}

	return &OTPService{
		db:              db,
		repomanager:     m,
		hasher:          hasher,
		limiter:         limiter,
		deliverer:       deliverer,
		audit:           audit,
		validator:       validation.NewValidator(),
		logger:          logger.With("module", "otp"),
		metrics:         mtr,
		secretKey:       []byte(cfg.SecretKey),
		validity:        cfg.OTPValidityDuration,
		sessionValidity: cfg.SessionTokenValidityDuration,
		supersedeScope:  cfg.OTPSupersedeScope,
		exposeCode:      cfg.ExposeOTPForTesting,
		admins:          admins,
		now:             time.Now,
	}
}

// Issue creates a code for the subject, replacing its unused codes, and
// hands it to the deliverer. Concurrent issues for one subject are
// serialized so at most one unused code survives.
func (s *OTPService) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	purpose, err := models.ParsePurpose(req.Purpose)
	if err != nil {
		return nil, err
	}

	code, err := cryptox.GenerateCode()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	now := s.now().UTC()
	otp := &models.OTP{
		ID:            uuid.NewString(),
		Subject:       req.Subject,
		CodeHash:      s.hasher.Fingerprint(code),
		Purpose:       purpose,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.validity),
		OriginAddress: optional(req.OriginAddress),
	}

	var superseded int64
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.OTPs(tx)
		if err := repo.Lock(ctx, req.Subject); err != nil {
			return err
		}

		var scope *models.Purpose
		if s.supersedeScope == SupersedePurpose {
			scope = &purpose
		}
		n, err := repo.DeleteUnused(ctx, req.Subject, scope)
		if err != nil {
			return err
		}
		superseded = n

		return repo.Create(ctx, otp)
	})
	if err != nil {
		s.logger.Error(ctx, "failed to store otp", "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}

	s.metrics.OTPIssued.Inc()
	s.audit.Record(ctx, AuditEntry{
		Subject:       req.Subject,
		EventType:     models.EventOTPGenerated,
		Description:   fmt.Sprintf("OTP generated for %s", purpose),
		OriginAddress: req.OriginAddress,
		UserAgent:     req.UserAgent,
		Metadata: map[string]any{
			"purpose":    string(purpose),
			"delivery":   "email",
			"superseded": superseded,
		},
		Success: true,
	})

	if err := s.deliverer.Deliver(ctx, req.Subject, purpose, code, otp.ExpiresAt); err != nil {
		s.logger.Warn(ctx, "failed to deliver otp", "error", err)
	}

	res := &IssueResult{ExpiresAt: otp.ExpiresAt}
	if s.exposeCode {
		res.Code = code
	}
	return res, nil
}

// Verify consumes a live code matching the subject, code and purpose and
// mints a session token carrying the second-factor claim. Wrong, used and
// expired codes are indistinguishable to the caller.
func (s *OTPService) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	purpose, err := models.ParsePurpose(req.Purpose)
	if err != nil {
		return nil, err
	}

	limitKey := "verify:" + req.Subject + ":" + string(purpose)
	allowed, err := s.limiter.Allow(ctx, limitKey)
	if err != nil {
		s.logger.Warn(ctx, "rate limiter unavailable", "error", err)
		allowed = true
	}
	if !allowed {
		s.metrics.OTPVerifications.WithLabelValues("rate_limited").Inc()
		s.recordFailure(ctx, req, purpose, "rate_limited")
		return nil, common.ErrorRateLimited
	}

	now := s.now().UTC()
	otp, err := s.repomanager.OTPs(s.db).Consume(ctx, req.Subject, s.hasher.Fingerprint(req.Code), purpose, now)
	if errors.Is(err, common.ErrorNotFound) {
		s.metrics.OTPVerifications.WithLabelValues("failed").Inc()
		s.recordFailure(ctx, req, purpose, "invalid_or_expired")
		return nil, common.ErrorAuthFailure
	}
	if err != nil {
		s.metrics.OTPVerifications.WithLabelValues("error").Inc()
		s.logger.Error(ctx, "failed to consume otp", "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}

	if err := s.limiter.Reset(ctx, limitKey); err != nil {
		s.logger.Warn(ctx, "failed to reset rate limit", "error", err)
	}
	s.ensureProfile(ctx, req.Subject, now)

	token, expiresAt, err := auth.GenerateToken(req.Subject, string(purpose), s.secretKey, s.sessionValidity, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	s.metrics.OTPVerifications.WithLabelValues("success").Inc()
	s.audit.Record(ctx, AuditEntry{
		Subject:       req.Subject,
		EventType:     models.EventOTPVerifySuccess,
		Description:   fmt.Sprintf("OTP verified for %s", purpose),
		OriginAddress: req.OriginAddress,
		UserAgent:     req.UserAgent,
		Metadata:      map[string]any{"purpose": string(purpose), "otp_id": otp.ID},
		Success:       true,
	})

	return &VerifyResult{Token: token, ExpiresAt: expiresAt}, nil
}

func (s *OTPService) recordFailure(ctx context.Context, req VerifyRequest, purpose models.Purpose, reason string) {
	s.audit.Record(ctx, AuditEntry{
		Subject:       req.Subject,
		EventType:     models.EventOTPVerifyFailed,
		Description:   fmt.Sprintf("OTP verification failed for %s", purpose),
		OriginAddress: req.OriginAddress,
		UserAgent:     req.UserAgent,
		Metadata:      map[string]any{"purpose": string(purpose), "reason": reason},
		Success:       false,
	})
}

// ensureProfile mirrors the subject locally and promotes configured admins.
// Failures are logged; they must not undo a successful verification.
func (s *OTPService) ensureProfile(ctx context.Context, subject string, now time.Time) {
	repo := s.repomanager.Profiles(s.db)

	p := &models.Profile{ID: subject, Role: models.RoleUser, CreatedAt: now}
	if strings.Contains(subject, "@") {
		p.Email = subject
	}
	stored, err := repo.Ensure(ctx, p)
	if err != nil {
		s.logger.Error(ctx, "failed to ensure profile", "error", err)
		return
	}

	if _, ok := s.admins[subject]; ok && stored.Role != models.RoleAdmin {
		if err := repo.SetRole(ctx, subject, models.RoleAdmin); err != nil {
			s.logger.Error(ctx, "failed to promote admin", "error", err)
		}
	}
}

// Sweep removes used codes and codes that expired before now.
func (s *OTPService) Sweep(ctx context.Context) (int64, error) {
	n, err := s.repomanager.OTPs(s.db).DeleteStale(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}
	s.metrics.OTPSwept.Add(float64(n))
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (s *OTPService) RunSweeper(ctx context.Context, interval time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			n, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Error(ctx, "otp sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info(ctx, "otp sweep", "removed", n)
			}
		}
	}
}
