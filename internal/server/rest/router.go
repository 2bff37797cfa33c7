// Package rest exposes the server's services as a JSON API over HTTP.
package rest

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/cloudvault/internal/logging"
	"github.com/dmitrijs2005/cloudvault/internal/server/metrics"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/dmitrijs2005/cloudvault/internal/server/services"
	"github.com/gin-gonic/gin"
)

// Pinger reports whether a dependency such as the database is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	otp       *services.OTPService
	files     *services.FileService
	shares    *services.ShareService
	admin     *services.AdminService
	metrics   *metrics.Metrics
	db        Pinger
	logger    logging.Logger
	secretKey []byte
}

func NewHandler(
	otp *services.OTPService,
	files *services.FileService,
	shares *services.ShareService,
	admin *services.AdminService,
	mtr *metrics.Metrics,
	db Pinger,
	logger logging.Logger,
	secretKey string,
) *Handler {
	return &Handler{
		otp:       otp,
		files:     files,
		shares:    shares,
		admin:     admin,
		metrics:   mtr,
		db:        db,
		logger:    logger.With("module", "rest"),
		secretKey: []byte(secretKey),
	}
}

// Router builds the gin engine with every route and middleware attached.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()

	r.Use(recoveryMiddleware(h.logger))
	r.Use(loggingMiddleware(h.logger))
	r.Use(corsMiddleware())
	r.Use(preflight())
	r.Use(metricsMiddleware(h.metrics))

	r.GET("/healthz", h.health)
	r.GET("/metrics", gin.WrapH(h.metrics.Handler()))

	api := r.Group("/api")
	{
		otp := api.Group("/otp")
		otp.POST("/generate", h.generateOTP)
		otp.POST("/verify", h.verifyOTP)

		authed := api.Group("", requireSession(h.secretKey, h.logger, models.PurposeLogin))

		files := authed.Group("/files")
		files.GET("", h.listFiles)
		files.POST("", h.uploadFile)
		files.GET("/:id", h.getFile)
		files.GET("/:id/download", h.downloadFile)
		files.DELETE("/:id", h.deleteFile)
		files.POST("/:id/shares", h.createShare)
		files.GET("/:id/shares", h.listShares)

		authed.DELETE("/shares/:id", h.deactivateShare)

		admin := api.Group("/admin",
			requireSession(h.secretKey, h.logger, models.PurposeLogin, models.PurposeAdminAccess),
			h.requireAdmin(),
		)
		admin.GET("/nodes", h.listNodes)
		admin.POST("/nodes", h.createNode)
		admin.PATCH("/nodes/:id", h.updateNode)
		admin.GET("/audit", h.listAudit)
		admin.GET("/files", h.listAllFiles)
		admin.GET("/profiles", h.listProfiles)
		admin.PATCH("/profiles/:id", h.setRole)
	}

	public := r.Group("/s")
	public.GET("/:token", h.resolveShare)
	public.POST("/:token/download", h.downloadShare)

	return r
}

func (h *Handler) health(c *gin.Context) {
	if h.db != nil {
		if err := h.db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// requireAdmin runs the admin access check once per request.
func (h *Handler) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.admin.Authorize(c.Request.Context(), subject(c), c.FullPath(), c.ClientIP(), c.Request.UserAgent())
		if err != nil {
			writeError(c, h.logger, err)
			return
		}
		c.Next()
	}
}
