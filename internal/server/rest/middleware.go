package rest

import (
	"net/http"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/logging"
	"github.com/dmitrijs2005/cloudvault/internal/server/auth"
	"github.com/dmitrijs2005/cloudvault/internal/server/metrics"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	subjectKey      = "subject"
	purposeKey      = "purpose"
)

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Content-Length", "Authorization", "Accept", "X-Requested-With", "X-Share-Password"},
		ExposeHeaders:   []string{"Content-Length", "Content-Type", "Content-Disposition", requestIDHeader},
		MaxAge:          12 * time.Hour,
	})
}

// preflight answers any OPTIONS request the CORS handler let through, so
// every route accepts OPTIONS with 204.
func preflight() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func recoveryMiddleware(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if p := recover(); p != nil {
				logger.Error(c.Request.Context(), "panic recovered",
					"error", p,
					"stack", string(debug.Stack()),
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
			}
		}()
		c.Next()
	}
}

func loggingMiddleware(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		start := time.Now()
		c.Next()

		logger.Info(c.Request.Context(), "request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

func metricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// requireSession admits requests carrying a valid session token minted after
// a second-factor verification.
// requireSession admits second-factor tokens minted for one of purposes.
func requireSession(secretKey []byte, logger logging.Logger, purposes ...models.Purpose) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(common.AuthorizationHeaderName)
		token, ok := strings.CutPrefix(header, common.BearerPrefix)
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "authorization header required"})
			return
		}

		claims, err := auth.ParseToken(strings.TrimSpace(token), secretKey)
		if err != nil {
			logger.Debug(c.Request.Context(), "rejected session token", "error", err)
			writeError(c, logger, err)
			return
		}
		if !claims.MFA || claims.Subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "second factor required"})
			return
		}
		if !slices.Contains(purposes, models.Purpose(claims.Purpose)) {
			logger.Info(c.Request.Context(), "session purpose rejected", "subject", claims.Subject, "purpose", claims.Purpose, "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{Error: "token is not valid for this resource"})
			return
		}

		c.Set(subjectKey, claims.Subject)
		c.Set(purposeKey, claims.Purpose)
		c.Next()
	}
}

func subject(c *gin.Context) string {
	return c.GetString(subjectKey)
}
