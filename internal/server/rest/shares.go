package rest

import (
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/dmitrijs2005/cloudvault/internal/server/services"
	"github.com/gin-gonic/gin"
)

const sharePasswordHeader = "X-Share-Password"

type createShareRequest struct {
	Permission       string `json:"permission"`
	ExpiresInSeconds int64  `json:"expires_in_seconds"`
	Password         string `json:"password"`
	MaxDownloads     *int   `json:"max_downloads"`
}

type shareResponse struct {
	ID            string     `json:"id"`
	FileID        string     `json:"file_id"`
	Token         string     `json:"token"`
	URL           string     `json:"url"`
	Permission    string     `json:"permission"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	MaxDownloads  *int       `json:"max_downloads,omitempty"`
	DownloadCount int        `json:"download_count"`
	IsActive      bool       `json:"is_active"`
	Protected     bool       `json:"protected"`
}

func newShareResponse(l models.ShareLink) shareResponse {
	return shareResponse{
		ID:            l.ID,
		FileID:        l.FileID,
		Token:         l.Token,
		URL:           "/s/" + l.Token,
		Permission:    string(l.Permission),
		ExpiresAt:     l.ExpiresAt,
		MaxDownloads:  l.MaxDownloads,
		DownloadCount: l.DownloadCount,
		IsActive:      l.IsActive,
		Protected:     l.PasswordHash != nil,
	}
}

type sharedFileResponse struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	MimeType   string `json:"mime_type"`
	Permission string `json:"permission"`
}

type shareDownloadRequest struct {
	Password string `json:"password"`
}

func (h *Handler) createShare(c *gin.Context) {
	var req createShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}

	link, err := h.shares.Create(c.Request.Context(), services.CreateShareRequest{
		OwnerID:       subject(c),
		FileID:        c.Param("id"),
		Permission:    req.Permission,
		ExpiresIn:     time.Duration(req.ExpiresInSeconds) * time.Second,
		Password:      req.Password,
		MaxDownloads:  req.MaxDownloads,
		OriginAddress: c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, newShareResponse(*link))
}

func (h *Handler) listShares(c *gin.Context) {
	links, err := h.shares.ListForFile(c.Request.Context(), subject(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	out := make([]shareResponse, 0, len(links))
	for _, l := range links {
		out = append(out, newShareResponse(l))
	}
	c.JSON(http.StatusOK, gin.H{"shares": out})
}

func (h *Handler) deactivateShare(c *gin.Context) {
	if err := h.shares.Deactivate(c.Request.Context(), subject(c), c.Param("id"), c.ClientIP(), c.Request.UserAgent()); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) resolveShare(c *gin.Context) {
	shared, err := h.shares.Resolve(c.Request.Context(), c.Param("token"), c.GetHeader(sharePasswordHeader))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, sharedFileResponse{
		Name:       shared.File.OriginalName,
		Size:       shared.File.Size,
		MimeType:   shared.File.MimeType,
		Permission: string(shared.Link.Permission),
	})
}

// downloadShare answers with {"url": ...} when the store can presign, and
// streams the bytes otherwise.
func (h *Handler) downloadShare(c *gin.Context) {
	var req shareDownloadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, h.logger, err)
			return
		}
	}
	if req.Password == "" {
		req.Password = c.GetHeader(sharePasswordHeader)
	}

	dl, err := h.shares.Download(c.Request.Context(), c.Param("token"), req.Password, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	if dl.URL != "" {
		c.JSON(http.StatusOK, gin.H{"url": dl.URL, "name": dl.File.OriginalName})
		return
	}
	defer dl.Body.Close()
	c.DataFromReader(http.StatusOK, dl.File.Size, dl.File.MimeType, dl.Body, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", dl.File.OriginalName),
	})
}
