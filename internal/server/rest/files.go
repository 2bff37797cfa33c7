package rest

import (
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/dmitrijs2005/cloudvault/internal/server/services"
	"github.com/gin-gonic/gin"
)

// maxUploadSize caps a multipart upload body.
const maxUploadSize = 100 << 20

type replicaResponse struct {
	NodeID      string `json:"node_id"`
	ReplicaPath string `json:"replica_path"`
	Status      string `json:"status"`
}

type fileResponse struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Size          int64             `json:"size"`
	MimeType      string            `json:"mime_type"`
	Checksum      string            `json:"checksum"`
	OwnerID       string            `json:"owner_id"`
	PrimaryNodeID string            `json:"primary_node_id"`
	CreatedAt     time.Time         `json:"created_at"`
	Replicas      []replicaResponse `json:"replicas,omitempty"`
}

func newFileResponse(f models.File, replicas []models.FileReplica) fileResponse {
	out := fileResponse{
		ID:            f.ID,
		Name:          f.OriginalName,
		Size:          f.Size,
		MimeType:      f.MimeType,
		Checksum:      f.Checksum,
		OwnerID:       f.OwnerID,
		PrimaryNodeID: f.PrimaryNodeID,
		CreatedAt:     f.CreatedAt,
	}
	for _, r := range replicas {
		out.Replicas = append(out.Replicas, replicaResponse{NodeID: r.NodeID, ReplicaPath: r.ReplicaPath, Status: string(r.Status)})
	}
	return out
}

func newFileList(files []models.File) []fileResponse {
	out := make([]fileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, newFileResponse(f, nil))
	}
	return out
}

func (h *Handler) listFiles(c *gin.Context) {
	files, err := h.files.List(c.Request.Context(), subject(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": newFileList(files)})
}

func (h *Handler) uploadFile(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fh, err := c.FormFile("file")
	if err != nil {
		writeError(c, h.logger, fmt.Errorf("%w: multipart field \"file\" is required", common.ErrorValidation))
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(c, h.logger, fmt.Errorf("%w: %v", common.ErrorValidation, err))
		return
	}
	defer f.Close()

	d, err := h.files.Upload(c.Request.Context(), services.UploadRequest{
		OwnerID:       subject(c),
		Name:          fh.Filename,
		MimeType:      fh.Header.Get("Content-Type"),
		Body:          f,
		OriginAddress: c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, newFileResponse(d.File, d.Replicas))
}

func (h *Handler) getFile(c *gin.Context) {
	d, err := h.files.Get(c.Request.Context(), subject(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newFileResponse(d.File, d.Replicas))
}

func (h *Handler) downloadFile(c *gin.Context) {
	file, body, err := h.files.Download(c.Request.Context(), subject(c), c.Param("id"), c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	defer body.Close()

	c.DataFromReader(http.StatusOK, file.Size, file.MimeType, body, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", file.OriginalName),
	})
}

func (h *Handler) deleteFile(c *gin.Context) {
	if err := h.files.Delete(c.Request.Context(), subject(c), c.Param("id"), c.ClientIP(), c.Request.UserAgent()); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
