package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/dmitrijs2005/cloudvault/internal/server/services"
	"github.com/gin-gonic/gin"
)

type nodeResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Capacity  int64     `json:"capacity"`
	UsedSpace int64     `json:"used_space"`
	Status    string    `json:"status"`
	Location  *string   `json:"location,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newNodeResponse(n models.StorageNode) nodeResponse {
	return nodeResponse{
		ID:        n.ID,
		Name:      n.Name,
		Capacity:  n.Capacity,
		UsedSpace: n.UsedSpace,
		Status:    string(n.Status),
		Location:  n.Location,
		UpdatedAt: n.UpdatedAt,
	}
}

type createNodeRequest struct {
	Name     string `json:"name"`
	Capacity int64  `json:"capacity"`
	Status   string `json:"status"`
	Location string `json:"location"`
}

type updateNodeRequest struct {
	Status   *string `json:"status"`
	Capacity *int64  `json:"capacity"`
	Location *string `json:"location"`
}

type auditEventResponse struct {
	ID            string         `json:"id"`
	Subject       *string        `json:"subject,omitempty"`
	EventType     string         `json:"event_type"`
	Description   string         `json:"description"`
	OriginAddress *string        `json:"origin_address,omitempty"`
	UserAgent     *string        `json:"user_agent,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Success       bool           `json:"success"`
	CreatedAt     time.Time      `json:"created_at"`
}

type profileResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type setRoleRequest struct {
	Role string `json:"role"`
}

func (h *Handler) listNodes(c *gin.Context) {
	nodes, err := h.admin.ListNodes(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	out := make([]nodeResponse, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, newNodeResponse(n))
	}
	c.JSON(http.StatusOK, gin.H{"nodes": out})
}

func (h *Handler) createNode(c *gin.Context) {
	var req createNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}
	n, err := h.admin.CreateNode(c.Request.Context(), subject(c), services.CreateNodeRequest(req))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, newNodeResponse(*n))
}

func (h *Handler) updateNode(c *gin.Context) {
	var req updateNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}
	n, err := h.admin.UpdateNode(c.Request.Context(), subject(c), c.Param("id"), services.UpdateNodeRequest(req))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newNodeResponse(*n))
}

func (h *Handler) listAudit(c *gin.Context) {
	filter := models.AuditFilter{
		Subject: c.Query("subject"),
		Limit:   queryInt(c, "limit"),
		Offset:  queryInt(c, "offset"),
	}
	if et := c.Query("event_type"); et != "" {
		parsed, err := models.ParseEventType(et)
		if err != nil {
			writeError(c, h.logger, err)
			return
		}
		filter.EventType = parsed
	}

	events, err := h.admin.ListAudit(c.Request.Context(), filter)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	out := make([]auditEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, auditEventResponse{
			ID:            e.ID,
			Subject:       e.Subject,
			EventType:     string(e.EventType),
			Description:   e.Description,
			OriginAddress: e.OriginAddress,
			UserAgent:     e.UserAgent,
			Metadata:      e.Metadata,
			Success:       e.Success,
			CreatedAt:     e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

func (h *Handler) listAllFiles(c *gin.Context) {
	files, err := h.admin.ListFiles(c.Request.Context(), queryInt(c, "limit"), queryInt(c, "offset"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": newFileList(files)})
}

func (h *Handler) listProfiles(c *gin.Context) {
	profiles, err := h.admin.ListProfiles(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	out := make([]profileResponse, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, profileResponse{ID: p.ID, Email: p.Email, Role: string(p.Role), CreatedAt: p.CreatedAt})
	}
	c.JSON(http.StatusOK, gin.H{"profiles": out})
}

func (h *Handler) setRole(c *gin.Context) {
	var req setRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}
	if err := h.admin.SetRole(c.Request.Context(), subject(c), c.Param("id"), req.Role); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// queryInt returns 0 for a missing or malformed parameter.
func queryInt(c *gin.Context, name string) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return v
}
