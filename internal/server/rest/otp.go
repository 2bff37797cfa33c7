package rest

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/server/services"
	"github.com/gin-gonic/gin"
)

type generateOTPRequest struct {
	Subject string `json:"subject"`
	Purpose string `json:"purpose"`
}

type generateOTPResponse struct {
	Success       bool      `json:"success"`
	Message       string    `json:"message"`
	ExpiresAt     time.Time `json:"expires_at"`
	OTPForTesting string    `json:"otp_for_testing,omitempty"`
}

type verifyOTPRequest struct {
	Subject string `json:"subject"`
	Code    string `json:"code"`
	Purpose string `json:"purpose"`
}

type verifyOTPResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) generateOTP(c *gin.Context) {
	var req generateOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}

	res, err := h.otp.Issue(c.Request.Context(), services.IssueRequest{
		Subject:       req.Subject,
		Purpose:       req.Purpose,
		OriginAddress: c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, generateOTPResponse{
		Success:       true,
		Message:       "OTP sent successfully",
		ExpiresAt:     res.ExpiresAt,
		OTPForTesting: res.Code,
	})
}

func (h *Handler) verifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}

	res, err := h.otp.Verify(c.Request.Context(), services.VerifyRequest{
		Subject:       req.Subject,
		Code:          req.Code,
		Purpose:       req.Purpose,
		OriginAddress: c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, verifyOTPResponse{
		Success:   true,
		Message:   "OTP verified successfully",
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
	})
}
