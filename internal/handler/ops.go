package handler

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"attendtrack/internal/attendance"
	"attendtrack/internal/auth"
	"attendtrack/internal/report"
)

const maxPhotoBytes = 8 << 20

func (h *Handler) uploadPhoto(c *gin.Context) {
	if h.photos == nil {
		unavailable(c, "image storage")
		return
	}
	ctx := c.Request.Context()
	studentID := c.Param("studentId")
	st, err := h.svc.Student(ctx, studentID)
	if err != nil {
		h.fail(c, err)
		return
	}
	file, header, err := c.Request.FormFile("photo")
	if err != nil {
		badRequest(c, "photo file is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxPhotoBytes+1))
	if err != nil {
		badRequest(c, "could not read photo")
		return
	}
	if len(data) > maxPhotoBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "photo is too large"})
		return
	}

	res, err := h.photos.UploadBytes(ctx, data, header.Filename, st.ID)
	if err != nil {
		h.log.Warn("photo upload failed", zap.String("student_id", st.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
		return
	}
	updated, err := h.svc.SetStudentPhoto(ctx, st.ID, res.SecureURL)
	if err != nil {
		h.fail(c, err)
		return
	}
	if h.face != nil {
		if _, err := h.face.Enroll(ctx, st.ID, res.SecureURL, st.FullName); err != nil {
			h.log.Warn("face enroll failed", zap.String("student_id", st.ID), zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, updated)
}

type reportRequest struct {
	Type      string `json:"type" form:"type"`
	ClassID   string `json:"classId" form:"classId"`
	StartDate string `json:"startDate" form:"startDate"`
	EndDate   string `json:"endDate" form:"endDate"`
}

func (r reportRequest) input() attendance.ReportRequest {
	return attendance.ReportRequest{Type: r.Type, ClassID: r.ClassID, StartDate: r.StartDate, EndDate: r.EndDate}
}

func (h *Handler) generateReport(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindMessage(err))
		return
	}
	rep, err := h.svc.GenerateReport(c.Request.Context(), req.input())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *Handler) downloadReport(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, bindMessage(err))
		return
	}
	rep, err := h.svc.GenerateReport(c.Request.Context(), req.input())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Type", report.ContentType)
	c.Header("Content-Disposition", `attachment; filename="`+report.Filename(rep)+`"`)
	c.Status(http.StatusOK)
	if err := report.WriteExcel(c.Writer, rep); err != nil {
		h.log.Error("write report", zap.String("class_id", rep.ClassID), zap.Error(err))
		_ = c.Error(err)
	}
}

func (h *Handler) getSettings(c *gin.Context) {
	s, err := h.settings.Get(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// putSettings merges the body over the stored document.
func (h *Handler) putSettings(c *gin.Context) {
	ctx := c.Request.Context()
	cur, err := h.settings.Get(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := c.ShouldBindJSON(&cur); err != nil {
		badRequest(c, bindMessage(err))
		return
	}
	saved, err := h.settings.Update(ctx, cur)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

type syncRequest struct {
	Target  string         `json:"target" binding:"required,oneof=government cloud"`
	Options map[string]any `json:"options"`
}

func (h *Handler) startSync(c *gin.Context) {
	if h.sync == nil {
		unavailable(c, "sync")
		return
	}
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindMessage(err))
		return
	}
	st, err := h.sync.Enqueue(c.Request.Context(), req.Target, req.Options, "manual")
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, st)
}

func (h *Handler) syncStatus(c *gin.Context) {
	if h.sync == nil {
		unavailable(c, "sync")
		return
	}
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}
	ov, err := h.sync.Overview(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ov)
}

type deviceRequest struct {
	DeviceID string `json:"deviceId" binding:"required"`
	ClassID  string `json:"classId"`
}

// RegistrationKeyHeader carries the shared key required by device
// registration when Deps.RegistrationKey is set.
const RegistrationKeyHeader = "X-Registration-Key"

func (h *Handler) registerDevice(c *gin.Context) {
	if h.signer == nil {
		unavailable(c, "device auth")
		return
	}
	if h.regKey != "" && subtle.ConstantTimeCompare([]byte(c.GetHeader(RegistrationKeyHeader)), []byte(h.regKey)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid registration key"})
		return
	}
	var req deviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindMessage(err))
		return
	}
	tokens, err := h.signer.Issue(req.DeviceID, req.ClassID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.log.Info("device registered", zap.String("device_id", req.DeviceID), zap.String("class_id", req.ClassID))
	c.JSON(http.StatusCreated, tokens)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

func (h *Handler) refreshDevice(c *gin.Context) {
	if h.signer == nil {
		unavailable(c, "device auth")
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindMessage(err))
		return
	}
	tokens, err := h.signer.Refresh(req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrWrongKind) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}
