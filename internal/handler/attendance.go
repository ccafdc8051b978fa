package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"attendtrack/internal/attendance"
	"attendtrack/internal/auth"
	"attendtrack/internal/model"
)

type markRequest struct {
	StudentID string       `json:"studentId" binding:"required"`
	ClassID   string       `json:"classId" binding:"required"`
	Date      string       `json:"date" binding:"required,isodate"`
	IsPresent *bool        `json:"isPresent" binding:"required"`
	MarkedBy  string       `json:"markedBy" binding:"required"`
	Method    model.Method `json:"method" binding:"required,oneof=manual facial rfid"`
}

func (h *Handler) markAttendance(c *gin.Context) {
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindMessage(err))
		return
	}
	rec, err := h.svc.Mark(c.Request.Context(), attendance.MarkInput{
		StudentID: req.StudentID,
		ClassID:   req.ClassID,
		Date:      req.Date,
		IsPresent: req.IsPresent,
		MarkedBy:  req.MarkedBy,
		Method:    req.Method,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type scanRequest struct {
	RFIDCardID string `json:"rfidCardId" binding:"required"`
	ClassID    string `json:"classId" binding:"required"`
	MarkedBy   string `json:"markedBy" binding:"required"`
	Date       string `json:"date" binding:"omitempty,isodate"`
}

// deviceAllowed rejects tokens pinned to a different class.
func deviceAllowed(c *gin.Context, classID string) bool {
	claims, ok := auth.ClaimsFrom(c)
	if !ok || claims.ClassID == "" || claims.ClassID == classID {
		return true
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "device is not registered for this class"})
	return false
}

func (h *Handler) rfidAttendance(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Missing required fields: rfidCardId, classId, markedBy")
		return
	}
	if !deviceAllowed(c, req.ClassID) {
		return
	}
	res, err := h.svc.MarkByRFID(c.Request.Context(), attendance.ScanInput{
		RFIDCardID: req.RFIDCardID,
		ClassID:    req.ClassID,
		MarkedBy:   req.MarkedBy,
		Date:       req.Date,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type bulkRequest struct {
	Scans    []string `json:"scans" binding:"required"`
	ClassID  string   `json:"classId" binding:"required"`
	MarkedBy string   `json:"markedBy" binding:"required"`
	Date     string   `json:"date" binding:"omitempty,isodate"`
}

func (h *Handler) rfidBulkAttendance(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Missing required fields: scans (array), classId, markedBy")
		return
	}
	if !deviceAllowed(c, req.ClassID) {
		return
	}
	res, err := h.svc.ProcessBatch(c.Request.Context(), attendance.BatchInput{
		CardIDs:  req.Scans,
		ClassID:  req.ClassID,
		MarkedBy: req.MarkedBy,
		Date:     req.Date,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type faceRequest struct {
	StudentID string `json:"studentId" binding:"required"`
	ClassID   string `json:"classId" binding:"required"`
	ImageURL  string `json:"imageUrl" binding:"required,url"`
	MarkedBy  string `json:"markedBy" binding:"required"`
	Date      string `json:"date" binding:"omitempty,isodate"`
}

func (h *Handler) facialAttendance(c *gin.Context) {
	var req faceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindMessage(err))
		return
	}
	res, err := h.svc.MarkByFace(c.Request.Context(), attendance.FaceInput{
		StudentID: req.StudentID,
		ClassID:   req.ClassID,
		ImageURL:  req.ImageURL,
		MarkedBy:  req.MarkedBy,
		Date:      req.Date,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) dashboardStats(c *gin.Context) {
	stats, err := h.svc.DashboardStats(c.Request.Context(), c.Param("classId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) weeklyAttendance(c *gin.Context) {
	week, err := h.svc.WeeklyAttendance(c.Request.Context(), c.Param("classId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, week)
}

func (h *Handler) students(c *gin.Context) {
	list, err := h.svc.StudentsWithStats(c.Request.Context(), c.Param("classId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) lowAttendance(c *gin.Context) {
	threshold := attendance.DefaultLowAttendanceThreshold
	if v := c.Query("threshold"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			badRequest(c, "threshold must be a number")
			return
		}
		threshold = parsed
	}
	list, err := h.svc.LowAttendance(c.Request.Context(), c.Param("classId"), threshold)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) attendanceOn(c *gin.Context) {
	recs, err := h.svc.AttendanceOn(c.Request.Context(), c.Param("classId"), c.Param("date"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (h *Handler) history(c *gin.Context) {
	limit := 30
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	recs, err := h.svc.History(c.Request.Context(), c.Param("studentId"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (h *Handler) liveFeed(c *gin.Context) {
	if h.live == nil {
		unavailable(c, "live feed")
		return
	}
	h.live.Serve(c.Writer, c.Request, c.Param("classId"))
}
