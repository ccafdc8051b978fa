package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"attendtrack/internal/attendance"
	"attendtrack/internal/auth"
	"attendtrack/internal/cloudinary"
	"attendtrack/internal/faceclient"
	"attendtrack/internal/govsync"
	"attendtrack/internal/observability"
	"attendtrack/internal/settings"
)

// PhotoUploader stores student photos and returns their public URL.
type PhotoUploader interface {
	UploadBytes(ctx context.Context, data []byte, filename, publicID string) (*cloudinary.UploadResult, error)
}

// FaceEnroller registers a reference photo with the face service.
type FaceEnroller interface {
	Enroll(ctx context.Context, studentID, imageURL, name string) (*faceclient.EnrollResult, error)
}

// LiveFeed serves class WebSocket subscriptions.
type LiveFeed interface {
	Serve(w http.ResponseWriter, r *http.Request, classID string)
}

// Syncer queues and reports external sync jobs.
type Syncer interface {
	Enqueue(ctx context.Context, target string, options map[string]any, trigger string) (govsync.Status, error)
	Overview(ctx context.Context, limit int) (govsync.Overview, error)
}

// Check pings one named dependency for /healthz.
type Check func(ctx context.Context) error

// Deps wires the handler. Optional fields disable their endpoints with 503.
type Deps struct {
	Attendance      *attendance.Service
	Settings        *settings.Service
	Sync            Syncer
	Live            LiveFeed
	Photos          PhotoUploader
	Face            FaceEnroller
	Signer          *auth.Signer
	RFIDDeviceAuth  bool
	RegistrationKey string
	DemoUsername    string
	Checks          map[string]Check
	Log             *zap.Logger
}

// Handler serves the REST API.
type Handler struct {
	svc          *attendance.Service
	settings     *settings.Service
	sync         Syncer
	live         LiveFeed
	photos       PhotoUploader
	face         FaceEnroller
	signer       *auth.Signer
	deviceAuth   bool
	regKey       string
	demoUsername string
	checks       map[string]Check
	log          *zap.Logger
}

func New(d Deps) *Handler {
	registerValidators()
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.DemoUsername == "" {
		d.DemoUsername = "anita.sharma"
	}
	return &Handler{
		svc:          d.Attendance,
		settings:     d.Settings,
		sync:         d.Sync,
		live:         d.Live,
		photos:       d.Photos,
		face:         d.Face,
		signer:       d.Signer,
		deviceAuth:   d.RFIDDeviceAuth && d.Signer != nil,
		regKey:       d.RegistrationKey,
		demoUsername: d.DemoUsername,
		checks:       d.Checks,
		log:          d.Log,
	}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.health)

	api := r.Group("/api")

	api.GET("/auth/me", h.me)
	api.GET("/user/profile", h.profile)
	api.PUT("/user/profile", h.updateProfile)
	api.PUT("/user/:userId/rfid", h.assignUserRFID)

	api.GET("/teacher/classes", h.teacherClassSummaries)
	api.GET("/teacher/:teacherId/classes", h.teacherClasses)
	api.POST("/classes", h.createClass)
	api.POST("/students", h.createStudent)

	cls := api.Group("/class/:classId")
	cls.GET("/dashboard-stats", h.dashboardStats)
	cls.GET("/weekly-attendance", h.weeklyAttendance)
	cls.GET("/students", h.students)
	cls.GET("/low-attendance", h.lowAttendance)
	cls.GET("/attendance/:date", h.attendanceOn)
	cls.GET("/live", h.liveFeed)

	api.POST("/attendance", h.markAttendance)
	api.GET("/student/:studentId/attendance-history", h.history)
	api.PUT("/student/:studentId/rfid", h.assignStudentRFID)
	api.PUT("/student/:studentId/photo", h.uploadPhoto)
	api.POST("/facial/attendance", h.facialAttendance)

	rfid := api.Group("/rfid")
	if h.deviceAuth {
		rfid.Use(auth.DeviceAuth(h.signer))
	}
	rfid.POST("/attendance", h.rfidAttendance)
	rfid.POST("/bulk-attendance", h.rfidBulkAttendance)
	rfid.GET("/student/:rfidCardId", h.studentByCard)
	rfid.GET("/user/:rfidCardId", h.userByCard)

	api.POST("/devices/register", h.registerDevice)
	api.POST("/devices/refresh", h.refreshDevice)

	api.POST("/reports/generate", h.generateReport)
	api.GET("/reports/download", h.downloadReport)

	api.GET("/settings", h.getSettings)
	api.PUT("/settings", h.putSettings)

	api.POST("/sync", h.startSync)
	api.GET("/sync/status", h.syncStatus)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, attendance.ErrValidation),
		errors.Is(err, attendance.ErrConflict),
		errors.Is(err, settings.ErrInvalid),
		errors.Is(err, govsync.ErrUnknownTarget):
		return http.StatusBadRequest
	case errors.Is(err, attendance.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage strips the category prefix from service errors.
func publicMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{attendance.ErrValidation, attendance.ErrNotFound, attendance.ErrConflict, attendance.ErrUnavailable} {
		if errors.Is(err, sentinel) {
			return strings.TrimPrefix(msg, sentinel.Error()+": ")
		}
	}
	return msg
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		h.log.Error("request failed", zap.String("route", c.FullPath()), zap.Error(err))
		observability.CaptureRequestErr(c.FullPath(), err)
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": publicMessage(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": what + " is not configured"})
}

func (h *Handler) health(c *gin.Context) {
	results := make(map[string]bool, len(h.checks))
	status := http.StatusOK
	for name, check := range h.checks {
		ok := check(c.Request.Context()) == nil
		results[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
		}
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": results})
}
