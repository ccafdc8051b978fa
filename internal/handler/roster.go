package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"attendtrack/internal/model"
)

func (h *Handler) demoUser(ctx context.Context) (*model.User, error) {
	return h.svc.UserByUsername(ctx, h.demoUsername)
}

func (h *Handler) me(c *gin.Context) {
	u, err := h.demoUser(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) profile(c *gin.Context) { h.me(c) }

type profileRequest struct {
	FullName string `json:"fullName" binding:"required"`
}

func (h *Handler) updateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindMessage(err))
		return
	}
	u, err := h.demoUser(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	updated, err := h.svc.UpdateFullName(c.Request.Context(), u.ID, req.FullName)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) teacherClasses(c *gin.Context) {
	classes, err := h.svc.ClassesByTeacher(c.Request.Context(), c.Param("teacherId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, classes)
}

func (h *Handler) teacherClassSummaries(c *gin.Context) {
	list, err := h.svc.TeacherClasses(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type classRequest struct {
	Name      string `json:"name"`
	Subject   string `json:"subject"`
	TeacherID string `json:"teacherId"`
}

func (h *Handler) createClass(c *gin.Context) {
	var req classRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindMessage(err))
		return
	}
	if req.Name == "" || req.Subject == "" {
		badRequest(c, "Class name and subject are required")
		return
	}
	if req.TeacherID == "" {
		u, err := h.demoUser(c.Request.Context())
		if err != nil {
			h.fail(c, err)
			return
		}
		req.TeacherID = u.ID
	}
	cls, err := h.svc.CreateClass(c.Request.Context(), req.Name, req.Subject, req.TeacherID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cls)
}

type studentRequest struct {
	RollNo     string  `json:"rollNo" binding:"required"`
	FullName   string  `json:"fullName" binding:"required"`
	ClassID    string  `json:"classId" binding:"required"`
	PhotoURL   *string `json:"photoUrl" binding:"omitempty,url"`
	RFIDCardID *string `json:"rfidCardId"`
}

func (h *Handler) createStudent(c *gin.Context) {
	var req studentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindMessage(err))
		return
	}
	st, err := h.svc.CreateStudent(c.Request.Context(), model.Student{
		RollNo:     req.RollNo,
		FullName:   req.FullName,
		ClassID:    req.ClassID,
		PhotoURL:   req.PhotoURL,
		RFIDCardID: req.RFIDCardID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

type cardRequest struct {
	RFIDCardID string `json:"rfidCardId"`
}

func (h *Handler) assignStudentRFID(c *gin.Context) {
	var req cardRequest
	_ = c.ShouldBindJSON(&req)
	st, err := h.svc.AssignStudentRFID(c.Request.Context(), c.Param("studentId"), req.RFIDCardID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) assignUserRFID(c *gin.Context) {
	var req cardRequest
	_ = c.ShouldBindJSON(&req)
	u, err := h.svc.AssignUserRFID(c.Request.Context(), c.Param("userId"), req.RFIDCardID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) studentByCard(c *gin.Context) {
	st, err := h.svc.StudentByRFID(c.Request.Context(), c.Param("rfidCardId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) userByCard(c *gin.Context) {
	u, err := h.svc.UserByRFID(c.Request.Context(), c.Param("rfidCardId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
