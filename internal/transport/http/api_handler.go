package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/report"

	"github.com/gin-gonic/gin"
)

// APIHandler serves the REST side: session creation and deletion, questionnaires and
// reports.
type APIHandler struct {
	svc    Services
	logger *slog.Logger
}

func NewAPIHandler(svc Services) *APIHandler {
	return &APIHandler{svc: svc, logger: svc.Logger}
}

type createSessionRequest struct {
	Title         string            `json:"title"`
	Questions     []domain.Question `json:"questions"`
	QuestionsJSON string            `json:"questionsJson"`
	Questionnaire string            `json:"questionnaire"`
}

type sessionResponse struct {
	ID      string         `json:"id"`
	Session domain.Session `json:"session"`
}

// CreateSession creates a session owned by the calling client and records it as the
// client's teacher session so /ws/teacher can resume it.
func (h *APIHandler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}
	uid := clientID(c)
	session, err := h.svc.Sessions.Create(c.Request.Context(), uid, app.NewSession{
		Title:         req.Title,
		Questions:     req.Questions,
		QuestionsJSON: req.QuestionsJSON,
		Questionnaire: req.Questionnaire,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	rec := domain.TeacherRecord{SessionID: session.ID, Code: session.Code, Title: session.Title, TeacherID: uid}
	if err := h.svc.StateFor(uid).Save(c.Request.Context(), app.TeacherRecordKey, rec); err != nil {
		h.logger.Warn("save teacher record", "session", session.ID, "error", err)
	}
	c.JSON(http.StatusCreated, sessionResponse{ID: session.ID, Session: session})
}

func (h *APIHandler) GetSession(c *gin.Context) {
	session, err := h.svc.Sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{ID: session.ID, Session: session})
}

// DeleteSession removes a session with its students and answers.
func (h *APIHandler) DeleteSession(c *gin.Context) {
	if err := h.svc.Sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) GetQuestionnaire(c *gin.Context) {
	if h.svc.Questionnaires == nil {
		abortWithError(c, fmt.Errorf("%w: no questionnaires configured", domain.ErrNotFound))
		return
	}
	q, err := h.svc.Questionnaires.GetQuestionnaire(c.Request.Context(), c.Param("name"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// ListReports serves the filtered, paginated session listing with global statistics.
func (h *APIHandler) ListReports(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	page := 1
	if raw := c.Query("page"); raw != "" {
		if page, err = strconv.Atoi(raw); err != nil {
			abortWithError(c, fmt.Errorf("%w: page %q", domain.ErrValidation, raw))
			return
		}
	}
	listing, err := h.svc.Reports.List(c.Request.Context(), filter, page)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *APIHandler) GetReport(c *gin.Context) {
	rep, err := h.svc.Reports.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// ExportReport downloads one session as JSON (default) or CSV.
func (h *APIHandler) ExportReport(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	switch format := c.DefaultQuery("format", "json"); format {
	case "json":
		export, err := h.svc.Reports.Export(ctx, id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Header("Content-Disposition", attachment("session-"+export.Session.Code, "json"))
		c.JSON(http.StatusOK, export)
	case "csv":
		snap, err := h.svc.Reports.Load(ctx, id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Header("Content-Disposition", attachment("session-"+snap.Session.Code, "csv"))
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Status(http.StatusOK)
		if err := report.WriteCSV(c.Writer, snap); err != nil {
			h.logger.Error("write csv export", "session", id, "error", err)
		}
	default:
		abortWithError(c, fmt.Errorf("%w: unsupported export format %q", domain.ErrValidation, format))
	}
}

// ExportAll downloads every session with its students and answers.
func (h *APIHandler) ExportAll(c *gin.Context) {
	export, err := h.svc.Reports.ExportAll(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Header("Content-Disposition", attachment("all-sessions", "json"))
	c.Header("Content-Type", "application/json; charset=utf-8")
	c.Status(http.StatusOK)
	if err := json.NewEncoder(c.Writer).Encode(export); err != nil {
		h.logger.Error("write export", "error", err)
	}
}

func parseFilter(c *gin.Context) (report.Filter, error) {
	f := report.Filter{
		Date:   report.DateRange(strings.ToLower(c.DefaultQuery("date", string(report.AllTime)))),
		Status: report.Status(strings.ToLower(c.DefaultQuery("status", string(report.AnyStatus)))),
		Search: c.Query("q"),
	}
	switch f.Date {
	case report.AllTime, report.Today, report.ThisWeek, report.ThisMonth:
	default:
		return f, fmt.Errorf("%w: date filter %q", domain.ErrValidation, f.Date)
	}
	switch f.Status {
	case report.AnyStatus, report.ActiveStatus, report.EndedStatus:
	default:
		return f, fmt.Errorf("%w: status filter %q", domain.ErrValidation, f.Status)
	}
	return f, nil
}

func attachment(name, ext string) string {
	return fmt.Sprintf("attachment; filename=%q", name+"."+ext)
}
