package http

import (
	"log/slog"
	"net/http"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/docstore"
	"live-quiz-service/internal/identity"

	"github.com/gin-gonic/gin"
)

// Services is everything the HTTP layer talks to.
type Services struct {
	Store          docstore.Store
	Sessions       *app.Sessions
	Participation  *app.Participation
	Reports        *app.Reports
	Questionnaires app.QuestionnaireRepository
	Tokens         *identity.Tokens
	// StateFor returns the durable local state of one client.
	StateFor func(clientID string) app.LocalState
	Logger   *slog.Logger
}

// NewRouter builds the gin engine with the REST API and the live sockets.
func NewRouter(svc Services) *gin.Engine {
	logger := svc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	svc.Logger = logger

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	api := NewAPIHandler(svc)
	ws := NewWSHandler(svc)

	authed := r.Group("/", identify(svc.Tokens, logger))
	{
		authed.GET("/ws/teacher", ws.ServeTeacher)
		authed.GET("/ws/student", ws.ServeStudent)
		authed.POST("/api/sessions", api.CreateSession)
	}

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/sessions/:id", api.GetSession)
		apiGroup.DELETE("/sessions/:id", api.DeleteSession)
		apiGroup.GET("/questionnaires/:name", api.GetQuestionnaire)
		apiGroup.GET("/reports", api.ListReports)
		apiGroup.GET("/reports/:id", api.GetReport)
		apiGroup.GET("/reports/:id/export", api.ExportReport)
		apiGroup.GET("/export", api.ExportAll)
	}
	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request completed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
