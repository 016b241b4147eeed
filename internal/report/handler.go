package report

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler serves the daily report over HTTP.
type Handler struct {
	generator *Generator
	logger    *zap.Logger
}

func NewHandler(generator *Generator, logger *zap.Logger) *Handler {
	return &Handler{generator: generator, logger: logger}
}

// Register binds the report routes.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/reports/daily", h.handleDaily)
	r.GET("/reports/daily.html", h.handleDailyHTML)
}

func (h *Handler) handleDaily(c *gin.Context) {
	resp, ok := h.respond(c)
	if !ok {
		return
	}
	c.JSON(resp.StatusCode, resp)
}

func (h *Handler) handleDailyHTML(c *gin.Context) {
	resp, ok := h.respond(c)
	if !ok {
		return
	}
	c.Data(resp.StatusCode, "text/html; charset=utf-8", []byte(resp.HTML))
}

// respond runs the report for ?date=YYYY-MM-DD, defaulting to yesterday.
func (h *Handler) respond(c *gin.Context) (Response, bool) {
	day := h.generator.PreviousDay()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return Response{}, false
		}
		day = parsed
	}

	resp, err := h.generator.Handle(c.Request.Context(), day)
	if err != nil {
		h.logger.Error("daily report failed", zap.String("date", day.Format(time.DateOnly)), zap.Error(err))
	}
	return resp, true
}
