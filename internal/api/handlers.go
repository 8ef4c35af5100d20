package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ctrlr/internal/catalog"
	"ctrlr/internal/models"
	"ctrlr/internal/ratelimit"
	"ctrlr/internal/relay"
	"ctrlr/internal/service/ai"
)

// multipart framing allowance on top of the file size limit
const formOverhead = 1 << 20

// Relay is the conversion pipeline behind POST /upload.
type Relay interface {
	Convert(ctx context.Context, up relay.Upload) (*relay.Result, error)
	LocalPath(ctx context.Context, link string) (string, bool)
}

type Options struct {
	ConvertedDir       string
	MaxUploadBytes     int64
	RateLimitPerMinute int
}

// Handler wires HTTP routes to the relay, the format catalog and the assistant.
type Handler struct {
	relay     Relay
	assistant ai.Assistant
	catalog   *catalog.Catalog
	limiter   *ratelimit.Keyed
	opts      Options
}

// NewHandler constructs a Handler; assistant may be nil to disable summaries and chat.
func NewHandler(r Relay, assistant ai.Assistant, cat *catalog.Catalog, opts Options) *Handler {
	if cat == nil {
		cat = catalog.Default()
	}
	return &Handler{
		relay:     r,
		assistant: assistant,
		catalog:   cat,
		limiter:   ratelimit.PerMinute(opts.RateLimitPerMinute),
		opts:      opts,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(securityHeaders())
	router.GET("/", h.health)
	if h.opts.ConvertedDir != "" {
		router.Static("/converted", h.opts.ConvertedDir)
	}

	limited := router.Group("/", rateLimit(h.limiter))
	limited.POST("/upload", h.upload)
	limited.POST("/summarize", h.summarize)
	limited.POST("/chat", h.chat)

	api := router.Group("/api")
	api.GET("/formats", h.listFormats)
	api.GET("/formats/:ext", h.getFormat)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "service": "ctrl-r server"})
}

func (h *Handler) upload(c *gin.Context) {
	if h.opts.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes+formOverhead)
	}
	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": "File too large."})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"message": relay.ErrNoFile.Message})
		return
	}
	if h.opts.MaxUploadBytes > 0 && file.Size > h.opts.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": "File too large."})
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": relay.ErrNoFile.Message})
		return
	}
	defer f.Close()

	res, err := h.relay.Convert(c.Request.Context(), relay.Upload{
		FileName:     file.Filename,
		Body:         f,
		TargetFormat: c.PostForm("targetFormat"),
	})
	if err != nil {
		var verr *relay.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"message": verr.Message})
			return
		}
		log.Printf("conversion error for %s: %v", file.Filename, err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Conversion failed", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "File uploaded and converted successfully",
		"url":          res.URL,
		"sourceExt":    res.SourceExt,
		"targetFormat": res.TargetFormat,
	})
}

type summarizeRequest struct {
	URL          string `json:"url"`
	TargetFormat string `json:"targetFormat"`
}

type chatRequest struct {
	URL          string            `json:"url"`
	TargetFormat string            `json:"targetFormat"`
	Question     string            `json:"question"`
	History      []models.ChatTurn `json:"history"`
}

func (h *Handler) summarize(c *gin.Context) {
	if h.assistant == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "summarization is not configured"})
		return
	}
	var req summarizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}
	summary, err := h.assistant.Summarize(c.Request.Context(), h.document(c.Request.Context(), req.URL, req.TargetFormat))
	if err != nil {
		log.Printf("summarize %s error: %v", req.URL, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

func (h *Handler) chat(c *gin.Context) {
	if h.assistant == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat is not configured"})
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}
	answer, err := h.assistant.Chat(c.Request.Context(), h.document(c.Request.Context(), req.URL, req.TargetFormat), req.Question, req.History)
	if err != nil {
		log.Printf("chat %s error: %v", req.URL, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": answer})
}

func (h *Handler) document(ctx context.Context, link, format string) ai.Document {
	doc := ai.Document{URL: link, TargetFormat: catalog.NormalizeFormat(format)}
	if p, ok := h.relay.LocalPath(ctx, link); ok {
		doc.LocalPath = p
	}
	return doc
}

type formatInfo struct {
	Extension     string   `json:"extension"`
	Label         string   `json:"label"`
	Description   string   `json:"description"`
	Outputs       []string `json:"outputs"`
	DefaultTarget string   `json:"defaultTarget"`
	Known         bool     `json:"known"`
}

func (h *Handler) formatInfo(ext string) formatInfo {
	ext = catalog.NormalizeFormat(ext)
	_, known := h.catalog.Lookup(ext)
	return formatInfo{
		Extension:     ext,
		Label:         h.catalog.Label(ext),
		Description:   h.catalog.Description(ext),
		Outputs:       h.catalog.Outputs(ext),
		DefaultTarget: h.catalog.DefaultTarget(ext),
		Known:         known,
	}
}

func (h *Handler) listFormats(c *gin.Context) {
	exts := h.catalog.Extensions()
	formats := make([]formatInfo, 0, len(exts))
	for _, ext := range exts {
		formats = append(formats, h.formatInfo(ext))
	}
	c.JSON(http.StatusOK, gin.H{"version": h.catalog.Version(), "formats": formats})
}

func (h *Handler) getFormat(c *gin.Context) {
	ext := catalog.NormalizeFormat(c.Param("ext"))
	if ext == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "extension is required"})
		return
	}
	c.JSON(http.StatusOK, h.formatInfo(ext))
}
