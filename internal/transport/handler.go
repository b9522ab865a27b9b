package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/image-analyser-go/internal/config"
	apperrors "github.com/anime-shed/image-analyser-go/internal/errors"
	"github.com/anime-shed/image-analyser-go/internal/logger"
	"github.com/anime-shed/image-analyser-go/internal/repository"
	"github.com/anime-shed/image-analyser-go/internal/service"
	"github.com/anime-shed/image-analyser-go/internal/storage"
	"github.com/anime-shed/image-analyser-go/internal/textmatch"
	"github.com/anime-shed/image-analyser-go/internal/vision"
	"github.com/anime-shed/image-analyser-go/pkg/models"
	"github.com/anime-shed/image-analyser-go/pkg/validation"
)

const version = "1.0.0"

type handler struct {
	svc       service.ImageAnalysisService
	fetcher   storage.ImageFetcher
	validator *validation.URLValidator
	cfg       *config.Config
}

// NewHandler builds the gin engine. gatherer backs the /metrics endpoint.
func NewHandler(svc service.ImageAnalysisService, fetcher storage.ImageFetcher, gatherer prometheus.Gatherer, cfg *config.Config) http.Handler {
	h := &handler{
		svc:       svc,
		fetcher:   fetcher,
		validator: validation.NewURLValidator(),
		cfg:       cfg,
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		requestLogger(),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	r.GET("/health", healthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	r.POST("/analyse", h.analyseUpload)
	r.POST("/analyse/url", h.analyseURL)
	r.GET("/history", h.listHistory)
	r.GET("/history/:id", h.getHistory)

	return r
}

func (h *handler) analyseUpload(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.RequestTimeout)
	defer cancel()

	header, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondTooLarge(c, maxErr)
			return
		}
		respondError(c, "file is required", apperrors.NewValidationError("multipart field 'file' is required", err))
		return
	}

	f, err := header.Open()
	if err != nil {
		respondError(c, "failed to read upload", apperrors.NewValidationError("unreadable upload", err))
		return
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		respondError(c, "failed to read upload", apperrors.NewValidationError("unreadable upload", err))
		return
	}
	if len(content) == 0 {
		respondError(c, "file is empty", apperrors.NewValidationError("uploaded file is empty", nil))
		return
	}

	if err := validation.ValidateFileName(header.Filename); err != nil {
		respondError(c, "invalid file name", err)
		return
	}

	h.analyse(ctx, c, header.Filename, content, c.PostForm("expected_text"))
}

func (h *handler) analyseURL(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.RequestTimeout)
	defer cancel()

	var req models.AnalyseURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "invalid request format", apperrors.NewValidationError("invalid request body", err))
		return
	}

	if err := h.validator.ValidateImageURL(req.URL); err != nil {
		respondError(c, "invalid image URL", err)
		return
	}
	if req.FileName != "" {
		if err := validation.ValidateFileName(req.FileName); err != nil {
			respondError(c, "invalid file name", err)
			return
		}
	}

	logger.WithField("url", req.URL).Debug("Fetching image")

	content, err := h.fetcher.FetchImage(ctx, req.URL)
	if err != nil {
		var fetchErr *apperrors.AppError
		if errors.Is(err, context.DeadlineExceeded) {
			fetchErr = apperrors.NewTimeoutError("Image fetch timeout", err)
		} else {
			fetchErr = apperrors.NewNetworkError("Failed to fetch image", err)
		}
		respondError(c, "failed to fetch image", fetchErr)
		return
	}

	fileName := req.FileName
	if fileName == "" {
		fileName = validation.FileNameFromURL(req.URL)
	}

	h.analyse(ctx, c, fileName, content, req.ExpectedText)
}

// analyse bounds the service call by AnalysisTimeout, nested inside the
// request timeout.
func (h *handler) analyse(ctx context.Context, c *gin.Context, fileName string, content []byte, expectedText string) {
	if h.cfg.AnalysisTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.AnalysisTimeout)
		defer cancel()
	}

	outcome, err := h.svc.AnalyseDetailed(ctx, fileName, content)
	if err != nil {
		respondError(c, "image analysis failed", err)
		return
	}

	resp := models.AnalyseResponse{
		ID:       outcome.Record.ID,
		FileName: outcome.Record.FileName,
		Location: outcome.Record.Location,
		Result:   json.RawMessage(outcome.Serialized),
	}
	if expectedText != "" {
		match := textmatch.Compare(expectedText, vision.DetectedText(outcome.Response))
		resp.TextMatch = &match
	}

	c.JSON(http.StatusOK, resp)
}

func (h *handler) listHistory(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		respondError(c, "invalid limit", err)
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		respondError(c, "invalid offset", err)
		return
	}

	items, err := h.svc.History(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, "failed to list history", err)
		return
	}

	limit, offset = service.ClampPage(limit, offset)
	c.JSON(http.StatusOK, models.HistoryResponse{
		Items:  items,
		Limit:  limit,
		Offset: offset,
	})
}

func (h *handler) getHistory(c *gin.Context) {
	record, err := h.svc.GetHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "history record not found", err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewValidationError(key+" must be an integer", err)
	}
	return n, nil
}

// Middleware and helper functions
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(logrus.Fields{
			"method":             c.Request.Method,
			"path":               c.Request.URL.Path,
			"status":             c.Writer.Status(),
			"ip":                 c.ClientIP(),
			"user_agent":         c.Request.UserAgent(),
			"processing_time_ms": time.Since(start).Milliseconds(),
		}).Info("Request handled")
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			respondError(c, "request processing failed", c.Errors.Last().Err)
		}
	}
}

func respondTooLarge(c *gin.Context, err *http.MaxBytesError) {
	logger.WithError(err).WithField("limit", err.Limit).Warn("Request body too large")
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{
		Error:   http.StatusText(http.StatusRequestEntityTooLarge),
		Message: "request body exceeds " + strconv.FormatInt(err.Limit, 10) + " bytes",
	})
}

func respondError(c *gin.Context, message string, err error) {
	appErr := apperrors.Classify(err, message, repository.ErrHistoryNotFound)

	entry := logger.WithError(err).WithFields(logrus.Fields{
		"status_code": appErr.StatusCode,
		"error_type":  appErr.Type,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	})
	if appErr.StatusCode >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request failed")
	}

	c.AbortWithStatusJSON(appErr.StatusCode, models.ErrorResponse{
		Error:   http.StatusText(appErr.StatusCode),
		Message: appErr.Message,
	})
}
