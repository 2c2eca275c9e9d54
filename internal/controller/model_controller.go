package controller

import (
	"errors"
	"net/http"

	ngmodel "ngram-go/internal/model/ngram"
	"ngram-go/internal/service/ngram"
	"ngram-go/internal/service/tokenizer"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ModelController serves completion and scoring over HTTP
type ModelController struct {
	ngramService *ngram.NGramService
	logger       *zap.Logger
}

func NewModelController(ngramService *ngram.NGramService, logger *zap.Logger) *ModelController {
	return &ModelController{
		ngramService: ngramService,
		logger:       logger,
	}
}

type CompleteRequest struct {
	Language  string   `json:"language"`
	Code      string   `json:"code"`
	Tokens    []string `json:"tokens"`
	N         int      `json:"n" binding:"required"`
	MaxLength int      `json:"max_length"`
	Seed      *int64   `json:"seed"`
}

type PerplexityRequest struct {
	Language string `json:"language"`
	Code     string `json:"code" binding:"required"`
	N        int    `json:"n" binding:"required"`
}

// GetModels handles GET /api/v1/models
func (mc *ModelController) GetModels(c *gin.Context) {
	info, err := mc.ngramService.Info()
	if err != nil {
		mc.respondError(c, "Failed to describe models", err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// Complete handles POST /api/v1/complete
func (mc *ModelController) Complete(c *gin.Context) {
	var request CompleteRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		mc.logger.Error("Invalid request payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request payload",
			"details": err.Error(),
		})
		return
	}
	if request.Code == "" && request.Tokens == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Either code or tokens is required",
		})
		return
	}

	mc.logger.Info("Completing code",
		zap.String("language", request.Language),
		zap.Int("n", request.N),
		zap.Int("max_length", request.MaxLength))

	completion, err := mc.ngramService.Complete(c.Request.Context(), ngram.CompletionRequest{
		Language:  request.Language,
		Code:      request.Code,
		Tokens:    request.Tokens,
		N:         request.N,
		MaxLength: request.MaxLength,
		Seed:      request.Seed,
	})
	if err != nil {
		mc.respondError(c, "Failed to complete code", err)
		return
	}

	c.JSON(http.StatusOK, completion)
}

// Perplexity handles POST /api/v1/perplexity
func (mc *ModelController) Perplexity(c *gin.Context) {
	var request PerplexityRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		mc.logger.Error("Invalid request payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request payload",
			"details": err.Error(),
		})
		return
	}

	eval, err := mc.ngramService.Score(c.Request.Context(), ngram.ScoreRequest{
		Language: request.Language,
		Code:     request.Code,
		N:        request.N,
	})
	if err != nil {
		mc.respondError(c, "Failed to score code", err)
		return
	}

	mc.logger.Info("Scored code",
		zap.Int("n", request.N),
		zap.Int("ngrams", eval.NGrams),
		zap.Float64("perplexity", eval.Perplexity))

	c.JSON(http.StatusOK, eval)
}

func (mc *ModelController) respondError(c *gin.Context, message string, err error) {
	status := StatusForError(err)
	if status >= http.StatusInternalServerError {
		mc.logger.Error(message, zap.Error(err))
	} else {
		mc.logger.Warn(message, zap.Error(err))
	}
	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}

// StatusForError maps service errors to HTTP status codes
func StatusForError(err error) int {
	var cfgErr *ngmodel.InvalidConfigurationError
	var tokErr *tokenizer.TokenizeError

	switch {
	case errors.Is(err, ngram.ErrNoModel):
		return http.StatusServiceUnavailable
	case errors.Is(err, ngram.ErrOrderNotTrained):
		return http.StatusNotFound
	case errors.Is(err, ngram.ErrLanguageMismatch), errors.As(err, &cfgErr):
		return http.StatusBadRequest
	case errors.As(err, &tokErr), errors.Is(err, ngmodel.ErrEmptyCorpus):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
