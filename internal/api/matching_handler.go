package api

import (
	"errors"
	"net/http"
	"strconv"

	"CatalogSync/internal/service"
	"CatalogSync/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// MatchingHandler 提供给看板的匹配矩阵查询接口（只读）
type MatchingHandler struct {
	matrixService *service.MatrixService
	logger        *logrus.Logger
}

// NewMatchingHandler 创建 MatchingHandler
func NewMatchingHandler(svc *service.MatrixService, logger *logrus.Logger) *MatchingHandler {
	return &MatchingHandler{
		matrixService: svc,
		logger:        logger,
	}
}

// GetMatrix 匹配矩阵
// GET /api/matching/matrix?status=partial&search=main%20event&provenance=filesystem
func (h *MatchingHandler) GetMatrix(c *gin.Context) {
	filter, err := service.ParseMatrixFilter(c.Query("status"), c.Query("search"), c.Query("provenance"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.matrixService.ListMatrix(filter))
}

// GetStats 来源、匹配、覆盖与错误计数
// GET /api/matching/stats
func (h *MatchingHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.matrixService.Stats())
}

// GetFileSegments 单个文件的片段明细
// GET /api/matching/file/:name/segments
func (h *MatchingHandler) GetFileSegments(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file name is required"})
		return
	}
	result, err := h.matrixService.FileSegments(name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file '" + name + "' not found"})
			return
		}
		h.logger.WithError(err).Error("GetFileSegments failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetEntry 条目详情及其全部结论
// GET /api/matching/entries/:id
func (h *MatchingHandler) GetEntry(c *gin.Context) {
	result, err := h.matrixService.EntryDetail(c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
			return
		}
		h.logger.WithError(err).Error("GetEntry failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListRuns 对账审计历史
// GET /api/matching/runs?status=published&page=1&page_size=20
func (h *MatchingHandler) ListRuns(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := h.matrixService.ListRuns(c.Request.Context(), c.Query("status"), page, pageSize)
	if err != nil {
		if errors.Is(err, service.ErrAuditDisabled) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).Error("ListRuns failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
