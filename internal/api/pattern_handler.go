package api

import (
	"errors"
	"net/http"
	"strconv"

	"CatalogSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	maxRuleListLimit  = 100
	maxUnmatchedLimit = 200
)

// PatternHandler 身份抽取规则的命中分析接口
type PatternHandler struct {
	patternService *service.PatternService
	logger         *logrus.Logger
}

// NewPatternHandler 创建 PatternHandler
func NewPatternHandler(svc *service.PatternService, logger *logrus.Logger) *PatternHandler {
	return &PatternHandler{
		patternService: svc,
		logger:         logger,
	}
}

// GetStats 命中率总览
// GET /api/pattern/stats
func (h *PatternHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.patternService.Summary())
}

// ListRules 规则列表及命中次数
// GET /api/pattern/list?limit=50&offset=0
func (h *PatternHandler) ListRules(c *gin.Context) {
	limit, offset, ok := pagingParams(c, maxRuleListLimit)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.patternService.ListRules(limit, offset))
}

// ListUnmatched 没有任何规则命中的文件
// GET /api/pattern/unmatched?limit=50&offset=0
func (h *PatternHandler) ListUnmatched(c *gin.Context) {
	limit, offset, ok := pagingParams(c, maxUnmatchedLimit)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.patternService.Unmatched(limit, offset))
}

// GetFileMatch 单个文件名的抽取明细
// GET /api/pattern/files/:name/match
func (h *PatternHandler) GetFileMatch(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file name is required"})
		return
	}
	c.JSON(http.StatusOK, h.patternService.MatchFile(name))
}

// TestPattern 试匹配
// @Summary 用规则表或自定义正则试匹配一段标题/文件名
// @Accept json
// @Produce json
// @Param body body service.PatternTestRequest true "text 必填；pattern 可选"
// @Success 200 {object} service.PatternTestResult
// @Failure 400 {object} map[string]string
// @Router /api/pattern/test [post]
func (h *PatternHandler) TestPattern(c *gin.Context) {
	var req service.PatternTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.patternService.Test(req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidPattern) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).Error("TestPattern failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// pagingParams limit 默认 50，范围 [1, maxLimit]；offset >= 0。非法时已写 400
func pagingParams(c *gin.Context, maxLimit int) (int, int, bool) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > maxLimit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and " + strconv.Itoa(maxLimit)})
		return 0, 0, false
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
		return 0, 0, false
	}
	return limit, offset, true
}
