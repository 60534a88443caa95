package api

import (
	"context"
	"errors"
	"net/http"

	"CatalogSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Reconciler 执行一次对账
type Reconciler interface {
	Run(ctx context.Context) (*service.PassResult, error)
}

type SyncHandler struct {
	reconciler Reconciler
	logger     *logrus.Logger
}

func NewSyncHandler(reconciler Reconciler, logger *logrus.Logger) *SyncHandler {
	return &SyncHandler{
		reconciler: reconciler,
		logger:     logger,
	}
}

// ReconcileHandler 立即执行一次对账
// @Summary 触发对账
// @Success 200 {object} service.PassResult
// @Failure 409 {object} map[string]string "已有对账在执行"
// @Failure 503 {object} map[string]string "必需来源不可用"
// @Router /api/matching/reconcile [post]
func (h *SyncHandler) ReconcileHandler(c *gin.Context) {
	result, err := h.reconciler.Run(c.Request.Context())
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, service.ErrPassInProgress):
			status = http.StatusConflict
		case errors.Is(err, service.ErrSourceUnavailable):
			status = http.StatusServiceUnavailable
		}
		h.logger.Errorf("对账失败: %v", err)
		c.JSON(status, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}
