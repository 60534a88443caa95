package api

import (
	"errors"
	"net/http"

	"CatalogSync/internal/nas"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NASHandler NAS 只读浏览接口
type NASHandler struct {
	nas    *nas.Service
	logger *logrus.Logger
}

func NewNASHandler(svc *nas.Service, logger *logrus.Logger) *NASHandler {
	return &NASHandler{nas: svc, logger: logger}
}

// GetFolders 目录树
// GET /api/nas/folders
func (h *NASHandler) GetFolders(c *gin.Context) {
	tree, err := h.nas.Folders(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tree)
}

// GetFiles 单目录视频文件
// GET /api/nas/files?path=/WSOP/2015
func (h *NASHandler) GetFiles(c *gin.Context) {
	listing, err := h.nas.Files(c.Request.Context(), c.DefaultQuery("path", "/"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *NASHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, nas.ErrOutsideRoot):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, nas.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, nas.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.logger.WithError(err).Error("NAS 浏览失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
