package api

import (
	"net/http"

	"CatalogSync/internal/config"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Handlers 路由需要的全部处理器
type Handlers struct {
	Matching *MatchingHandler
	Sync     *SyncHandler
	NAS      *NASHandler
	Pattern  *PatternHandler
}

// NewRouter 注册全部路由；gatherer 为 nil 时不暴露 /metrics
func NewRouter(cfg *config.ServerConfig, h Handlers, gatherer prometheus.Gatherer, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(corsMiddleware(cfg.CORSOrigins))

	// 注册ppof 方便调试和监测性能问题
	if cfg.Pprof {
		pprof.Register(r)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
			ErrorHandling: promhttp.ContinueOnError,
		})))
	}

	// 看板查询接口
	matching := r.Group("/api/matching")
	{
		matching.GET("/matrix", h.Matching.GetMatrix)
		matching.GET("/stats", h.Matching.GetStats)
		matching.GET("/file/:name/segments", h.Matching.GetFileSegments)
		matching.GET("/entries/:id", h.Matching.GetEntry)
		matching.GET("/runs", h.Matching.ListRuns)
		matching.POST("/reconcile", h.Sync.ReconcileHandler)
	}

	nasGroup := r.Group("/api/nas")
	{
		nasGroup.GET("/folders", h.NAS.GetFolders)
		nasGroup.GET("/files", h.NAS.GetFiles)
	}

	// 身份抽取规则分析
	pattern := r.Group("/api/pattern")
	{
		pattern.GET("/stats", h.Pattern.GetStats)
		pattern.GET("/list", h.Pattern.ListRules)
		pattern.GET("/unmatched", h.Pattern.ListUnmatched)
		pattern.GET("/files/:name/match", h.Pattern.GetFileMatch)
		pattern.POST("/test", h.Pattern.TestPattern)
	}

	logger.WithField("routes", len(r.Routes())).Debug("路由注册完成")
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}
	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
