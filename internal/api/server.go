package api

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/betbot/batchauction/internal/encoding"
	"github.com/betbot/batchauction/internal/solver"
	"github.com/betbot/batchauction/pkg/cache"
	"github.com/betbot/batchauction/pkg/config"
	"github.com/betbot/batchauction/pkg/ratelimit"
)

var log = logrus.WithField("component", "api")

// Config HTTP 服务配置
type Config struct {
	DBPath string
	// Tokens 代币登记（符号、精度），可以为 nil
	Tokens *config.Config
	// SolveRate 每秒求解请求上限，0 表示不限
	SolveRate int
}

// Server 批次求解 HTTP 服务：求解请求交给 solver.Service，结果索引保存在 SQLite
type Server struct {
	cfg     Config
	db      *sql.DB
	svc     *solver.Service
	limiter ratelimit.RateLimiter
	// decoded 已解码的解，解写入后不可变
	decoded *cache.InMemoryCache[string, *encoding.Solution]
}

// New 打开数据库并建表
func New(cfg Config, svc *solver.Service) (*Server, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("db path is required")
	}
	if svc == nil {
		return nil, errors.New("solver service is required")
	}
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, errors.Wrap(err, "mkdir db dir")
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	db.SetMaxIdleConns(1)

	s := &Server{
		cfg:     cfg,
		db:      db,
		svc:     svc,
		decoded: cache.NewInMemoryCache[string, *encoding.Solution](10*time.Minute, 256),
	}
	if cfg.SolveRate > 0 {
		s.limiter = ratelimit.NewTokenBucket(cfg.SolveRate, cfg.SolveRate)
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.wrap(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	batches := r.Group("/api/batches")
	batches.GET("", s.wrap(s.handleBatchesList))
	batches.POST("", s.wrap(s.handleBatchSolve))
	batches.GET("/:batchID", s.wrap(s.handleBatchGet))
	batches.GET("/:batchID/raw", s.wrap(s.handleBatchRaw))

	return r
}

type paramsKeyType string

const paramsKey paramsKeyType = "batchauction_path_params"

// wrap adapts net/http handlers to gin, injecting path params into request context.
func (s *Server) wrap(h func(http.ResponseWriter, *http.Request)) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := map[string]string{}
		for _, p := range c.Params {
			m[p.Key] = p.Value
		}
		ctx := context.WithValue(c.Request.Context(), paramsKey, m)
		c.Request = c.Request.WithContext(ctx)
		h(c.Writer, c.Request)
	}
}

func pathParam(r *http.Request, key string) string {
	m, _ := r.Context().Value(paramsKey).(map[string]string)
	return m[key]
}
