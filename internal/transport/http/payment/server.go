// Package payment exposes the payment-provider webhook. A successful
// payment grants access immediately and fires exactly one onboarding
// notification; anything the handler cannot parse is ignored with a log
// line, never a grant.
package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"advisor/internal/access"
	"advisor/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tidwall/gjson"
)

var (
	webhookReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "advisor_payment_webhook_received_total",
		Help: "Webhook calls received, any payload.",
	})
	webhookGranted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advisor_payment_webhook_granted_total",
		Help: "Webhook calls that resulted in an access grant, by persistence outcome.",
	}, []string{"persistence"})
	webhookIgnored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advisor_payment_webhook_ignored_total",
		Help: "Webhook calls ignored, by reason.",
	}, []string{"reason"})
)

// Granter 授权写入口；由 AccessCache 实现。
type Granter interface {
	Grant(ctx context.Context, rec access.Record) error
}

// Notifier 开通成功后的欢迎通知。
type Notifier interface {
	NotifyGrant(ctx context.Context, userID int64)
}

// Server 支付回调 HTTP 服务。
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig 描述支付回调服务依赖。
type ServerConfig struct {
	Addr        string
	OrderPrefix string
	Granter     Granter
	Notifier    Notifier
}

// NewServer 构建支付回调 server。
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Granter == nil {
		return nil, errors.New("payment server requires a granter")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9980"
	}
	if cfg.OrderPrefix == "" {
		cfg.OrderPrefix = "user"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	h := &webhookHandler{prefix: cfg.OrderPrefix, granter: cfg.Granter, notifier: cfg.Notifier}
	router.POST("/webhook/payment", h.handle)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &Server{addr: cfg.Addr, router: router}, nil
}

// Handler 暴露给 httptest 用。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

type webhookHandler struct {
	prefix   string
	granter  Granter
	notifier Notifier
}

// handle 支付服务商的回调格式不受我们控制，字段用 gjson 按路径探测，
// 不做整体绑定。状态非 paid 一律忽略。
func (h *webhookHandler) handle(c *gin.Context) {
	webhookReceived.Inc()
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		webhookIgnored.WithLabelValues("read_error").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	if !gjson.ValidBytes(body) {
		webhookIgnored.WithLabelValues("bad_json").Inc()
		logger.Warnf("[payment] non-JSON webhook ip=%s bytes=%d", c.ClientIP(), len(body))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	status := strings.ToLower(strings.TrimSpace(gjson.GetBytes(body, "status").String()))
	if status != "paid" {
		webhookIgnored.WithLabelValues("status").Inc()
		logger.Infof("[payment] ignoring webhook status=%q ip=%s", status, c.ClientIP())
		// 200，否则服务商会一直重发。
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	ref := gjson.GetBytes(body, "orderReference").String()
	userID, username, err := parseOrderReference(h.prefix, ref)
	if err != nil {
		webhookIgnored.WithLabelValues("reference").Inc()
		logger.Errorf("[payment] bad orderReference %q ip=%s: %v", ref, c.ClientIP(), err)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	rec := access.Record{
		UserID:    userID,
		Username:  username,
		Source:    access.SourcePayment,
		GrantedAt: time.Now(),
	}
	if err := h.granter.Grant(c.Request.Context(), rec); err != nil {
		// 内存里已经生效，持久化失败单独计数，别和落了盘的混在一起。
		webhookGranted.WithLabelValues("failed").Inc()
		logger.Errorf("[payment] grant persistence for %d failed: %v", userID, err)
	} else {
		webhookGranted.WithLabelValues("ok").Inc()
	}
	logger.Infof("[payment] granted user=%d username=%s amount=%s ip=%s",
		userID, username, gjson.GetBytes(body, "amount").String(), c.ClientIP())
	if h.notifier != nil {
		h.notifier.NotifyGrant(c.Request.Context(), userID)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// parseOrderReference "user_12345_alice" 拆出用户ID和用户名。
// 用户名允许带下划线；解析失败即放弃，绝不猜着授权。
func parseOrderReference(prefix, ref string) (int64, string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 0, "", errors.New("empty reference")
	}
	parts := strings.SplitN(ref, "_", 3)
	if len(parts) < 2 || parts[0] != prefix {
		return 0, "", fmt.Errorf("reference %q does not match prefix %q", ref, prefix)
	}
	userID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || userID <= 0 {
		return 0, "", fmt.Errorf("reference %q has no numeric user id", ref)
	}
	username := ""
	if len(parts) == 3 {
		username = parts[2]
	}
	return userID, username, nil
}

// requestLogger 记录回调调用，便于和服务商对账。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		client := c.ClientIP()
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", method, path, c.Writer.Status(), client, time.Since(start))
	}
}
