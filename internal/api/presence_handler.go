package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/pos-server/internal/api/middleware"
	appmetrics "github.com/taoyao-code/pos-server/internal/metrics"
	"github.com/taoyao-code/pos-server/internal/presence"
	"github.com/taoyao-code/pos-server/internal/storage"
)

// PresenceHandler 设备在线状态API处理器
type PresenceHandler struct {
	svc      *presence.Service
	archives storage.ArchiveRepo
	metrics  *appmetrics.AppMetrics
	messages *presence.MessageMap
	logger   *zap.Logger
}

// NewPresenceHandler 创建在线状态API处理器
func NewPresenceHandler(
	svc *presence.Service,
	archives storage.ArchiveRepo,
	metrics *appmetrics.AppMetrics,
	messages *presence.MessageMap,
	logger *zap.Logger,
) *PresenceHandler {
	if messages == nil {
		messages = presence.DefaultMessageMap()
	}
	return &PresenceHandler{
		svc:      svc,
		archives: archives,
		metrics:  metrics,
		messages: messages,
		logger:   logger,
	}
}

// registerRequest 注册请求体
type registerRequest struct {
	DeviceName  string            `json:"device_name" binding:"required"`
	DeviceType  string            `json:"device_type" binding:"required"`
	StationName string            `json:"station_name"`
	UserName    string            `json:"user_name"`
	Metadata    map[string]string `json:"metadata"`
}

// heartbeatRequest 心跳请求体
type heartbeatRequest struct {
	Status            string            `json:"status" binding:"required"`
	ActiveOrderNumber string            `json:"active_order_number"`
	ErrorMessage      string            `json:"error_message"`
	Metadata          map[string]string `json:"metadata"`
}

// RegisterSession 设备上线注册
// @Summary 注册设备会话
// @Description 设备上线时调用一次，返回会话ID与设备凭证
// @Tags 设备会话
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body registerRequest true "注册信息"
// @Success 201 {object} map[string]interface{} "会话已创建"
// @Failure 400 {object} map[string]interface{} "参数无效"
// @Router /api/v1/device-sessions [post]
func (h *PresenceHandler) RegisterSession(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)

	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, &presence.ValidationError{Field: "body", Reason: err.Error()})
		return
	}

	sess, token, err := h.svc.Register(c.Request.Context(), presence.RegisterInput{
		MerchantID:  p.MerchantID,
		DeviceName:  req.DeviceName,
		DeviceType:  presence.DeviceType(req.DeviceType),
		StationName: req.StationName,
		UserName:    req.UserName,
		IPAddress:   c.ClientIP(),
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.metrics.RegistrationTotal.Inc()
	c.JSON(http.StatusCreated, gin.H{
		"session":      sess,
		"device_token": token,
	})
}

// Heartbeat 设备心跳上报
// @Summary 上报设备心跳
// @Description 设备按周期（默认10s）上报存活状态；响应中 forced_disconnect=true 表示管理端已请求断开
// @Tags 设备会话
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param session_id path string true "会话ID"
// @Param X-Device-Token header string true "注册时下发的设备凭证"
// @Param body body heartbeatRequest true "心跳信息"
// @Success 200 {object} map[string]interface{} "成功"
// @Failure 403 {object} map[string]interface{} "设备凭证无效"
// @Failure 404 {object} map[string]interface{} "会话不存在，需重新注册"
// @Router /api/v1/device-sessions/{session_id}/heartbeat [post]
func (h *PresenceHandler) Heartbeat(c *gin.Context) {
	sessionID := c.Param("session_id")
	p, _ := middleware.PrincipalFrom(c)

	var req heartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, &presence.ValidationError{Field: "body", Reason: err.Error()})
		return
	}

	forced, err := h.svc.Heartbeat(c.Request.Context(), p.MerchantID, sessionID, presence.HeartbeatInput{
		Status:            presence.Status(req.Status),
		DeviceToken:       c.GetHeader("X-Device-Token"),
		ActiveOrderNumber: req.ActiveOrderNumber,
		ErrorMessage:      req.ErrorMessage,
		Metadata:          req.Metadata,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.metrics.HeartbeatTotal.WithLabelValues(req.Status).Inc()
	if forced {
		h.metrics.ForceDisconnectTotal.WithLabelValues("delivered").Inc()
	}
	c.JSON(http.StatusOK, gin.H{"forced_disconnect": forced})
}

// DisconnectSession 设备主动断开
// @Summary 断开设备会话
// @Description 设备正常关机/退出时调用，会话进入 offline 终态并清除设备凭证
// @Tags 设备会话
// @Produce json
// @Security ApiKeyAuth
// @Param session_id path string true "会话ID"
// @Param X-Device-Token header string true "注册时下发的设备凭证"
// @Success 200 {object} map[string]interface{} "成功"
// @Failure 403 {object} map[string]interface{} "设备凭证无效"
// @Failure 404 {object} map[string]interface{} "会话不存在"
// @Router /api/v1/device-sessions/{session_id} [delete]
func (h *PresenceHandler) DisconnectSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	p, _ := middleware.PrincipalFrom(c)

	if err := h.svc.Disconnect(c.Request.Context(), p.MerchantID, sessionID, c.GetHeader("X-Device-Token")); err != nil {
		h.writeError(c, err)
		return
	}

	h.metrics.DisconnectTotal.Inc()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ForceDisconnect 管理端强制断开
// @Summary 强制断开设备会话
// @Description 设置断开标记，设备下一次心跳时收到 forced_disconnect 信号；设备失联时由硬超时兜底。幂等。
// @Tags 会话管理
// @Produce json
// @Security ApiKeyAuth
// @Param session_id path string true "会话ID"
// @Success 200 {object} map[string]interface{} "成功"
// @Failure 403 {object} map[string]interface{} "无权操作"
// @Failure 404 {object} map[string]interface{} "会话不存在"
// @Router /api/v1/device-sessions/{session_id}/force-disconnect [post]
func (h *PresenceHandler) ForceDisconnect(c *gin.Context) {
	sessionID := c.Param("session_id")
	p, _ := middleware.PrincipalFrom(c)

	actor := presence.Actor{Name: p.Name, MerchantID: p.MerchantID, Admin: p.Admin}
	if err := h.svc.RequestDisconnect(c.Request.Context(), sessionID, actor); err != nil {
		h.writeError(c, err)
		return
	}

	h.metrics.ForceDisconnectTotal.WithLabelValues("requested").Inc()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListSessions 查询商户活跃会话
// @Summary 查询活跃设备会话列表
// @Description 返回商户范围内的会话（含读取时计算的有效状态）与分状态计数；超过保留窗口的 offline 会话不可见
// @Tags 会话管理
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} map[string]interface{} "成功"
// @Router /api/v1/device-sessions [get]
func (h *PresenceHandler) ListSessions(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)

	views, counts, err := h.svc.ListActive(c.Request.Context(), p.MerchantID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	// 监控视图即最新聚合结果，顺带刷新指标
	h.metrics.SessionsGauge.WithLabelValues("online").Set(float64(counts.Online))
	h.metrics.SessionsGauge.WithLabelValues("idle").Set(float64(counts.Idle))
	h.metrics.SessionsGauge.WithLabelValues("offline").Set(float64(counts.Offline))
	h.metrics.SessionsGauge.WithLabelValues("error").Set(float64(counts.Error))

	c.JSON(http.StatusOK, gin.H{
		"sessions": views,
		"counts":   counts,
	})
}

// GetSession 查询单个会话
// @Summary 查询设备会话详情
// @Description 返回会话记录与读取时计算的有效状态
// @Tags 会话管理
// @Produce json
// @Security ApiKeyAuth
// @Param session_id path string true "会话ID"
// @Success 200 {object} map[string]interface{} "成功"
// @Failure 404 {object} map[string]interface{} "会话不存在"
// @Router /api/v1/device-sessions/{session_id} [get]
func (h *PresenceHandler) GetSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	p, _ := middleware.PrincipalFrom(c)

	view, err := h.svc.GetSession(c.Request.Context(), p.MerchantID, sessionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": view})
}

// ListArchivedSessions 查询已结束会话归档
// @Summary 查询会话归档
// @Description 分页返回商户范围内已结束的会话（断开/强制断开/超时老化）
// @Tags 会话管理
// @Produce json
// @Security ApiKeyAuth
// @Param limit query int false "每页数量(默认100)"
// @Param offset query int false "偏移量(默认0)"
// @Success 200 {object} map[string]interface{} "成功"
// @Router /api/v1/device-sessions/archive [get]
func (h *PresenceHandler) ListArchivedSessions(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)

	limit := 100
	offset := 0
	if v := c.Query("limit"); v != "" {
		if vv, e := strconv.Atoi(v); e == nil {
			limit = vv
		}
	}
	if v := c.Query("offset"); v != "" {
		if vv, e := strconv.Atoi(v); e == nil {
			offset = vv
		}
	}

	recs, err := h.archives.ListArchivesByMerchant(c.Request.Context(), p.MerchantID, limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}
	total, err := h.archives.CountArchivesByMerchant(c.Request.Context(), p.MerchantID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"archives": recs, "total": total})
}

// writeError 按错误分类映射HTTP状态码与用户文案
func (h *PresenceHandler) writeError(c *gin.Context, err error) {
	var ve *presence.ValidationError

	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   presence.CodeValidation,
			"message": h.messages.Lookup(presence.CodeValidation),
			"detail":  ve.Error(),
		})
	case errors.Is(err, presence.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   presence.CodeSessionNotFound,
			"message": h.messages.Lookup(presence.CodeSessionNotFound),
		})
	case errors.Is(err, presence.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   presence.CodePermissionDenied,
			"message": h.messages.Lookup(presence.CodePermissionDenied),
		})
	case presence.IsTransient(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   presence.CodeTransient,
			"message": h.messages.Lookup(presence.CodeTransient),
		})
	default:
		h.logger.Error("unhandled api error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}
