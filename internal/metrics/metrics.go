package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 业务指标
type AppMetrics struct {
	RegistrationTotal    prometheus.Counter     // 注册计数
	HeartbeatTotal       *prometheus.CounterVec // labels: status=online|idle|error
	ForceDisconnectTotal *prometheus.CounterVec // labels: phase=requested|delivered
	DisconnectTotal      prometheus.Counter     // 主动断开计数
	SessionsGauge        *prometheus.GaugeVec   // labels: status，按有效状态的会话数（最近一次聚合）
	RateLimitRejected    prometheus.Counter     // 被限流拒绝的请求数
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		RegistrationTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "device_session_register_total",
			Help: "Total device session registrations.",
		}),
		HeartbeatTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "device_session_heartbeat_total",
			Help: "Heartbeats observed by reported status.",
		}, []string{"status"}),
		ForceDisconnectTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "device_session_force_disconnect_total",
			Help: "Force disconnect lifecycle events.",
		}, []string{"phase"}),
		DisconnectTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "device_session_disconnect_total",
			Help: "Voluntary device disconnects.",
		}),
		SessionsGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "device_sessions",
			Help: "Sessions by effective status from the latest monitor poll.",
		}, []string{"status"}),
		RateLimitRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "api_rate_limit_rejected_total",
			Help: "Requests rejected by the rate limiter.",
		}),
	}
	reg.MustRegister(m.RegistrationTotal, m.HeartbeatTotal, m.ForceDisconnectTotal,
		m.DisconnectTotal, m.SessionsGauge, m.RateLimitRejected)
	return m
}
