package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	subscriptionsActivated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "activated_total",
			Help:      "新开通的订阅数。",
		},
		[]string{"plan", "type"},
	)

	subscriptionsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "expired_total",
			Help:      "被到期清扫置为 expired 的订阅数。",
		},
	)

	paymentVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "verifications_total",
			Help:      "支付核验次数，按结果区分。",
		},
		[]string{"result"},
	)

	documentDownloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "document",
			Name:      "downloads_total",
			Help:      "文档下载次数。",
		},
		[]string{"document_type"},
	)
)

func SubscriptionActivated(plan, subType string) {
	subscriptionsActivated.WithLabelValues(plan, subType).Inc()
}

func SubscriptionsExpired(n int64) {
	if n > 0 {
		subscriptionsExpired.Add(float64(n))
	}
}

// PaymentVerified 记录核验结果：success、failed 或 error。
func PaymentVerified(result string) {
	paymentVerifications.WithLabelValues(result).Inc()
}

func DocumentDownloaded(documentType string) {
	documentDownloads.WithLabelValues(documentType).Inc()
}
