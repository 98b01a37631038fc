package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	DevicesRegistered   prometheus.Counter
	DevicesActivated    prometheus.Counter
	ActivationFailures  prometheus.Counter
	CertificatesIssued  prometheus.Counter
	CertificatesRevoked prometheus.Counter
	DevicesDeleted      prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		DevicesRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "warden_devices_registered_total",
			Help: "Total number of devices registered",
		}),
		DevicesActivated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "warden_devices_activated_total",
			Help: "Total number of devices activated",
		}),
		ActivationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "warden_device_activation_failures_total",
			Help: "Total number of failed device activations",
		}),
		CertificatesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "warden_certificates_issued_total",
			Help: "Total number of certificates issued",
		}),
		CertificatesRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "warden_certificates_revoked_total",
			Help: "Total number of certificates revoked",
		}),
		DevicesDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "warden_devices_deleted_total",
			Help: "Total number of devices deleted",
		}),
	}
}
