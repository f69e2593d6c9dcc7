package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EnrollmentsTotal counts enrollments by status
	EnrollmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "did_enrollments_total",
			Help: "Total number of biometric enrollments",
		},
		[]string{"status"},
	)

	// VerificationsTotal counts verifications by outcome reason
	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "did_verifications_total",
			Help: "Total number of biometric verifications",
		},
		[]string{"reason"},
	)

	// RotationsTotal counts finger rotations
	RotationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "did_finger_rotations_total",
			Help: "Total number of single-finger digest rotations",
		},
	)

	// EnrollmentDuration tracks end-to-end enrollment processing time
	EnrollmentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "did_enrollment_duration_seconds",
			Help:    "Enrollment processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// VerificationDuration tracks end-to-end verification processing time
	VerificationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "did_verification_duration_seconds",
			Help:    "Verification processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// CorrectedBitErrors tracks how many bit errors BCH decoding corrected
	// per finger during successful verifications. A population creeping toward
	// the capacity of 10 signals degrading capture quality.
	CorrectedBitErrors = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "did_corrected_bit_errors",
			Help:    "Bit errors corrected by BCH decoding per finger",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
	)

	// StorageOpsTotal counts helper-data storage operations by backend and status
	StorageOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "did_storage_ops_total",
			Help: "Total number of helper-data storage operations",
		},
		[]string{"backend", "op", "status"},
	)
)
