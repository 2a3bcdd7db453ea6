// Package metrics defines prometheus metric types and provides
// convenience methods to add accounting to the codec's decode/encode
// paths.
//
// When defining new operations or metrics, these are helpful values to
// track:
//  - things coming into or go out of the system: messages, attributes,
//    errors.
//  - the success or error status of any of the above.
//  - the distribution of processing latency.
package metrics

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecodeDuration tracks Node.Decode latency, labeled by the schema
	// name the caller attributes the call to (e.g. "ctrl", "mgmt",
	// "rtlink.link"). It does NOT include any transport/socket read
	// time, since this codec never touches a socket.
	DecodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "netlink_codec_decode_duration_seconds",
			Help: "message decode latency distribution (seconds), by family schema",
			Buckets: []float64{
				0.00001, 0.0000125, 0.000016, 0.00002, 0.000025, 0.000032, 0.00004, 0.00005,
				0.0001, 0.000125, 0.00016, 0.0002, 0.00025, 0.00032, 0.0004, 0.0005,
				0.001, 0.00125, 0.0016, 0.002, 0.0025, 0.0032, 0.004, 0.005,
				0.01, 0.0125, 0.016, 0.02,
			},
		},
		[]string{"family"})

	// DecodeErrorsTotal counts fatal decode faults, labeled by which of
	// the three failure domains (§7) raised them.
	DecodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netlink_codec_decode_errors_total",
			Help: "The total number of fatal decode errors, by failure domain.",
		}, []string{"kind"})

	// AttributesDecodedTotal counts every attribute successfully bound
	// to a name during a DecodeLoop pass, across all families.
	AttributesDecodedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netlink_codec_attributes_decoded_total",
			Help: "Number of attribute-chain entries successfully decoded.",
		},
	)

	// UnknownAttributeTotal counts attribute types a family's NLA map
	// had no entry for, labeled by family schema name (§4.5/§7: skipped,
	// not fatal).
	UnknownAttributeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netlink_codec_unknown_attribute_total",
			Help: "Number of attribute-chain entries skipped for an unmapped wire type.",
		}, []string{"family"})

	// RecoveredAttributeTotal counts attributes whose per-attribute
	// decode failed and were recorded as a hex blob instead (§7's local
	// recovery), labeled by family schema name.
	RecoveredAttributeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netlink_codec_recovered_attribute_total",
			Help: "Number of attribute-chain entries that failed to decode and were recorded as hex.",
		}, []string{"family"})
)

// init() prints a log message to let the user know that the package has
// been loaded and the metrics registered. The metrics are
// auto-registered, which means they are registered as soon as this
// package is loaded, and the exact time this occurs (and whether this
// occurs at all in a given context) can be opaque.
func init() {
	log.Println("Prometheus metrics in netlink-codec.metrics are registered.")
}

// Observe times fn and records its duration under DecodeDuration for
// the given family schema name, incrementing DecodeErrorsTotal with the
// right failure-domain label if fn returns a fatal decode error.
func Observe(family string, fn func() error) error {
	timer := prometheus.NewTimer(DecodeDuration.WithLabelValues(family))
	defer timer.ObserveDuration()
	err := fn()
	if err != nil {
		DecodeErrorsTotal.WithLabelValues(errorKind(err)).Inc()
	}
	return err
}

// ErrorKinder is implemented by nlmsg's three wrapped error types so
// Observe can label DecodeErrorsTotal without nlmsg needing to import
// this package.
type ErrorKinder interface {
	Kind() string
}

func errorKind(err error) string {
	if k, ok := err.(ErrorKinder); ok {
		return k.Kind()
	}
	return "unknown"
}
