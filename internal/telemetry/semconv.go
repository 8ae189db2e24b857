package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic convention attribute keys for stream telemetry.
// Following OpenTelemetry naming conventions: namespace.attribute_name

const (
	// AttrEnvironment specifies the deployment environment (dev/staging/prod) for every metric.
	AttrEnvironment = attribute.Key("environment")
	// AttrStreamKind identifies the endpoint family (firehose, sample, filter, user).
	AttrStreamKind = attribute.Key("stream.kind")
	// AttrMessageType labels classified message kinds (tweet, delete, limit, ...).
	AttrMessageType = attribute.Key("message.type")
	// AttrResult records the outcome of an operation (success, error class, etc.).
	AttrResult = attribute.Key("result")
	// AttrFailureClass groups reconnect causes by backoff policy (network, http, rate_limited, auth).
	AttrFailureClass = attribute.Key("failure.class")
	// AttrErrorType categorizes failures by error code.
	AttrErrorType = attribute.Key("error.type")
	// AttrConnectionState labels connection lifecycle transitions.
	AttrConnectionState = attribute.Key("connection.state")
)

// Result values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// StreamAttributes returns the base attribute set shared by stream metrics.
func StreamAttributes(environment, kind string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrStreamKind.String(kind),
	}
}
