package relay

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/studykit/relay/internal/relay"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
