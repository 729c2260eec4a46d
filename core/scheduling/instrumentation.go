package scheduling

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/outdial/outdial-core/core/scheduling"

var tracer = otel.Tracer(scopeName)
