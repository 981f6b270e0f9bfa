package services

import (
	"go.uber.org/zap"

	"github.com/soaringjerry/Wellbeing/internal/monitoring"
)

// Observability bundles the logger and metrics handed to services. Zero value is silent.
type Observability struct {
	Log     *zap.Logger
	Metrics *monitoring.Metrics
}

func (o Observability) logger() *zap.Logger {
	if o.Log == nil {
		return zap.NewNop()
	}
	return o.Log
}
