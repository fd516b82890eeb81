// Package bundlefx groups the HTTP middleware providers.
package bundlefx

import (
	"github.com/joeydtaylor/steeze-script/pkg/middleware/logger"
	"github.com/joeydtaylor/steeze-script/pkg/middleware/metrics"
	"go.uber.org/fx"
)

// Module provides *zap.Logger, *logger.Middleware and the metrics handler
// tagged name:"metrics".
var Module = fx.Options(
	logger.Module,
	metrics.Module,
)
