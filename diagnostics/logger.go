package diagnostics

import (
	"time"

	"github.com/google/uuid"
	"github.com/leeforge/interception/chain"
	"github.com/leeforge/interception/logging"
	"github.com/leeforge/interception/plugin"
	"go.uber.org/zap"
)

type logKey int

const (
	callIDValue logKey = iota
	callStartValue
)

// LogObserver logs intercepted calls and failing hooks. Each call gets a
// random call id that is also stored in the call context.
type LogObserver struct {
	logger *zap.Logger
}

var _ chain.Observer = (*LogObserver)(nil)

// NewLogObserver creates a LogObserver. A nil logger disables logging.
func NewLogObserver(logger *zap.Logger) *LogObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogObserver{logger: logger.Named("dispatch")}
}

// CallID returns the id LogObserver assigned to call.
func CallID(call *chain.Call) string {
	id, _ := call.Value(callIDValue).(string)
	return id
}

func (o *LogObserver) CallStarted(call *chain.Call) {
	id := uuid.NewString()
	call.SetValue(callIDValue, id)
	call.SetValue(callStartValue, time.Now())
	call.Context = logging.WithCallID(call.Context, id)

	o.forCall(call).Debug("intercepted call started", zap.Int("args", len(call.Args)))
}

func (o *LogObserver) HookStarted(*chain.Call, *plugin.Link, plugin.Phase) {}

func (o *LogObserver) HookFinished(call *chain.Call, link *plugin.Link, phase plugin.Phase, err error) {
	fields := []zap.Field{
		zap.String("plugin", link.Key),
		zap.String("phase", phase.String()),
	}
	if err != nil {
		o.forCall(call).Warn("plugin hook failed", append(fields, zap.Error(err))...)
		return
	}
	o.forCall(call).Debug("plugin hook finished", fields...)
}

func (o *LogObserver) CallFinished(call *chain.Call, err error) {
	var elapsed time.Duration
	if start, ok := call.Value(callStartValue).(time.Time); ok {
		elapsed = time.Since(start)
	}

	if err != nil {
		o.forCall(call).Info("intercepted call failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return
	}
	o.forCall(call).Debug("intercepted call finished", zap.Duration("elapsed", elapsed))
}

func (o *LogObserver) forCall(call *chain.Call) *zap.Logger {
	return logging.WithContext(o.logger, call.Context).With(
		zap.String("type", call.SubjectType),
		zap.String("method", call.Method),
	)
}
