package logging

import (
	"time"

	"github.com/rollbar/rollbar-go"
	"go.uber.org/zap/zapcore"
)

// Reporter forwards error-level log entries to an external error tracker.
type Reporter interface {
	Report(message string, err error, extras map[string]interface{})
	Flush()
}

// RollbarConfig configures the Rollbar reporter.
type RollbarConfig struct {
	Token       string
	Environment string
	ServerHost  string
	CodeVersion string
}

// RollbarReporter sends entries to Rollbar through the package-level client.
type RollbarReporter struct{}

// NewRollbarReporter configures the global Rollbar client. It returns nil when no token is set
// so callers can pass the result straight into Config.Reporter.
func NewRollbarReporter(cfg RollbarConfig) Reporter {
	if cfg.Token == "" {
		return nil
	}
	rollbar.SetToken(cfg.Token)
	rollbar.SetEnvironment(cfg.Environment)
	rollbar.SetServerHost(cfg.ServerHost)
	rollbar.SetCodeVersion(cfg.CodeVersion)
	return RollbarReporter{}
}

func (RollbarReporter) Report(message string, err error, extras map[string]interface{}) {
	if extras == nil {
		extras = map[string]interface{}{}
	}
	if err == nil {
		rollbar.Error(message, extras)
		return
	}
	extras["log_message"] = message
	rollbar.Error(err, extras)
}

// Flush blocks until queued items are delivered.
func (RollbarReporter) Flush() {
	rollbar.Wait()
}

// reportingCore is a zapcore.Core that only handles error-level entries and hands them to a Reporter.
type reportingCore struct {
	reporter Reporter
	fields   []zapcore.Field
}

func newReportingCore(r Reporter) zapcore.Core {
	return &reportingCore{reporter: r}
}

func (c *reportingCore) Enabled(l zapcore.Level) bool {
	return l >= zapcore.ErrorLevel
}

func (c *reportingCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &reportingCore{reporter: c.reporter, fields: merged}
}

func (c *reportingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *reportingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	var cause error
	for _, f := range append(append([]zapcore.Field{}, c.fields...), fields...) {
		if f.Type == zapcore.ErrorType {
			if err, ok := f.Interface.(error); ok && cause == nil {
				cause = err
				continue
			}
		}
		f.AddTo(enc)
	}
	enc.Fields["logged_at"] = ent.Time.UTC().Format(time.RFC3339Nano)
	if ent.Caller.Defined {
		enc.Fields["caller"] = ent.Caller.TrimmedPath()
	}
	c.reporter.Report(ent.Message, cause, enc.Fields)
	return nil
}

func (c *reportingCore) Sync() error {
	return nil
}
