package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger is the minimal logging interface every component depends on.
// Components accept a Logger, never a concrete type, so callers can
// supply a no-op, a test spy, or ProductionLogger interchangeably.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAwareLogger extends Logger so a package can tag its own log
// lines with a stable component name (e.g. "core/store", "core/autonomy")
// without every call site repeating it.
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// NoOpLogger discards everything. It is the safe default used whenever a
// component is constructed without an explicit logger.
type NoOpLogger struct{}

func (NoOpLogger) Info(string, map[string]interface{})                            {}
func (NoOpLogger) Warn(string, map[string]interface{})                            {}
func (NoOpLogger) Error(string, map[string]interface{})                           {}
func (NoOpLogger) Debug(string, map[string]interface{})                           {}
func (NoOpLogger) InfoWithContext(context.Context, string, map[string]interface{})  {}
func (NoOpLogger) WarnWithContext(context.Context, string, map[string]interface{})  {}
func (NoOpLogger) ErrorWithContext(context.Context, string, map[string]interface{}) {}
func (NoOpLogger) DebugWithContext(context.Context, string, map[string]interface{}) {}
func (NoOpLogger) WithComponent(string) Logger                                      { return NoOpLogger{} }

var _ ComponentAwareLogger = NoOpLogger{}

// ProductionLogger writes JSON lines when running in a production-like
// environment (detected the same way the teacher framework does:
// KUBERNETES_SERVICE_HOST presence, or an explicit format override) and
// human-readable text otherwise.
type ProductionLogger struct {
	mu        sync.RWMutex
	level     string
	debug     bool
	format    string
	service   string
	component string
	output    io.Writer
}

// LoggingConfig controls ProductionLogger's level/format/output.
type LoggingConfig struct {
	Level  string `json:"level" env:"TASKFORGE_LOG_LEVEL" default:"info"`
	Format string `json:"format" env:"TASKFORGE_LOG_FORMAT"`
	Output string `json:"output" env:"TASKFORGE_LOG_OUTPUT" default:"stdout"`
}

// NewProductionLogger builds a ProductionLogger for serviceName.
func NewProductionLogger(cfg LoggingConfig, serviceName string) *ProductionLogger {
	format := cfg.Format
	if format == "" {
		if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
			format = "json"
		} else {
			format = "text"
		}
	}
	var out io.Writer = os.Stdout
	if cfg.Output == "stderr" {
		out = os.Stderr
	}
	level := strings.ToLower(cfg.Level)
	if level == "" {
		level = "info"
	}
	return &ProductionLogger{
		level:   level,
		debug:   level == "debug",
		format:  format,
		service: serviceName,
		output:  out,
	}
}

func (p *ProductionLogger) WithComponent(component string) Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &ProductionLogger{
		level:     p.level,
		debug:     p.debug,
		format:    p.format,
		service:   p.service,
		component: component,
		output:    p.output,
	}
}

// SetOutput redirects log output; used by tests.
func (p *ProductionLogger) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = w
}

func (p *ProductionLogger) Info(msg string, f map[string]interface{})  { p.log("INFO", msg, f, nil) }
func (p *ProductionLogger) Warn(msg string, f map[string]interface{})  { p.log("WARN", msg, f, nil) }
func (p *ProductionLogger) Error(msg string, f map[string]interface{}) { p.log("ERROR", msg, f, nil) }
func (p *ProductionLogger) Debug(msg string, f map[string]interface{}) {
	if p.debug {
		p.log("DEBUG", msg, f, nil)
	}
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, f map[string]interface{}) {
	p.log("INFO", msg, f, ctx)
}
func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, f map[string]interface{}) {
	p.log("WARN", msg, f, ctx)
}
func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, f map[string]interface{}) {
	p.log("ERROR", msg, f, ctx)
}
func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, f map[string]interface{}) {
	if p.debug {
		p.log("DEBUG", msg, f, ctx)
	}
}

func (p *ProductionLogger) log(level, msg string, fields map[string]interface{}, ctx context.Context) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.shouldLog(level) {
		return
	}

	ts := time.Now().Format(time.RFC3339)
	component := p.component
	if component == "" {
		component = "core"
	}

	if p.format == "json" {
		entry := map[string]interface{}{
			"timestamp": ts,
			"level":     level,
			"service":   p.service,
			"component": component,
			"message":   msg,
		}
		if corr := correlationFromContext(ctx); corr != "" {
			entry["correlation_id"] = corr
		}
		for k, v := range fields {
			entry[k] = v
		}
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
		return
	}

	var b strings.Builder
	if corr := correlationFromContext(ctx); corr != "" {
		fmt.Fprintf(&b, "[corr=%s] ", corr)
	}
	for k, v := range fields {
		fmt.Fprintf(&b, "%s=%v ", k, v)
	}
	fmt.Fprintf(p.output, "%s [%s] [%s] %s%s\n", ts, level, component, b.String(), msg)
}

func (p *ProductionLogger) shouldLog(level string) bool {
	rank := map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}
	cur, ok1 := rank[strings.ToUpper(p.level)]
	msg, ok2 := rank[level]
	if !ok1 || !ok2 {
		return true
	}
	return msg >= cur
}

var _ ComponentAwareLogger = (*ProductionLogger)(nil)

type correlationKey struct{}

// WithCorrelationID attaches a correlation id to ctx so every log line
// and audit event derived from it can be tied back to the same task.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func correlationFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(correlationKey{}).(string); ok {
		return v
	}
	return ""
}
