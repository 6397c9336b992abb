// Package telemetry provides the scoped, zap-backed logger the lifecycle
// manager consumes as its Logger capability (spec §6), generalized from the
// teacher's example/pkg/logger.go zap.SugaredLogger wrapper into a
// first-class internal package with Service/Entity scoping and a
// before-exit hook.
package telemetry

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	lifecycle "github.com/keverw/lifecycleion-sub001"
)

// Config mirrors the teacher's LoggerCfg shape.
type Config struct {
	Development   bool
	DisableCaller bool
	DisableJSON   bool
	Level         string
}

var levelMap = map[string]zapcore.Level{
	"debug":  zapcore.DebugLevel,
	"info":   zapcore.InfoLevel,
	"warn":   zapcore.WarnLevel,
	"error":  zapcore.ErrorLevel,
	"dpanic": zapcore.DPanicLevel,
	"panic":  zapcore.PanicLevel,
	"fatal":  zapcore.FatalLevel,
}

func (c Config) level() zapcore.Level {
	if lv, ok := levelMap[c.Level]; ok {
		return lv
	}
	return zapcore.InfoLevel
}

// BeforeExitDecision is an alias of the root package's type: telemetry
// implements lifecycle.Logger's before-exit hook directly rather than
// defining its own structurally-identical-but-distinct type, so that
// *zapLogger satisfies lifecycle.ExitHookRunner without an adapter.
type BeforeExitDecision = lifecycle.BeforeExitDecision

// Logger is the scoped-logger capability consumed by the lifecycle manager
// (spec §6): Service/Entity produce sub-loggers carrying extra fields,
// Info/Warn/Error/Success/Debug log at their respective levels.
type Logger interface {
	Service(name string) Logger
	Entity(name string) Logger
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	Success(msg string, kv ...any)
	Debug(msg string, kv ...any)
	SetBeforeExitCallback(cb func(exitCode int, isFirstExit bool) BeforeExitDecision)
}

type zapLogger struct {
	sugar *zap.SugaredLogger

	mu              sync.Mutex
	beforeExit      func(exitCode int, isFirstExit bool) BeforeExitDecision
	exitHookCalled  bool
}

// New builds a zap-backed Logger from cfg, using the same encoder
// conventions as the teacher's initLogger (ISO8601 timestamps, capital
// level names, short caller).
func New(cfg Config) Logger {
	logWriter := zapcore.AddSync(os.Stdout)

	var encoderCfg zapcore.EncoderConfig
	if cfg.Development {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderCfg = zap.NewProductionEncoderConfig()
	}
	encoderCfg.LevelKey = "level"
	encoderCfg.CallerKey = "caller"
	encoderCfg.TimeKey = "time"
	encoderCfg.NameKey = "name"
	encoderCfg.MessageKey = "message"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderCfg.EncodeCaller = zapcore.ShortCallerEncoder

	var encoder zapcore.Encoder
	if cfg.DisableJSON {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, logWriter, zap.NewAtomicLevelAt(cfg.level()))
	var opts []zap.Option
	if !cfg.DisableCaller {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	return &zapLogger{sugar: zap.New(core, opts...).Sugar()}
}

// NewNop returns a Logger that discards everything, for tests.
func NewNop() Logger {
	return &zapLogger{sugar: zap.NewNop().Sugar()}
}

func (l *zapLogger) Service(name string) Logger {
	return &zapLogger{sugar: l.sugar.With("service", name), beforeExit: l.beforeExit}
}

func (l *zapLogger) Entity(name string) Logger {
	return &zapLogger{sugar: l.sugar.With("entity", name), beforeExit: l.beforeExit}
}

func (l *zapLogger) Info(msg string, kv ...any)    { l.sugar.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...any)    { l.sugar.Warnw(msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...any)   { l.sugar.Errorw(msg, kv...) }
func (l *zapLogger) Debug(msg string, kv ...any)   { l.sugar.Debugw(msg, kv...) }

// Success logs at info level with a success marker field; zap has no
// distinct "success" level, so this is the idiomatic approximation.
func (l *zapLogger) Success(msg string, kv ...any) {
	l.sugar.Infow(msg, append(append([]any{}, kv...), "outcome", "success")...)
}

// SetBeforeExitCallback registers the hook the manager calls before the
// process exits, per spec §6; the manager invokes it through
// RunBeforeExit, not directly from zap (zap itself has no such hook).
func (l *zapLogger) SetBeforeExitCallback(cb func(exitCode int, isFirstExit bool) BeforeExitDecision) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.beforeExit = cb
}

// RunBeforeExit invokes the registered before-exit hook, if any, tracking
// whether this is the first invocation (spec testable property 6: a hook
// firing mid-shutdown must return Wait=true).
func (l *zapLogger) RunBeforeExit(exitCode int) BeforeExitDecision {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.beforeExit == nil {
		return BeforeExitDecision{}
	}
	first := !l.exitHookCalled
	l.exitHookCalled = true
	return l.beforeExit(exitCode, first)
}
