package logging

import (
	"fmt"
	"strings"
	"sync"
)

// LogLevel 日志级别
type LogLevel int

const (
	LogLevelTrace LogLevel = iota
	LogLevelDebug
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelNone // 关闭全部日志
)

// String 返回日志级别的字符串表示
func (l LogLevel) String() string {
	switch l {
	case LogLevelTrace:
		return "TRACE"
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel 解析配置中的日志级别（大小写不敏感）
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LogLevelTrace, nil
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	case "none", "off":
		return LogLevelNone, nil
	default:
		return LogLevelInfo, fmt.Errorf("logging: unknown level %q", s)
	}
}

// Field 日志字段
type Field struct {
	Key   string
	Value any
}

// Logger 日志接口（类似于 .NET Core ILogger）
type Logger interface {
	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Log(level LogLevel, msg string, fields ...Field)
	WithFields(fields ...Field) Logger
	WithCategory(category string) Logger
}

// LoggerProvider 日志提供者接口
type LoggerProvider interface {
	// Write 输出一条已通过级别过滤的日志
	Write(entry *LogEntry)
}

// LoggerFactory 日志工厂接口
type LoggerFactory interface {
	CreateLogger(category string) Logger
}

// loggerFactory 把日志分发给全部提供者
type loggerFactory struct {
	providers    []LoggerProvider
	minimumLevel LogLevel
}

func (f *loggerFactory) CreateLogger(category string) Logger {
	return &logger{
		factory:  f,
		category: category,
	}
}

// logger 是 Logger 的默认实现；WithFields/WithCategory 返回新实例，原实例不变
type logger struct {
	factory  *loggerFactory
	category string
	fields   []Field
}

func (l *logger) Trace(msg string, fields ...Field) { l.Log(LogLevelTrace, msg, fields...) }
func (l *logger) Debug(msg string, fields ...Field) { l.Log(LogLevelDebug, msg, fields...) }
func (l *logger) Info(msg string, fields ...Field) { l.Log(LogLevelInfo, msg, fields...) }
func (l *logger) Warn(msg string, fields ...Field) { l.Log(LogLevelWarn, msg, fields...) }
func (l *logger) Error(msg string, fields ...Field) { l.Log(LogLevelError, msg, fields...) }

func (l *logger) Log(level LogLevel, msg string, fields ...Field) {
	if level < l.factory.minimumLevel || level >= LogLevelNone {
		return
	}

	entry := &LogEntry{
		Time:     now(),
		Level:    level,
		Category: l.category,
		Message:  msg,
		Fields:   mergeFields(l.fields, fields),
	}
	for _, p := range l.factory.providers {
		p.Write(entry)
	}
}

func (l *logger) WithFields(fields ...Field) Logger {
	return &logger{
		factory:  l.factory,
		category: l.category,
		fields:   mergeFields(l.fields, fields),
	}
}

func (l *logger) WithCategory(category string) Logger {
	return &logger{
		factory:  l.factory,
		category: category,
		fields:   l.fields,
	}
}

// mergeFields 总是分配新切片，避免共享底层数组
func mergeFields(base, extra []Field) []Field {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	out := make([]Field, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}

type nopLogger struct{}

func (nopLogger) Trace(string, ...Field) {}
func (nopLogger) Debug(string, ...Field) {}
func (nopLogger) Info(string, ...Field) {}
func (nopLogger) Warn(string, ...Field) {}
func (nopLogger) Error(string, ...Field) {}
func (nopLogger) Log(LogLevel, string, ...Field) {}
func (n nopLogger) WithFields(...Field) Logger { return n }
func (n nopLogger) WithCategory(string) Logger { return n }

// Nop 返回丢弃全部日志的 Logger
func Nop() Logger {
	return nopLogger{}
}

// MemoryProvider 把日志保存在内存中，主要用于测试断言
type MemoryProvider struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewMemoryProvider 创建内存日志提供者
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{}
}

func (p *MemoryProvider) Write(entry *LogEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, *entry)
}

// Entries 返回已记录日志的副本
func (p *MemoryProvider) Entries() []LogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]LogEntry, len(p.entries))
	copy(out, p.entries)
	return out
}
