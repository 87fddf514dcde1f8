package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLevel는 설정 파일의 로그 레벨 문자열을 slog.Level 타입으로 변환합니다.
func ParseLevel(logLevel string) slog.Level {
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger는 애플리케이션의 중앙 로거를 생성하고 설정합니다.
// 터미널이면 컬러 출력(tint), 아니면 JSON 출력을 사용합니다.
// logFile이 지정되면 로테이션되는 파일에도 JSON으로 기록합니다.
// 반환되는 io.Closer는 종료 시 닫아야 합니다.
func NewLogger(logLevel, logFile string) (*slog.Logger, io.Closer) {
	level := ParseLevel(logLevel)

	handlers := []slog.Handler{consoleHandler(os.Stdout, level)}
	var closer io.Closer = nopCloser{}

	if logFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		handlers = append(handlers, slog.NewJSONHandler(rotator, &slog.HandlerOptions{
			Level:     level,
			AddSource: true,
		}))
		closer = rotator
	}

	if len(handlers) == 1 {
		return slog.New(handlers[0]), closer
	}
	return slog.New(&multiHandler{handlers: handlers}), closer
}

// NewCLILogger는 명령줄 도구용 로거를 만듭니다. 출력과 섞이지 않도록 stderr에 기록합니다.
func NewCLILogger(logLevel string) *slog.Logger {
	return slog.New(consoleHandler(os.Stderr, ParseLevel(logLevel)))
}

func consoleHandler(out *os.File, level slog.Level) slog.Handler {
	if isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd()) {
		return tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	}
	// 소스 코드 위치를 로그에 포함시켜 디버깅을 용이하게 합니다.
	return slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	})
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// multiHandler는 로그를 여러 handler에 동시에 보냅니다.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, h := range m.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}
