package app

import (
	"strings"
)

const componentName = "app"

func (s *Service) logInfo(operation, message string, attrs ...any) {
	s.logger.Info(message, s.base(operation, attrs)...)
}

func (s *Service) logWarn(operation, message string, attrs ...any) {
	s.logger.Warn(message, s.base(operation, attrs)...)
}

func (s *Service) logError(operation string, err error, attrs ...any) {
	if err == nil {
		return
	}
	s.logger.Error("operation failed", s.base(operation, append(attrs, "error", err.Error()))...)
}

func (s *Service) base(operation string, attrs []any) []any {
	out := make([]any, 0, len(attrs)+4)
	out = append(out, "component", componentName, "operation", strings.TrimSpace(operation))
	return append(out, attrs...)
}
