// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package host

import (
	"context"
	"log/slog"
	"strings"

	"github.com/holomush/qmm/pkg/qmmapi"
)

// Behind the utility table handed to plugins.

func severityLevel(severity int32) slog.Level {
	switch severity {
	case qmmapi.SeverityDebug:
		return slog.LevelDebug
	case qmmapi.SeverityWarn:
		return slog.LevelWarn
	case qmmapi.SeverityError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (h *Host) writeLog(text string, severity int32) {
	text = strings.TrimRight(text, "\r\n")
	h.logger.Log(context.Background(), severityLevel(severity), text, "source", "plugin")
}

func (h *Host) configInt(key string, fallback int) int {
	return h.cfg.Int(key, fallback)
}

func (h *Host) isVM() bool {
	m := h.loader.Module()
	return m != nil && m.IsVM()
}

func (h *Host) memoryBase() int {
	if m := h.loader.Module(); m != nil {
		return m.Base()
	}
	return 0
}
