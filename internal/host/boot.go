// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package host

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/qmm/internal/config"
	"github.com/holomush/qmm/internal/engine"
	"github.com/holomush/qmm/internal/logging"
)

// LogFileName is the host log, written next to the host library.
const LogFileName = "qmm.log"

// Boot builds the host for the library at selfPath: it reads qmm.yaml
// from the same directory, picks the game, and logs to qmm.log with
// warnings mirrored to the engine console. Configuration problems are
// reported on the console and fall back to defaults. The host owns the
// log file until Close.
func Boot(selfPath string, dispatch engine.Syscall, opts ...Option) (*Host, error) {
	hostDir := filepath.Dir(selfPath)

	cfg, cfgErr := config.Load(filepath.Join(hostDir, config.FileName), nil)
	if cfgErr != nil {
		cfg = config.Default()
	}

	game, err := pickGame(cfg, selfPath)
	if err != nil {
		return nil, err
	}
	console := engine.NewConsole(game, dispatch)

	var (
		out     io.Writer = console
		logFile *os.File
	)
	if f, ferr := os.OpenFile(filepath.Join(hostDir, LogFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); ferr == nil {
		out, logFile = f, f
	}
	logger := logging.New(logging.Options{
		Service:     "qmm",
		Version:     Version,
		Instance:    ulid.Make().String(),
		Format:      cfg.LogFormat,
		Level:       cfg.Level(),
		Mirror:      console,
		MirrorLevel: slog.LevelWarn,
	}, out)
	if cfgErr != nil {
		logger.Warn("invalid configuration, using defaults", "file", config.FileName, "error", cfgErr)
	}

	all := append([]Option{
		WithLogger(logger),
		WithHostDir(hostDir),
		WithSelfPath(selfPath),
	}, opts...)
	if logFile != nil {
		all = append(all, withLogOutput(logFile))
	}
	h, err := New(game, cfg, dispatch, all...)
	if err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, err
	}
	return h, nil
}

func pickGame(cfg *config.Config, selfPath string) (*engine.Game, error) {
	if cfg.Game != "" {
		return engine.Lookup(cfg.Game)
	}
	game, err := engine.Detect(selfPath)
	if err != nil {
		return nil, oops.With("hint", "set game in "+config.FileName).Wrap(err)
	}
	return game, nil
}
