// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package host

import (
	"sync"

	"github.com/holomush/qmm/internal/engine"
	"github.com/holomush/qmm/pkg/errutil"
	"github.com/holomush/qmm/pkg/qmmapi"
)

// Process holds the one live Host behind the engine's C entry points.
// The engine calls dllEntry again each time it reloads the game module,
// so Boot closes the previous Host before building the next one.
type Process struct {
	mu     sync.Mutex
	active *Host
	opts   []Option
}

// NewProcess creates a process whose hosts are built with opts.
func NewProcess(opts ...Option) *Process {
	return &Process{opts: opts}
}

// Boot replaces the active host with one booted from selfPath. On
// failure no host is active.
func (p *Process) Boot(selfPath string, dispatch engine.Syscall) (*Host, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var closeErr error
	if p.active != nil {
		closeErr = p.active.Close()
		p.active = nil
	}

	h, err := Boot(selfPath, dispatch, p.opts...)
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		errutil.LogWarn(h.logger, "previous host did not close cleanly", closeErr)
	}
	p.active = h
	return h, nil
}

// Active returns the live host, or nil.
func (p *Process) Active() *Host {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// VMMain forwards to the active host. Without one it returns 0.
func (p *Process) VMMain(cmd int, args qmmapi.VMMainArgs) int {
	h := p.Active()
	if h == nil {
		return 0
	}
	return h.VMMain(cmd, args)
}

// Close closes the active host.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return nil
	}
	err := p.active.Close()
	p.active = nil
	return err
}
