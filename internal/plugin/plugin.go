// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package plugin loads qmm plugins and arbitrates their hooks.
//
// A Plugin is a shared library exporting the QMM_* entry points. It is
// loaded and queried, checked against the host's interface version, and
// attached once. The Registry runs every attached plugin around each
// intercepted call and decides what the caller sees.
package plugin

import (
	"errors"
	"log/slog"
	"path/filepath"
	"runtime"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"

	"github.com/holomush/qmm/internal/dl"
	"github.com/holomush/qmm/pkg/qmmapi"
)

// ErrAlreadyAttached is returned by Attach on its second call.
var ErrAlreadyAttached = errors.New("plugin already attached")

// Info is the immutable description a plugin returns from QMM_Query.
type Info struct {
	Name        string
	Version     string
	Description string
	Author      string
	URL         string
	Interface   *semver.Version
}

// Plugin is one loaded plugin library.
type Plugin struct {
	handle *dl.Handle
	path   string
	info   Info
	logger *slog.Logger

	attach      qmmapi.AttachFunc
	detach      qmmapi.DetachFunc
	vmMain      qmmapi.VMMainFunc
	vmMainPost  qmmapi.VMMainFunc
	syscall     qmmapi.SyscallFunc
	syscallPost qmmapi.SyscallFunc

	result      *qmmapi.Result
	pinner      runtime.Pinner
	attachTried bool
	attached    bool
}

// LoadQuery loads the plugin at hostDir/path, queries it and checks its
// interface version. Entry points other than QMM_Query are resolved only
// once the version is accepted. On any error the library is unloaded.
func LoadQuery(opener dl.Opener, hostDir, path string, logger *slog.Logger) (*Plugin, error) {
	if logger == nil {
		logger = slog.Default()
	}
	full := path
	if !filepath.IsAbs(path) && hostDir != "" {
		full = filepath.Join(hostDir, path)
	}

	p := &Plugin{handle: dl.NewHandle(opener), path: full, logger: logger}
	if err := p.handle.Load(full); err != nil {
		return nil, err
	}
	if err := p.query(); err != nil {
		_ = p.handle.Unload()
		return nil, err
	}
	if err := p.bind(); err != nil {
		_ = p.handle.Unload()
		return nil, err
	}
	return p, nil
}

func (p *Plugin) query() error {
	var query qmmapi.QueryFunc
	if err := p.handle.Bind(&query, qmmapi.QuerySymbol); err != nil {
		return err
	}

	var raw *qmmapi.PluginInfo
	query(&raw)
	if raw == nil {
		return oops.Code("PLUGIN_QUERY_NULL").With("path", p.path).Errorf("plugin returned no info")
	}
	iface, err := InterfaceVersion(raw.InterfaceMajor, raw.InterfaceMinor)
	if err != nil {
		return oops.With("path", p.path).Wrap(err)
	}
	p.info = Info{
		Name:        qmmapi.GoString(raw.Name),
		Version:     qmmapi.GoString(raw.Version),
		Description: qmmapi.GoString(raw.Desc),
		Author:      qmmapi.GoString(raw.Author),
		URL:         qmmapi.GoString(raw.URL),
		Interface:   iface,
	}
	if p.info.Name == "" {
		p.info.Name = filepath.Base(p.path)
	}

	verdict := CheckVersion(p.info.Interface)
	if !verdict.Accepted() {
		return oops.Code("PLUGIN_VERSION_MISMATCH").
			With("path", p.path).
			With("plugin", p.info.Name).
			With("plugin_interface", p.info.Interface.String()).
			With("host_interface", HostInterface.String()).
			With("verdict", verdict.String()).
			Errorf("plugin interface %d.%d is incompatible with host interface %d.%d: %s",
				p.info.Interface.Major(), p.info.Interface.Minor(),
				HostInterface.Major(), HostInterface.Minor(), verdict.Advice())
	}
	if verdict == VersionMinorOld {
		p.logger.Warn("plugin built for an older interface",
			"plugin", p.info.Name,
			"plugin_interface", p.info.Interface.String(),
			"host_interface", HostInterface.String(),
			"advice", verdict.Advice())
	}
	return nil
}

func (p *Plugin) bind() error {
	for _, b := range []struct {
		fptr any
		name string
	}{
		{&p.attach, qmmapi.AttachSymbol},
		{&p.detach, qmmapi.DetachSymbol},
		{&p.vmMain, qmmapi.VMMainSymbol},
		{&p.vmMainPost, qmmapi.VMMainPostSymbol},
		{&p.syscall, qmmapi.SyscallSymbol},
		{&p.syscallPost, qmmapi.SyscallPostSymbol},
	} {
		if err := p.handle.Bind(b.fptr, b.name); err != nil {
			return oops.With("plugin", p.info.Name).Wrap(err)
		}
	}
	return nil
}

// Info returns what the plugin reported from QMM_Query.
func (p *Plugin) Info() Info {
	return p.info
}

// Name is the plugin's reported name.
func (p *Plugin) Name() string {
	return p.info.Name
}

// Path is the file the plugin was loaded from.
func (p *Plugin) Path() string {
	return p.path
}

// Attached reports whether the plugin accepted its attach.
func (p *Plugin) Attached() bool {
	return p.attached
}

// Attach hands the plugin the engine and mod entry points, its result
// flag, the utility table and the module's memory base. It may be called
// once; the bool is the plugin's acceptance. funcs must stay valid and
// pinned until the plugin is closed.
func (p *Plugin) Attach(engine, mod uintptr, funcs *qmmapi.UtilityFuncs, base int) (bool, error) {
	if p.attachTried {
		return false, oops.Code("PLUGIN_ALREADY_ATTACHED").With("plugin", p.info.Name).Wrap(ErrAlreadyAttached)
	}
	p.attachTried = true

	p.result = new(qmmapi.Result)
	*p.result = qmmapi.Unused
	p.pinner.Pin(p.result)

	p.attached = p.attach(engine, mod, p.result, funcs, base) != 0
	return p.attached, nil
}

// take returns the result flag and resets it to Unused.
func (p *Plugin) take() qmmapi.Result {
	r := *p.result
	*p.result = qmmapi.Unused
	return r
}

// Close detaches an attached plugin and then unloads its library.
func (p *Plugin) Close() error {
	if p.attached {
		p.attached = false
		p.detach()
	}
	p.attach, p.detach = nil, nil
	p.vmMain, p.vmMainPost, p.syscall, p.syscallPost = nil, nil, nil, nil
	p.pinner.Unpin()

	return p.handle.Unload()
}
