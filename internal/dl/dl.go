// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package dl owns loaded shared library images.
//
// A Handle holds at most one image. Loading a loaded handle fails, unloading
// an empty handle does nothing, and every image is closed exactly once.
// Symbols are resolved either as raw addresses (Lookup) or straight into
// typed Go function values (Bind), so no caller outside this package ever
// handles a native symbol table.
package dl

import (
	"errors"

	"github.com/samber/oops"
)

// Sentinel errors for programmatic error checking.
var (
	// ErrAlreadyLoaded is returned by Load when the handle holds an image.
	ErrAlreadyLoaded = errors.New("library already loaded")
	// ErrNotLoaded is returned when resolving symbols on an empty handle.
	ErrNotLoaded = errors.New("library not loaded")
	// ErrSymbolNotFound is returned when an image has no such symbol.
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrUnsupported is returned by the system opener on platforms without
	// dynamic loading support.
	ErrUnsupported = errors.New("dynamic loading not supported on this platform")
)

// Image is one opened shared library.
type Image interface {
	// Lookup returns the address of the named symbol.
	Lookup(name string) (uintptr, error)
	// Bind points fptr, a pointer to a func variable, at the named symbol.
	Bind(fptr any, name string) error
	// Close unloads the image.
	Close() error
}

// Opener opens shared library images.
type Opener interface {
	Open(path string) (Image, error)
}

// Handle owns at most one loaded Image.
type Handle struct {
	opener Opener
	image  Image
	path   string
}

// NewHandle creates an empty handle that loads through opener.
// A nil opener uses the platform loader.
func NewHandle(opener Opener) *Handle {
	if opener == nil {
		opener = System()
	}
	return &Handle{opener: opener}
}

// Load opens the library at path.
func (h *Handle) Load(path string) error {
	if h.image != nil {
		return oops.Code("DL_ALREADY_LOADED").
			With("path", path).
			With("loaded", h.path).
			Wrap(ErrAlreadyLoaded)
	}

	img, err := h.opener.Open(path)
	if err != nil {
		return oops.Code("DL_OPEN_FAILED").With("path", path).Wrap(err)
	}

	h.image = img
	h.path = path
	return nil
}

// Loaded reports whether the handle holds an image.
func (h *Handle) Loaded() bool {
	return h.image != nil
}

// Path returns the path of the loaded image, or "" when empty.
func (h *Handle) Path() string {
	return h.path
}

// Lookup returns the address of the named symbol.
func (h *Handle) Lookup(name string) (uintptr, error) {
	if h.image == nil {
		return 0, oops.Code("DL_NOT_LOADED").With("symbol", name).Wrap(ErrNotLoaded)
	}
	addr, err := h.image.Lookup(name)
	if err != nil {
		return 0, oops.Code("DL_SYMBOL_NOT_FOUND").
			With("path", h.path).
			With("symbol", name).
			Wrap(err)
	}
	if addr == 0 {
		return 0, oops.Code("DL_SYMBOL_NOT_FOUND").
			With("path", h.path).
			With("symbol", name).
			Wrap(ErrSymbolNotFound)
	}
	return addr, nil
}

// Bind resolves the named symbol into the func variable fptr points to.
func (h *Handle) Bind(fptr any, name string) error {
	if h.image == nil {
		return oops.Code("DL_NOT_LOADED").With("symbol", name).Wrap(ErrNotLoaded)
	}
	if err := h.image.Bind(fptr, name); err != nil {
		return oops.Code("DL_SYMBOL_NOT_FOUND").
			With("path", h.path).
			With("symbol", name).
			Wrap(err)
	}
	return nil
}

// Unload closes the image. It is a no-op on an empty handle. The handle is
// empty afterwards even if the platform reports a close error.
func (h *Handle) Unload() error {
	if h.image == nil {
		return nil
	}
	img, path := h.image, h.path
	h.image = nil
	h.path = ""

	if err := img.Close(); err != nil {
		return oops.Code("DL_CLOSE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
