// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package dltest provides in-memory shared library images for tests.
//
// An Image maps symbol names to Go values. Bind assigns the value to the
// caller's func variable when the types match, which lets tests exercise
// the binding and handshake code without building native libraries.
package dltest

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/holomush/qmm/internal/dl"
)

// Image is a fake shared library image.
type Image struct {
	// Symbols maps names to func values (or any value for Lookup-only use).
	Symbols map[string]any
	// CloseErr is returned by Close when set.
	CloseErr error
	// OnClose runs inside Close before it returns.
	OnClose func()

	mu       sync.Mutex
	closed   int
	resolved []string
}

// NewImage creates an image exporting symbols.
func NewImage(symbols map[string]any) *Image {
	if symbols == nil {
		symbols = make(map[string]any)
	}
	return &Image{Symbols: symbols}
}

// Lookup returns a stable non-zero pseudo address for known symbols.
func (i *Image) Lookup(name string) (uintptr, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.Symbols[name]; !ok {
		return 0, fmt.Errorf("%w: %s", dl.ErrSymbolNotFound, name)
	}
	i.resolved = append(i.resolved, name)

	names := make([]string, 0, len(i.Symbols))
	for n := range i.Symbols {
		names = append(names, n)
	}
	sort.Strings(names)
	return uintptr(sort.SearchStrings(names, name)+1) << 4, nil
}

// Bind assigns the symbol's value to the func variable fptr points to.
func (i *Image) Bind(fptr any, name string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	sym, ok := i.Symbols[name]
	if !ok {
		return fmt.Errorf("%w: %s", dl.ErrSymbolNotFound, name)
	}
	i.resolved = append(i.resolved, name)

	dst := reflect.ValueOf(fptr)
	if dst.Kind() != reflect.Pointer || dst.Elem().Kind() != reflect.Func {
		return fmt.Errorf("bind %s: want pointer to func, got %T", name, fptr)
	}
	if sym == nil {
		return fmt.Errorf("bind %s: symbol has no value", name)
	}
	src := reflect.ValueOf(sym)
	if !src.Type().AssignableTo(dst.Elem().Type()) {
		if !src.Type().ConvertibleTo(dst.Elem().Type()) {
			return fmt.Errorf("bind %s: %T is not a %s", name, sym, dst.Elem().Type())
		}
		src = src.Convert(dst.Elem().Type())
	}
	dst.Elem().Set(src)
	return nil
}

// Close records the close.
func (i *Image) Close() error {
	i.mu.Lock()
	i.closed++
	onClose := i.OnClose
	i.mu.Unlock()

	if onClose != nil {
		onClose()
	}
	return i.CloseErr
}

// Closed returns how many times Close was called.
func (i *Image) Closed() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}

// Resolved returns the symbol names resolved so far, in order.
func (i *Image) Resolved() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.resolved...)
}

// Opener serves Images by path.
type Opener struct {
	mu     sync.Mutex
	images map[string]*Image
	opened []string
}

// NewOpener creates an opener with no images.
func NewOpener() *Opener {
	return &Opener{images: make(map[string]*Image)}
}

// Add registers img under path and returns it.
func (o *Opener) Add(path string, img *Image) *Image {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.images[path] = img
	return img
}

// Open returns the image registered for path.
func (o *Opener) Open(path string) (dl.Image, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.opened = append(o.opened, path)
	img, ok := o.images[path]
	if !ok {
		return nil, fmt.Errorf("%s: cannot open shared object file: No such file or directory", path)
	}
	return img, nil
}

// Opened returns every path passed to Open, in order.
func (o *Opener) Opened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.opened...)
}
