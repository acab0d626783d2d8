// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build !(darwin || freebsd || linux || windows)

package dl

type systemOpener struct{}

// System returns the platform loader. This platform has none; every Open
// fails with ErrUnsupported.
func System() Opener {
	return systemOpener{}
}

func (systemOpener) Open(string) (Image, error) {
	return nil, ErrUnsupported
}
