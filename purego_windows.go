//go:build windows && !(nodynamic || arm || 386)

package webp

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
)

var (
	libnames      = []string{"libwebp.dll"}
	libnamesDemux = []string{"libwebpdemux.dll"}
)

func loadLibrary(names []string) (uintptr, string, error) {
	var errs []error

	for _, name := range names {
		handle, err := windows.LoadLibrary(name)
		if err == nil {
			return uintptr(handle), name, nil
		}

		errs = append(errs, err)
	}

	return 0, "", fmt.Errorf("cannot load library: %w", errors.Join(errs...))
}

func loadSymbol(handle uintptr, name string) (uintptr, error) {
	return windows.GetProcAddress(windows.Handle(handle), name)
}
