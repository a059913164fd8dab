//go:build (linux || freebsd) && !android && !(nodynamic || arm || 386 || mips || mipsle)

package webp

import (
	"errors"
	"fmt"

	"github.com/ebitengine/purego"
)

var (
	libnames      = []string{"libwebp.so", "libwebp.so.7"}
	libnamesDemux = []string{"libwebpdemux.so", "libwebpdemux.so.2"}
)

func loadLibrary(names []string) (uintptr, string, error) {
	var errs []error

	for _, name := range names {
		handle, err := purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			return handle, name, nil
		}

		errs = append(errs, err)
	}

	return 0, "", fmt.Errorf("cannot load library: %w", errors.Join(errs...))
}

func loadSymbol(handle uintptr, name string) (uintptr, error) {
	return purego.Dlsym(handle, name)
}
