//go:build !(linux || freebsd || darwin || windows) || android || nodynamic || arm || 386 || mips || mipsle

package webp

import (
	"errors"
)

var errDynamic = errors.New("dynamic disabled")

func loadDynamic() (library, error) {
	return nil, &EnvironmentError{Library: "libwebp", Err: errDynamic}
}
