//go:build netlib

package vector

import (
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/netlib/blas/netlib"
)

// cgo BLAS (OpenBLAS etc.) を使う場合は -tags netlib でビルドする。
func init() {
	blas32.Use(netlib.Implementation{})
}
