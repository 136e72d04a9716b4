//go:build tools

// Package tools pins the code generators used by `go generate` (mockgen) so that
// go.mod and go.sum track them like any other dependency.
package tools

import (
	_ "go.uber.org/mock/mockgen"
)
