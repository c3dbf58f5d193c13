//go:build tools

// Pins codegen binaries used by `make proto`. The generated packages under
// protos/gen are produced at build time and compiled only with -tags protogen.
package protos

import (
	_ "google.golang.org/grpc/cmd/protoc-gen-go-grpc"
)
