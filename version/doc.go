// Package version carries build identification for the flowerpower
// binary.
//
// Version and commit are set at compile time via -ldflags:
//
//	go build -ldflags "-X github.com/legout/flowerpower-sub010/version.Version=1.0.0"
//
// When ldflags are absent, values fall back to the module build info
// the Go toolchain embeds.
package version
