//go:build mage

// Package main provides build targets for dSOC using Mage.
//
// Usage:
//
//	mage build      Compile api, worker and dsocctl to bin/
//	mage test       Run all tests
//	mage race       Run all tests with the race detector
//	mage lint       Run golangci-lint
//	mage migrate    Apply database migrations with dsocctl
//	mage seed       Load generated fixtures with dsocctl
//	mage clean      Remove build artifacts
package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const binaryDir = "bin"

var binaries = map[string]string{
	"api":     "./cmd/api",
	"worker":  "./cmd/worker",
	"dsocctl": "./cmd/dsocctl",
}

// Build compiles every binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	version := os.Getenv("VERSION")
	if version == "" {
		version = "dev"
	}
	for name, pkg := range binaries {
		args := []string{"build", "-o", filepath.Join(binaryDir, name)}
		if name == "dsocctl" {
			args = append(args, "-ldflags", "-X main.Version="+version)
		}
		if err := sh.RunV("go", append(args, pkg)...); err != nil {
			return err
		}
	}
	return nil
}

// Test runs all tests.
func Test() error {
	return sh.RunV("go", "test", "./...")
}

// Race runs all tests with the race detector.
func Race() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV("golangci-lint", "run", "./...")
}

// Migrate applies database migrations.
func Migrate() error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binaryDir, "dsocctl"), "migrate")
}

// Seed loads generated fixtures into the database.
func Seed() error {
	mg.Deps(Migrate)
	return sh.RunV(filepath.Join(binaryDir, "dsocctl"), "seed", "generate", "--tickets", "25")
}

// Clean removes build artifacts.
func Clean() error {
	return os.RemoveAll(binaryDir)
}
