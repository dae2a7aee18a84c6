//go:build mage

package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

func version() string {
	v, err := os.ReadFile("cmd/mfdash/VERSION")
	if err != nil {
		return "dev"
	}
	return strings.TrimSpace(string(v))
}

// Build builds mfdash for Linux with Green Tea GC
func Build() error {
	fmt.Println("Building mfdash for Linux with Go 1.25 + Green Tea GC...")
	env := map[string]string{
		"GOOS":         "linux",
		"GOARCH":       "amd64",
		"GOEXPERIMENT": "greenteagc",
	}
	return sh.RunWith(env, "go", "build", "-o", "mfdash-linux-amd64", "./cmd/mfdash")
}

// BuildLocal builds mfdash for current platform
func BuildLocal() error {
	fmt.Printf("Building mfdash for %s/%s...\n", runtime.GOOS, runtime.GOARCH)
	return sh.Run("go", "build", "-o", "mfdash", "./cmd/mfdash")
}

// BuildDocker builds the container variant, which trusts X-Forwarded-For
func BuildDocker() error {
	fmt.Println("Building mfdash with the docker tag...")
	env := map[string]string{
		"GOOS":        "linux",
		"GOARCH":      "amd64",
		"CGO_ENABLED": "0",
	}
	return sh.RunWith(env, "go", "build", "-tags", "docker", "-o", "mfdash-docker", "./cmd/mfdash")
}

// Image packages the docker binary with the Dockerfile, tagged with the embedded version
func Image() error {
	mg.Deps(BuildDocker)
	return sh.Run("docker", "build", "-t", "mfdash:"+version(), ".")
}

// Test runs tests
func Test() error {
	fmt.Println("Running tests...")
	return sh.Run("go", "test", "-v", "./...")
}

// TestDocker runs tests with the docker build tag
func TestDocker() error {
	fmt.Println("Running tests (docker tag)...")
	return sh.Run("go", "test", "-tags", "docker", "./internal/cli/...")
}

// Clean removes build artifacts
func Clean() error {
	fmt.Println("Cleaning build artifacts...")
	os.Remove("mfdash")
	os.Remove("mfdash-linux-amd64")
	os.Remove("mfdash-docker")
	return nil
}

// Update upgrades all Go dependencies
func Update() error {
	fmt.Println("Updating dependencies...")
	if err := sh.Run("go", "get", "-u", "./..."); err != nil {
		return err
	}
	return sh.Run("go", "mod", "tidy")
}

// Fmt runs gofmt on all Go files
func Fmt() error {
	fmt.Println("Formatting code...")
	return sh.Run("go", "fmt", "./...")
}

// Vet runs go vet on all Go files
func Vet() error {
	fmt.Println("Vetting code...")
	return sh.Run("go", "vet", "./...")
}

// Bench runs benchmarks
func Bench() error {
	fmt.Println("Running benchmarks...")
	return sh.Run("go", "test", "-bench=.", "./...")
}

// Deps downloads dependencies
func Deps() error {
	fmt.Println("Downloading dependencies...")
	return sh.Run("go", "mod", "download")
}

// Tidy tidies go.mod
func Tidy() error {
	fmt.Println("Tidying go.mod...")
	return sh.Run("go", "mod", "tidy")
}

// CI runs all checks for continuous integration
func CI() error {
	mg.SerialDeps(Deps, Fmt, Vet, Test, TestDocker)
	fmt.Println("All CI checks passed!")
	return nil
}
