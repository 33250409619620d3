//go:build integration

package integration

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	mcpsup "github.com/wagiedev/mcp-supervisor-go"
)

// calculatorBin is the calculator example provider, built once per run.
var calculatorBin string

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "mcpsup-integration")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	calculatorBin = filepath.Join(dir, "calculator_provider")
	if runtime.GOOS == "windows" {
		calculatorBin += ".exe"
	}

	build := exec.Command("go", "build", "-o", calculatorBin, "../examples/calculator_provider")
	build.Stdout = os.Stderr
	build.Stderr = os.Stderr

	if err := build.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "build calculator provider:", err)
		os.RemoveAll(dir)
		os.Exit(1)
	}

	code := m.Run()

	os.RemoveAll(dir)
	os.Exit(code)
}

// calculator returns a config for the prebuilt calculator provider.
func calculator(name string, args ...string) *mcpsup.ProviderConfig {
	return &mcpsup.ProviderConfig{
		Name:    name,
		Command: calculatorBin,
		Args:    args,
		Timeout: 10 * time.Second,
	}
}

func newSupervisor(t *testing.T, opts ...mcpsup.Option) mcpsup.Supervisor {
	t.Helper()

	sup := mcpsup.NewSupervisor(opts...)
	t.Cleanup(func() { _ = sup.Close() })

	return sup
}
