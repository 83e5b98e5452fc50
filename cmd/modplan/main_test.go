package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/modplan/internal/cli"
)

const descriptors = `
target "Game" {
  kind          = "Executable"
  entry_modules = ["B", "C"]
}

module "A" {
  pch_usage = "None"
}

module "B" {
  pch_usage           = "ExplicitOrShared"
  public_dependencies = ["A", "Core"]
}

module "C" {
  pch_usage            = "ForceExplicit"
  private_dependencies = ["A"]
}
`

func setup(t *testing.T, content string) (string, func(string) string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "game.hcl"), []byte(content), 0o600))
	getenv := func(key string) string {
		switch key {
		case "MODPLAN_DESCRIPTORS":
			return root
		case "MODPLAN_CACHE":
			return filepath.Join(root, ".modplan", "cache.json")
		case "MODPLAN_OUT_DIR":
			return filepath.Join(root, ".modplan", "out")
		}
		return ""
	}
	return root, getenv
}

func TestRun_Plan(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	_, getenv := setup(t, descriptors)
	out, logs := &bytes.Buffer{}, &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, logs, []string{"plan", "Game"}, getenv)

	// --- Assert ---
	require.NoError(t, err)
	assert.Contains(t, out.String(), "layer 0:\n  A (pch None)\n  Core (external engine/Core)\n")
	assert.Contains(t, out.String(), "layer 1:\n  B (pch Shared)\n  C (pch Explicit)\n")
}

func TestRun_BuildTwice(t *testing.T) {
	t.Parallel()

	_, getenv := setup(t, descriptors)

	out := &bytes.Buffer{}
	require.NoError(t, run(context.Background(), out, &bytes.Buffer{}, []string{"build", "Game", "--jobs", "2"}, getenv))
	assert.Contains(t, out.String(), "built: A, B, C")

	out.Reset()
	require.NoError(t, run(context.Background(), out, &bytes.Buffer{}, []string{"build", "Game"}, getenv))
	assert.Contains(t, out.String(), "up to date: A, B, C")
	assert.NotContains(t, out.String(), "built:")

	out.Reset()
	require.NoError(t, run(context.Background(), out, &bytes.Buffer{}, []string{"build", "--force-rebuild", "Game"}, getenv))
	assert.Contains(t, out.String(), "built: A, B, C")
}

func TestRun_GraphErrorExitsTwo(t *testing.T) {
	t.Parallel()

	_, getenv := setup(t, `
target "Game" {
  kind          = "Executable"
  entry_modules = ["X"]
}

module "X" {
  pch_usage           = "None"
  public_dependencies = ["X"]
}
`)
	err := run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, []string{"plan", "Game"}, getenv)

	require.Error(t, err)
	exitErr := cli.FromRunError(err)
	assert.Equal(t, 2, exitErr.Code)
	assert.Contains(t, exitErr.Message, "cyclic dependency: X -> X")
}

func TestRun_CompileFailureExitsOne(t *testing.T) {
	t.Parallel()

	_, base := setup(t, descriptors)
	getenv := func(key string) string {
		switch key {
		case "MODPLAN_COMPILE_CMD":
			return `test {module} != 'C' && touch {out}`
		case "MODPLAN_LINK_CMD":
			return "touch {out}"
		}
		return base(key)
	}

	out := &bytes.Buffer{}
	err := run(context.Background(), out, &bytes.Buffer{}, []string{"build", "Game"}, getenv)

	require.Error(t, err)
	exitErr := cli.FromRunError(err)
	assert.Equal(t, 1, exitErr.Code)
	assert.Contains(t, exitErr.Message, `compile "C" failed`)
	assert.Contains(t, out.String(), "built: A, B")
	assert.Contains(t, out.String(), "failed: C")
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	err := run(context.Background(), out, &bytes.Buffer{}, []string{"-h"}, nil)

	require.NoError(t, err)
	require.Contains(t, out.String(), "Usage:")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	err := run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, []string{"--this-is-not-a-valid-flag"}, nil)

	require.Error(t, err)
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
	assert.Equal(t, 2, cli.FromRunError(err).Code)
}
