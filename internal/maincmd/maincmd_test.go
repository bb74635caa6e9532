package maincmd_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mna/mainer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/loxvm/internal/maincmd"
)

func newCmd() maincmd.Cmd {
	return maincmd.Cmd{BuildVersion: "0.0.0-test", BuildDate: "2026-01-01"}
}

func writeScript(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "script.lox")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestRunExecutesFileAndExitsOK(t *testing.T) {
	path := writeScript(t, `print("hi");`)
	var out, eout bytes.Buffer
	c := newCmd()

	code := c.Main([]string{"loxvm", path}, mainer.Stdio{Stdout: &out, Stderr: &eout})

	assert.Equal(t, mainer.Success, code)
	assert.Equal(t, "hi", out.String())
	assert.Empty(t, eout.String())
}

func TestRunMissingFileExitsNoFile(t *testing.T) {
	var out, eout bytes.Buffer
	c := newCmd()

	code := c.Main([]string{"loxvm", filepath.Join(t.TempDir(), "missing.lox")}, mainer.Stdio{Stdout: &out, Stderr: &eout})

	assert.Equal(t, mainer.ExitCode(1), code)
	assert.NotEmpty(t, eout.String())
}

func TestRunCompileErrorExitsCompileError(t *testing.T) {
	path := writeScript(t, `print(;`)
	var out, eout bytes.Buffer
	c := newCmd()

	code := c.Main([]string{"loxvm", path}, mainer.Stdio{Stdout: &out, Stderr: &eout})

	assert.Equal(t, mainer.ExitCode(2), code)
	assert.NotEmpty(t, eout.String())
}

func TestRunRuntimeErrorExitsRuntimeError(t *testing.T) {
	path := writeScript(t, `print(1 + true);`)
	var out, eout bytes.Buffer
	c := newCmd()

	code := c.Main([]string{"loxvm", path}, mainer.Stdio{Stdout: &out, Stderr: &eout})

	assert.Equal(t, mainer.ExitCode(3), code)
	assert.NotEmpty(t, eout.String())
}

func TestMainHelpFlagPrintsUsage(t *testing.T) {
	var out, eout bytes.Buffer
	c := newCmd()

	code := c.Main([]string{"loxvm", "--help"}, mainer.Stdio{Stdout: &out, Stderr: &eout})

	assert.Equal(t, mainer.Success, code)
	assert.Contains(t, out.String(), "usage: loxvm")
	assert.Empty(t, eout.String())
}

func TestMainVersionFlagPrintsVersion(t *testing.T) {
	var out, eout bytes.Buffer
	c := newCmd()

	code := c.Main([]string{"loxvm", "--version"}, mainer.Stdio{Stdout: &out, Stderr: &eout})

	assert.Equal(t, mainer.Success, code)
	assert.Contains(t, out.String(), "0.0.0-test")
}

func TestMainTooManyArgsIsInvalid(t *testing.T) {
	var out, eout bytes.Buffer
	c := newCmd()

	code := c.Main([]string{"loxvm", "a.lox", "b.lox"}, mainer.Stdio{Stdout: &out, Stderr: &eout})

	assert.Equal(t, mainer.InvalidArgs, code)
}

func TestReplSharesGlobalsAcrossLines(t *testing.T) {
	in := strings.NewReader("var x = 40;\nprint(x + 2);\n")
	var out, eout bytes.Buffer
	c := newCmd()

	code := c.Main([]string{"loxvm"}, mainer.Stdio{Stdout: &out, Stderr: &eout, Stdin: in})

	assert.Equal(t, mainer.Success, code)
	assert.Contains(t, out.String(), "42")
	assert.Empty(t, eout.String())
}

func TestReplContinuesPastCompileError(t *testing.T) {
	in := strings.NewReader("print(;\nprint(\"still alive\");\n")
	var out, eout bytes.Buffer
	c := newCmd()

	code := c.Main([]string{"loxvm"}, mainer.Stdio{Stdout: &out, Stderr: &eout, Stdin: in})

	assert.Equal(t, mainer.Success, code)
	assert.Contains(t, out.String(), "still alive")
	assert.NotEmpty(t, eout.String())
}

func TestReplContinuesPastRuntimeError(t *testing.T) {
	in := strings.NewReader("print(1 + true);\nprint(\"recovered\");\n")
	var out, eout bytes.Buffer
	c := newCmd()

	code := c.Main([]string{"loxvm"}, mainer.Stdio{Stdout: &out, Stderr: &eout, Stdin: in})

	assert.Equal(t, mainer.Success, code)
	assert.Contains(t, out.String(), "recovered")
	assert.NotEmpty(t, eout.String())
}

func TestReplStopsAtEOF(t *testing.T) {
	in := strings.NewReader("print(1);\n")
	var out, eout bytes.Buffer
	c := newCmd()

	code := c.Main([]string{"loxvm"}, mainer.Stdio{Stdout: &out, Stderr: &eout, Stdin: in})

	assert.Equal(t, mainer.Success, code)
	assert.Contains(t, out.String(), "1")
}
