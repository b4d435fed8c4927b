package terminal

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type hintedError struct{}

func (hintedError) Error() string     { return "tar file '/tmp/x.tar' is missing" }
func (hintedError) Directive() string { return "inspect the remote build directory" }

func newPlainTerminal(out, errOut *bytes.Buffer) *Terminal {
	plain := func(format string, a ...interface{}) string { return fmt.Sprintf(format, a...) }
	return &Terminal{
		out:     out,
		verbose: out,
		err:     errOut,
		Green:   plain,
		Yellow:  plain,
		Red:     plain,
		Blue:    plain,
	}
}

func TestErrprintIncludesDirective(t *testing.T) {
	var out, errOut bytes.Buffer
	term := newPlainTerminal(&out, &errOut)

	term.Errprint(hintedError{}, "")

	assert.Contains(t, errOut.String(), "Error: tar file '/tmp/x.tar' is missing")
	assert.Contains(t, errOut.String(), "inspect the remote build directory")
	assert.Empty(t, out.String())
}

func TestErrprintPlainError(t *testing.T) {
	var out, errOut bytes.Buffer
	term := newPlainTerminal(&out, &errOut)

	term.Errprint(fmt.Errorf("connection refused"), "check the host")

	assert.Contains(t, errOut.String(), "Error: connection refused")
	assert.Contains(t, errOut.String(), "check the host")
}

func TestPrintWriters(t *testing.T) {
	var out, errOut bytes.Buffer
	term := newPlainTerminal(&out, &errOut)

	term.Print("to stdout")
	term.Vprintf("verbose %d\n", 7)
	term.Eprint("to stderr")

	assert.Contains(t, out.String(), "to stdout")
	assert.Contains(t, out.String(), "verbose 7")
	assert.Equal(t, "to stderr\n", errOut.String())
}
