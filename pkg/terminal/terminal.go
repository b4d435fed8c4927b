// Package terminal is for terminal outputting
package terminal

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

type Terminal struct {
	out     io.Writer
	verbose io.Writer
	err     io.Writer

	Green  func(format string, a ...interface{}) string
	Yellow func(format string, a ...interface{}) string
	Red    func(format string, a ...interface{}) string
	Blue   func(format string, a ...interface{}) string
}

func New() (t *Terminal) {
	return &Terminal{
		out:     os.Stdout,
		verbose: os.Stdout,
		err:     os.Stderr,
		Green:   color.New(color.FgGreen).SprintfFunc(),
		Yellow:  color.New(color.FgYellow).SprintfFunc(),
		Red:     color.New(color.FgRed).SprintfFunc(),
		Blue:    color.New(color.FgBlue).SprintfFunc(),
	}
}

func (t *Terminal) Print(a string) {
	fmt.Fprintln(t.out, a)
}

func (t *Terminal) Vprint(a string) {
	fmt.Fprintln(t.verbose, a)
}

func (t *Terminal) Vprintf(format string, a ...interface{}) {
	fmt.Fprintf(t.verbose, format, a...)
}

func (t *Terminal) Eprint(a string) {
	fmt.Fprintln(t.err, a)
}

type directiveError interface {
	Directive() string
}

func (t *Terminal) Errprint(err error, a string) {
	t.Eprint(t.Red("Error: " + err.Error()))
	if a != "" {
		t.Eprint(t.Red(a))
	}
	if de, ok := err.(directiveError); ok {
		t.Eprint(t.Yellow(de.Directive()))
	}
}

// NewSpinner returns a started spinner for indefinite waits (there is no
// progress percentage to report while a remote job runs).
func (t *Terminal) NewSpinner(suffix string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + suffix
	s.Start()
	return s
}
