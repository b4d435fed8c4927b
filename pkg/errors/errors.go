package errors

import (
	"fmt"
	"runtime"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/pkg/errors"

	"github.com/anaconda/sisyphus/pkg/cmd/version"
	"github.com/anaconda/sisyphus/pkg/config"
	"github.com/anaconda/sisyphus/pkg/featureflag"
)

type SisyphusError interface {
	// Error returns a user-facing string explaining the error
	Error() string

	// Directive returns a user-facing string explaining how to overcome the error
	Directive() string
}

type ErrorReporter interface {
	Setup() func()
	Flush()
	ReportMessage(string) string
	ReportError(error) string
	AddTag(key string, value string)
}

func GetDefaultErrorReporter() ErrorReporter {
	return SentryErrorReporter{}
}

type SentryErrorReporter struct{}

var _ ErrorReporter = SentryErrorReporter{}

func (s SentryErrorReporter) Setup() func() {
	if !featureflag.IsDev() {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:     config.GlobalConfig.GetSentryURL(),
			Release: version.Version,
		})
		if err != nil {
			fmt.Println(err)
		}
	}
	return func() {
		err := recover()
		if err != nil {
			sentry.CurrentHub().Recover(err)
			sentry.Flush(time.Second * 5)
			panic(err)
		}
		sentry.Flush(2 * time.Second)
	}
}

func (s SentryErrorReporter) Flush() {
	sentry.Flush(time.Second * 2)
}

func (s SentryErrorReporter) ReportMessage(msg string) string {
	event := sentry.CaptureMessage(msg)
	if event != nil {
		return string(*event)
	}
	return ""
}

func (s SentryErrorReporter) ReportError(e error) string {
	event := sentry.CaptureException(e)
	if event != nil {
		return string(*event)
	}
	return ""
}

func (s SentryErrorReporter) AddTag(key string, value string) {
	scope := sentry.CurrentHub().Scope()
	scope.SetTag(key, value)
}

// DetectionError means neither OS candidate answered the probe; there is no
// host to talk to and nothing to unwind.
type DetectionError struct {
	Host string
}

var _ SisyphusError = &DetectionError{}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("couldn't connect to host '%s' or figure out what type it is", e.Host)
}

func (e *DetectionError) Directive() string {
	return "check that the host is up and that your ssh key is authorized on it"
}

// EmptyArchiveError is raised when the remote tar command reported success but
// left no archive behind, which makes every downstream step meaningless.
type EmptyArchiveError struct {
	Path string
}

var _ SisyphusError = &EmptyArchiveError{}

func (e *EmptyArchiveError) Error() string {
	return fmt.Sprintf("tar file '%s' is missing", e.Path)
}

func (e *EmptyArchiveError) Directive() string {
	return "inspect the remote build directory; the shell glob may have matched nothing"
}

func WrapAndTrace(err error, messages ...string) error {
	message := ""
	for _, m := range messages {
		message += fmt.Sprintf(" %s", m)
	}
	return errors.Wrap(err, MakeErrorMessage(message))
}

func MakeErrorMessage(message string) string {
	_, fn, line, _ := runtime.Caller(2)
	return fmt.Sprintf("[error] %s:%d %s\n\t", fn, line, message)
}
