package cmderrors

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/anaconda/sisyphus/pkg/featureflag"
	"github.com/anaconda/sisyphus/pkg/terminal"

	breverrors "github.com/anaconda/sisyphus/pkg/errors"
)

// determines if should print error stack trace and/or send to crash monitor
func DisplayAndHandleError(err error) {
	if err == nil {
		return
	}
	er := breverrors.GetDefaultErrorReporter()
	er.ReportMessage(err.Error())
	er.ReportError(err)

	if featureflag.IsDev() {
		// full wrapped trace for development builds
		fmt.Println(err)
	}
	t := terminal.New()
	t.Errprint(errors.Cause(err), "")
}
