package resolve

import (
	"fmt"
	"regexp"

	"github.com/hashicorp/go-multierror"
)

// moduleNameRE matches the restricted module-name alphabet (spec.md 6):
// lowercase alphanumerics, dots, underscores, dashes and slashes, not starting or ending
// with a separator.
var moduleNameRE = regexp.MustCompile(`^[a-z0-9]([a-z0-9._/-]*[a-z0-9])?$`)

func validateModuleName(name string) error {
	if !moduleNameRE.MatchString(name) {
		return fmt.Errorf("malformed module name %q", name)
	}
	return nil
}

// errorCollector accumulates resolution errors so that, per spec.md 4.1
// ("Errors are accumulated per invocation; resolution continues to collect
// as many errors as possible before aborting"), one bad dependency doesn't
// hide every other one.
type errorCollector struct {
	errs *multierror.Error
}

func (c *errorCollector) add(err error) {
	if err != nil {
		c.errs = multierror.Append(c.errs, err)
	}
}

func (c *errorCollector) result() error {
	return c.errs.ErrorOrNil()
}
