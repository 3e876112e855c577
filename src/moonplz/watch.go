package moonplz

import (
	"context"

	"github.com/moonbitlang/moon/src/watch"
)

// Watch rebuilds pkgFilter with inv whenever one of their source files
// changes, until stop is closed. Rebuild errors are logged, not fatal: the
// watch loop keeps running so the user can fix and save again.
func (p *Pipeline) Watch(ctx context.Context, pkgFilter []string, inv Invocation, stop <-chan struct{}) error {
	pkgs, err := p.packagesFor(pkgFilter, false)
	if err != nil {
		return err
	}
	rebuild := func() {
		if _, err := p.Build(ctx, pkgFilter, inv); err != nil {
			log.Error("rebuild failed: %s", err)
		}
	}
	return watch.Watch(pkgs, rebuild, stop)
}
