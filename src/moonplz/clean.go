package moonplz

import "github.com/moonbitlang/moon/src/clean"

// Clean implements `moon clean`: removes the target root entirely.
func (p *Pipeline) Clean(background bool) error {
	return clean.Clean(p.TargetRoot, background)
}
