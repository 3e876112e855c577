package plan

import "github.com/moonbitlang/moon/src/core"

// linkClosure implements spec.md 4.3's LinkCore DFS post-order traversal: it
// walks the BuildCore dependency graph from target, collecting an ordered,
// deduplicated set of BuildCore node keys in post-order (the exact argument
// order the linker receives, since the language's initialization order
// depends on it), applying the whitebox-test substitution rule along the
// way. It also returns the FQNs of packages in the closure that declare C
// stub files, for ArchiveOrLinkCStubs wiring on native backends.
func (c *Constructor) linkClosure(target core.BuildTarget) ([]NodeKey, []string, error) {
	var order []NodeKey
	index := map[string]int{} // package FQN -> position in order
	visited := map[core.TargetKey]bool{}
	stubSeen := map[string]bool{}
	var stubPkgs []string

	var visit func(t core.BuildTarget) error
	visit = func(t core.BuildTarget) error {
		tk := core.TargetKey{FQN: t.Package.FQN, Kind: t.Kind}
		if visited[tk] {
			return nil
		}
		visited[tk] = true

		for _, dep := range c.pkgs.Deps(t) {
			if err := visit(dep.To); err != nil {
				return err
			}
		}

		key := c.key(BuildCore, t.Package.FQN, t.Kind, 0)
		if i, ok := index[t.Package.FQN]; ok {
			if t.Kind == core.TargetWhiteboxTest {
				// Whitebox substitution: replace the source target already
				// in the closure with the whitebox one, same position.
				order[i] = key
			}
		} else {
			index[t.Package.FQN] = len(order)
			order = append(order, key)
		}

		if len(t.Package.CStubs) > 0 && !stubSeen[t.Package.FQN] {
			stubSeen[t.Package.FQN] = true
			stubPkgs = append(stubPkgs, t.Package.FQN)
		}
		return nil
	}

	if err := visit(target); err != nil {
		return nil, nil, err
	}
	return order, stubPkgs, nil
}
