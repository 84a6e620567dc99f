package convert

import "path"

// Context is the traversal state handed to each recursive call. It is a
// value: every descent derives a new copy, so siblings never share state.
type Context struct {
	Prefix string // tangle destination prefix, slash separated
	Depth  int    // heading depth, 1 at the root
}

// RootContext is the context of the top-level node.
func RootContext() Context {
	return Context{Depth: 1}
}

// Descend returns the context for the children of directory dir.
func (c Context) Descend(dir string) Context {
	return Context{
		Prefix: path.Join(c.Prefix, dir),
		Depth:  c.Depth + 1,
	}
}

// Target returns the tangle destination of a file named name.
func (c Context) Target(name string) string {
	return path.Join(c.Prefix, name)
}

// Mkdirp reports whether blocks in this context need parent directories created on tangle.
func (c Context) Mkdirp() bool {
	return c.Depth > 1
}
