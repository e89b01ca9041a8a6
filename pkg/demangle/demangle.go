// Package demangle turns raw symbol names into display names.
package demangle

import (
	"bytes"
	"os/exec"
	"strings"

	"github.com/hashicorp/golang-lru/v2"
	"github.com/ianlancetaylor/demangle"
	"github.com/pkg/errors"
)

// Resolver maps a raw symbol name to its display name. Results must depend
// only on the input name. Callers treat an error as "keep the raw name".
type Resolver interface {
	Demangle(name string) (string, error)
}

// Func adapts a function to Resolver.
type Func func(name string) (string, error)

func (f Func) Demangle(name string) (string, error) { return f(name) }

// Identity returns names unchanged.
var Identity Resolver = Func(func(name string) (string, error) { return name, nil })

// Style selects how much of a demangled C++ name is kept.
type Style string

const (
	StyleNone       Style = "none"
	StyleSimplified Style = "simplified"
	StyleTemplates  Style = "templates"
	StyleFull       Style = "full"
)

var styles = map[Style][]demangle.Option{
	StyleNone:       make([]demangle.Option, 0),
	StyleSimplified: {demangle.NoParams, demangle.NoEnclosingParams, demangle.NoTemplateParams},
	StyleTemplates:  {demangle.NoParams, demangle.NoEnclosingParams},
	StyleFull:       {demangle.NoClones},
}

// ParseStyle validates s. The empty string selects StyleNone, which keeps
// everything, like c++filt.
func ParseStyle(s string) (Style, error) {
	if s == "" {
		return StyleNone, nil
	}
	st := Style(s)
	if _, ok := styles[st]; !ok {
		return "", errors.Errorf("unknown demangle style %q", s)
	}
	return st, nil
}

type native struct {
	opts []demangle.Option
}

// NewNative returns an in-process Itanium/Rust demangler. Names that are not
// mangled are returned unchanged.
func NewNative(style Style) Resolver {
	return &native{opts: styles[style]}
}

func (n *native) Demangle(name string) (string, error) {
	res, err := demangle.ToString(name, n.opts...)
	if errors.Is(err, demangle.ErrNotMangledName) {
		return name, nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "demangle %q", name)
	}
	return res, nil
}

// DefaultTool is the external demangler used by NewExec when tool is empty.
const DefaultTool = "c++filt"

type execResolver struct {
	tool string
}

// NewExec returns a resolver that runs tool with the name as its last
// argument, once per call, and uses the trimmed standard output. For the
// default tool the name follows "--" so names starting with '-' are not read
// as options.
func NewExec(tool string) Resolver {
	if tool == "" {
		tool = DefaultTool
	}
	return &execResolver{tool: tool}
}

func (e *execResolver) Demangle(name string) (string, error) {
	var stderr bytes.Buffer
	cmd := exec.Command(e.tool, e.args(name)...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", errors.Wrapf(err, "%s %q: %s", e.tool, name, msg)
		}
		return "", errors.Wrapf(err, "%s %q", e.tool, name)
	}
	return strings.TrimSpace(string(out)), nil
}

func (e *execResolver) args(name string) []string {
	if e.tool == DefaultTool {
		return []string{"--", name}
	}
	return []string{name}
}

type cached struct {
	r     Resolver
	cache *lru.Cache[string, string]
}

// NewCached memoizes successful results of r in an LRU of the given size.
func NewCached(r Resolver, size int) (Resolver, error) {
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, errors.Wrap(err, "create demangle cache")
	}
	return &cached{r: r, cache: c}, nil
}

func (c *cached) Demangle(name string) (string, error) {
	if v, ok := c.cache.Get(name); ok {
		return v, nil
	}
	v, err := c.r.Demangle(name)
	if err != nil {
		return "", err
	}
	c.cache.Add(name, v)
	return v, nil
}
