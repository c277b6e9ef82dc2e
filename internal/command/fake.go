package command

import (
	"context"
	"strings"
	"sync"
)

// Call is one invocation recorded by Fake.
type Call struct {
	Name string
	Args []string
}

// String renders the call the way a shell would show it.
func (c Call) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Fake is a Runner that records calls and answers from rules. It is used
// by tests across packages that shell out.
type Fake struct {
	mu    sync.Mutex
	calls []Call
	rules []rule
}

type rule struct {
	prefix string
	out    []byte
	err    error
}

// On makes every call whose rendered form starts with prefix return out
// and err. Later rules win.
func (f *Fake) On(prefix string, out []byte, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{prefix: prefix, out: out, err: err})
}

// Fail makes matching calls exit with code 1 and the given stderr.
func (f *Fake) Fail(prefix, stderr string) {
	fields := strings.Fields(prefix)
	f.On(prefix, nil, &ExitError{Command: fields[0], Args: fields[1:], Code: 1, Stderr: stderr})
}

// Run implements Runner.
func (f *Fake) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := Call{Name: name, Args: append([]string(nil), args...)}
	f.calls = append(f.calls, c)

	rendered := c.String()
	for i := len(f.rules) - 1; i >= 0; i-- {
		if strings.HasPrefix(rendered, f.rules[i].prefix) {
			return f.rules[i].out, f.rules[i].err
		}
	}
	return nil, nil
}

// Calls returns the rendered calls in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.String())
	}
	return out
}
