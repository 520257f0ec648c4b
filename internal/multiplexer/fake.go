package multiplexer

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// fakeWindow is one in-memory window's state.
type fakeWindow struct {
	name string
	text []string
	keys []NamedKey
}

// FakeAdapter is an in-memory Adapter used by tests in place of a real
// tmux process. It is safe for concurrent use.
type FakeAdapter struct {
	mu      sync.Mutex
	nextID  int
	windows map[string]map[string]*fakeWindow // group -> handle -> window
}

// NewFakeAdapter constructs an empty FakeAdapter.
func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{windows: make(map[string]map[string]*fakeWindow)}
}

func (f *FakeAdapter) NewWindow(_ context.Context, group, name, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	handle := strconv.Itoa(f.nextID)

	if f.windows[group] == nil {
		f.windows[group] = make(map[string]*fakeWindow)
	}
	f.windows[group][handle] = &fakeWindow{name: name}
	return handle, nil
}

func (f *FakeAdapter) KillWindow(_ context.Context, group, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.windows[group] == nil || f.windows[group][handle] == nil {
		return &ErrNotFound{Handle: handle}
	}
	delete(f.windows[group], handle)
	return nil
}

func (f *FakeAdapter) ListWindows(_ context.Context, group string) ([]WindowInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []WindowInfo
	for handle, w := range f.windows[group] {
		out = append(out, WindowInfo{Handle: handle, Name: w.name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out, nil
}

func (f *FakeAdapter) CapturePane(_ context.Context, group, handle string, maxLines int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w := f.windows[group][handle]
	if w == nil {
		return "", nil
	}
	lines := w.text
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.Join(lines, "\n"), nil
}

func (f *FakeAdapter) SendText(_ context.Context, group, handle, text string, pressEnter bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	w := f.windows[group][handle]
	if w == nil {
		return &ErrNotFound{Handle: handle}
	}
	w.text = append(w.text, text)
	if pressEnter {
		w.text = append(w.text, "")
	}
	return nil
}

func (f *FakeAdapter) SendKey(_ context.Context, group, handle string, key NamedKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	w := f.windows[group][handle]
	if w == nil {
		return &ErrNotFound{Handle: handle}
	}
	w.keys = append(w.keys, key)
	return nil
}

func (f *FakeAdapter) MoveWindow(_ context.Context, group, handle, targetGroup string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	w := f.windows[group][handle]
	if w == nil {
		return &ErrNotFound{Handle: handle}
	}
	delete(f.windows[group], handle)
	if f.windows[targetGroup] == nil {
		f.windows[targetGroup] = make(map[string]*fakeWindow)
	}
	f.windows[targetGroup][handle] = w
	return nil
}

// SetPaneText is a test helper that seeds a window's captured pane text
// directly, bypassing SendText.
func (f *FakeAdapter) SetPaneText(group, handle string, lines []string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.windows[group] == nil {
		f.windows[group] = make(map[string]*fakeWindow)
	}
	w := f.windows[group][handle]
	if w == nil {
		w = &fakeWindow{}
		f.windows[group][handle] = w
	}
	w.text = lines
}

// KeysSent is a test helper returning the named keys sent to a window, in
// order.
func (f *FakeAdapter) KeysSent(group, handle string) []NamedKey {
	f.mu.Lock()
	defer f.mu.Unlock()

	w := f.windows[group][handle]
	if w == nil {
		return nil
	}
	out := make([]NamedKey, len(w.keys))
	copy(out, w.keys)
	return out
}

var _ Adapter = (*FakeAdapter)(nil)
var _ Adapter = (*TmuxAdapter)(nil)
