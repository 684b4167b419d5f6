package terminal

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// fakePane is an in-memory pane for FakeBackend.
type fakePane struct {
	name       string
	screen     strings.Builder
	processing bool
	suspended  SuspendState
	closed     bool
}

// FakeBackend is an in-memory Backend implementation with no real process
// behind each pane. Tests drive it directly via AppendOutput/SetProcessing
// instead of waiting on a real shell.
type FakeBackend struct {
	mu    sync.Mutex
	panes map[PaneHandle]*fakePane
}

// NewFakeBackend creates an empty FakeBackend.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{panes: make(map[PaneHandle]*fakePane)}
}

func (b *FakeBackend) CreatePane(opts CreatePaneOpts) (PaneHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h := PaneHandle(uuid.NewString())
	b.panes[h] = &fakePane{}
	return h, nil
}

func (b *FakeBackend) get(pane PaneHandle) (*fakePane, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.panes[pane]
	if !ok {
		return nil, fmt.Errorf("%w: pane %s", ErrNotSupported, pane)
	}
	return p, nil
}

func (b *FakeBackend) SetPaneName(pane PaneHandle, name string) error {
	p, err := b.get(pane)
	if err != nil {
		return err
	}
	b.mu.Lock()
	p.name = name
	b.mu.Unlock()
	return nil
}

func (b *FakeBackend) SendText(pane PaneHandle, text string, pressEnter bool) error {
	p, err := b.get(pane)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	p.screen.WriteString(text)
	if pressEnter {
		p.screen.WriteString("\n")
	}
	return nil
}

func (b *FakeBackend) SendControl(pane PaneHandle, letter byte) error {
	if err := ValidateControlLetter(letter); err != nil {
		return err
	}
	_, err := b.get(pane)
	return err
}

func (b *FakeBackend) SendSpecial(pane PaneHandle, key SpecialKey) error {
	if err := ValidateSpecialKey(key); err != nil {
		return err
	}
	_, err := b.get(pane)
	return err
}

func (b *FakeBackend) ReadScreen(pane PaneHandle, maxLines int) (string, error) {
	p, err := b.get(pane)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := p.screen.String()
	if maxLines <= 0 {
		return out, nil
	}
	lines := strings.Split(out, "\n")
	if len(lines) <= maxLines {
		return out, nil
	}
	return strings.Join(lines[len(lines)-maxLines:], "\n"), nil
}

func (b *FakeBackend) IsProcessing(pane PaneHandle) (bool, error) {
	p, err := b.get(pane)
	if err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return p.processing, nil
}

func (b *FakeBackend) Focus(pane PaneHandle) error {
	_, err := b.get(pane)
	return err
}

func (b *FakeBackend) Suspend(pane PaneHandle, agent string) error {
	p, err := b.get(pane)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.suspended.IsSuspended {
		return ErrAlreadySuspended
	}
	p.suspended = SuspendState{IsSuspended: true, SuspendedBy: agent}
	return nil
}

func (b *FakeBackend) Resume(pane PaneHandle) error {
	p, err := b.get(pane)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !p.suspended.IsSuspended {
		return ErrNotSuspended
	}
	p.suspended = SuspendState{}
	return nil
}

func (b *FakeBackend) Close(pane PaneHandle) error {
	p, err := b.get(pane)
	if err != nil {
		return err
	}
	b.mu.Lock()
	p.closed = true
	delete(b.panes, pane)
	b.mu.Unlock()
	return nil
}

func (b *FakeBackend) EnumeratePanes() ([]PaneHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PaneHandle, 0, len(b.panes))
	for h := range b.panes {
		out = append(out, h)
	}
	return out, nil
}

func (b *FakeBackend) GetByName(name string) (PaneHandle, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for h, p := range b.panes {
		if p.name == name {
			return h, true, nil
		}
	}
	return "", false, nil
}

func (b *FakeBackend) SuspendState(pane PaneHandle) (SuspendState, error) {
	p, err := b.get(pane)
	if err != nil {
		return SuspendState{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return p.suspended, nil
}

// AppendOutput appends text to a pane's screen buffer directly, for tests
// that simulate backend output without a real process.
func (b *FakeBackend) AppendOutput(pane PaneHandle, text string) error {
	p, err := b.get(pane)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	p.screen.WriteString(text)
	return nil
}

// SetProcessing sets the IsProcessing flag a test wants IsProcessing to report.
func (b *FakeBackend) SetProcessing(pane PaneHandle, processing bool) error {
	p, err := b.get(pane)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	p.processing = processing
	return nil
}
