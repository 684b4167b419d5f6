package terminal

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"
)

const screenBufferSize = 256 * 1024 // ring buffer retained per pane for ReadScreen

// screenBuffer is a thread-safe ring buffer storing recent PTY output so
// ReadScreen can serve a screen's worth of history without re-reading the pty.
type screenBuffer struct {
	mu   sync.Mutex
	buf  []byte
	pos  int
	full bool
}

func newScreenBuffer() *screenBuffer {
	return &screenBuffer{buf: make([]byte, screenBufferSize)}
}

func (sb *screenBuffer) Write(data []byte) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	for len(data) > 0 {
		n := copy(sb.buf[sb.pos:], data)
		data = data[n:]
		sb.pos += n
		if sb.pos >= len(sb.buf) {
			sb.pos = 0
			sb.full = true
		}
	}
}

func (sb *screenBuffer) Snapshot() []byte {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if !sb.full {
		out := make([]byte, sb.pos)
		copy(out, sb.buf[:sb.pos])
		return out
	}

	out := make([]byte, len(sb.buf))
	n := copy(out, sb.buf[sb.pos:])
	copy(out[n:], sb.buf[:sb.pos])
	return out
}

// localPane is one PTY-backed pane tracked by LocalBackend.
type localPane struct {
	handle PaneHandle
	name   string
	cmd    *exec.Cmd
	ptmx   *os.File
	screen *screenBuffer

	mu          sync.Mutex
	closed      bool
	lastActive  time.Time
	suspended   bool
	suspendedAt time.Time
	suspendedBy string
}

// LocalBackend implements Backend against real local shells over a PTY.
// It is the kernel's own testable terminal integration, grounded on the
// same pty.StartWithSize/read-loop/ring-buffer shape used elsewhere in the
// example corpus for PTY-backed workers.
type LocalBackend struct {
	mu    sync.Mutex
	panes map[PaneHandle]*localPane
	shell string
}

// NewLocalBackend creates a Backend that spawns real shells via creack/pty.
// shell defaults to $SHELL, falling back to /bin/sh.
func NewLocalBackend(shell string) *LocalBackend {
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}
	return &LocalBackend{
		panes: make(map[PaneHandle]*localPane),
		shell: shell,
	}
}

func (b *LocalBackend) CreatePane(opts CreatePaneOpts) (PaneHandle, error) {
	cmd := exec.Command(b.shell)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: 80, Rows: 24})
	if err != nil {
		return "", fmt.Errorf("starting pty: %w", err)
	}

	handle := PaneHandle(uuid.NewString())
	p := &localPane{
		handle:     handle,
		cmd:        cmd,
		ptmx:       ptmx,
		screen:     newScreenBuffer(),
		lastActive: time.Now(),
	}

	b.mu.Lock()
	b.panes[handle] = p
	b.mu.Unlock()

	go p.readLoop()

	log.Printf("terminal: created pane %s (shell=%s)", handle, b.shell)
	return handle, nil
}

func (p *localPane) readLoop() {
	buf := make([]byte, 32*1024)
	for {
		n, err := p.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			p.screen.Write(chunk)
			p.mu.Lock()
			p.lastActive = time.Now()
			p.mu.Unlock()
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("terminal: pane %s read error: %v", p.handle, err)
			}
			return
		}
	}
}

func (b *LocalBackend) get(pane PaneHandle) (*localPane, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.panes[pane]
	if !ok {
		return nil, fmt.Errorf("%w: pane %s", ErrNotSupported, pane)
	}
	return p, nil
}

func (b *LocalBackend) SetPaneName(pane PaneHandle, name string) error {
	p, err := b.get(pane)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.name = name
	p.mu.Unlock()
	return nil
}

func (b *LocalBackend) SendText(pane PaneHandle, text string, pressEnter bool) error {
	p, err := b.get(pane)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("pane %s is closed", pane)
	}
	if _, err := p.ptmx.WriteString(text); err != nil {
		return fmt.Errorf("writing to pane %s: %w", pane, err)
	}
	if pressEnter {
		if _, err := p.ptmx.WriteString("\r"); err != nil {
			return fmt.Errorf("writing enter to pane %s: %w", pane, err)
		}
	}
	p.lastActive = time.Now()
	return nil
}

func (b *LocalBackend) SendControl(pane PaneHandle, letter byte) error {
	code, err := ControlByte(letter)
	if err != nil {
		return err
	}
	p, err := b.get(pane)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err = p.ptmx.Write([]byte{code})
	return err
}

var specialKeySequences = map[SpecialKey]string{
	KeyEnter: "\r", KeyReturn: "\r", KeyTab: "\t", KeyEscape: "\x1b",
	KeySpace: " ", KeyBackspace: "\x7f", KeyDelete: "\x1b[3~",
	KeyUp: "\x1b[A", KeyDown: "\x1b[B", KeyRight: "\x1b[C", KeyLeft: "\x1b[D",
	KeyHome: "\x1b[H", KeyEnd: "\x1b[F",
}

func (b *LocalBackend) SendSpecial(pane PaneHandle, key SpecialKey) error {
	if err := ValidateSpecialKey(key); err != nil {
		return err
	}
	p, err := b.get(pane)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err = p.ptmx.WriteString(specialKeySequences[key])
	return err
}

func (b *LocalBackend) ReadScreen(pane PaneHandle, maxLines int) (string, error) {
	p, err := b.get(pane)
	if err != nil {
		return "", err
	}
	out := string(p.screen.Snapshot())
	if maxLines <= 0 {
		return out, nil
	}
	lines := strings.Split(out, "\n")
	if len(lines) <= maxLines {
		return out, nil
	}
	return strings.Join(lines[len(lines)-maxLines:], "\n"), nil
}

func (b *LocalBackend) IsProcessing(pane PaneHandle) (bool, error) {
	p, err := b.get(pane)
	if err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Since(p.lastActive) < 500*time.Millisecond, nil
}

func (b *LocalBackend) Focus(pane PaneHandle) error {
	_, err := b.get(pane)
	return err
}

func (b *LocalBackend) Suspend(pane PaneHandle, agent string) error {
	p, err := b.get(pane)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.suspended {
		return ErrAlreadySuspended
	}
	if p.cmd.Process != nil {
		if err := suspendProcess(p.cmd.Process.Pid); err != nil {
			return fmt.Errorf("suspending pane %s: %w", pane, err)
		}
	}
	p.suspended = true
	p.suspendedAt = time.Now()
	p.suspendedBy = agent
	return nil
}

func (b *LocalBackend) Resume(pane PaneHandle) error {
	p, err := b.get(pane)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.suspended {
		return ErrNotSuspended
	}
	if p.cmd.Process != nil {
		if err := resumeProcess(p.cmd.Process.Pid); err != nil {
			return fmt.Errorf("resuming pane %s: %w", pane, err)
		}
	}
	p.suspended = false
	p.suspendedAt = time.Time{}
	p.suspendedBy = ""
	return nil
}

func (b *LocalBackend) Close(pane PaneHandle) error {
	p, err := b.get(pane)
	if err != nil {
		return err
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	_ = p.ptmx.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}

	b.mu.Lock()
	delete(b.panes, pane)
	b.mu.Unlock()

	log.Printf("terminal: closed pane %s", pane)
	return nil
}

func (b *LocalBackend) EnumeratePanes() ([]PaneHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PaneHandle, 0, len(b.panes))
	for h := range b.panes {
		out = append(out, h)
	}
	return out, nil
}

func (b *LocalBackend) GetByName(name string) (PaneHandle, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for h, p := range b.panes {
		p.mu.Lock()
		match := p.name == name
		p.mu.Unlock()
		if match {
			return h, true, nil
		}
	}
	return "", false, nil
}

func (b *LocalBackend) SuspendState(pane PaneHandle) (SuspendState, error) {
	p, err := b.get(pane)
	if err != nil {
		return SuspendState{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	st := SuspendState{IsSuspended: p.suspended, SuspendedBy: p.suspendedBy}
	if !p.suspendedAt.IsZero() {
		st.SuspendedAt = p.suspendedAt.Format(time.RFC3339)
	}
	return st, nil
}
