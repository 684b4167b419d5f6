package terminal

import "testing"

func TestFakeBackendCreateAndSend(t *testing.T) {
	b := NewFakeBackend()
	pane, err := b.CreatePane(CreatePaneOpts{})
	if err != nil {
		t.Fatalf("CreatePane: %v", err)
	}

	if err := b.SendText(pane, "echo hi", true); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	out, err := b.ReadScreen(pane, 0)
	if err != nil {
		t.Fatalf("ReadScreen: %v", err)
	}
	if out != "echo hi\n" {
		t.Errorf("ReadScreen = %q, want %q", out, "echo hi\n")
	}
}

func TestFakeBackendGetByName(t *testing.T) {
	b := NewFakeBackend()
	pane, _ := b.CreatePane(CreatePaneOpts{})
	if err := b.SetPaneName(pane, "build"); err != nil {
		t.Fatalf("SetPaneName: %v", err)
	}

	got, ok, err := b.GetByName("build")
	if err != nil || !ok || got != pane {
		t.Fatalf("GetByName = (%v, %v, %v), want (%v, true, nil)", got, ok, err, pane)
	}

	_, ok, err = b.GetByName("missing")
	if err != nil || ok {
		t.Fatalf("GetByName(missing) = (_, %v, %v), want (_, false, nil)", ok, err)
	}
}

func TestFakeBackendSuspendResume(t *testing.T) {
	b := NewFakeBackend()
	pane, _ := b.CreatePane(CreatePaneOpts{})

	if err := b.Suspend(pane, "alice"); err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	if err := b.Suspend(pane, "alice"); err != ErrAlreadySuspended {
		t.Fatalf("double Suspend = %v, want ErrAlreadySuspended", err)
	}

	state, err := b.SuspendState(pane)
	if err != nil || !state.IsSuspended || state.SuspendedBy != "alice" {
		t.Fatalf("SuspendState = %+v, %v", state, err)
	}

	if err := b.Resume(pane); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if err := b.Resume(pane); err != ErrNotSuspended {
		t.Fatalf("double Resume = %v, want ErrNotSuspended", err)
	}
}

func TestValidateControlLetter(t *testing.T) {
	if err := ValidateControlLetter('C'); err != nil {
		t.Errorf("ValidateControlLetter('C') = %v, want nil", err)
	}
	if err := ValidateControlLetter('c'); err != nil {
		t.Errorf("ValidateControlLetter('c') = %v, want nil", err)
	}
	if err := ValidateControlLetter('1'); err == nil {
		t.Error("ValidateControlLetter('1') = nil, want error")
	}

	code, err := ControlByte('C')
	if err != nil || code != 3 {
		t.Errorf("ControlByte('C') = (%d, %v), want (3, nil)", code, err)
	}
}

func TestValidateSpecialKey(t *testing.T) {
	if err := ValidateSpecialKey(KeyEnter); err != nil {
		t.Errorf("ValidateSpecialKey(enter) = %v, want nil", err)
	}
	if err := ValidateSpecialKey("bogus"); err == nil {
		t.Error("ValidateSpecialKey(bogus) = nil, want error")
	}
}
