package policy

import "testing"

func TestKeywordForcesBothFlags(t *testing.T) {
	p := NewDefault()
	flags := p.Strengthen(Flags{}, "Delete the draft email")
	if !flags.RequiresConfirmation || !flags.IsIrreversible {
		t.Fatalf("expected both flags forced, got %+v", flags)
	}
}

func TestNonMatchingDescriptionLeftAlone(t *testing.T) {
	p := NewDefault()
	flags := p.Strengthen(Flags{}, "Click the close button")
	if flags.RequiresConfirmation || flags.IsIrreversible {
		t.Fatalf("expected flags untouched, got %+v", flags)
	}
}

func TestIrreversibleImpliesConfirmation(t *testing.T) {
	p := NewDefault()
	flags := p.Strengthen(Flags{IsIrreversible: true}, "Type the greeting")
	if !flags.RequiresConfirmation {
		t.Fatalf("irreversible action must require confirmation")
	}
}

func TestStrengthenNeverWeakens(t *testing.T) {
	p := NewDefault()
	in := Flags{RequiresConfirmation: true, IsIrreversible: true}
	out := p.Strengthen(in, "Scroll down")
	if out != in {
		t.Fatalf("declared flags must survive: got %+v", out)
	}
}

func TestMatchIsCaseInsensitiveSubstring(t *testing.T) {
	p := NewDefault()
	cases := map[string]bool{
		"SEND the invoice":        true,
		"Purchase a license":      true,
		"Confirm the dialog":      true,
		"Open the settings panel": false,
		"Resend the form":         true, // substring match, "send" inside "Resend"
	}
	for desc, want := range cases {
		if got := p.Matches(desc); got != want {
			t.Errorf("Matches(%q) = %v, want %v", desc, got, want)
		}
	}
}

func TestExtraKeywordsExtendTheSet(t *testing.T) {
	p := New([]string{"Format", " wipe "})
	if !p.Matches("format the drive") {
		t.Fatalf("extra keyword should match case-insensitively")
	}
	if !p.Matches("Wipe the cache") {
		t.Fatalf("extra keyword should be trimmed before matching")
	}
	if p.Matches("open the editor") {
		t.Fatalf("unrelated description should not match")
	}
}
