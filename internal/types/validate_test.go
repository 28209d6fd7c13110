package types

import "testing"

func TestValidateTitle(t *testing.T) {
	cases := []struct {
		title   string
		wantErr bool
	}{
		{"fix the bug", false},
		{"", true},
		{"   ", true},
	}
	for _, c := range cases {
		err := ValidateTitle(c.title)
		if (err != nil) != c.wantErr {
			t.Errorf("ValidateTitle(%q) error = %v, wantErr %v", c.title, err, c.wantErr)
		}
	}
}

func TestValidateTitleLength(t *testing.T) {
	long := make([]byte, MaxTitleLength+1)
	for i := range long {
		long[i] = 'a'
	}
	if err := ValidateTitle(string(long)); err == nil {
		t.Error("expected error for over-length title")
	}
}

func TestValidatePriority(t *testing.T) {
	for p := MinPriority; p <= MaxPriority; p++ {
		if err := ValidatePriority(p); err != nil {
			t.Errorf("ValidatePriority(%d) unexpected error: %v", p, err)
		}
	}
	if err := ValidatePriority(-1); err == nil {
		t.Error("expected error for priority -1")
	}
	if err := ValidatePriority(5); err == nil {
		t.Error("expected error for priority 5")
	}
}

func TestValidateLabelName(t *testing.T) {
	reserved := map[string]bool{"bug": true}
	if err := ValidateLabelName("urgent", reserved); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateLabelName("Bug", reserved); err == nil {
		t.Error("expected error for reserved type name collision")
	}
	if err := ValidateLabelName("  ", reserved); err == nil {
		t.Error("expected error for empty label")
	}
}

func TestIsFieldPopulated(t *testing.T) {
	if IsFieldPopulated(nil) {
		t.Error("nil should not be populated")
	}
	if IsFieldPopulated("   ") {
		t.Error("whitespace-only string should not be populated")
	}
	if !IsFieldPopulated("x") {
		t.Error("non-empty string should be populated")
	}
	if !IsFieldPopulated(0) {
		t.Error("zero int should still count as populated (not a string)")
	}
}
