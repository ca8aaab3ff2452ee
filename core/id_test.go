package core

import "testing"

func TestNewExecutionIDMatchesDocumentedPattern(t *testing.T) {
	id := NewExecutionID()
	if !ValidExecutionID(id) {
		t.Errorf("expected %q to match exec_[0-9a-f]{32}", id)
	}
}

func TestValidExecutionIDRejectsMalformedInput(t *testing.T) {
	for _, bad := range []string{"", "exec_123", "exec_" + "g123456789012345678901234567890", "notexec_00000000000000000000000000000000"} {
		if ValidExecutionID(bad) {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}
