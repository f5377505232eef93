package middleware_test

import (
	"strings"
	"testing"

	. "taskforge/pkg/api/middleware"
)

func TestValidator_ValidateJobName_RejectsEmpty(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())

	if err := v.ValidateJobName(""); err == nil {
		t.Error("expected empty job_name to be rejected")
	}
}

func TestValidator_ValidateJobName_RejectsTooLong(t *testing.T) {
	config := DefaultValidatorConfig()
	config.MaxNameLength = 5
	v := NewValidator(config)

	if err := v.ValidateJobName("toolongname"); err == nil {
		t.Error("expected too long job_name to be rejected")
	}
}

func TestValidator_ValidateJobName_AcceptsNormalName(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())

	if err := v.ValidateJobName("shell.command"); err != nil {
		t.Errorf("expected 'shell.command' to be valid, got: %v", err)
	}
}

func TestValidator_ValidatePriority_AcceptsInRange(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())

	for _, p := range []int{1, 5, 10} {
		if err := v.ValidatePriority(p); err != nil {
			t.Errorf("expected priority %d to be valid, got: %v", p, err)
		}
	}
}

func TestValidator_ValidatePriority_RejectsFarOutOfRange(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())

	for _, p := range []int{-100, 1000} {
		if err := v.ValidatePriority(p); err == nil {
			t.Errorf("expected priority %d to be rejected", p)
		}
	}
}

func TestValidator_ValidatePayloadSize_RejectsOversized(t *testing.T) {
	config := DefaultValidatorConfig()
	config.MaxPayloadSize = 10
	v := NewValidator(config)

	if err := v.ValidatePayloadSize([]byte(strings.Repeat("x", 20))); err == nil {
		t.Error("expected oversized payload to be rejected")
	}
}

func TestValidator_ValidatePayloadSize_AcceptsWithinLimit(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())

	if err := v.ValidatePayloadSize([]byte("small payload")); err != nil {
		t.Errorf("expected small payload to be valid, got: %v", err)
	}
}

func TestValidator_ValidateShellCommand_AcceptsNormalCommands(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())

	tests := []string{
		"echo hello",
		"ls -la",
		"python script.py --arg=value",
		"curl https://api.example.com",
	}

	for _, cmd := range tests {
		if err := v.ValidateShellCommand(cmd); err != nil {
			t.Errorf("expected command '%s' to be valid, got error: %v", cmd, err)
		}
	}
}

func TestValidator_ValidateShellCommand_RejectsDangerousCommands(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())

	tests := []string{
		"rm -rf /",
		"sudo rm -rf /",
		":(){ :|:& };:", // fork bomb
		"mkfs /dev/sda",
	}

	for _, cmd := range tests {
		if err := v.ValidateShellCommand(cmd); err == nil {
			t.Errorf("expected command '%s' to be rejected", cmd)
		}
	}
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Field:   "job_name",
		Message: "is required",
	}

	expected := "job_name: is required"
	if err.Error() != expected {
		t.Errorf("expected '%s', got '%s'", expected, err.Error())
	}
}
