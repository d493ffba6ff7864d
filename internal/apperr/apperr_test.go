package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsClientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"validation", Validation("name is required"), true},
		{"not found", NotFound("group", "g1"), true},
		{"wrapped forbidden", fmt.Errorf("failed to delete group: %w", Forbidden("only the creator")), true},
		{"wrong password", ErrWrongPassword, true},
		{"conflict", Conflict("already a member"), true},
		{"unauthorized", ErrUnauthorized, true},
		{"storage failure", errors.New("database is locked"), false},
		{"wrapped storage failure", fmt.Errorf("failed to save group: %w", errors.New("disk full")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsClientError(tt.err); got != tt.want {
				t.Errorf("IsClientError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
