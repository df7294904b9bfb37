// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package transport

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsTimeout(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"plain error", errors.New("boom"), false},
		{"timeout error", &TimeoutError{Op: "read", Want: 30, Got: 12}, true},
		{"wrapped timeout", fmt.Errorf("read version: %w", &TimeoutError{Op: "read", Want: 30}), true},
		{"wrapped plain", fmt.Errorf("read version: %w", errors.New("io down")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTimeout(tt.err); got != tt.want {
				t.Errorf("IsTimeout() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimeoutError(t *testing.T) {
	err := &TimeoutError{Op: "read", Want: 30, Got: 12}
	if !err.Timeout() {
		t.Error("Timeout() = false, want true")
	}
	if err.Error() == "" {
		t.Error("Error() returned empty string")
	}
}
