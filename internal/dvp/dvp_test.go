// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package dvp

import (
	"errors"
	"strings"
	"testing"
)

func TestStatusError(t *testing.T) {
	tests := []struct {
		s    Status
		want string
	}{
		{7, "dvp: timeout"},
		{5, "dvp: out of memory"},
		{99, "dvp: status 99"},
	}
	for _, tt := range tests {
		if got := tt.s.Error(); got != tt.want {
			t.Errorf("Status(%d).Error() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestCheck(t *testing.T) {
	if err := check("dvpBegin", 0); err != nil {
		t.Fatalf("check(ok) = %v", err)
	}
	err := check("dvpMemcpyLined", 7)
	var s Status
	if !errors.As(err, &s) || s != 7 {
		t.Fatalf("check(7) = %v, want Status 7", err)
	}
	if !strings.HasPrefix(err.Error(), "dvpMemcpyLined: ") {
		t.Errorf("error %q lacks call name", err)
	}
}

func TestProbeWithoutLibrary(t *testing.T) {
	major, minor, err := Probe()
	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("Probe error %v does not wrap ErrUnavailable", err)
		}
		return
	}
	t.Logf("DMA library %d.%d present", major, minor)
}
