package defra

import (
	"strings"
	"testing"
)

func TestContainerName(t *testing.T) {
	a := ContainerName("/home/user/.folio")
	b := ContainerName("/home/other/.folio")

	if !strings.HasPrefix(a, ContainerNamePrefix) {
		t.Errorf("ContainerName() = %q, want prefix %q", a, ContainerNamePrefix)
	}
	if len(a) != len(ContainerNamePrefix)+8 {
		t.Errorf("ContainerName() length = %d, want %d", len(a), len(ContainerNamePrefix)+8)
	}
	if a != ContainerName("/home/user/.folio") {
		t.Error("ContainerName() is not deterministic")
	}
	if a == b {
		t.Errorf("different homes produced the same name %q", a)
	}
}

func TestParseContainerState(t *testing.T) {
	tests := []struct {
		state string
		want  ContainerStatus
	}{
		{"running", StatusRunning},
		{"exited", StatusStopped},
		{"dead", StatusStopped},
		{"created", StatusStarting},
		{"restarting", StatusStarting},
		{"paused", ContainerStatus("paused")},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			if got := parseContainerState(tt.state); got != tt.want {
				t.Errorf("parseContainerState(%q) = %s, want %s", tt.state, got, tt.want)
			}
		})
	}
}
