package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriteVersion(t *testing.T) {
	tests := []struct {
		name  string
		short bool
		want  []string
	}{
		{"short", true, []string{Version + "\n"}},
		{"full", false, []string{"musplay " + Version, "runtime:", ".flac", ".opk"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			writeVersion(&buf, tt.short)
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("output %q missing %q", buf.String(), w)
				}
			}
			if tt.short && strings.Count(buf.String(), "\n") != 1 {
				t.Errorf("short output %q has more than one line", buf.String())
			}
		})
	}
}
