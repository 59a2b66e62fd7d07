package media

import "testing"

func TestCapabilityString(t *testing.T) {
	tests := []struct {
		c    Capability
		want string
	}{
		{CapAudioInput, "audio_input"},
		{CapAudioOutput, "audio_output"},
		{CapVideoInput, "video_input"},
		{Capability(0), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.c.String(); got != tt.want {
			t.Errorf("Capability(%d).String() = %q, want %q", int(tt.c), got, tt.want)
		}
	}
}
