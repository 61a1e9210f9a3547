package audio

import (
	"testing"

	"github.com/audiolibrelab/audiobridge/internal/config"
)

func TestNewBackend_PulseForEverySetting(t *testing.T) {
	for _, setting := range []string{"", "auto", "pulse", "PULSE"} {
		cfg := config.Default()
		cfg.Audio.Backend = setting
		cfg.Audio.PactlBinary = "/usr/bin/pactl"

		backend := NewBackend(cfg)
		if backend.Type() != BackendTypePulse {
			t.Errorf("%q: expected pulse backend, got %s", setting, backend.Type())
		}
		pulse, ok := backend.(*PulseBackend)
		if !ok {
			t.Fatalf("%q: expected *PulseBackend, got %T", setting, backend)
		}
		if pulse.pactl.binary != "/usr/bin/pactl" {
			t.Errorf("%q: expected configured pactl binary, got %s", setting, pulse.pactl.binary)
		}
	}
}
