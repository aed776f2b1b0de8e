package santec

import (
	"errors"
	"testing"
)

func TestParseResponse(t *testing.T) {
	cases := []struct {
		descr   string
		resp    string
		payload string
		err     error
	}{
		{"ok", "OK", "", nil},
		{"ok with whitespace", " OK\r", "", nil},
		{"device error", "ER,2", "", DeviceError(2)},
		{"unknown error code", "ER,99", "", DeviceError(99)},
		{"query payload", "532.0", "532.0", nil},
	}
	for _, tc := range cases {
		t.Run(tc.descr, func(t *testing.T) {
			payload, err := parseResponse([]byte(tc.resp))
			if payload != tc.payload {
				t.Errorf("payload, expected %q, got %q", tc.payload, payload)
			}
			if !errors.Is(err, tc.err) {
				t.Errorf("error, expected %v, got %v", tc.err, err)
			}
		})
	}
}

func TestParseResponseMalformed(t *testing.T) {
	if _, err := parseResponse([]byte("ER,huh")); err == nil {
		t.Error("malformed error reply accepted")
	}
}

func TestBoundsChecks(t *testing.T) {
	s := NewSLM("/dev/null")
	if err := s.SetWavelength(200); err == nil {
		t.Error("wavelength below range accepted")
	}
	if err := s.SetGreyLevel(1024); err == nil {
		t.Error("grey level above range accepted")
	}
	if err := s.DisplayMemory(0); err == nil {
		t.Error("memory slot 0 accepted")
	}
}
