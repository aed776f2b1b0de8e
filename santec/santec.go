// Package santec provides an adapter to Santec SLM-200 spatial light
// modulators over their RS-232 interface.
package santec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/openflim/scanhub/comm"
	"github.com/tarm/serial"
)

// wavelength bounds of the SLM-200 phase calibration, nanometers
const (
	MinWavelengthNm = 400
	MaxWavelengthNm = 1600
)

// MaxGreyLevel is the ceiling of the 10-bit phase grey scale.
const MaxGreyLevel = 1023

// DeviceError is a numbered error returned by the modulator.
type DeviceError int

var errorText = map[int]string{
	1: "command not recognized",
	2: "parameter out of range",
	3: "memory slot empty",
	4: "device busy",
}

// Error satisfies the error interface.
func (e DeviceError) Error() string {
	if s, ok := errorText[int(e)]; ok {
		return fmt.Sprintf("santec: ER,%d - %s", int(e), s)
	}
	return fmt.Sprintf("santec: ER,%d - unknown error code", int(e))
}

// parseResponse converts an "OK" / "ER,<code>" reply into an error,
// returning any payload preceding the status.
func parseResponse(resp []byte) (string, error) {
	s := strings.TrimSpace(string(resp))
	if s == "OK" {
		return "", nil
	}
	if strings.HasPrefix(s, "ER,") {
		code, err := strconv.Atoi(s[3:])
		if err != nil {
			return "", fmt.Errorf("santec: malformed error reply %q", s)
		}
		return "", DeviceError(code)
	}
	// query replies carry the value directly
	return s, nil
}

// SLM represents a spatial light modulator.
type SLM struct {
	comm.RemoteDevice
}

// NewSLM returns an SLM on the given serial port.
func NewSLM(port string) *SLM {
	rd := comm.NewRemoteDevice(port, true)
	rd.SerialConfig = &serial.Config{Name: port, Baud: 9600}
	return &SLM{RemoteDevice: rd}
}

func (s *SLM) sendRecvParsed(cmd string) (string, error) {
	err := s.Open()
	if err != nil {
		return "", err
	}
	defer s.Close()
	resp, err := s.SendRecv([]byte(cmd))
	if err != nil {
		return "", err
	}
	return parseResponse(resp)
}

// SetWavelength sets the phase calibration wavelength in nanometers.
func (s *SLM) SetWavelength(nm float64) error {
	if nm < MinWavelengthNm || nm > MaxWavelengthNm {
		return fmt.Errorf("santec: wavelength %g nm outside [%d, %d]", nm, MinWavelengthNm, MaxWavelengthNm)
	}
	_, err := s.sendRecvParsed(fmt.Sprintf("WAV,%0.1f", nm))
	return err
}

// GetWavelength reads back the phase calibration wavelength.
func (s *SLM) GetWavelength() (float64, error) {
	resp, err := s.sendRecvParsed("WAV?")
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(resp, 64)
}

// SetGreyLevel writes a uniform phase grey level across the panel.
func (s *SLM) SetGreyLevel(level int) error {
	if level < 0 || level > MaxGreyLevel {
		return fmt.Errorf("santec: grey level %d outside [0, %d]", level, MaxGreyLevel)
	}
	_, err := s.sendRecvParsed(fmt.Sprintf("GRY,%d", level))
	return err
}

// DisplayMemory shows a pattern previously stored in one of the
// modulator's memory slots.
func (s *SLM) DisplayMemory(slot int) error {
	if slot < 1 || slot > 128 {
		return fmt.Errorf("santec: memory slot %d outside [1, 128]", slot)
	}
	_, err := s.sendRecvParsed(fmt.Sprintf("DIS,%d", slot))
	return err
}

// ID returns the identification string of the modulator.
func (s *SLM) ID() (string, error) {
	return s.sendRecvParsed("*IDN?")
}
