package rfid

import (
	"fmt"
	"strconv"
	"strings"
)

// AntennaMask enables antenna ports by index: entry i controls port i+1.
type AntennaMask []bool

// Any reports whether at least one antenna is enabled.
func (m AntennaMask) Any() bool {
	for _, enabled := range m {
		if enabled {
			return true
		}
	}
	return false
}

// Ports returns the port numbers enabled by the mask.
func (m AntennaMask) Ports() []uint16 {
	var ports []uint16
	for i, enabled := range m {
		if enabled {
			ports = append(ports, uint16(i+1))
		}
	}
	return ports
}

// String renders the mask as a compact run of 1s and 0s, port 1 first.
func (m AntennaMask) String() string {
	var sb strings.Builder
	for _, enabled := range m {
		if enabled {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// ParseAntennaMask accepts "0110", "0,1,1,0" or "false,true,true,false".
func ParseAntennaMask(s string) (AntennaMask, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty antenna mask")
	}

	var fields []string
	switch {
	case strings.ContainsAny(s, ", "):
		fields = strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	case strings.Trim(s, "01") == "":
		fields = strings.Split(s, "")
	default:
		fields = []string{s}
	}

	mask := make(AntennaMask, 0, len(fields))
	for _, f := range fields {
		enabled, err := strconv.ParseBool(f)
		if err != nil {
			return nil, fmt.Errorf("invalid antenna mask entry %q", f)
		}
		mask = append(mask, enabled)
	}
	return mask, nil
}

// PortName is the display name the reader uses for a port.
func PortName(port uint16) string {
	return "Antenna Port " + strconv.Itoa(int(port))
}

// BuildAntennaConfigs produces the complete antenna list for mask. All ports
// keep the power of the first currently configured antenna, since this layer
// treats power as uniform across ports.
func BuildAntennaConfigs(mask AntennaMask, current []AntennaConfig) ([]AntennaConfig, error) {
	if !mask.Any() {
		return nil, NewNoAntennaEnabledError("BuildAntennaConfigs")
	}

	var power float64
	if len(current) > 0 {
		power = current[0].TxPowerInDbm
	}

	configs := make([]AntennaConfig, len(mask))
	for i, enabled := range mask {
		port := uint16(i + 1)
		configs[i] = AntennaConfig{
			PortNumber:         port,
			PortName:           PortName(port),
			IsEnabled:          enabled,
			TxPowerInDbm:       power,
			RxSensitivityInDbm: 0.0,
			MaxRxSensitivity:   true,
			MaxTxPower:         false,
		}
	}
	return configs, nil
}

// MaskFromEnabled builds a mask of antennaCount entries with true at every
// enabled port. Ports outside 1..antennaCount are ignored.
func MaskFromEnabled(antennaCount int, enabledPorts []uint16) AntennaMask {
	mask := make(AntennaMask, antennaCount)
	for _, port := range enabledPorts {
		if port >= 1 && int(port) <= antennaCount {
			mask[port-1] = true
		}
	}
	return mask
}

// validateMask runs the local checks done before any driver call.
func validateMask(op string, mask AntennaMask, antennaCount int) error {
	if !mask.Any() {
		return NewNoAntennaEnabledError(op)
	}
	if len(mask) != antennaCount {
		return Errorf(ErrCodeInvalidMask, op, "mask has %d entries, reader has %d antennas", len(mask), antennaCount)
	}
	return nil
}
