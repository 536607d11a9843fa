package rfid

import (
	"fmt"
	"log/slog"
	"strings"
)

// PowerPolicy decides what the session does with a transmit power outside
// the range advertised by the reader. Values are never clamped locally.
type PowerPolicy int

const (
	// PowerPassThrough forwards the value and lets the reader reject or clamp it.
	PowerPassThrough PowerPolicy = iota
	// PowerStrict rejects the value before any driver call.
	PowerStrict
)

func (p PowerPolicy) String() string {
	switch p {
	case PowerPassThrough:
		return "passthrough"
	case PowerStrict:
		return "strict"
	default:
		return fmt.Sprintf("PowerPolicy(%d)", int(p))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p PowerPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PowerPolicy) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "passthrough", "pass-through":
		*p = PowerPassThrough
	case "strict":
		*p = PowerStrict
	default:
		return fmt.Errorf("unknown power policy %q", string(text))
	}
	return nil
}

// checkTxPower applies policy to dbm against the cached feature set. Without
// a feature set there is nothing to check against and the value passes.
func checkTxPower(policy PowerPolicy, features FeatureSet, known bool, dbm float64, logger *slog.Logger) error {
	if !known || features.PowerInRange(dbm) {
		return nil
	}
	if policy == PowerStrict {
		return Errorf(ErrCodePowerOutOfRange, "SetTxPower",
			"%.2f dBm outside reader range [%.2f, %.2f]", dbm, features.MinTxPowerDbm, features.MaxTxPowerDbm)
	}
	logger.Warn("tx power outside reader range, forwarding to reader",
		"dbm", dbm,
		"min_dbm", features.MinTxPowerDbm,
		"max_dbm", features.MaxTxPowerDbm)
	return nil
}

// setUniformTxPower writes dbm to every antenna in s.
func setUniformTxPower(s *Settings, dbm float64) {
	for i := range s.Antennas {
		s.Antennas[i].TxPowerInDbm = dbm
	}
}

// txPowers lists the power of each antenna in s, in list order.
func txPowers(s *Settings) []float64 {
	powers := make([]float64, 0, len(s.Antennas))
	for _, a := range s.Antennas {
		powers = append(powers, a.TxPowerInDbm)
	}
	return powers
}
