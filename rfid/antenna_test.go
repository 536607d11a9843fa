package rfid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAntennaConfigs(t *testing.T) {
	current := []AntennaConfig{
		{PortNumber: 1, TxPowerInDbm: 22.5, IsEnabled: true, MaxTxPower: true, RxSensitivityInDbm: -70},
		{PortNumber: 2, TxPowerInDbm: 18, IsEnabled: true},
	}

	configs, err := BuildAntennaConfigs(AntennaMask{false, true, true, false}, current)
	require.NoError(t, err)
	require.Len(t, configs, 4)

	for i, c := range configs {
		port := uint16(i + 1)
		assert.Equal(t, port, c.PortNumber)
		assert.Equal(t, PortName(port), c.PortName)
		assert.Equal(t, 22.5, c.TxPowerInDbm, "power comes from the first current antenna")
		assert.Equal(t, 0.0, c.RxSensitivityInDbm)
		assert.True(t, c.MaxRxSensitivity)
		assert.False(t, c.MaxTxPower)
	}
	assert.False(t, configs[0].IsEnabled)
	assert.True(t, configs[1].IsEnabled)
	assert.True(t, configs[2].IsEnabled)
	assert.False(t, configs[3].IsEnabled)
}

func TestBuildAntennaConfigs_EmptyCurrent(t *testing.T) {
	configs, err := BuildAntennaConfigs(AntennaMask{true}, nil)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, 0.0, configs[0].TxPowerInDbm)
}

func TestBuildAntennaConfigs_AllFalse(t *testing.T) {
	_, err := BuildAntennaConfigs(AntennaMask{false, false}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoAntennaEnabled)
}

func TestMaskFromEnabled(t *testing.T) {
	tests := []struct {
		name    string
		count   int
		enabled []uint16
		want    AntennaMask
	}{
		{"none enabled", 3, nil, AntennaMask{false, false, false}},
		{"partial", 4, []uint16{2, 4}, AntennaMask{false, true, false, true}},
		{"all", 2, []uint16{1, 2}, AntennaMask{true, true}},
		{"out of range ignored", 2, []uint16{0, 2, 3, 9}, AntennaMask{false, true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskFromEnabled(tt.count, tt.enabled))
		})
	}
}

func TestParseAntennaMask(t *testing.T) {
	tests := []struct {
		in      string
		want    AntennaMask
		wantErr bool
	}{
		{in: "0110", want: AntennaMask{false, true, true, false}},
		{in: "1,0", want: AntennaMask{true, false}},
		{in: "true, false, true", want: AntennaMask{true, false, true}},
		{in: "true", want: AntennaMask{true}},
		{in: "1", want: AntennaMask{true}},
		{in: "", wantErr: true},
		{in: "01x", wantErr: true},
		{in: "yes,no", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAntennaMask(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAntennaMaskHelpers(t *testing.T) {
	mask := AntennaMask{false, true, true}
	assert.True(t, mask.Any())
	assert.Equal(t, []uint16{2, 3}, mask.Ports())
	assert.Equal(t, "011", mask.String())
	assert.False(t, AntennaMask{false}.Any())
}

func TestValidateMask(t *testing.T) {
	err := validateMask("op", AntennaMask{false, false}, 3)
	assert.ErrorIs(t, err, ErrNoAntennaEnabled, "all-false is reported before a length mismatch")

	err = validateMask("op", AntennaMask{true}, 2)
	assert.ErrorIs(t, err, ErrInvalidMask)

	assert.NoError(t, validateMask("op", AntennaMask{true, false}, 2))
}
