package rfid

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReaderError_Error(t *testing.T) {
	err := NewConnectionError("Connect", errors.New("dial tcp: refused"))
	assert.Equal(t, "Connect: driver call failed: dial tcp: refused", err.Error())

	err = Errorf(ErrCodeInvalidMask, "", "bad mask %d", 3)
	assert.Equal(t, "bad mask 3", err.Error())
}

func TestReaderError_IsAndUnwrap(t *testing.T) {
	cause := errors.New("rejected")
	err := fmt.Errorf("wrapped: %w", NewSettingsApplyError("SetMode", cause))

	assert.ErrorIs(t, err, ErrSettingsApply)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrConnection)
	assert.Equal(t, ErrCodeSettingsApply, GetErrorCode(err))
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsConnectionError(NewConnectionError("op", nil)))
	assert.True(t, IsNotConnectedError(NewNotConnectedError("op")))
	assert.True(t, IsValidationError(NewNoAntennaEnabledError("op")))
	assert.True(t, IsValidationError(Errorf(ErrCodeInvalidMask, "op", "x")))
	assert.True(t, IsValidationError(Errorf(ErrCodePowerOutOfRange, "op", "x")))
	assert.False(t, IsValidationError(NewConnectionError("op", nil)))
	assert.Equal(t, ErrorCode(0), GetErrorCode(errors.New("plain")))
}

func TestErrorCodeString(t *testing.T) {
	assert.Equal(t, "NO_ANTENNA_ENABLED", ErrCodeNoAntennaEnabled.String())
	assert.Equal(t, "ErrorCode(999)", ErrorCode(999).String())
}

func TestCapabilityCache(t *testing.T) {
	cache := NewCapabilityCache()

	_, ok := cache.Get()
	assert.False(t, ok)
	assert.True(t, cache.FetchedAt().IsZero())

	before := time.Now()
	cache.Set(FeatureSet{ModelName: "R700", AntennaCount: 4})
	got, ok := cache.Get()
	assert.True(t, ok)
	assert.Equal(t, "R700", got.ModelName)
	assert.False(t, cache.FetchedAt().Before(before))

	cache.Set(FeatureSet{ModelName: "R420", AntennaCount: 2})
	got, _ = cache.Get()
	assert.Equal(t, FeatureSet{ModelName: "R420", AntennaCount: 2}, got, "set replaces wholesale")

	cache.Clear()
	_, ok = cache.Get()
	assert.False(t, ok)
}

func TestFeatureSetValidate(t *testing.T) {
	assert.NoError(t, FeatureSet{AntennaCount: 1, MinTxPowerDbm: 10, MaxTxPowerDbm: 30}.Validate())
	assert.Error(t, FeatureSet{AntennaCount: 0}.Validate())
	assert.Error(t, FeatureSet{AntennaCount: 2, MinTxPowerDbm: 31, MaxTxPowerDbm: 30}.Validate())
}

func TestSettingsClone(t *testing.T) {
	orig := &Settings{
		ReaderMode: ReaderModeHybrid,
		Antennas:   []AntennaConfig{{PortNumber: 1, IsEnabled: true}},
		Vendor:     map[string]string{"gpo": "1"},
	}
	clone := orig.Clone()
	assert.Equal(t, orig, clone)

	clone.Antennas[0].IsEnabled = false
	clone.Vendor["gpo"] = "0"
	assert.True(t, orig.Antennas[0].IsEnabled)
	assert.Equal(t, "1", orig.Vendor["gpo"])

	var nilSettings *Settings
	assert.Nil(t, nilSettings.Clone())
}

func TestParseModes(t *testing.T) {
	mode, err := ParseReaderMode("densereaderm4")
	assert.NoError(t, err)
	assert.Equal(t, ReaderModeDenseReaderM4, mode)

	search, err := ParseSearchMode("SingleTargetReset")
	assert.NoError(t, err)
	assert.Equal(t, SearchModeSingleTargetReset, search)

	bank, err := ParseMemoryBank("tid")
	assert.NoError(t, err)
	assert.Equal(t, MemoryBankTid, bank)

	_, err = ParseReaderMode("turbo")
	assert.Error(t, err)
}

func TestPowerPolicyText(t *testing.T) {
	var p PowerPolicy
	assert.NoError(t, p.UnmarshalText([]byte("strict")))
	assert.Equal(t, PowerStrict, p)
	assert.NoError(t, p.UnmarshalText([]byte("")))
	assert.Equal(t, PowerPassThrough, p)
	assert.Error(t, p.UnmarshalText([]byte("clamp")))

	text, err := PowerStrict.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "strict", string(text))
}
