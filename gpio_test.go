package main

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSysfs lays out a pre-exported GPIO line under a temp dir.
func fakeSysfs(t *testing.T, numbers ...int) string {
	t.Helper()
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "export"), nil, 0644))
	for _, n := range numbers {
		dir := filepath.Join(base, "gpio"+strconv.Itoa(n))
		require.NoError(t, os.Mkdir(dir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "direction"), []byte("in"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "value"), []byte("0"), 0644))
	}
	return base
}

func TestSysfsOutputPin(t *testing.T) {
	base := fakeSysfs(t, 7)

	pin, err := newOutputPin(base, 7)
	require.NoError(t, err)

	direction, err := os.ReadFile(filepath.Join(base, "gpio7", "direction"))
	require.NoError(t, err)
	assert.Equal(t, "out", string(direction))

	require.NoError(t, pin.Set(true))
	value, err := os.ReadFile(filepath.Join(base, "gpio7", "value"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(value))

	require.NoError(t, pin.Set(false))
	value, err = os.ReadFile(filepath.Join(base, "gpio7", "value"))
	require.NoError(t, err)
	assert.Equal(t, "0", string(value))
}

func TestSysfsInputPin(t *testing.T) {
	base := fakeSysfs(t, 15)

	pin, err := newInputPin(base, 15)
	require.NoError(t, err)

	high, err := pin.Get()
	require.NoError(t, err)
	assert.False(t, high)

	require.NoError(t, os.WriteFile(filepath.Join(base, "gpio15", "value"), []byte("1\n"), 0644))
	high, err = pin.Get()
	require.NoError(t, err)
	assert.True(t, high)
}

func TestSetupPinsMissingRelayFails(t *testing.T) {
	// Only the precharge relay line exists; exporting the discharge line
	// must fail and abort setup.
	base := fakeSysfs(t, gpioPrechargeEnable)
	logger := NewLeveledLogger(log.New(os.Stderr, "", 0), LogLevelNone)

	_, err := setupPins(logger, base)
	assert.Error(t, err)
}

func TestSetupPinsToleratesMissingLEDs(t *testing.T) {
	base := fakeSysfs(t,
		gpioPrechargeEnable, gpioDischargeDisable, gpioHVDCEnable,
		gpioSolarEnable, gpioPrechargeDetect)
	logger := NewLeveledLogger(log.New(os.Stderr, "", 0), LogLevelNone)

	pins, err := setupPins(logger, base)
	require.NoError(t, err)

	assert.NotNil(t, pins.PrechargeEnable)
	assert.NotNil(t, pins.PrechargeDetect)
	assert.Nil(t, pins.SafeLED)
}
