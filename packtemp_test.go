package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"bmu-service/bmu"
)

func TestClassifyPackTemperature(t *testing.T) {
	at := time.Date(2022, 4, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		reading  bmu.Reading
		expected PackTemperatureState
	}{
		{"never reported", bmu.Reading{}, PackTemperatureStateUnknown},
		{"freezing", bmu.Reading{Value: 10, At: at}, PackTemperatureStateCold},
		{"just below min", bmu.Reading{Value: 19, At: at}, PackTemperatureStateCold},
		{"at min", bmu.Reading{Value: 20, At: at}, PackTemperatureStateIdeal},
		{"room", bmu.Reading{Value: 250, At: at}, PackTemperatureStateIdeal},
		{"at max", bmu.Reading{Value: 750, At: at}, PackTemperatureStateIdeal},
		{"above max", bmu.Reading{Value: 751, At: at}, PackTemperatureStateHot},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ClassifyPackTemperature(tt.reading), tt.name)
	}
}

func TestPackTemperatureStateString(t *testing.T) {
	assert.Equal(t, "unknown", PackTemperatureStateUnknown.String())
	assert.Equal(t, "cold", PackTemperatureStateCold.String())
	assert.Equal(t, "ideal", PackTemperatureStateIdeal.String())
	assert.Equal(t, "hot", PackTemperatureStateHot.String())
}
