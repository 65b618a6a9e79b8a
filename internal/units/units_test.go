package units

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValid(t *testing.T) {
	t.Parallel()

	assert.True(t, IsValid(Degrees))
	assert.True(t, IsValid(Radians))
	assert.False(t, IsValid("grad"))
	assert.False(t, IsValid(""))
}

func TestConvertAngle(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, math.Pi, ConvertAngle(180, Radians), 1e-12)
	assert.InDelta(t, math.Pi/2, ConvertAngle(90, Radians), 1e-12)
	assert.InDelta(t, 90, ConvertAngle(90, Degrees), 1e-12)
	// Unknown units pass through.
	assert.InDelta(t, 45, ConvertAngle(45, "grad"), 1e-12)
	assert.True(t, math.IsNaN(ConvertAngle(math.NaN(), Radians)))
}

func TestGetValidUnitsString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "deg, rad", GetValidUnitsString())
}
