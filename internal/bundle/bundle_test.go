package bundle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCarriesType(t *testing.T) {
	b := New(TypePositionUpdate)
	assert.Equal(t, TypePositionUpdate, b.Type())

	b = New(TypeSatellitesUpdate)
	assert.Equal(t, "SATELLITES_UPDATE", b[KeyType])
}

func TestSetFloatFormat(t *testing.T) {
	b := New(TypePositionUpdate)
	b.SetFloat("latitude", 38.7169)
	b.SetFloat("longitude", -9.1399)
	b.SetFloat("altitude", 0)

	assert.Equal(t, "38.716900", b["latitude"])
	assert.Equal(t, "-9.139900", b["longitude"])
	assert.Equal(t, "0.000000", b["altitude"])
}

func TestSetInt(t *testing.T) {
	b := New(TypeSatellitesUpdate)
	b.SetInt("active", 7)
	b.SetInt("inview", 11)

	assert.Equal(t, "7", b["active"])
	assert.Equal(t, "11", b["inview"])
}

func TestSetOverwrites(t *testing.T) {
	b := New(TypePositionUpdate)
	b.Set("valid", "false")
	b.Set("valid", "true")
	assert.Equal(t, "true", b["valid"])
	assert.Len(t, b, 2)
}
