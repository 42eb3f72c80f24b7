package geoip

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCountryCode(t *testing.T) {
	assert.Equal(t, "US", NormalizeCountryCode("US"))
	assert.Equal(t, "US", NormalizeCountryCode(" USA "))
	assert.Equal(t, "", NormalizeCountryCode(""))
	assert.Equal(t, "", NormalizeCountryCode("XX"))
}

func TestCountryName(t *testing.T) {
	assert.Equal(t, "Germany", CountryName("DE"))
	assert.Equal(t, "", CountryName("not-a-country"))
}

func TestResolveCountryPrefersHint(t *testing.T) {
	assert.Equal(t, "FR", ResolveCountry("FRA", "8.8.8.8"))
}
