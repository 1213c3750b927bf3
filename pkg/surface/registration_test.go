package surface

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestInfoRejectsNonPSDomain(t *testing.T) {
	r := NewRegistrationSurface()
	_, err := r.RequestInfo(DomainCS)
	assert.ErrorIs(t, err, ErrUnsupportedDomain)
}

func TestRequestInfoHomeWhenWifiConnectedAndSubscriptionActive(t *testing.T) {
	r := NewRegistrationSurface()
	r.SetWifiConnected(true)
	r.SetSubscriptionActive(true)

	info, err := r.RequestInfo(DomainPS)
	assert.NoError(t, err)
	assert.Equal(t, "IWLAN", info.AccessNetwork)
	assert.Equal(t, "WLAN", info.Transport)
	assert.False(t, info.EmergencyOnly)
	assert.Equal(t, RegistrationHome, info.RegistrationState)
}

func TestRequestInfoSearchingWhenWifiDisconnected(t *testing.T) {
	r := NewRegistrationSurface()
	info, err := r.RequestInfo(DomainPS)
	assert.NoError(t, err)
	assert.Equal(t, RegistrationNotRegisteredSearching, info.RegistrationState)
}

func TestRequestInfoEmergencyOnlyWhenSubscriptionInactive(t *testing.T) {
	r := NewRegistrationSurface()
	info, err := r.RequestInfo(DomainPS)
	assert.NoError(t, err)
	assert.True(t, info.EmergencyOnly)
}

func TestSetWifiConnectedFiresOnChanged(t *testing.T) {
	r := NewRegistrationSurface()
	var got *RegistrationInfo
	r.OnChanged = func(info RegistrationInfo) {
		got = &info
	}
	r.SetWifiConnected(true)

	assert.NotNil(t, got)
	assert.Equal(t, RegistrationHome, got.RegistrationState)
}

func TestSetWifiConnectedNoOpDoesNotFire(t *testing.T) {
	r := NewRegistrationSurface()
	fired := false
	r.OnChanged = func(RegistrationInfo) { fired = true }
	r.SetWifiConnected(false) // already false
	assert.False(t, fired)
}
