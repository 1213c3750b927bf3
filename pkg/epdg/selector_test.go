package epdg

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	iwlanctx "github.com/neelchauhan/platform-packages-services-Iwlan/pkg/context"
	"github.com/neelchauhan/platform-packages-services-Iwlan/pkg/factory"
)

func TestResolveStaticLiteralIP(t *testing.T) {
	cfg := &factory.SlotConfig{
		EpdgAddressPriority: []int{factory.EpdgAddressStatic},
		EpdgStaticAddress:   "203.0.113.5",
	}
	sel := NewSelector(cfg)

	eps, err := sel.Resolve(context.Background(), Request{ProtocolFilter: iwlanctx.ProtocolIPv4v6})
	assert.NoError(t, err)
	assert.Len(t, eps, 1)
	assert.Equal(t, iwlanctx.SourceStatic, eps[0].Source)
	assert.True(t, eps[0].Address.Equal(net.ParseIP("203.0.113.5")))
}

func TestResolvePCOYieldsDirectly(t *testing.T) {
	cfg := &factory.SlotConfig{
		EpdgAddressPriority: []int{factory.EpdgAddressPCO},
	}
	sel := NewSelector(cfg)

	eps, err := sel.Resolve(context.Background(), Request{
		ProtocolFilter: iwlanctx.ProtocolIPv4v6,
		PCOAddresses:   []net.IP{net.ParseIP("198.51.100.1"), net.ParseIP("2001:db8::1")},
	})
	assert.NoError(t, err)
	assert.Len(t, eps, 2)
}

func TestResolveDeduplicatesAcrossSources(t *testing.T) {
	cfg := &factory.SlotConfig{
		EpdgAddressPriority: []int{factory.EpdgAddressPCO, factory.EpdgAddressStatic},
		EpdgStaticAddress:   "198.51.100.1",
	}
	sel := NewSelector(cfg)

	eps, err := sel.Resolve(context.Background(), Request{
		ProtocolFilter: iwlanctx.ProtocolIPv4v6,
		PCOAddresses:   []net.IP{net.ParseIP("198.51.100.1")},
	})
	assert.NoError(t, err)
	assert.Len(t, eps, 1)
	assert.Equal(t, iwlanctx.SourcePCO, eps[0].Source)
}

func TestResolveFiltersByProtocol(t *testing.T) {
	cfg := &factory.SlotConfig{
		EpdgAddressPriority: []int{factory.EpdgAddressPCO},
	}
	sel := NewSelector(cfg)

	eps, err := sel.Resolve(context.Background(), Request{
		ProtocolFilter: iwlanctx.ProtocolIPv4,
		PCOAddresses:   []net.IP{net.ParseIP("198.51.100.1"), net.ParseIP("2001:db8::1")},
	})
	assert.NoError(t, err)
	assert.Len(t, eps, 1)
	assert.Equal(t, iwlanctx.ProtocolIPv4, eps[0].Family)
}

func TestResolveAllSourcesEmptyFails(t *testing.T) {
	cfg := &factory.SlotConfig{
		EpdgAddressPriority: []int{factory.EpdgAddressPCO, factory.EpdgAddressStatic},
	}
	sel := NewSelector(cfg)

	_, err := sel.Resolve(context.Background(), Request{ProtocolFilter: iwlanctx.ProtocolIPv4v6})
	assert.ErrorIs(t, err, ErrServerSelectionFailed)
}

func TestSplitMccMnc(t *testing.T) {
	mcc, mnc, ok := splitMccMnc("310-410")
	assert.True(t, ok)
	assert.Equal(t, "310", mcc)
	assert.Equal(t, "410", mnc)

	_, _, ok = splitMccMnc("malformed")
	assert.False(t, ok)
}
