// Package factory loads and validates the per-slot carrier configuration:
// the static iwlan.* IKE parameters of IwlanConfigs.java plus the embedded
// error-policy JSON document. The file is read once by Load; nothing in
// this module reloads it when CARRIER_CONFIG_CHANGED is published.
package factory

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Closed enumerations from IwlanConfigs.java, validated on load.
const (
	AuthMethodEapOnly = 0
	AuthMethodCert    = 1

	EpdgAddressStatic      = 0
	EpdgAddressPLMN        = 1
	EpdgAddressPCO         = 2
	EpdgAddressCellularLoc = 3

	DhGroupNone         = 0
	DhGroup1024BitModp  = 2
	DhGroup1536BitModp  = 5
	DhGroup2048BitModp  = 14
	DhGroup3072BitModp  = 15
	DhGroup4096BitModp  = 16
	EncryptionAlgAesCbc = 12
	EncryptionAlgAesCtr = 13

	IntegrityAlgNone          = 0
	IntegrityAlgHmacSha1_96   = 2
	IntegrityAlgAesXcbc96     = 5
	IntegrityAlgHmacSha2_256  = 12
	IntegrityAlgHmacSha2_384  = 13
	IntegrityAlgHmacSha2_512  = 14
	PrfHmacSha1               = 2
	PrfAes128Xcbc             = 4
	PrfSha2_256               = 5
	PrfSha2_384               = 6
	PrfSha2_512               = 7
	IdTypeFqdn                = 2
	IdTypeRfc822Addr          = 3
	IdTypeKeyID               = 11
)

var validDhGroups = map[int]bool{DhGroupNone: true, DhGroup1024BitModp: true, DhGroup1536BitModp: true, DhGroup2048BitModp: true, DhGroup3072BitModp: true, DhGroup4096BitModp: true}
var validEncryptionAlgs = map[int]bool{EncryptionAlgAesCbc: true, EncryptionAlgAesCtr: true}
var validIntegrityAlgs = map[int]bool{IntegrityAlgNone: true, IntegrityAlgHmacSha1_96: true, IntegrityAlgAesXcbc96: true, IntegrityAlgHmacSha2_256: true, IntegrityAlgHmacSha2_384: true, IntegrityAlgHmacSha2_512: true}
var validPrfAlgs = map[int]bool{PrfHmacSha1: true, PrfAes128Xcbc: true, PrfSha2_256: true, PrfSha2_384: true, PrfSha2_512: true}
var validEpdgAddressTypes = map[int]bool{EpdgAddressStatic: true, EpdgAddressPLMN: true, EpdgAddressPCO: true, EpdgAddressCellularLoc: true}

// SlotConfig is one SIM slot's carrier configuration document.
type SlotConfig struct {
	ChildSaRekeySoftTimerSec int      `yaml:"childSaRekeySoftTimerSec"`
	ChildSaRekeyHardTimerSec int      `yaml:"childSaRekeyHardTimerSec"`
	IkeRekeySoftTimerSec     int      `yaml:"ikeRekeySoftTimerSec"`
	IkeRekeyHardTimerSec     int      `yaml:"ikeRekeyHardTimerSec"`
	RetransmitTimerMsec      []int    `yaml:"retransmitTimerMsec"`
	DpdTimerSec              int      `yaml:"dpdTimerSec"`
	MaxRetries               int      `yaml:"maxRetries"`
	DiffieHellmanGroups      []int    `yaml:"diffieHellmanGroups"`
	IkeEncryptionAlgorithms  []int    `yaml:"ikeEncryptionAlgorithms"`
	ChildEncryptionAlgorithms []int   `yaml:"childEncryptionAlgorithms"`
	IntegrityAlgorithms      []int    `yaml:"integrityAlgorithms"`
	PrfAlgorithms            []int    `yaml:"prfAlgorithms"`
	EpdgAuthenticationMethod int      `yaml:"epdgAuthenticationMethod"`
	EpdgStaticAddress        string   `yaml:"epdgStaticAddress"`
	EpdgStaticAddressRoaming string   `yaml:"epdgStaticAddressRoaming"`
	NattKeepAliveTimerSec    int      `yaml:"nattKeepAliveTimerSec"`
	EpdgAddressPriority      []int    `yaml:"epdgAddressPriority"`
	MccMncs                  []string `yaml:"mccMncs"`
	AddWifiMacAddrToNai      bool     `yaml:"addWifiMacAddrToNai"`
	IkeLocalIDType           int      `yaml:"ikeLocalIdType"`
	IkeRemoteIDType          int      `yaml:"ikeRemoteIdType"`
	AddKeToChildSessionRekey bool     `yaml:"addKeToChildSessionRekey"`
	EpdgPcoIDIPv6            int      `yaml:"epdgPcoIdIpv6"`
	EpdgPcoIDIPv4            int      `yaml:"epdgPcoIdIpv4"`

	// ErrorPolicyConfig is the raw error-policy JSON document consumed by
	// pkg/errorpolicy at runtime, kept alongside the static keys so one
	// YAML file carries both. It is handed to the engine once at startup
	// and is not reloaded on CARRIER_CONFIG_CHANGED.
	ErrorPolicyConfig string `yaml:"errorPolicyConfig"`
}

// Config is the top-level document: one SlotConfig per SIM slot.
type Config struct {
	Slots map[int]*SlotConfig `yaml:"slots"`
}

// defaults mirrors IwlanConfigs.getDefaults().
func defaults() *SlotConfig {
	return &SlotConfig{
		IkeRekeySoftTimerSec:      7200,
		IkeRekeyHardTimerSec:      14400,
		ChildSaRekeySoftTimerSec:  3600,
		ChildSaRekeyHardTimerSec:  7200,
		RetransmitTimerMsec:       []int{500, 1000, 2000, 4000, 8000},
		DpdTimerSec:               120,
		MaxRetries:                3,
		DiffieHellmanGroups:       []int{DhGroup1024BitModp, DhGroup1536BitModp, DhGroup2048BitModp},
		IkeEncryptionAlgorithms:   []int{EncryptionAlgAesCbc},
		ChildEncryptionAlgorithms: []int{EncryptionAlgAesCbc},
		IntegrityAlgorithms:       []int{IntegrityAlgAesXcbc96, IntegrityAlgHmacSha1_96, IntegrityAlgHmacSha2_256, IntegrityAlgHmacSha2_384, IntegrityAlgHmacSha2_512},
		PrfAlgorithms:             []int{PrfHmacSha1, PrfAes128Xcbc, PrfSha2_256, PrfSha2_384, PrfSha2_512},
		EpdgAuthenticationMethod:  AuthMethodEapOnly,
		NattKeepAliveTimerSec:     20,
		EpdgAddressPriority:       []int{EpdgAddressPLMN, EpdgAddressStatic},
		IkeLocalIDType:            IdTypeRfc822Addr,
		IkeRemoteIDType:           IdTypeFqdn,
	}
}

// Load reads a YAML document from path and validates every slot, filling
// in IwlanConfigs.java's documented defaults for anything omitted or
// invalid rather than failing the load outright.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "factory: read config")
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrap(err, "factory: parse config")
	}
	for slot, sc := range cfg.Slots {
		cfg.Slots[slot] = validate(sc)
	}
	return cfg, nil
}

// validate fills each unset or out-of-range field from defaults(), per
// slot, matching IwlanConfigs's "not set or <= 0" fallback rule.
func validate(sc *SlotConfig) *SlotConfig {
	if sc == nil {
		sc = &SlotConfig{}
	}
	d := defaults()

	if sc.IkeRekeySoftTimerSec <= 0 {
		sc.IkeRekeySoftTimerSec = d.IkeRekeySoftTimerSec
	}
	if sc.IkeRekeyHardTimerSec <= 0 {
		sc.IkeRekeyHardTimerSec = d.IkeRekeyHardTimerSec
	}
	if sc.ChildSaRekeySoftTimerSec <= 0 {
		sc.ChildSaRekeySoftTimerSec = d.ChildSaRekeySoftTimerSec
	}
	if sc.ChildSaRekeyHardTimerSec <= 0 {
		sc.ChildSaRekeyHardTimerSec = d.ChildSaRekeyHardTimerSec
	}
	if len(sc.RetransmitTimerMsec) == 0 {
		sc.RetransmitTimerMsec = d.RetransmitTimerMsec
	}
	if sc.DpdTimerSec <= 0 {
		sc.DpdTimerSec = d.DpdTimerSec
	}
	if sc.MaxRetries <= 0 {
		sc.MaxRetries = d.MaxRetries
	}
	if !allValid(sc.DiffieHellmanGroups, validDhGroups) {
		sc.DiffieHellmanGroups = d.DiffieHellmanGroups
	}
	if !allValid(sc.IkeEncryptionAlgorithms, validEncryptionAlgs) {
		sc.IkeEncryptionAlgorithms = d.IkeEncryptionAlgorithms
	}
	if !allValid(sc.ChildEncryptionAlgorithms, validEncryptionAlgs) {
		sc.ChildEncryptionAlgorithms = d.ChildEncryptionAlgorithms
	}
	if !allValid(sc.IntegrityAlgorithms, validIntegrityAlgs) {
		sc.IntegrityAlgorithms = d.IntegrityAlgorithms
	}
	if !allValid(sc.PrfAlgorithms, validPrfAlgs) {
		sc.PrfAlgorithms = d.PrfAlgorithms
	}
	if sc.EpdgAuthenticationMethod != AuthMethodEapOnly && sc.EpdgAuthenticationMethod != AuthMethodCert {
		sc.EpdgAuthenticationMethod = d.EpdgAuthenticationMethod
	}
	if sc.NattKeepAliveTimerSec <= 0 {
		sc.NattKeepAliveTimerSec = d.NattKeepAliveTimerSec
	}
	if !allValid(sc.EpdgAddressPriority, validEpdgAddressTypes) || len(sc.EpdgAddressPriority) == 0 {
		sc.EpdgAddressPriority = d.EpdgAddressPriority
	}
	if sc.IkeLocalIDType == 0 {
		sc.IkeLocalIDType = d.IkeLocalIDType
	}
	if sc.IkeRemoteIDType == 0 {
		sc.IkeRemoteIDType = d.IkeRemoteIDType
	}
	return sc
}

func allValid(vals []int, set map[int]bool) bool {
	if len(vals) == 0 {
		return false
	}
	for _, v := range vals {
		if !set[v] {
			return false
		}
	}
	return true
}

// Dumps renders the config back to YAML, mirroring the pack's config
// dump-for-debugging convention.
func (c *Config) Dumps() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", errors.Wrap(err, "factory: dump config")
	}
	return string(out), nil
}
