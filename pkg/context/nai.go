package context

import (
	"fmt"
	"strings"
)

// BuildNAI constructs the Network Access Identifier per IwlanHelper.getNai:
// "0<IMSI>@<WIFIMAC>:nai.epc.mnc<MNC>.mcc<MCC>.3gppnetwork.org", with the
// Wi-Fi MAC segment present only when addWifiMac is set (carried from
// factory.Config's KEY_ADD_WIFI_MAC_ADDR_TO_NAI_BOOL).
func BuildNAI(imsi string, mnc string, mcc string, wifiMac string, addWifiMac bool) string {
	var b strings.Builder
	b.WriteByte('0')
	b.WriteString(imsi)
	b.WriteByte('@')
	if addWifiMac {
		b.WriteString(strings.ToUpper(strings.ReplaceAll(wifiMac, ":", "-")))
		b.WriteByte(':')
	}
	b.WriteString("nai.epc.mnc")
	b.WriteString(padMNC(mnc))
	b.WriteString(".mcc")
	b.WriteString(mcc)
	b.WriteString(".3gppnetwork.org")
	return b.String()
}

// padMNC left-pads a 2-digit MNC to 3 digits, matching the 3GPP FQDN rule.
func padMNC(mnc string) string {
	if len(mnc) == 2 {
		return "0" + mnc
	}
	return mnc
}

// BuildPLMNFQDN constructs the ePDG selection FQDN of TS 23.003 §19.4.2.4,
// used by the PLMN source to derive candidate hostnames from the serving
// and equivalent PLMNs.
func BuildPLMNFQDN(mcc string, mnc string) string {
	return strings.ToLower(fmt.Sprintf("epdg.epc.mnc%s.mcc%s.pub.3gppnetwork.org", padMNC(mnc), mcc))
}
