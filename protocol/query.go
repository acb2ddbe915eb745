package protocol

import (
	"encoding/xml"
	"fmt"

	"github.com/arundel/herald/panos"
)

const (
	queryVerb       = "show object registered-ip"
	legacyQueryVerb = "show object registered-address"
)

// Devices older than this only understand the legacy query verb.
var legacyVerbCutoff = panos.MustParse("6.1.0")

// RegisteredIPCommand builds the operational command that lists registered
// addresses. version is the negotiated device version, nil when unknown;
// unknown versions get the current verb. When exactly one address filter is
// given it is pushed down into the command, anything else is filtered
// client-side.
func RegisteredIPCommand(version *panos.Version, ips []string) string {
	cmd := queryVerb
	if version != nil && version.Older(legacyVerbCutoff) {
		cmd = legacyQueryVerb
	}

	if len(ips) == 1 {
		cmd += fmt.Sprintf(" ip %q", ips[0])
	}

	return cmd
}

// RegisteredEntry is one address and its tag members as reported by the
// device.
type RegisteredEntry struct {
	IP   string   `xml:"ip,attr"`
	Tags []string `xml:"tag>member"`
}

type registeredResult struct {
	XMLName xml.Name          `xml:"response"`
	Entries []RegisteredEntry `xml:"result>entry"`
}

// ParseRegisteredAddresses parses the result body of a registered-ip (or
// registered-address) query.
func ParseRegisteredAddresses(body []byte) ([]RegisteredEntry, error) {
	var result registeredResult
	if err := xml.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("protocol: cannot parse registered address result: %w", err)
	}

	return result.Entries, nil
}
