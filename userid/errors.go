package userid

import "strings"

// The device reports no-op mutations as errors with these trailing
// messages: re-registering a tag that is already present, or unregistering
// one that is not. Callers rarely care, so the client can swallow them.
//
// Matching on message text is brittle but it is all the API gives us, so
// the table lives here, in one place, behind IsBenignDuplicate.
var benignSuffixes = []string{
	"already exists, ignore",
	"does not exist, ignore unreg",
}

// IsBenignDuplicate reports whether err is a device failure that only
// signals a duplicate registration or the removal of an absent tag.
func IsBenignDuplicate(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()
	for _, suffix := range benignSuffixes {
		if strings.HasSuffix(msg, suffix) {
			return true
		}
	}

	return false
}
