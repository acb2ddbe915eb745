package protocol

import "encoding/xml"

const (
	// MessageVersion is the fixed uid-message envelope version.
	MessageVersion = "1.0"

	// TypeUpdate is the only message type Herald produces.
	TypeUpdate = "update"
)

// UIDMessage is one uid-message document.
type UIDMessage struct {
	XMLName xml.Name `xml:"uid-message"`
	Version string   `xml:"version"`
	Type    string   `xml:"type"`
	Payload Payload  `xml:"payload"`
}

// NewUpdate returns an empty update message with the fixed envelope fields
// filled in.
func NewUpdate() *UIDMessage {
	return &UIDMessage{
		Version: MessageVersion,
		Type:    TypeUpdate,
	}
}

// Empty reports whether the payload holds no entries at all.
func (m *UIDMessage) Empty() bool {
	return m.Payload.Empty()
}

// Marshal serializes the message. Sections without entries are omitted; an
// entirely empty message still carries its (empty) payload element.
func (m *UIDMessage) Marshal() ([]byte, error) {
	m.Payload.prune()
	return xml.Marshal(m)
}

// Payload holds the four operation sections. A nil section is absent from
// the serialized document.
type Payload struct {
	Login      *MappingSection `xml:"login,omitempty"`
	Logout     *MappingSection `xml:"logout,omitempty"`
	Register   *TagSection     `xml:"register,omitempty"`
	Unregister *TagSection     `xml:"unregister,omitempty"`
}

func (p *Payload) Empty() bool {
	return p.Login.empty() && p.Logout.empty() &&
		p.Register.empty() && p.Unregister.empty()
}

// prune drops sections that were created but never given an entry, so that
// a section appears in the document only when it holds at least one entry.
func (p *Payload) prune() {
	if p.Login.empty() {
		p.Login = nil
	}
	if p.Logout.empty() {
		p.Logout = nil
	}
	if p.Register.empty() {
		p.Register = nil
	}
	if p.Unregister.empty() {
		p.Unregister = nil
	}
}

// LoginSection returns the login section, creating it on first use.
func (p *Payload) LoginSection() *MappingSection {
	if p.Login == nil {
		p.Login = &MappingSection{}
	}
	return p.Login
}

// LogoutSection returns the logout section, creating it on first use.
func (p *Payload) LogoutSection() *MappingSection {
	if p.Logout == nil {
		p.Logout = &MappingSection{}
	}
	return p.Logout
}

// RegisterSection returns the register section, creating it on first use.
func (p *Payload) RegisterSection() *TagSection {
	if p.Register == nil {
		p.Register = &TagSection{}
	}
	return p.Register
}

// UnregisterSection returns the unregister section, creating it on first use.
func (p *Payload) UnregisterSection() *TagSection {
	if p.Unregister == nil {
		p.Unregister = &TagSection{}
	}
	return p.Unregister
}

// MappingSection is an ordered list of user/address pairs. Entries are not
// deduplicated: each Add appends, even for a pair already present.
type MappingSection struct {
	Entries []MappingEntry `xml:"entry"`
}

type MappingEntry struct {
	Name string `xml:"name,attr"`
	IP   string `xml:"ip,attr"`
}

func (s *MappingSection) Add(name, ip string) {
	s.Entries = append(s.Entries, MappingEntry{Name: name, IP: ip})
}

func (s *MappingSection) empty() bool {
	return s == nil || len(s.Entries) == 0
}

// TagSection holds tag entries keyed by address. There is at most one entry
// per distinct ip.
type TagSection struct {
	Entries []*TagEntry `xml:"entry"`
}

// Entry returns the entry for ip, creating it on first use. Addresses are
// matched by exact string comparison.
func (s *TagSection) Entry(ip string) *TagEntry {
	for _, e := range s.Entries {
		if e.IP == ip {
			return e
		}
	}

	e := &TagEntry{IP: ip}
	s.Entries = append(s.Entries, e)
	return e
}

func (s *TagSection) empty() bool {
	return s == nil || len(s.Entries) == 0
}

// TagEntry is the tag set registered against a single address.
type TagEntry struct {
	IP   string   `xml:"ip,attr"`
	Tags []string `xml:"tag>member"`
}

// Add inserts tag into the entry's tag set. Re-adding a tag that is already
// a member is a no-op; first-insertion order is preserved.
func (e *TagEntry) Add(tag string) {
	for _, t := range e.Tags {
		if t == tag {
			return
		}
	}
	e.Tags = append(e.Tags, tag)
}
