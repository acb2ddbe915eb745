package userid

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/arundel/herald/panos"
	"github.com/arundel/herald/protocol"
)

// ErrBatchOpen is returned by operations that would silently discard an
// open batch. Call BatchEnd or BatchAbandon first.
var ErrBatchOpen = errors.New("userid: a batch is already open")

// Transport delivers serialized uid-messages and operational queries to the
// device. The concrete implementation lives in the xmlapi package; anything
// satisfying this interface works, which is what the tests exploit.
type Transport interface {
	// SubmitUpdate sends one serialized uid-message.
	SubmitUpdate(ctx context.Context, doc []byte, vsys string) error

	// RunQuery runs an operational command and returns the raw response
	// body.
	RunQuery(ctx context.Context, cmd string, vsys string) ([]byte, error)

	// Version is the negotiated device version, nil when unknown.
	Version() *panos.Version
}

// Mapping is one user-to-address pair.
type Mapping struct {
	User string
	IP   string
}

// Client builds uid-messages out of login/logout/register/unregister
// operations and hands them to a Transport.
//
// Without an open batch every operation produces and sends its own
// single-operation message. Between BatchStart and BatchEnd operations
// accumulate into one pending message that is sent once, on BatchEnd.
//
// A Client is not safe for concurrent use; callers sharing one across
// goroutines must serialize access themselves.
type Client struct {
	transport Transport

	prefix          string
	vsys            string
	ignoreDupErrors bool

	inBatch bool
	pending *protocol.UIDMessage

	log *zap.Logger
}

type Option func(*Client)

// WithPrefix sets the namespace prefix prepended to every tag name.
func WithPrefix(prefix string) Option {
	return func(c *Client) { c.prefix = prefix }
}

// WithVsys sets the vsys context passed through to the transport.
func WithVsys(vsys string) Option {
	return func(c *Client) { c.vsys = vsys }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// IgnoreDuplicateErrors controls whether benign already-exists /
// does-not-exist failures are swallowed. Defaults to true.
func IgnoreDuplicateErrors(ignore bool) Option {
	return func(c *Client) { c.ignoreDupErrors = ignore }
}

func New(transport Transport, opts ...Option) *Client {
	c := &Client{
		transport:       transport,
		ignoreDupErrors: true,
		log:             zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.log = c.log.Named("userid")

	return c
}

// BatchStart opens a batch: subsequent operations accumulate into one
// pending message instead of being sent immediately. Returns ErrBatchOpen
// if a batch is already open, so unsent work is never discarded silently.
func (c *Client) BatchStart() error {
	if c.inBatch {
		return ErrBatchOpen
	}

	c.inBatch = true
	c.pending = protocol.NewUpdate()
	return nil
}

// BatchAbandon discards an open batch without sending it. A no-op when no
// batch is open.
func (c *Client) BatchAbandon() {
	if c.inBatch {
		c.log.Debug("Abandoning open batch")
	}

	c.inBatch = false
	c.pending = nil
}

// BatchEnd closes the batch and sends the accumulated message, if it holds
// at least one entry. An empty batch makes no network call. Whatever the
// transport outcome, the batch is closed and the pending message cleared.
func (c *Client) BatchEnd(ctx context.Context) error {
	msg := c.pending
	c.inBatch = false
	c.pending = nil

	if msg == nil || msg.Empty() {
		return nil
	}

	return c.submit(ctx, msg)
}

// Login maps a user to an address.
func (c *Client) Login(ctx context.Context, user, ip string) error {
	msg := c.message()
	msg.Payload.LoginSection().Add(user, ip)
	return c.flush(ctx, msg)
}

// Logins maps several users to addresses in one message.
func (c *Client) Logins(ctx context.Context, mappings []Mapping) error {
	msg := c.message()
	login := msg.Payload.LoginSection()
	for _, m := range mappings {
		login.Add(m.User, m.IP)
	}
	return c.flush(ctx, msg)
}

// Logout removes a user-to-address mapping.
func (c *Client) Logout(ctx context.Context, user, ip string) error {
	msg := c.message()
	msg.Payload.LogoutSection().Add(user, ip)
	return c.flush(ctx, msg)
}

// Logouts removes several user-to-address mappings in one message.
func (c *Client) Logouts(ctx context.Context, mappings []Mapping) error {
	msg := c.message()
	logout := msg.Payload.LogoutSection()
	for _, m := range mappings {
		logout.Add(m.User, m.IP)
	}
	return c.flush(ctx, msg)
}

// Register tags an address. Tags are deduplicated, prefixed with the client
// prefix, and unioned into the address's entry; repeating an address within
// one batch merges into the same entry. With no tags left after
// normalization the call is a no-op.
func (c *Client) Register(ctx context.Context, ip string, tags ...string) error {
	return c.tag(ctx, ip, tags, false)
}

// Unregister removes tags from an address. Same normalization and merge
// semantics as Register.
func (c *Client) Unregister(ctx context.Context, ip string, tags ...string) error {
	return c.tag(ctx, ip, tags, true)
}

func (c *Client) tag(ctx context.Context, ip string, tags []string, remove bool) error {
	set := dedupe(tags)
	if len(set) == 0 {
		return nil
	}

	msg := c.message()

	section := msg.Payload.RegisterSection
	if remove {
		section = msg.Payload.UnregisterSection
	}

	entry := section().Entry(ip)
	for _, tag := range set {
		entry.Add(c.prefix + tag)
	}

	return c.flush(ctx, msg)
}

// Send serializes and sends an arbitrary uid-message. This is the escape
// hatch for operations the structured methods do not cover. While a batch
// is open the call is dropped: an arbitrary document cannot be merged into
// the pending message, and the batch must stay internally consistent.
func (c *Client) Send(ctx context.Context, msg *protocol.UIDMessage) error {
	if c.inBatch {
		c.log.Debug("Dropping ad hoc send inside open batch")
		return nil
	}

	return c.submit(ctx, msg)
}

// Filter narrows GetRegistered / ClearRegistered to particular addresses or
// tags. Prefix overrides the client's tag prefix for this call only; nil
// means use the client prefix, a pointer to "" matches tags regardless of
// namespace.
type Filter struct {
	IPs    []string
	Tags   []string
	Prefix *string
}

// GetRegistered queries the device for registered addresses and their tags.
// Results are filtered client-side: addresses outside the filter are
// dropped, only tags carrying the effective prefix (and matching the tag
// filter, when given) are kept, and addresses left without tags disappear
// from the result.
func (c *Client) GetRegistered(ctx context.Context, f Filter) (map[string][]string, error) {
	prefix := c.prefix
	if f.Prefix != nil {
		prefix = *f.Prefix
	}

	ips := dedupe(f.IPs)

	tags := dedupe(f.Tags)
	for i, tag := range tags {
		tags[i] = prefix + tag
	}

	cmd := protocol.RegisteredIPCommand(c.transport.Version(), ips)

	c.log.Debug("Querying registered addresses", zap.String("cmd", cmd))

	body, err := c.transport.RunQuery(ctx, cmd, c.vsys)
	if err != nil {
		return nil, err
	}

	entries, err := protocol.ParseRegisteredAddresses(body)
	if err != nil {
		return nil, err
	}

	addresses := make(map[string][]string)
	for _, entry := range entries {
		if len(ips) > 0 && !contains(ips, entry.IP) {
			continue
		}

		var kept []string
		for _, tag := range entry.Tags {
			if prefix != "" && !strings.HasPrefix(tag, prefix) {
				continue
			}
			if len(tags) > 0 && !contains(tags, tag) {
				continue
			}
			kept = append(kept, tag)
		}

		if len(kept) > 0 {
			addresses[entry.IP] = kept
		}
	}

	return addresses, nil
}

// ClearRegistered unregisters currently registered tags, optionally
// narrowed by f. It runs one query and then one batched unregister message
// covering every returned address. Returns ErrBatchOpen when called with a
// batch open, since it needs the batch machinery for itself.
func (c *Client) ClearRegistered(ctx context.Context, f Filter) error {
	if c.inBatch {
		return ErrBatchOpen
	}

	addresses, err := c.GetRegistered(ctx, f)
	if err != nil {
		return err
	}

	if len(addresses) == 0 {
		return nil
	}

	if err := c.BatchStart(); err != nil {
		return err
	}

	// Tags coming back from GetRegistered already carry the effective
	// prefix, so they go into the message verbatim rather than through
	// Unregister, which would prefix them a second time.
	section := c.pending.Payload.UnregisterSection()
	for ip, tags := range addresses {
		entry := section.Entry(ip)
		for _, tag := range tags {
			entry.Add(tag)
		}
	}

	return c.BatchEnd(ctx)
}

// message returns the document the next operation should mutate: the
// pending message inside a batch, a fresh single-use envelope otherwise.
func (c *Client) message() *protocol.UIDMessage {
	if c.inBatch {
		return c.pending
	}
	return protocol.NewUpdate()
}

// flush sends msg unless a batch is open, in which case the mutation stays
// pending.
func (c *Client) flush(ctx context.Context, msg *protocol.UIDMessage) error {
	if c.inBatch {
		return nil
	}
	return c.submit(ctx, msg)
}

func (c *Client) submit(ctx context.Context, msg *protocol.UIDMessage) error {
	doc, err := msg.Marshal()
	if err != nil {
		return err
	}

	if err := c.transport.SubmitUpdate(ctx, doc, c.vsys); err != nil {
		if c.ignoreDupErrors && IsBenignDuplicate(err) {
			c.log.Debug("Ignoring benign duplicate failure", zap.Error(err))
			return nil
		}
		return err
	}

	return nil
}

// dedupe returns values with duplicates removed, preserving first-seen
// order.
func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	return out
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
