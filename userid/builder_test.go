package userid_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/arundel/herald/panos"
	"github.com/arundel/herald/protocol"
	"github.com/arundel/herald/userid"
)

// fakeTransport records every submitted document and answers queries from a
// canned body.
type fakeTransport struct {
	submitted []string
	vsys      []string
	submitErr error

	queries   []string
	queryBody []byte
	queryErr  error

	version *panos.Version
}

func (f *fakeTransport) SubmitUpdate(ctx context.Context, doc []byte, vsys string) error {
	f.submitted = append(f.submitted, string(doc))
	f.vsys = append(f.vsys, vsys)
	return f.submitErr
}

func (f *fakeTransport) RunQuery(ctx context.Context, cmd string, vsys string) ([]byte, error) {
	f.queries = append(f.queries, cmd)
	return f.queryBody, f.queryErr
}

func (f *fakeTransport) Version() *panos.Version {
	return f.version
}

var _ = Describe("Client", func() {
	var (
		ctx       context.Context
		transport *fakeTransport
	)

	BeforeEach(func() {
		ctx = context.Background()
		transport = &fakeTransport{}
	})

	Describe("without a batch", func() {
		It("sends one message per login call", func() {
			client := userid.New(transport)

			Expect(client.Login(ctx, "jdoe", "10.0.1.1")).To(Succeed())
			Expect(client.Login(ctx, "asmith", "10.0.1.2")).To(Succeed())

			Expect(transport.submitted).To(HaveLen(2))
			Expect(transport.submitted[0]).To(ContainSubstring(
				`<login><entry name="jdoe" ip="10.0.1.1"></entry></login>`))
			Expect(transport.submitted[1]).NotTo(ContainSubstring("jdoe"))
		})

		It("sends multiple mappings from one Logins call in one message", func() {
			client := userid.New(transport)

			Expect(client.Logins(ctx, []userid.Mapping{
				{User: "jdoe", IP: "10.0.1.1"},
				{User: "asmith", IP: "10.0.1.2"},
			})).To(Succeed())

			Expect(transport.submitted).To(HaveLen(1))
			Expect(transport.submitted[0]).To(ContainSubstring("jdoe"))
			Expect(transport.submitted[0]).To(ContainSubstring("asmith"))
		})

		It("sends logouts under the logout section", func() {
			client := userid.New(transport)

			Expect(client.Logout(ctx, "jdoe", "10.0.1.1")).To(Succeed())
			Expect(client.Logouts(ctx, []userid.Mapping{{User: "asmith", IP: "10.0.1.2"}})).To(Succeed())

			Expect(transport.submitted).To(HaveLen(2))
			Expect(transport.submitted[0]).To(ContainSubstring("<logout>"))
			Expect(transport.submitted[0]).NotTo(ContainSubstring("<login>"))
		})

		It("passes the vsys context through", func() {
			client := userid.New(transport, userid.WithVsys("vsys3"))

			Expect(client.Login(ctx, "jdoe", "10.0.1.1")).To(Succeed())
			Expect(transport.vsys).To(Equal([]string{"vsys3"}))
		})

		It("propagates transport failures", func() {
			transport.submitErr = errors.New("conn refused")
			client := userid.New(transport)

			Expect(client.Login(ctx, "jdoe", "10.0.1.1")).To(MatchError("conn refused"))
		})
	})

	Describe("tag registration", func() {
		It("applies the client prefix to every tag", func() {
			client := userid.New(transport, userid.WithPrefix("grp-"))

			Expect(client.Register(ctx, "10.0.0.1", "x")).To(Succeed())

			Expect(transport.submitted).To(HaveLen(1))
			Expect(transport.submitted[0]).To(ContainSubstring("<member>grp-x</member>"))
			Expect(transport.submitted[0]).NotTo(ContainSubstring("<member>x</member>"))
		})

		It("deduplicates tags within one call", func() {
			client := userid.New(transport, userid.WithPrefix("grp-"))

			Expect(client.Register(ctx, "10.0.0.1", "a", "a", "b")).To(Succeed())

			Expect(transport.submitted[0]).To(ContainSubstring(
				"<tag><member>grp-a</member><member>grp-b</member></tag>"))
		})

		It("does nothing when no tags are given", func() {
			client := userid.New(transport)

			Expect(client.Register(ctx, "10.0.0.1")).To(Succeed())
			Expect(client.Unregister(ctx, "10.0.0.1")).To(Succeed())
			Expect(transport.submitted).To(BeEmpty())
		})

		It("sends unregisters under the unregister section", func() {
			client := userid.New(transport, userid.WithPrefix("grp-"))

			Expect(client.Unregister(ctx, "10.0.0.1", "x")).To(Succeed())

			Expect(transport.submitted[0]).To(ContainSubstring("<unregister>"))
			Expect(transport.submitted[0]).NotTo(ContainSubstring("<register>"))
		})
	})

	Describe("batching", func() {
		It("accumulates mutations into a single send", func() {
			client := userid.New(transport, userid.WithPrefix("grp-"))

			Expect(client.BatchStart()).To(Succeed())
			Expect(client.Login(ctx, "jdoe", "10.0.1.1")).To(Succeed())
			Expect(client.Register(ctx, "10.0.2.1", "t1")).To(Succeed())
			Expect(transport.submitted).To(BeEmpty())

			Expect(client.BatchEnd(ctx)).To(Succeed())

			Expect(transport.submitted).To(HaveLen(1))
			doc := transport.submitted[0]
			Expect(doc).To(ContainSubstring(
				`<login><entry name="jdoe" ip="10.0.1.1"></entry></login>`))
			Expect(doc).To(ContainSubstring(
				`<register><entry ip="10.0.2.1"><tag><member>grp-t1</member></tag></entry></register>`))
		})

		It("merges repeated registers for one address into one entry", func() {
			client := userid.New(transport, userid.WithPrefix("grp-"))

			Expect(client.BatchStart()).To(Succeed())
			Expect(client.Register(ctx, "10.0.0.1", "a", "b")).To(Succeed())
			Expect(client.Register(ctx, "10.0.0.1", "b", "c")).To(Succeed())
			Expect(client.BatchEnd(ctx)).To(Succeed())

			Expect(transport.submitted).To(HaveLen(1))
			Expect(transport.submitted[0]).To(ContainSubstring(
				`<register><entry ip="10.0.0.1"><tag><member>grp-a</member><member>grp-b</member><member>grp-c</member></tag></entry></register>`))
		})

		It("makes no network call for an empty batch", func() {
			client := userid.New(transport)

			Expect(client.BatchStart()).To(Succeed())
			Expect(client.BatchEnd(ctx)).To(Succeed())

			Expect(transport.submitted).To(BeEmpty())
		})

		It("refuses to open a batch over an open batch", func() {
			client := userid.New(transport)

			Expect(client.BatchStart()).To(Succeed())
			Expect(client.Login(ctx, "jdoe", "10.0.1.1")).To(Succeed())

			Expect(client.BatchStart()).To(MatchError(userid.ErrBatchOpen))

			// The pending work survives the refused call.
			Expect(client.BatchEnd(ctx)).To(Succeed())
			Expect(transport.submitted).To(HaveLen(1))
			Expect(transport.submitted[0]).To(ContainSubstring("jdoe"))
		})

		It("abandons a batch without sending", func() {
			client := userid.New(transport)

			Expect(client.BatchStart()).To(Succeed())
			Expect(client.Login(ctx, "jdoe", "10.0.1.1")).To(Succeed())
			client.BatchAbandon()

			Expect(client.BatchEnd(ctx)).To(Succeed())
			Expect(transport.submitted).To(BeEmpty())

			// A new batch can open after abandoning.
			Expect(client.BatchStart()).To(Succeed())
			client.BatchAbandon()
		})

		It("closes the batch even when the send fails", func() {
			transport.submitErr = errors.New("conn refused")
			client := userid.New(transport)

			Expect(client.BatchStart()).To(Succeed())
			Expect(client.Login(ctx, "jdoe", "10.0.1.1")).To(Succeed())
			Expect(client.BatchEnd(ctx)).To(MatchError("conn refused"))

			// Not in batch mode anymore: the next mutation sends immediately.
			transport.submitErr = nil
			Expect(client.Login(ctx, "asmith", "10.0.1.2")).To(Succeed())
			Expect(transport.submitted).To(HaveLen(2))
		})
	})

	Describe("Send()", func() {
		It("sends an arbitrary message outside a batch", func() {
			client := userid.New(transport)

			msg := protocol.NewUpdate()
			msg.Payload.LoginSection().Add("jdoe", "10.0.1.1")

			Expect(client.Send(ctx, msg)).To(Succeed())
			Expect(transport.submitted).To(HaveLen(1))
		})

		It("drops the message while a batch is open", func() {
			client := userid.New(transport)
			Expect(client.BatchStart()).To(Succeed())

			msg := protocol.NewUpdate()
			msg.Payload.LoginSection().Add("jdoe", "10.0.1.1")

			Expect(client.Send(ctx, msg)).To(Succeed())
			Expect(client.BatchEnd(ctx)).To(Succeed())
			Expect(transport.submitted).To(BeEmpty())
		})
	})

	Describe("benign duplicate suppression", func() {
		It("swallows duplicate-registration failures by default", func() {
			transport.submitErr = errors.New(`tag "grp-x" already exists, ignore`)
			client := userid.New(transport, userid.WithPrefix("grp-"))

			Expect(client.Register(ctx, "10.0.0.1", "x")).To(Succeed())
		})

		It("swallows unregister-of-absent-tag failures by default", func() {
			transport.submitErr = errors.New(`tag "grp-x" does not exist, ignore unreg`)
			client := userid.New(transport, userid.WithPrefix("grp-"))

			Expect(client.Unregister(ctx, "10.0.0.1", "x")).To(Succeed())
		})

		It("propagates the same failure when suppression is off", func() {
			transport.submitErr = errors.New(`tag "grp-x" already exists, ignore`)
			client := userid.New(transport,
				userid.WithPrefix("grp-"),
				userid.IgnoreDuplicateErrors(false))

			err := client.Register(ctx, "10.0.0.1", "x")
			Expect(err).To(MatchError(transport.submitErr))
		})

		It("never swallows other failures", func() {
			transport.submitErr = errors.New("invalid credentials")
			client := userid.New(transport)

			Expect(client.Login(ctx, "jdoe", "10.0.1.1")).To(HaveOccurred())
		})
	})

	Describe("GetRegistered()", func() {
		BeforeEach(func() {
			transport.queryBody = []byte(`<response status="success"><result>` +
				`<entry ip="10.0.0.1"><tag><member>grp-a</member><member>other-b</member></tag></entry>` +
				`<entry ip="10.0.0.2"><tag><member>grp-c</member></tag></entry>` +
				`<entry ip="10.0.0.3"><tag><member>other-d</member></tag></entry>` +
				`</result></response>`)
		})

		It("keeps only tags carrying the client prefix", func() {
			client := userid.New(transport, userid.WithPrefix("grp-"))

			addresses, err := client.GetRegistered(ctx, userid.Filter{})
			Expect(err).To(Succeed())
			Expect(addresses).To(Equal(map[string][]string{
				"10.0.0.1": {"grp-a"},
				"10.0.0.2": {"grp-c"},
			}))
		})

		It("filters by address", func() {
			client := userid.New(transport, userid.WithPrefix("grp-"))

			addresses, err := client.GetRegistered(ctx, userid.Filter{
				IPs: []string{"10.0.0.2", "10.0.0.9"},
			})
			Expect(err).To(Succeed())
			Expect(addresses).To(Equal(map[string][]string{
				"10.0.0.2": {"grp-c"},
			}))
		})

		It("filters by tag, prefixing the filter values", func() {
			client := userid.New(transport, userid.WithPrefix("grp-"))

			addresses, err := client.GetRegistered(ctx, userid.Filter{
				Tags: []string{"a"},
			})
			Expect(err).To(Succeed())
			Expect(addresses).To(Equal(map[string][]string{
				"10.0.0.1": {"grp-a"},
			}))
		})

		It("honors a prefix override", func() {
			client := userid.New(transport, userid.WithPrefix("grp-"))

			other := "other-"
			addresses, err := client.GetRegistered(ctx, userid.Filter{Prefix: &other})
			Expect(err).To(Succeed())
			Expect(addresses).To(Equal(map[string][]string{
				"10.0.0.1": {"other-b"},
				"10.0.0.3": {"other-d"},
			}))
		})

		It("returns every tag when the override is the empty prefix", func() {
			client := userid.New(transport, userid.WithPrefix("grp-"))

			all := ""
			addresses, err := client.GetRegistered(ctx, userid.Filter{Prefix: &all})
			Expect(err).To(Succeed())
			Expect(addresses).To(HaveLen(3))
			Expect(addresses["10.0.0.1"]).To(ConsistOf("grp-a", "other-b"))
		})

		It("pushes a single address filter into the command", func() {
			client := userid.New(transport)

			_, err := client.GetRegistered(ctx, userid.Filter{IPs: []string{"10.0.0.1"}})
			Expect(err).To(Succeed())
			Expect(transport.queries).To(Equal([]string{
				`show object registered-ip ip "10.0.0.1"`,
			}))
		})

		It("uses the legacy verb against old devices", func() {
			transport.version = panos.MustParse("6.0.2")
			client := userid.New(transport)

			_, err := client.GetRegistered(ctx, userid.Filter{})
			Expect(err).To(Succeed())
			Expect(transport.queries).To(Equal([]string{"show object registered-address"}))
		})

		It("propagates query failures", func() {
			transport.queryErr = errors.New("op timed out")
			client := userid.New(transport)

			_, err := client.GetRegistered(ctx, userid.Filter{})
			Expect(err).To(MatchError("op timed out"))
		})
	})

	Describe("ClearRegistered()", func() {
		BeforeEach(func() {
			transport.queryBody = []byte(`<response status="success"><result>` +
				`<entry ip="10.0.0.1"><tag><member>grp-a</member><member>grp-b</member></tag></entry>` +
				`<entry ip="10.0.0.2"><tag><member>grp-c</member></tag></entry>` +
				`</result></response>`)
		})

		It("runs one query and one batched unregister send", func() {
			client := userid.New(transport, userid.WithPrefix("grp-"))

			Expect(client.ClearRegistered(ctx, userid.Filter{})).To(Succeed())

			Expect(transport.queries).To(HaveLen(1))
			Expect(transport.submitted).To(HaveLen(1))

			doc := transport.submitted[0]
			Expect(doc).To(ContainSubstring("<unregister>"))
			// Tags are unregistered exactly as the device reported them,
			// not prefixed a second time.
			Expect(doc).To(ContainSubstring("<member>grp-a</member>"))
			Expect(doc).NotTo(ContainSubstring("grp-grp-"))
		})

		It("makes no send when nothing is registered", func() {
			transport.queryBody = []byte(`<response status="success"><result/></response>`)
			client := userid.New(transport)

			Expect(client.ClearRegistered(ctx, userid.Filter{})).To(Succeed())
			Expect(transport.submitted).To(BeEmpty())
		})

		It("refuses to run inside an open batch", func() {
			client := userid.New(transport)

			Expect(client.BatchStart()).To(Succeed())
			Expect(client.Login(ctx, "jdoe", "10.0.1.1")).To(Succeed())

			Expect(client.ClearRegistered(ctx, userid.Filter{})).To(MatchError(userid.ErrBatchOpen))

			// Pending work is untouched.
			Expect(client.BatchEnd(ctx)).To(Succeed())
			Expect(transport.submitted).To(HaveLen(1))
			Expect(transport.submitted[0]).To(ContainSubstring("jdoe"))
		})

		It("leaves the client out of batch mode afterwards", func() {
			client := userid.New(transport, userid.WithPrefix("grp-"))

			Expect(client.ClearRegistered(ctx, userid.Filter{})).To(Succeed())
			Expect(client.BatchStart()).To(Succeed())
			client.BatchAbandon()
		})
	})
})
