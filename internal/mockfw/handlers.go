package mockfw

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arundel/herald/protocol"
)

// APIKey is the only key the mock accepts; keygen hands it out for any
// non-empty credentials.
const APIKey = "MOCK-API-KEY"

// Options configures the mock device.
type Options struct {
	// Version is the software version the mock reports, e.g. "10.1.3".
	Version string

	Store *Store

	Log *zap.Logger
}

// NewRouter builds the gin engine serving the mock device's /api surface.
func NewRouter(options Options) *gin.Engine {
	gin.DisableConsoleColor()
	gin.SetMode(gin.ReleaseMode)

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	store := options.Store
	if store == nil {
		store = NewStore()
	}

	version := options.Version
	if version == "" {
		version = "10.1.3"
	}

	r := gin.New()
	r.Use(ginzap.Ginzap(log, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(log, true))

	handler := func(c *gin.Context) {
		handleAPI(c, store, version)
	}

	r.GET("/api/", handler)
	r.POST("/api/", handler)

	return r
}

func handleAPI(c *gin.Context, store *Store, version string) {
	reqType := c.PostForm("type")
	if reqType == "" {
		reqType = c.Query("type")
	}

	switch reqType {
	case "keygen":
		handleKeygen(c)

	case "user-id":
		handleUserID(c, store)

	case "op":
		handleOp(c, store, version)

	default:
		respondError(c, "400", fmt.Sprintf("unsupported request type %q", reqType))
	}
}

func handleKeygen(c *gin.Context) {
	if c.PostForm("user") == "" || c.PostForm("password") == "" {
		respondError(c, "403", "Invalid credentials")
		return
	}

	respondSuccess(c, "<key>"+APIKey+"</key>")
}

func handleUserID(c *gin.Context, store *Store) {
	if !authenticated(c) {
		return
	}

	var msg protocol.UIDMessage
	if err := xml.Unmarshal([]byte(c.PostForm("cmd")), &msg); err != nil {
		respondError(c, "400", "malformed uid-message")
		return
	}

	var failure error

	if msg.Payload.Login != nil {
		for _, e := range msg.Payload.Login.Entries {
			failure = firstError(failure, store.Login(e.Name, e.IP))
		}
	}
	if msg.Payload.Logout != nil {
		for _, e := range msg.Payload.Logout.Entries {
			failure = firstError(failure, store.Logout(e.Name, e.IP))
		}
	}
	if msg.Payload.Register != nil {
		for _, e := range msg.Payload.Register.Entries {
			failure = firstError(failure, store.Register(e.IP, e.Tags))
		}
	}
	if msg.Payload.Unregister != nil {
		for _, e := range msg.Payload.Unregister.Entries {
			failure = firstError(failure, store.Unregister(e.IP, e.Tags))
		}
	}

	if failure != nil {
		respondError(c, "403", failure.Error())
		return
	}

	respondSuccess(c, "")
}

// showCmd is the subset of operational commands the mock understands.
type showCmd struct {
	XMLName xml.Name `xml:"show"`

	Object struct {
		RegisteredIP      *registeredQuery `xml:"registered-ip"`
		RegisteredAddress *registeredQuery `xml:"registered-address"`
	} `xml:"object"`

	System *struct {
		Info *struct{} `xml:"info"`
	} `xml:"system"`
}

type registeredQuery struct {
	IP string `xml:"ip"`
}

func handleOp(c *gin.Context, store *Store, version string) {
	if !authenticated(c) {
		return
	}

	var cmd showCmd
	if err := xml.Unmarshal([]byte(c.PostForm("cmd")), &cmd); err != nil {
		respondError(c, "400", "malformed op command")
		return
	}

	if cmd.System != nil && cmd.System.Info != nil {
		respondSuccess(c, "<system><sw-version>"+version+"</sw-version></system>")
		return
	}

	query := cmd.Object.RegisteredIP
	if query == nil {
		query = cmd.Object.RegisteredAddress
	}

	if query != nil {
		respondSuccess(c, renderRegistered(store.Registered(), query.IP))
		return
	}

	respondError(c, "400", "unsupported op command")
}

func renderRegistered(addresses map[string][]string, ipFilter string) string {
	var b strings.Builder

	for ip, tags := range addresses {
		if ipFilter != "" && ip != ipFilter {
			continue
		}

		b.WriteString(`<entry ip="` + escapeXML(ip) + `"><tag>`)
		for _, tag := range tags {
			b.WriteString("<member>" + escapeXML(tag) + "</member>")
		}
		b.WriteString("</tag></entry>")
	}

	return b.String()
}

func authenticated(c *gin.Context) bool {
	key := c.PostForm("key")
	if key == "" {
		key = c.Query("key")
	}

	if key != APIKey {
		respondError(c, "403", "Invalid credentials")
		return false
	}

	return true
}

func respondSuccess(c *gin.Context, inner string) {
	body := `<response status="success"><result>` + inner + `</result></response>`
	c.Data(http.StatusOK, "application/xml", []byte(body))
}

func respondError(c *gin.Context, code, msg string) {
	body := fmt.Sprintf(`<response status="error" code=%q><msg><line>%s</line></msg></response>`,
		code, escapeXML(msg))
	c.Data(http.StatusOK, "application/xml", []byte(body))
}

func firstError(current, next error) error {
	if current != nil {
		return current
	}
	return next
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
