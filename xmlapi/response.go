package xmlapi

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// APIError is a failure reported by the device itself, as opposed to a
// transport-level failure. Its message is the device's text verbatim, which
// is what the userid package's benign-duplicate classifier inspects.
type APIError struct {
	Code string
	Msg  string
}

func (e *APIError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("device error (code %s)", e.Code)
	}
	return e.Msg
}

// envelope is the outer shape every API response shares. Error detail shows
// up in different places depending on the request type, so all the known
// spots are mapped and message() picks the one that is populated.
type envelope struct {
	XMLName xml.Name `xml:"response"`
	Status  string   `xml:"status,attr"`
	Code    string   `xml:"code,attr"`

	Lines     []string `xml:"msg>line"`
	ResultMsg string   `xml:"result>msg"`

	Key       string `xml:"result>key"`
	SWVersion string `xml:"result>system>sw-version"`
}

func (e *envelope) message() string {
	if e.ResultMsg != "" {
		return e.ResultMsg
	}
	return strings.Join(e.Lines, "; ")
}

// parseEnvelope parses body and converts a status="error" response into an
// *APIError.
func parseEnvelope(body []byte) (*envelope, error) {
	var env envelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("xmlapi: cannot parse API response: %w", err)
	}

	if env.Status != "success" {
		return nil, &APIError{Code: env.Code, Msg: env.message()}
	}

	return &env, nil
}
