package xmlapi

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// CmdToXML converts a quoted operational command into the XML form the API
// expects. Bare words open nested elements; a double-quoted token becomes
// the text of the innermost open element and closes it.
//
//   show object registered-ip ip "10.0.0.1"
//
// becomes
//
//   <show><object><registered-ip><ip>10.0.0.1</ip></registered-ip></object></show>
func CmdToXML(cmd string) (string, error) {
	tokens, err := splitCmd(cmd)
	if err != nil {
		return "", err
	}

	if len(tokens) == 0 {
		return "", fmt.Errorf("xmlapi: empty command")
	}

	var (
		b     strings.Builder
		stack []string
	)

	for _, t := range tokens {
		if t.quoted {
			if len(stack) == 0 {
				return "", fmt.Errorf("xmlapi: command %q has a value with no element to hold it", cmd)
			}

			b.WriteString(escapeText(t.text))
			b.WriteString("</" + stack[len(stack)-1] + ">")
			stack = stack[:len(stack)-1]
			continue
		}

		b.WriteString("<" + t.text + ">")
		stack = append(stack, t.text)
	}

	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteString("</" + stack[i] + ">")
	}

	return b.String(), nil
}

type cmdToken struct {
	text   string
	quoted bool
}

// splitCmd splits on whitespace, keeping double-quoted runs together.
func splitCmd(cmd string) ([]cmdToken, error) {
	var (
		tokens  []cmdToken
		current strings.Builder
		inQuote bool
		hasWord bool
	)

	flush := func(quoted bool) {
		if hasWord {
			tokens = append(tokens, cmdToken{text: current.String(), quoted: quoted})
		}
		current.Reset()
		hasWord = false
	}

	for _, r := range cmd {
		switch {
		case r == '"':
			if inQuote {
				hasWord = true // an empty quoted value is still a value
				flush(true)
				inQuote = false
			} else {
				flush(false)
				inQuote = true
			}

		case r == ' ' || r == '\t':
			if inQuote {
				current.WriteRune(r)
				hasWord = true
			} else {
				flush(false)
			}

		default:
			current.WriteRune(r)
			hasWord = true
		}
	}

	if inQuote {
		return nil, fmt.Errorf("xmlapi: unterminated quote in command %q", cmd)
	}
	flush(false)

	return tokens, nil
}

func escapeText(s string) string {
	var buf bytes.Buffer
	// EscapeText only fails on a failing writer, which Buffer is not.
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
