package httpapi

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/stacklok/gridcore/pkg/errors"
)

// sessionPayloadSchema constrains the raw POST /session body to the
// shape the W3C WebDriver "New Session" command actually allows: an
// object whose "capabilities" member, if present, is itself an object
// rather than a scalar or array a client sent by mistake.
var sessionPayloadSchema = gojsonschema.NewStringLoader(`{
	"type": "object",
	"properties": {
		"capabilities": {"type": "object"}
	}
}`)

// validateSessionPayload rejects a malformed raw session-creation body
// before it ever reaches the queue, returning the same InvalidArgument
// error kind a decode failure would.
func validateSessionPayload(body []byte) error {
	result, err := gojsonschema.Validate(sessionPayloadSchema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return errors.NewInvalidArgumentError("malformed session creation payload", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return errors.NewInvalidArgumentError(strings.Join(msgs, "; "), nil)
	}
	return nil
}
