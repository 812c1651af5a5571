package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// mustPayload marshals server-built payloads. These are plain maps and
// structs, so a failure is a programming error; it is logged and the
// message goes out with an empty payload rather than not at all.
func mustPayload(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Str("module", "app").Err(err).Msg("payload marshal")
		return nil
	}
	return b
}
