package protocols

import (
	"encoding/json"
	"fmt"
)

// New builds an unconnected session for the given backend from its JSON
// config bundle. Every call returns a fresh instance.
func New(kind Kind, raw json.RawMessage) (FileSystem, error) {
	switch kind {
	case KindS3:
		return NewS3FromJSON(raw)
	case KindFTP:
		return NewFTPFromJSON(raw)
	case KindSFTP:
		return NewSFTPFromJSON(raw)
	case KindSMB:
		return NewSMBFromJSON(raw)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", kind)
	}
}
