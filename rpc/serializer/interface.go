package serializer

import (
	"fmt"

	"github.com/ValentinKolb/davlock/rpc/common"
)

// IRPCSerializer converts rpc messages to and from their wire format.
// Implementations are stateless and safe for concurrent use.
type IRPCSerializer interface {
	// Serialize encodes msg.
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize decodes b into msg. Fields absent in b are reset.
	Deserialize(b []byte, msg *common.Message) error
}

// ByName returns the serializer registered under name (binary, json or gob).
func ByName(name string) (IRPCSerializer, error) {
	switch name {
	case "binary":
		return NewBinarySerializer(), nil
	case "json":
		return NewJSONSerializer(), nil
	case "gob":
		return NewGOBSerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %s (expected one of: binary, json, gob)", name)
	}
}
