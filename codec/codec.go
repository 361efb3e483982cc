// Package codec defines the serialization contract for job payloads and
// results. JSON is the default; MessagePack is available for deployments
// that want smaller records in the store.
package codec

// Codec serializes payloads and results to/from bytes.
type Codec interface {
	// Marshal serializes a value to bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal deserializes bytes into a value.
	Unmarshal(data []byte, v any) error

	// Name returns the codec identifier (e.g., "json", "msgpack").
	Name() string
}

// Name constants for codec selection.
const (
	NameJSON    = "json"
	NameMsgpack = "msgpack"
)

// Get returns a codec by name. Defaults to JSON.
func Get(name string) Codec {
	switch name {
	case NameMsgpack:
		return Msgpack{}
	case NameJSON, "":
		return JSON{}
	default:
		return JSON{}
	}
}
