package codec

import "github.com/vmihailenco/msgpack/v5"

// Msgpack encodes/decodes values as MessagePack.
type Msgpack struct{}

func (Msgpack) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (Msgpack) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

func (Msgpack) Name() string { return NameMsgpack }
