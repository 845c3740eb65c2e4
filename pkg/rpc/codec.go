package rpc

import (
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype for the msgpack codec
const CodecName = "msgpack"

// codec encodes RPC messages with msgpack. The envelope types are plain Go
// structs, so no generated stubs are needed; both sides register the codec
// and the client selects it by content-subtype.
type codec struct{}

func (codec) Marshal(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}

func (codec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(codec{})
}
