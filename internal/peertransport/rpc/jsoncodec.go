// Package rpc hand-writes the gRPC service descriptor, client stub, and
// wire codec for the inter-node iBGP RPC surface. There is no protoc
// toolchain available to this build, so instead of faking generated code
// this package drives the real google.golang.org/grpc transport — dialing,
// keepalive, TLS, ServiceDesc-based dispatch — through a small JSON codec
// registered against encoding.Codec, the same extension point
// protoc-gen-go-grpc's output would otherwise occupy.
package rpc

import (
	"encoding/json"
	"sync"

	"google.golang.org/grpc/encoding"
)

// CodecName is the content-subtype negotiated for every call made through
// this package; see grpc.CallContentSubtype.
const CodecName = "json"

// jsonCodec implements encoding.Codec by delegating to encoding/json. It
// works for any Go value, not just proto.Message implementors, which is
// what lets the request/response types below be plain structs.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
func (jsonCodec) Name() string { return CodecName }

var registerOnce sync.Once

// RegisterCodec installs the JSON codec with grpc's global encoding
// registry. Idempotent and safe to call from both client and server setup.
func RegisterCodec() {
	registerOnce.Do(func() {
		encoding.RegisterCodec(jsonCodec{})
	})
}
