package grpcserver

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// jsonCodec lets grpc.Server marshal the gateway's hand-written scraperpb
// DTOs (see internal/scraperpb) without protoc-generated proto.Message
// implementations. It registers under the "proto" name, which is what
// grpc-go selects by default for plain "application/grpc" requests, so no
// special content-subtype negotiation is required on the client side.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("grpcserver: unmarshal: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string { return "proto" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
