package rpc

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName intentionally collides with the name gRPC's generated code
// registers protobuf messages under ("proto"). Overriding it lets this
// package's gob-encoded request/response structs travel over an ordinary
// *grpc.Server/*grpc.ClientConn without a .proto file or protoc-gen-go-grpc
// codegen step — see DESIGN.md for why running protoc was not an option in
// this environment.
const codecName = "proto"

// GobCodec implements google.golang.org/grpc/encoding.Codec by gob-encoding
// whatever message value it's given. It is registered once, by import side
// effect of this package, under the name "proto" (grpc.CallContentSubtype
// and the "Content-Subtype" default both resolve to this name).
type GobCodec struct{}

func (GobCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("gob marshal: %w", err)
	}
	return buf.Bytes(), nil
}

func (GobCodec) Unmarshal(data []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("gob unmarshal: %w", err)
	}
	return nil
}

func (GobCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(GobCodec{})
}
