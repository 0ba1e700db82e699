package service

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Content subtype of every call, "application/grpc+json" on the wire.
const CODEC_NAME = "json"

// jsonCodec carries the plain Go messages of this package as JSON. Protobuf
// messages, emptypb.Empty in practice, go through protojson.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	if m, ok := v.(proto.Message); ok {
		return protojson.Marshal(m)
	}
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if m, ok := v.(proto.Message); ok {
		return protojson.Unmarshal(data, m)
	}
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CODEC_NAME
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
