package auction

import "encoding/json"

// JSONCodec lets Connect carry the plain Go request and response structs of
// this package. It replaces Connect's protobuf-based "json" codec.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(msg any) ([]byte, error) { return json.Marshal(msg) }

func (JSONCodec) Unmarshal(data []byte, msg any) error { return json.Unmarshal(data, msg) }
