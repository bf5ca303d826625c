// Package serializer converts rpc messages to and from bytes.
//
// Three encodings implement IRPCSerializer:
//
//   - Binary: a flag byte marks the fields that are present, byte fields are
//     length prefixed. Smallest and fastest, the default.
//
//   - JSON: human readable, lock records appear as base64 strings. Useful when
//     debugging the protocol with curl.
//
//   - GOB: Go's self describing format. Larger than both others, kept for
//     comparison in the benchmarks.
//
// All serializers are stateless and safe for concurrent use:
//
//	s := serializer.NewBinarySerializer()
//	data, err := s.Serialize(*common.NewGetLocksRequest("/docs", false))
//	// ... send data ...
//	var resp common.Message
//	err = s.Deserialize(received, &resp)
package serializer
