package manifest

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ToStruct converts a decoded TOML table into the opaque, wire-ready config
// tree type. A nil map converts to an empty struct so callers never have to
// nil-check before merging.
func ToStruct(m map[string]any) (*structpb.Struct, error) {
	if m == nil {
		return &structpb.Struct{Fields: map[string]*structpb.Value{}}, nil
	}

	return structpb.NewStruct(m)
}

// DeepMerge combines base and override into a new tree: scalars and arrays
// are replaced whole by the override's value; sub-maps present on both
// sides are merged recursively. Neither input is mutated.
func DeepMerge(base, override *structpb.Struct) *structpb.Struct {
	switch {
	case base == nil && override == nil:
		return &structpb.Struct{Fields: map[string]*structpb.Value{}}

	case base == nil:
		return proto.Clone(override).(*structpb.Struct)

	case override == nil:
		return proto.Clone(base).(*structpb.Struct)
	}

	merged := proto.Clone(base).(*structpb.Struct)
	if merged.Fields == nil {
		merged.Fields = map[string]*structpb.Value{}
	}

	for key, overrideVal := range override.GetFields() {
		baseVal, exists := merged.Fields[key]

		if exists && baseVal.GetStructValue() != nil &&
			overrideVal.GetStructValue() != nil {

			merged.Fields[key] = structpb.NewStructValue(
				DeepMerge(baseVal.GetStructValue(), overrideVal.GetStructValue()),
			)

			continue
		}

		merged.Fields[key] = proto.Clone(overrideVal).(*structpb.Value)
	}

	return merged
}

// MergeChain folds DeepMerge across layers in order, so that later layers
// win over earlier ones at every overlapping leaf. This implements the
// authoritative precedence order: manifest default, then user-declared
// entry, then override.
func MergeChain(layers ...*structpb.Struct) *structpb.Struct {
	result := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	for _, layer := range layers {
		result = DeepMerge(result, layer)
	}

	return result
}
