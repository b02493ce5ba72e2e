package bencode

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
)

type encoder struct {
	bytes.Buffer
}

// Encode produces the canonical bencoded form of v. Dictionary keys are
// emitted in lexicographic byte order regardless of their order in v.
func Encode(v Value) []byte {
	enc := encoder{}
	enc.encodeValue(v)
	return enc.Bytes()
}

func (enc *encoder) encodeValue(v Value) {
	switch v.Kind {
	case KindInt:
		enc.WriteByte('i')
		enc.WriteString(strconv.FormatInt(v.Int, 10))
		enc.WriteByte('e')
	case KindBytes:
		enc.WriteString(strconv.Itoa(len(v.Bytes)))
		enc.WriteByte(':')
		enc.Write(v.Bytes)
	case KindList:
		enc.WriteByte('l')
		for _, item := range v.List {
			enc.encodeValue(item)
		}
		enc.WriteByte('e')
	case KindDict:
		entries := make([]DictEntry, len(v.Dict))
		copy(entries, v.Dict)
		sort.Slice(entries, func(i, j int) bool {
			return bytes.Compare(entries[i].Key, entries[j].Key) < 0
		})
		enc.WriteByte('d')
		for _, e := range entries {
			enc.encodeValue(Value{Kind: KindBytes, Bytes: e.Key})
			enc.encodeValue(e.Value)
		}
		enc.WriteByte('e')
	}
}

// JSON renders the value as a JSON document, byte strings as strings and
// dictionaries as objects with keys in lexicographic order.
func (v Value) JSON() (string, error) {
	b, err := json.Marshal(v.toInterface())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (v Value) toInterface() interface{} {
	switch v.Kind {
	case KindInt:
		return v.Int
	case KindBytes:
		return string(v.Bytes)
	case KindList:
		list := make([]interface{}, 0, len(v.List))
		for _, item := range v.List {
			list = append(list, item.toInterface())
		}
		return list
	case KindDict:
		dict := make(map[string]interface{}, len(v.Dict))
		for _, e := range v.Dict {
			dict[string(e.Key)] = e.Value.toInterface()
		}
		return dict
	}
	return nil
}
