package bencode

import (
	"strconv"

	"github.com/pkg/errors"
)

var (
	ErrMalformed = errors.New("bencode: malformed input")
	ErrTruncated = errors.New("bencode: truncated input")
)

// Kind discriminates the four bencode value types.
type Kind int

const (
	KindInt Kind = iota
	KindBytes
	KindList
	KindDict
)

// DictEntry keeps dictionary pairs in wire order.
type DictEntry struct {
	Key   []byte
	Value Value
}

// Value is a decoded bencode value. Raw is the exact slice of the source
// input the value was parsed from, so callers can hash sub-values (the
// "info" dictionary) without re-encoding.
type Value struct {
	Kind  Kind
	Int   int64
	Bytes []byte
	List  []Value
	Dict  []DictEntry
	Raw   []byte
}

// Lookup returns the value for key in a dictionary.
func (v Value) Lookup(key string) (Value, bool) {
	if v.Kind != KindDict {
		return Value{}, false
	}
	for _, e := range v.Dict {
		if string(e.Key) == key {
			return e.Value, true
		}
	}
	return Value{}, false
}

// Decode parses data as a single bencode value spanning the whole input.
func Decode(data []byte) (Value, error) {
	v, n, err := DecodeValue(data)
	if err != nil {
		return Value{}, err
	}
	if n != len(data) {
		return Value{}, errors.Wrapf(ErrMalformed, "%d trailing bytes after value", len(data)-n)
	}
	return v, nil
}

// DecodeValue parses the first bencode value in data and returns it along
// with the number of bytes it spans.
func DecodeValue(data []byte) (Value, int, error) {
	v, end, err := decodeAt(data, 0)
	if err != nil {
		return Value{}, 0, err
	}
	return v, end, nil
}

func decodeAt(data []byte, pos int) (Value, int, error) {
	if pos >= len(data) {
		return Value{}, pos, errors.Wrapf(ErrTruncated, "expected value at offset %d", pos)
	}

	switch c := data[pos]; {
	case c == 'i':
		return decodeInt(data, pos)
	case c == 'l':
		return decodeList(data, pos)
	case c == 'd':
		return decodeDict(data, pos)
	case c >= '0' && c <= '9':
		return decodeBytes(data, pos)
	default:
		return Value{}, pos, errors.Wrapf(ErrMalformed, "unrecognized prefix %q at offset %d", c, pos)
	}
}

func decodeInt(data []byte, pos int) (Value, int, error) {
	start := pos
	pos++ // 'i'
	end := pos
	for end < len(data) && data[end] != 'e' {
		end++
	}
	if end == len(data) {
		return Value{}, pos, errors.Wrapf(ErrTruncated, "integer at offset %d has no terminator", start)
	}
	// Lenient on leading zeros and -0, like most clients in the wild.
	n, err := strconv.ParseInt(string(data[pos:end]), 10, 64)
	if err != nil {
		return Value{}, pos, errors.Wrapf(ErrMalformed, "bad integer %q at offset %d", data[pos:end], start)
	}
	return Value{Kind: KindInt, Int: n, Raw: data[start : end+1]}, end + 1, nil
}

func decodeBytes(data []byte, pos int) (Value, int, error) {
	start := pos
	colon := pos
	for colon < len(data) && data[colon] != ':' {
		colon++
	}
	if colon == len(data) {
		return Value{}, pos, errors.Wrapf(ErrTruncated, "string at offset %d has no colon", start)
	}
	length, err := strconv.Atoi(string(data[pos:colon]))
	if err != nil || length < 0 {
		return Value{}, pos, errors.Wrapf(ErrMalformed, "bad length prefix %q at offset %d", data[pos:colon], start)
	}
	end := colon + 1 + length
	if end > len(data) {
		return Value{}, pos, errors.Wrapf(ErrTruncated, "string at offset %d ends past input", start)
	}
	return Value{Kind: KindBytes, Bytes: data[colon+1 : end], Raw: data[start:end]}, end, nil
}

func decodeList(data []byte, pos int) (Value, int, error) {
	start := pos
	pos++ // 'l'
	var items []Value
	for {
		if pos >= len(data) {
			return Value{}, pos, errors.Wrapf(ErrTruncated, "list at offset %d has no terminator", start)
		}
		if data[pos] == 'e' {
			return Value{Kind: KindList, List: items, Raw: data[start : pos+1]}, pos + 1, nil
		}
		item, next, err := decodeAt(data, pos)
		if err != nil {
			return Value{}, pos, err
		}
		items = append(items, item)
		pos = next
	}
}

func decodeDict(data []byte, pos int) (Value, int, error) {
	start := pos
	pos++ // 'd'
	var entries []DictEntry
	for {
		if pos >= len(data) {
			return Value{}, pos, errors.Wrapf(ErrTruncated, "dictionary at offset %d has no terminator", start)
		}
		if data[pos] == 'e' {
			return Value{Kind: KindDict, Dict: entries, Raw: data[start : pos+1]}, pos + 1, nil
		}
		key, next, err := decodeAt(data, pos)
		if err != nil {
			return Value{}, pos, err
		}
		if key.Kind != KindBytes {
			return Value{}, pos, errors.Wrapf(ErrMalformed, "dictionary key at offset %d is not a string", pos)
		}
		val, after, err := decodeAt(data, next)
		if err != nil {
			return Value{}, pos, err
		}
		entries = append(entries, DictEntry{Key: key.Bytes, Value: val})
		pos = after
	}
}
