package modeler

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// normalizeBag turns the free-form "other" payload of an event into a flat
// string-keyed map. The payload may arrive as a decoded map (live events), a
// JSON document, or a legacy serialized blob from old log rows. Payloads
// that cannot be decoded yield an empty bag, never an error: a missing bag
// only matters if a placeholder later needs a key from it.
func normalizeBag(other any) map[string]any {
	switch v := other.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return v
	case string:
		return normalizeBagString(v)
	case []byte:
		return normalizeBagString(string(v))
	}
	return map[string]any{}
}

func normalizeBagString(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return map[string]any{}
	}
	var bag map[string]any
	if err := json.Unmarshal([]byte(raw), &bag); err == nil && bag != nil {
		return bag
	}
	if bag, err := decodeLegacyBag(raw); err == nil {
		return bag
	}
	return map[string]any{}
}

// decodeLegacyBag parses the serialized array notation used by old platform
// log rows: a:N:{<key><value>...} with s:len:"...", i:n, d:f, b:0|1 and N
// scalars. Nested arrays are decoded recursively.
func decodeLegacyBag(raw string) (map[string]any, error) {
	d := &legacyDecoder{src: raw}
	v, err := d.value()
	if err != nil {
		return nil, err
	}
	bag, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("legacy bag: top-level value is %T, not an array", v)
	}
	return bag, nil
}

type legacyDecoder struct {
	src string
	pos int
}

func (d *legacyDecoder) value() (any, error) {
	if d.pos >= len(d.src) {
		return nil, fmt.Errorf("legacy bag: truncated at offset %d", d.pos)
	}
	switch d.src[d.pos] {
	case 'N':
		d.pos++ // N;
		return nil, d.expect(';')
	case 'b':
		raw, err := d.scalar('b')
		if err != nil {
			return nil, err
		}
		return raw == "1", nil
	case 'i':
		raw, err := d.scalar('i')
		if err != nil {
			return nil, err
		}
		return strconv.ParseInt(raw, 10, 64)
	case 'd':
		raw, err := d.scalar('d')
		if err != nil {
			return nil, err
		}
		return strconv.ParseFloat(raw, 64)
	case 's':
		return d.str()
	case 'a':
		return d.array()
	}
	return nil, fmt.Errorf("legacy bag: unknown tag %q at offset %d", d.src[d.pos], d.pos)
}

func (d *legacyDecoder) scalar(tag byte) (string, error) {
	d.pos++ // tag
	if err := d.expect(':'); err != nil {
		return "", err
	}
	end := strings.IndexByte(d.src[d.pos:], ';')
	if end < 0 {
		return "", fmt.Errorf("legacy bag: unterminated %c scalar", tag)
	}
	raw := d.src[d.pos : d.pos+end]
	d.pos += end + 1
	return raw, nil
}

func (d *legacyDecoder) str() (string, error) {
	d.pos++ // s
	if err := d.expect(':'); err != nil {
		return "", err
	}
	n, err := d.length()
	if err != nil {
		return "", err
	}
	if err := d.expect('"'); err != nil {
		return "", err
	}
	if d.pos+n > len(d.src) {
		return "", fmt.Errorf("legacy bag: string overruns input")
	}
	s := d.src[d.pos : d.pos+n]
	d.pos += n
	if err := d.expect('"'); err != nil {
		return "", err
	}
	return s, d.expect(';')
}

func (d *legacyDecoder) array() (map[string]any, error) {
	d.pos++ // a
	if err := d.expect(':'); err != nil {
		return nil, err
	}
	n, err := d.length()
	if err != nil {
		return nil, err
	}
	if err := d.expect('{'); err != nil {
		return nil, err
	}
	out := make(map[string]any, n)
	for i := 0; i < n; i++ {
		key, err := d.value()
		if err != nil {
			return nil, err
		}
		val, err := d.value()
		if err != nil {
			return nil, err
		}
		switch k := key.(type) {
		case string:
			out[k] = val
		case int64:
			out[strconv.FormatInt(k, 10)] = val
		default:
			return nil, fmt.Errorf("legacy bag: unsupported key type %T", key)
		}
	}
	return out, d.expect('}')
}

func (d *legacyDecoder) length() (int, error) {
	end := strings.IndexByte(d.src[d.pos:], ':')
	if end < 0 {
		return 0, fmt.Errorf("legacy bag: missing length terminator")
	}
	n, err := strconv.Atoi(d.src[d.pos : d.pos+end])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("legacy bag: bad length %q", d.src[d.pos:d.pos+end])
	}
	d.pos += end + 1
	return n, nil
}

func (d *legacyDecoder) expect(c byte) error {
	if d.pos >= len(d.src) || d.src[d.pos] != c {
		return fmt.Errorf("legacy bag: expected %q at offset %d", c, d.pos)
	}
	d.pos++
	return nil
}
