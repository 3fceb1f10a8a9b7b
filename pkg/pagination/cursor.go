package pagination

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// CursorVersion is the current cursor encoding version.
const CursorVersion = 1

// Order is a sort direction.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Valid reports whether o is one of the two supported orders.
func (o Order) Valid() bool {
	return o == OrderAsc || o == OrderDesc
}

// Direction is the paging direction carried by a cursor. Only forward paging
// is supported.
type Direction string

const DirectionNext Direction = "n"

// CursorPayload is the decoded content of a cursor token.
//
// Position holds the primary sort value of the last returned row (nil when
// that row had a NULL sort value) followed by its tiebreak value, which is
// never nil. Values are normalized to string, int64, float64 or bool.
type CursorPayload struct {
	Version     int       `json:"cv"`
	SortKey     string    `json:"s"`
	Order       Order     `json:"o"`
	Fingerprint string    `json:"f"`
	Position    [2]any    `json:"v"`
	Direction   Direction `json:"d"`
}

// Primary returns the primary sort value of the cursor position.
func (p *CursorPayload) Primary() any { return p.Position[0] }

// Tiebreak returns the tiebreak value of the cursor position.
func (p *CursorPayload) Tiebreak() any { return p.Position[1] }

// wireCursor mirrors CursorPayload with pointer fields so that missing
// members are detectable during decoding.
type wireCursor struct {
	Version     *int              `json:"cv"`
	SortKey     *string           `json:"s"`
	Order       *string           `json:"o"`
	Fingerprint *string           `json:"f"`
	Values      []json.RawMessage `json:"v"`
	Direction   *string           `json:"d"`
}

// EncodeCursor serializes a payload into an opaque URL-safe token.
func EncodeCursor(p CursorPayload) (string, error) {
	switch {
	case p.SortKey == "":
		return "", errors.New("encode cursor: sort key is required")
	case !p.Order.Valid():
		return "", fmt.Errorf("encode cursor: invalid order %q", p.Order)
	case p.Direction != DirectionNext:
		return "", fmt.Errorf("encode cursor: unsupported direction %q", p.Direction)
	case !isHexFingerprint(p.Fingerprint):
		return "", fmt.Errorf("encode cursor: invalid filter fingerprint %q", p.Fingerprint)
	}
	for i, v := range p.Position {
		if !isScalar(v) {
			return "", fmt.Errorf("encode cursor: position value %d has unsupported type %T", i, v)
		}
	}
	if p.Position[1] == nil {
		return "", errors.New("encode cursor: tiebreak value is required")
	}

	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeCursor parses a token produced by EncodeCursor.
//
// Decoding only validates the structural shape of the payload. Any deviation
// yields ErrCursorMalformed; a partially populated payload is never returned.
// Agreement with the current request is checked by ValidateCursor.
func DecodeCursor(token string) (*CursorPayload, error) {
	if token == "" {
		return nil, malformed("empty token")
	}

	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, malformed("invalid encoding")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var w wireCursor
	if err := dec.Decode(&w); err != nil {
		return nil, malformed("invalid payload")
	}
	if dec.More() {
		return nil, malformed("trailing data")
	}

	switch {
	case w.Version == nil:
		return nil, malformed("missing version")
	case w.SortKey == nil || *w.SortKey == "":
		return nil, malformed("missing sort key")
	case w.Order == nil || !Order(*w.Order).Valid():
		return nil, malformed("invalid order")
	case w.Fingerprint == nil || !isHexFingerprint(*w.Fingerprint):
		return nil, malformed("invalid filter fingerprint")
	case w.Direction == nil || Direction(*w.Direction) != DirectionNext:
		return nil, malformed("invalid direction")
	case len(w.Values) != 2:
		return nil, malformed("position must have two values")
	}

	var position [2]any
	for i, raw := range w.Values {
		v, err := decodeScalar(raw)
		if err != nil {
			return nil, malformed(err.Error())
		}
		position[i] = v
	}
	if position[1] == nil {
		return nil, malformed("tiebreak value is null")
	}

	return &CursorPayload{
		Version:     *w.Version,
		SortKey:     *w.SortKey,
		Order:       Order(*w.Order),
		Fingerprint: *w.Fingerprint,
		Position:    position,
		Direction:   DirectionNext,
	}, nil
}

func decodeScalar(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid position value")
	}
	switch val := v.(type) {
	case nil, string, bool:
		return val, nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		f, err := val.Float64()
		if err != nil || math.IsInf(f, 0) {
			return nil, fmt.Errorf("invalid numeric position value")
		}
		return f, nil
	default:
		return nil, fmt.Errorf("position value must be a scalar")
	}
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, bool, int, int32, int64, float32, float64:
		return true
	default:
		return false
	}
}

func isHexFingerprint(s string) bool {
	if len(s) != FingerprintLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
