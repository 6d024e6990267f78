package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	ErrUnknownField = errors.New("unknown field")
	ErrNotObject    = errors.New("field expects an object")
)

// FieldKind is the logical type stored at a draft path.
type FieldKind string

const (
	KindString    FieldKind = "string"
	KindNumber    FieldKind = "number"
	KindInteger   FieldKind = "integer"
	KindBool      FieldKind = "bool"
	KindTimestamp FieldKind = "timestamp"
	KindList      FieldKind = "list"
	KindObject    FieldKind = "object"
)

// Field paths of the bounty draft.
const (
	FieldTitle                = "title"
	FieldDescription          = "description"
	FieldType                 = "type"
	FieldDominantCore         = "dominant_core"
	FieldMode                 = "mode"
	FieldLocation             = "location"
	FieldReward               = "reward"
	FieldRewardCurrency       = "reward.currency"
	FieldRewardAmount         = "reward.amount"
	FieldRewardWinners        = "reward.winners"
	FieldTimeline             = "timeline"
	FieldExpirationDate       = "timeline.expiration_date"
	FieldEstimatedCompletion  = "timeline.estimated_completion"
	FieldEstimatedDays        = "timeline.estimated_completion.days"
	FieldEstimatedHours       = "timeline.estimated_completion.hours"
	FieldEstimatedMinutes     = "timeline.estimated_completion.minutes"
	FieldHasImpactCertificate = "hasImpactCertificate"
	FieldImpactBriefMessage   = "impactBriefMessage"
	FieldSDGs                 = "sdgs"
	FieldHasBacker            = "has_backer"
	FieldBacker               = "backer"
	FieldBackerName           = "backer.name"
	FieldBackerLogo           = "backer.logo"
	FieldBackerMessage        = "backer.message"
	FieldTermsAccepted        = "terms_accepted"
)

// FieldSpec describes one addressable path.
type FieldSpec struct {
	Path string    `json:"path"`
	Kind FieldKind `json:"kind"`
}

// Fields lists every addressable path in form order. Governing flags precede
// their dependents so that applying fields in this order is deterministic.
var Fields = []FieldSpec{
	{FieldTitle, KindString},
	{FieldDescription, KindString},
	{FieldType, KindString},
	{FieldDominantCore, KindString},
	{FieldMode, KindString},
	{FieldLocation, KindString},
	{FieldReward, KindObject},
	{FieldRewardCurrency, KindString},
	{FieldRewardAmount, KindNumber},
	{FieldRewardWinners, KindInteger},
	{FieldTimeline, KindObject},
	{FieldExpirationDate, KindTimestamp},
	{FieldEstimatedCompletion, KindObject},
	{FieldEstimatedDays, KindInteger},
	{FieldEstimatedHours, KindInteger},
	{FieldEstimatedMinutes, KindInteger},
	{FieldHasImpactCertificate, KindBool},
	{FieldImpactBriefMessage, KindString},
	{FieldSDGs, KindList},
	{FieldHasBacker, KindBool},
	{FieldBacker, KindObject},
	{FieldBackerName, KindString},
	{FieldBackerLogo, KindString},
	{FieldBackerMessage, KindString},
	{FieldTermsAccepted, KindBool},
}

var fieldKinds = func() map[string]FieldKind {
	m := make(map[string]FieldKind, len(Fields))
	for _, f := range Fields {
		m[f.Path] = f.Kind
	}
	return m
}()

// Kind returns the kind registered for path.
func Kind(path string) (FieldKind, bool) {
	k, ok := fieldKinds[path]
	return k, ok
}

// CheckValue verifies that path exists and, for object paths, that value is nil or
// a map whose keys are themselves addressable.
func CheckValue(path string, value any) error {
	kind, ok := fieldKinds[path]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, path)
	}
	if kind != KindObject || value == nil {
		return nil
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotObject, path)
	}
	for k, v := range obj {
		if err := CheckValue(path+"."+k, v); err != nil {
			return err
		}
	}
	return nil
}

// Draft is the in-progress bounty record, addressed by dotted paths.
type Draft map[string]any

// Get reads the value stored at path.
func (d Draft) Get(path string) (any, bool) {
	parts := strings.Split(path, ".")
	var node map[string]any = d
	for i, key := range parts {
		v, ok := node[key]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		next, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		node = next
	}
	return nil, false
}

// Set writes value at path, creating intermediate objects without touching siblings.
func (d Draft) Set(path string, value any) {
	parts := strings.Split(path, ".")
	var node map[string]any = d
	for _, key := range parts[:len(parts)-1] {
		next, ok := node[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[key] = next
		}
		node = next
	}
	node[parts[len(parts)-1]] = cloneValue(value)
}

// Delete removes path. Missing intermediates are ignored.
func (d Draft) Delete(path string) {
	parts := strings.Split(path, ".")
	var node map[string]any = d
	for _, key := range parts[:len(parts)-1] {
		next, ok := node[key].(map[string]any)
		if !ok {
			return
		}
		node = next
	}
	delete(node, parts[len(parts)-1])
}

// Clone returns a deep copy.
func (d Draft) Clone() Draft {
	if d == nil {
		return Draft{}
	}
	return Draft(cloneMap(d))
}

// String returns the string at path, if present and a string.
func (d Draft) String(path string) (string, bool) {
	v, ok := d.Get(path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Bool returns the bool at path. Absent or non-bool values read as false.
func (d Draft) Bool(path string) bool {
	v, _ := d.Get(path)
	b, _ := v.(bool)
	return b
}

// FlagOff reports whether the boolean flag at path is explicitly false.
func (d Draft) FlagOff(path string) bool {
	v, ok := d.Get(path)
	if !ok {
		return false
	}
	b, isBool := v.(bool)
	return isBool && !b
}

// Number converts the supported numeric representations to float64.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Integer converts v to int64 when it is a number without a fractional part
// that fits in int64.
func Integer(v any) (int64, bool) {
	f, ok := Number(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || !fitsInt64(f) {
		return 0, false
	}
	return int64(f), true
}

func fitsInt64(f float64) bool {
	return f >= -(1<<63) && f < 1<<63
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Timestamp accepts a time.Time or a string in RFC 3339 (or date-only) form.
func Timestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

// StringList accepts []string or []any holding only strings.
func StringList(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		out := make([]string, len(list))
		copy(out, list)
		return out, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// ISOTimestamp is the textual date-time form used when a draft is rendered.
const ISOTimestamp = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in UTC with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(ISOTimestamp)
}

// Normalized returns a copy whose timestamp fields are rendered as ISOTimestamp strings.
func (d Draft) Normalized() Draft {
	out := d.Clone()
	for _, f := range Fields {
		if f.Kind != KindTimestamp {
			continue
		}
		if v, ok := out.Get(f.Path); ok {
			if ts, ok := Timestamp(v); ok {
				out.Set(f.Path, FormatTimestamp(ts))
			}
		}
	}
	return out
}

// MarshalIndent renders the normalized draft as two-space indented JSON.
func (d Draft) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(d.Normalized(), "", "  ")
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case Draft:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}
