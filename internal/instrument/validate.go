package instrument

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Answer is a validated response fragment for a single item. Exactly the
// fields relevant to the item's kind are populated.
type Answer struct {
	Item string `json:"item"`
	Kind Kind   `json:"kind"`

	Code  string `json:"code,omitempty"`
	Most  string `json:"most,omitempty"`
	Least string `json:"least,omitempty"`
	Scale int    `json:"scale,omitempty"`
	Flag  bool   `json:"flag,omitempty"`
}

// ValidationError reports why a raw fragment was rejected for an item.
type ValidationError struct {
	Item   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid response for item %s: %s", e.Item, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidResponse }

func invalid(item, format string, args ...any) error {
	return &ValidationError{Item: item, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks a raw decoded-JSON fragment against the item's declared
// shape and returns the typed answer. Validation is purely structural; it
// never consults other responses.
func Validate(ins *Instrument, itemID string, fragment any) (Answer, error) {
	item, ok := ins.Item(itemID)
	if !ok {
		return Answer{}, fmt.Errorf("%w: %s has no item %q", ErrUnknownItem, ins.ID, itemID)
	}

	answer := Answer{Item: itemID, Kind: item.Kind}

	switch item.Kind {
	case KindMostLeast:
		pair, ok := fragment.(map[string]any)
		if !ok {
			return Answer{}, invalid(itemID, "expected an object with most/least codes")
		}
		most, err := codeField(item, pair, "most")
		if err != nil {
			return Answer{}, invalid(itemID, "%s", err)
		}
		least, err := codeField(item, pair, "least")
		if err != nil {
			return Answer{}, invalid(itemID, "%s", err)
		}
		if most == least {
			return Answer{}, invalid(itemID, "most and least must differ, both are %q", most)
		}
		answer.Most = most
		answer.Least = least

	case KindCategorical:
		code, ok := fragment.(string)
		if !ok {
			return Answer{}, invalid(itemID, "expected a code string")
		}
		if !containsCode(item.Codes, code) {
			return Answer{}, invalid(itemID, "code %q is not one of %v", code, item.Codes)
		}
		answer.Code = code

	case KindScale:
		value, err := scaleValue(fragment)
		if err != nil {
			return Answer{}, invalid(itemID, "%s", err)
		}
		if value < item.Min || value > item.Max {
			return Answer{}, invalid(itemID, "value %d is outside [%d, %d]", value, item.Min, item.Max)
		}
		answer.Scale = value

	case KindBool:
		flag, ok := fragment.(bool)
		if !ok {
			return Answer{}, invalid(itemID, "expected a literal true or false")
		}
		answer.Flag = flag

	default:
		return Answer{}, invalid(itemID, "unsupported item kind %q", item.Kind)
	}

	return answer, nil
}

func codeField(item Item, pair map[string]any, key string) (string, error) {
	raw, ok := pair[key]
	if !ok {
		return "", fmt.Errorf("missing %q code", key)
	}
	code, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%q must be a code string", key)
	}
	if !containsCode(item.Codes, code) {
		return "", fmt.Errorf("%q code %q is not one of %v", key, code, item.Codes)
	}
	return code, nil
}

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// scaleValue accepts json numbers and numeric strings, rejecting anything
// that is not an integer.
func scaleValue(fragment any) (int, error) {
	switch v := fragment.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("value %v is not an integer", v)
		}
		return int(v), nil
	case int:
		return v, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("value %q does not parse as an integer", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("expected an integer value")
	}
}
