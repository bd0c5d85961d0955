// Package scoring turns a frozen, fully validated response map into a score
// profile. Every scoring function is a pure aggregation: deterministic, no
// side effects, total over input that passed per-item validation and covers
// the full item set. A failure here is a catalog defect, not a user error.
package scoring

import (
	"fmt"

	"github.com/talentroute/assessd/internal/instrument"
)

// Profile is the computed per-dimension result of a completed attempt.
// Instrument families populate different sections; a section absent for an
// instrument is omitted from the serialized form.
type Profile struct {
	InstrumentID string             `json:"instrumentId"`
	Dimensions   map[string]float64 `json:"dimensions"`

	// Normalized rescales Dimensions onto 0-100 across the instrument's
	// theoretical range (disc).
	Normalized map[string]float64 `json:"normalized,omitempty"`

	// Averages divides each dimension total by its item count
	// (gardner, neo, pvq, swanson).
	Averages map[string]float64 `json:"averages,omitempty"`

	// Subscales reports independent component sums per dimension (holland).
	Subscales map[string]map[string]float64 `json:"subscales,omitempty"`

	// Traits carries categorical results such as the dominant pole per
	// axis and the four-letter type (mbti).
	Traits map[string]string `json:"traits,omitempty"`
}

// Func computes a profile from an instrument definition and its complete
// validated response map.
type Func func(ins *instrument.Instrument, responses map[string]instrument.Answer) (*Profile, error)

// Engine selects the scoring function registered for an instrument id.
type Engine struct {
	funcs map[string]Func
}

// NewEngine returns an engine with the built-in scoring functions registered.
func NewEngine() *Engine {
	return &Engine{funcs: map[string]Func{
		"disc":    scoreDISC,
		"gardner": scoreWeightedSum,
		"holland": scoreHolland,
		"mbti":    scoreMBTI,
		"neo":     scoreWeightedSum,
		"pvq":     scoreWeightedSum,
		"swanson": scoreWeightedSum,
	}}
}

// Score runs the instrument's scoring function over the responses.
func (e *Engine) Score(ins *instrument.Instrument, responses map[string]instrument.Answer) (*Profile, error) {
	fn, ok := e.funcs[ins.ID]
	if !ok {
		return nil, fmt.Errorf("no scoring function registered for instrument %s", ins.ID)
	}
	profile, err := fn(ins, responses)
	if err != nil {
		return nil, fmt.Errorf("scoring %s: %w", ins.ID, err)
	}
	return profile, nil
}

func answerFor(ins *instrument.Instrument, responses map[string]instrument.Answer, itemID string) (instrument.Answer, error) {
	answer, ok := responses[itemID]
	if !ok {
		return instrument.Answer{}, fmt.Errorf("response map is missing item %s", itemID)
	}
	return answer, nil
}

// scoreDISC tallies +1 for each "most like me" code and -1 for each "least
// like me" code, then min-max rescales onto 0-100 across the theoretical
// range of +/- item count.
func scoreDISC(ins *instrument.Instrument, responses map[string]instrument.Answer) (*Profile, error) {
	totals := make(map[string]float64, len(ins.Dimensions))
	for _, dim := range ins.Dimensions {
		totals[dim] = 0
	}

	for _, item := range ins.Items() {
		answer, err := answerFor(ins, responses, item.ID)
		if err != nil {
			return nil, err
		}
		totals[answer.Most]++
		totals[answer.Least]--
	}

	span := float64(ins.Len())
	normalized := make(map[string]float64, len(totals))
	for dim, total := range totals {
		normalized[dim] = (total + span) / (2 * span) * 100
	}

	return &Profile{
		InstrumentID: ins.ID,
		Dimensions:   totals,
		Normalized:   normalized,
	}, nil
}

// scoreWeightedSum handles the instruments whose items each map to exactly
// one dimension with a declared +/-1 weight: booleans contribute their weight
// when affirmed, scale values contribute weight*value.
func scoreWeightedSum(ins *instrument.Instrument, responses map[string]instrument.Answer) (*Profile, error) {
	totals := make(map[string]float64, len(ins.Dimensions))
	counts := make(map[string]int, len(ins.Dimensions))
	for _, dim := range ins.Dimensions {
		totals[dim] = 0
	}

	for _, item := range ins.Items() {
		answer, err := answerFor(ins, responses, item.ID)
		if err != nil {
			return nil, err
		}
		counts[item.Dimension]++
		switch item.Kind {
		case instrument.KindBool:
			if answer.Flag {
				totals[item.Dimension] += float64(item.Weight)
			}
		case instrument.KindScale:
			totals[item.Dimension] += float64(item.Weight) * float64(answer.Scale)
		default:
			return nil, fmt.Errorf("item %s has kind %s, not summable", item.ID, item.Kind)
		}
	}

	averages := make(map[string]float64, len(totals))
	for dim, total := range totals {
		if counts[dim] > 0 {
			averages[dim] = total / float64(counts[dim])
		}
	}

	return &Profile{
		InstrumentID: ins.ID,
		Dimensions:   totals,
		Averages:     averages,
	}, nil
}

// scoreHolland sums interest and self-assessment sub-scales independently
// per RIASEC dimension and reports both the components and the combined sum.
func scoreHolland(ins *instrument.Instrument, responses map[string]instrument.Answer) (*Profile, error) {
	combined := make(map[string]float64, len(ins.Dimensions))
	subscales := make(map[string]map[string]float64, len(ins.Dimensions))
	for _, dim := range ins.Dimensions {
		combined[dim] = 0
		subscales[dim] = map[string]float64{
			instrument.SubscaleInterest: 0,
			instrument.SubscaleSelf:     0,
		}
	}

	for _, item := range ins.Items() {
		answer, err := answerFor(ins, responses, item.ID)
		if err != nil {
			return nil, err
		}
		value := float64(item.Weight) * float64(answer.Scale)
		combined[item.Dimension] += value
		subscales[item.Dimension][item.Subscale] += value
	}

	return &Profile{
		InstrumentID: ins.ID,
		Dimensions:   combined,
		Subscales:    subscales,
	}, nil
}

// scoreMBTI counts the chosen pole per item and reports raw counts per pole
// plus the dominant pole of each bipolar axis. Ties break toward the first
// pole of the axis.
func scoreMBTI(ins *instrument.Instrument, responses map[string]instrument.Answer) (*Profile, error) {
	counts := make(map[string]float64)
	axisPoles := make(map[string][2]string)
	axisOrder := make([]string, 0, 4)

	for _, item := range ins.Items() {
		if _, seen := axisPoles[item.Axis]; !seen {
			axisPoles[item.Axis] = [2]string{item.Poles["a"], item.Poles["b"]}
			axisOrder = append(axisOrder, item.Axis)
			counts[item.Poles["a"]] = 0
			counts[item.Poles["b"]] = 0
		}
		answer, err := answerFor(ins, responses, item.ID)
		if err != nil {
			return nil, err
		}
		pole, ok := item.Poles[answer.Code]
		if !ok {
			return nil, fmt.Errorf("item %s declares no pole for code %q", item.ID, answer.Code)
		}
		counts[pole]++
	}

	traits := make(map[string]string, len(axisOrder)+1)
	typeCode := ""
	for _, axis := range axisOrder {
		poles := axisPoles[axis]
		dominant := poles[0]
		if counts[poles[1]] > counts[poles[0]] {
			dominant = poles[1]
		}
		traits[axis] = dominant
		typeCode += dominant
	}
	traits["type"] = typeCode

	return &Profile{
		InstrumentID: ins.ID,
		Dimensions:   counts,
		Traits:       traits,
	}, nil
}
