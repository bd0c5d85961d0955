package instrument

import "fmt"

// The built-in catalog mirrors the published question sets of the seven
// supported instruments. Item counts are fixed at publication time; scoring
// depends on the per-item metadata declared here, never on item ordering.

var discCodes = []string{"D", "I", "S", "C"}

const (
	SubscaleInterest = "interest"
	SubscaleSelf     = "self"
)

func builtinCatalog() []*Instrument {
	return []*Instrument{
		discInstrument(),
		gardnerInstrument(),
		hollandInstrument(),
		mbtiInstrument(),
		neoInstrument(),
		pvqInstrument(),
		swansonInstrument(),
	}
}

func discInstrument() *Instrument {
	items := make([]Item, 0, 24)
	for i := 1; i <= 24; i++ {
		items = append(items, Item{
			ID:    fmt.Sprintf("disc-%d", i),
			Kind:  KindMostLeast,
			Codes: discCodes,
		})
	}
	return newInstrument("disc", "DISC Behavioral Profile", discCodes, items)
}

func gardnerInstrument() *Instrument {
	dims := []string{
		"linguistic", "logical-mathematical", "spatial", "bodily-kinesthetic",
		"musical", "interpersonal", "intrapersonal", "naturalistic",
	}
	items := make([]Item, 0, len(dims)*3)
	n := 0
	for _, dim := range dims {
		for j := 0; j < 3; j++ {
			n++
			weight := 1
			// the last statement of each block is negatively keyed
			if j == 2 {
				weight = -1
			}
			items = append(items, Item{
				ID:        fmt.Sprintf("gardner-%d", n),
				Kind:      KindBool,
				Dimension: dim,
				Weight:    weight,
			})
		}
	}
	return newInstrument("gardner", "Gardner Multiple Intelligences", dims, items)
}

func hollandInstrument() *Instrument {
	dims := []string{
		"realistic", "investigative", "artistic",
		"social", "enterprising", "conventional",
	}
	items := make([]Item, 0, len(dims)*4)
	n := 0
	for _, dim := range dims {
		for j := 0; j < 2; j++ {
			n++
			items = append(items, Item{
				ID:        fmt.Sprintf("holland-%d", n),
				Kind:      KindScale,
				Min:       0,
				Max:       6,
				Dimension: dim,
				Weight:    1,
				Subscale:  SubscaleInterest,
			})
		}
		for j := 0; j < 2; j++ {
			n++
			items = append(items, Item{
				ID:        fmt.Sprintf("holland-%d", n),
				Kind:      KindScale,
				Min:       1,
				Max:       7,
				Dimension: dim,
				Weight:    1,
				Subscale:  SubscaleSelf,
			})
		}
	}
	return newInstrument("holland", "Holland RIASEC Interest Inventory", dims, items)
}

func mbtiInstrument() *Instrument {
	axes := []struct {
		axis  string
		left  string
		right string
	}{
		{"EI", "E", "I"},
		{"SN", "S", "N"},
		{"TF", "T", "F"},
		{"JP", "J", "P"},
	}
	items := make([]Item, 0, len(axes)*5)
	n := 0
	for _, ax := range axes {
		for j := 0; j < 5; j++ {
			n++
			items = append(items, Item{
				ID:    fmt.Sprintf("mbti-%d", n),
				Kind:  KindCategorical,
				Codes: []string{"a", "b"},
				Axis:  ax.axis,
				Poles: map[string]string{"a": ax.left, "b": ax.right},
			})
		}
	}
	return newInstrument("mbti", "Myers-Briggs Type Indicator", []string{"EI", "SN", "TF", "JP"}, items)
}

func neoInstrument() *Instrument {
	dims := []string{
		"neuroticism", "extraversion", "openness",
		"agreeableness", "conscientiousness",
	}
	items := make([]Item, 0, len(dims)*4)
	n := 0
	for _, dim := range dims {
		for j := 0; j < 4; j++ {
			n++
			weight := 1
			if j == 3 {
				weight = -1
			}
			items = append(items, Item{
				ID:        fmt.Sprintf("neo-%d", n),
				Kind:      KindScale,
				Min:       0,
				Max:       4,
				Dimension: dim,
				Weight:    weight,
			})
		}
	}
	return newInstrument("neo", "NEO Five-Factor Inventory", dims, items)
}

func pvqInstrument() *Instrument {
	dims := []string{
		"self-direction", "stimulation", "hedonism", "achievement", "power",
		"security", "conformity", "tradition", "benevolence", "universalism",
	}
	items := make([]Item, 0, len(dims)*2)
	n := 0
	for _, dim := range dims {
		for j := 0; j < 2; j++ {
			n++
			items = append(items, Item{
				ID:        fmt.Sprintf("pvq-%d", n),
				Kind:      KindScale,
				Min:       0,
				Max:       5,
				Dimension: dim,
				Weight:    1,
			})
		}
	}
	return newInstrument("pvq", "Portrait Values Questionnaire", dims, items)
}

func swansonInstrument() *Instrument {
	blocks := []struct {
		dim   string
		count int
	}{
		{"inattention", 6},
		{"hyperactivity-impulsivity", 6},
		{"oppositional", 4},
	}
	dims := make([]string, 0, len(blocks))
	items := make([]Item, 0, 16)
	n := 0
	for _, b := range blocks {
		dims = append(dims, b.dim)
		for j := 0; j < b.count; j++ {
			n++
			items = append(items, Item{
				ID:        fmt.Sprintf("swanson-%d", n),
				Kind:      KindScale,
				Min:       0,
				Max:       3,
				Dimension: b.dim,
				Weight:    1,
			})
		}
	}
	return newInstrument("swanson", "Swanson SNAP Rating Scale", dims, items)
}
