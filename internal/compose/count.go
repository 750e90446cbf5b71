package compose

import (
	"nai-prompt-bot/internal/engine"
	"nai-prompt-bot/internal/preset"
)

// CountPick is the drawn character count.
type CountPick struct {
	Category string
	Option   string
	Tag      string
	// Slots holds one gender per character; GenderNone when the option
	// does not say.
	Slots []preset.Gender
}

// Pick draws a category by weight among those that can produce a result,
// then one of its enabled options by weight. A category with Count 0 needs
// no options.
func Pick(cfg *preset.CharacterCountConfig, rng *engine.RNG) (CountPick, error) {
	var cats []*preset.CharacterCountCategory
	var weights []float64
	for i := range cfg.Categories {
		cat := &cfg.Categories[i]
		if cat.Weight <= 0 {
			continue
		}
		if cat.Count > 0 && len(enabledOptions(cat)) == 0 {
			continue
		}
		cats = append(cats, cat)
		weights = append(weights, float64(cat.Weight))
	}
	if len(cats) == 0 {
		return CountPick{}, ErrNoCountCategory
	}
	cat := cats[rng.WeightedIndex(weights)]

	pick := CountPick{Category: cat.ID}
	opts := enabledOptions(cat)
	if len(opts) > 0 {
		ow := make([]float64, len(opts))
		for i, o := range opts {
			ow[i] = float64(o.Weight)
		}
		opt := opts[rng.WeightedIndex(ow)]
		pick.Option = opt.ID
		pick.Tag = opt.Tag
		pick.Slots = slotGenders(cat.Count, opt.Slots)
	} else {
		pick.Slots = slotGenders(cat.Count, nil)
	}
	return pick, nil
}

func enabledOptions(cat *preset.CharacterCountCategory) []*preset.CharacterTagOption {
	var out []*preset.CharacterTagOption
	for i := range cat.TagOptions {
		if cat.TagOptions[i].Enabled {
			out = append(out, &cat.TagOptions[i])
		}
	}
	return out
}

func slotGenders(count int, declared []preset.Gender) []preset.Gender {
	if count <= 0 {
		return nil
	}
	out := make([]preset.Gender, count)
	copy(out, declared)
	return out
}

// DefaultConfig is used for presets without their own character count
// configuration.
func DefaultConfig() *preset.CharacterCountConfig {
	f, m := preset.GenderFemale, preset.GenderMale
	opt := func(id, tag string, weight int, slots ...preset.Gender) preset.CharacterTagOption {
		return preset.CharacterTagOption{ID: id, Tag: tag, Weight: weight, Enabled: true, Slots: slots}
	}
	return &preset.CharacterCountConfig{Categories: []preset.CharacterCountCategory{
		{ID: "solo", Name: "Solo", Count: 1, Weight: 70, TagOptions: []preset.CharacterTagOption{
			opt("solo_girl", "solo, 1girl", 70, f),
			opt("solo_boy", "solo, 1boy", 30, m),
		}},
		{ID: "duo", Name: "Duo", Count: 2, Weight: 20, TagOptions: []preset.CharacterTagOption{
			opt("duo_girls", "2girls", 50, f, f),
			opt("duo_mixed", "1girl, 1boy", 35, f, m),
			opt("duo_boys", "2boys", 15, m, m),
		}},
		{ID: "trio", Name: "Trio", Count: 3, Weight: 7, TagOptions: []preset.CharacterTagOption{
			opt("trio_girls", "3girls", 60, f, f, f),
			opt("trio_mixed", "2girls, 1boy", 40, f, f, m),
		}},
		{ID: "none", Name: "No humans", Count: 0, Weight: 3, TagOptions: []preset.CharacterTagOption{
			opt("none", "no humans", 100),
		}},
	}}
}
