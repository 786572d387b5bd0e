package habits

import (
	"errors"
	"fmt"
	"sort"
)

// Kind is the closed set of self-reported habits a user can log.
type Kind string

const (
	Water         Kind = "water"
	Sleep         Kind = "sleep"
	Cryotherapy   Kind = "cryotherapy"
	Fasting       Kind = "fasting"
	Nutrition     Kind = "nutrition"
	Meditation    Kind = "meditation"
	Exercise      Kind = "exercise"
	Sunlight      Kind = "sunlight"
	SocialContact Kind = "social_contact"
	Sauna         Kind = "sauna"
	Massage       Kind = "massage"
	Breathing     Kind = "breathing"
	Journaling    Kind = "journaling"
	Grounding     Kind = "grounding"
	Supplements   Kind = "supplements"
	Caffeine      Kind = "caffeine"
	Alcohol       Kind = "alcohol"
	ActiveRest    Kind = "active_rest"
	Other         Kind = "other"
)

var ErrUnknownKind = errors.New("unknown habit kind")

// Shape is the payload form a kind's value takes.
type Shape int

const (
	ShapeStructured Shape = iota
	ShapeBoolean
	ShapeNumeric
)

func (s Shape) String() string {
	switch s {
	case ShapeBoolean:
		return "boolean"
	case ShapeNumeric:
		return "numeric"
	default:
		return "structured"
	}
}

var shapes = map[Kind]Shape{
	Water:         ShapeNumeric, // glasses
	Sleep:         ShapeNumeric, // hours
	Cryotherapy:   ShapeNumeric, // minutes
	Fasting:       ShapeNumeric, // hours
	Nutrition:     ShapeStructured,
	Meditation:    ShapeNumeric, // minutes
	Exercise:      ShapeNumeric, // minutes
	Sunlight:      ShapeNumeric, // minutes
	SocialContact: ShapeBoolean,
	Sauna:         ShapeNumeric, // minutes
	Massage:       ShapeBoolean,
	Breathing:     ShapeNumeric, // minutes
	Journaling:    ShapeBoolean,
	Grounding:     ShapeBoolean,
	Supplements:   ShapeBoolean,
	Caffeine:      ShapeNumeric, // mg
	Alcohol:       ShapeNumeric, // drinks
	ActiveRest:    ShapeBoolean,
	Other:         ShapeStructured,
}

// ParseKind validates s against the known kinds.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := shapes[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Shape reports the payload shape for k. Unknown kinds are structured.
func (k Kind) Shape() Shape {
	return shapes[k]
}

func (k Kind) Valid() bool {
	_, ok := shapes[k]
	return ok
}

// AllKinds returns every kind in lexical order.
func AllKinds() []Kind {
	out := make([]Kind, 0, len(shapes))
	for k := range shapes {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Category groups kinds for streak reporting.
type Category string

const (
	CategoryHydration  Category = "hydration"
	CategoryNutrition  Category = "nutrition"
	CategoryRecovery   Category = "recovery"
	CategorySleep      Category = "sleep"
	CategoryStress     Category = "stress"
	CategoryNature     Category = "nature"
	CategoryStimulants Category = "stimulants"
)

// Categories maps each category to its member kinds.
var Categories = map[Category][]Kind{
	CategoryHydration:  {Water},
	CategoryNutrition:  {Nutrition, Fasting, Supplements},
	CategoryRecovery:   {Cryotherapy, Sauna, Massage, ActiveRest},
	CategorySleep:      {Sleep},
	CategoryStress:     {Meditation, Journaling, Breathing, SocialContact},
	CategoryNature:     {Sunlight, Grounding},
	CategoryStimulants: {Caffeine, Alcohol},
}

// CategoryNames returns the categories in a stable order.
func CategoryNames() []Category {
	return []Category{
		CategoryHydration, CategoryNutrition, CategoryRecovery, CategorySleep,
		CategoryStress, CategoryNature, CategoryStimulants,
	}
}
