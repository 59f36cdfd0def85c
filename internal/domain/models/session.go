package models

// WildcardScope matches every symbol.
const WildcardScope = "*"

// SessionDefinition is a named, timezone-local trading window with QC thresholds.
// LocalStart and LocalEnd are "HH:MM" wall-clock times; End < Start wraps midnight.
type SessionDefinition struct {
	ID           int64   `yaml:"id" json:"id"`
	Seq          int64   `yaml:"-" json:"-"`
	SymbolScope  string  `yaml:"symbol" json:"symbol" validate:"required"`
	Name         string  `yaml:"name" json:"name" validate:"required,max=64"`
	Timezone     string  `yaml:"tz" json:"tz" validate:"required"`
	LocalStart   string  `yaml:"start" json:"start" validate:"required"`
	LocalEnd     string  `yaml:"end" json:"end" validate:"required"`
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	MinFillRatio float64 `yaml:"min_fill_ratio" json:"min_fill_ratio" validate:"gt=0,lte=1"`
	MinBarsAbs   int     `yaml:"min_bars_abs" json:"min_bars_abs" validate:"gte=0"`
}

// AppliesTo reports whether the definition's scope covers symbol.
func (d SessionDefinition) AppliesTo(symbol string) bool {
	return d.SymbolScope == WildcardScope || d.SymbolScope == symbol
}
