// Package domain holds the pure types of the habit progression engine.
// Nothing in here touches storage, transport or the clock.
package domain

import (
	"fmt"
	"strings"
)

// ─── Stat Types ─────────────────────────────────────────────────────────────

// StatType names one of the six character attributes a habit trains.
type StatType string

const (
	StatVIT StatType = "VIT"
	StatINT StatType = "INT"
	StatMND StatType = "MND"
	StatDEX StatType = "DEX"
	StatCHA StatType = "CHA"
	StatSTR StatType = "STR"
)

// AllStats is the canonical stat order. Anything that iterates stats for
// output (evaluation conditions, profile rendering) uses this order.
var AllStats = []StatType{StatVIT, StatINT, StatMND, StatDEX, StatCHA, StatSTR}

// Valid reports whether s is one of the six known stats.
func (s StatType) Valid() bool {
	switch s {
	case StatVIT, StatINT, StatMND, StatDEX, StatCHA, StatSTR:
		return true
	}
	return false
}

// FullName returns the long English name used in displays.
func (s StatType) FullName() string {
	switch s {
	case StatVIT:
		return "Vitality"
	case StatINT:
		return "Intelligence"
	case StatMND:
		return "Mental"
	case StatDEX:
		return "Dexterity"
	case StatCHA:
		return "Charisma"
	case StatSTR:
		return "Strength"
	}
	return string(s)
}

// ParseStatType accepts the short code in any case.
func ParseStatType(s string) (StatType, error) {
	st := StatType(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", &InvalidInputError{Field: "statType", Reason: fmt.Sprintf("unknown stat %q", s)}
	}
	return st, nil
}

// StatProgress is the level/exp pair for a single stat.
type StatProgress struct {
	Level int   `json:"level"`
	Exp   int64 `json:"exp"`
}

// StatBlock holds all six stat pairs as named fields.
type StatBlock struct {
	VIT StatProgress `json:"vit"`
	INT StatProgress `json:"int"`
	MND StatProgress `json:"mnd"`
	DEX StatProgress `json:"dex"`
	CHA StatProgress `json:"cha"`
	STR StatProgress `json:"str"`
}

// NewStatBlock returns the starting block: every stat at level 1, no exp.
func NewStatBlock() StatBlock {
	start := StatProgress{Level: 1}
	return StatBlock{VIT: start, INT: start, MND: start, DEX: start, CHA: start, STR: start}
}

// Get returns the pair for s. Unknown stats yield the zero value.
func (b StatBlock) Get(s StatType) StatProgress {
	switch s {
	case StatVIT:
		return b.VIT
	case StatINT:
		return b.INT
	case StatMND:
		return b.MND
	case StatDEX:
		return b.DEX
	case StatCHA:
		return b.CHA
	case StatSTR:
		return b.STR
	}
	return StatProgress{}
}

// Set replaces the pair for s. Unknown stats are ignored.
func (b *StatBlock) Set(s StatType, p StatProgress) {
	switch s {
	case StatVIT:
		b.VIT = p
	case StatINT:
		b.INT = p
	case StatMND:
		b.MND = p
	case StatDEX:
		b.DEX = p
	case StatCHA:
		b.CHA = p
	case StatSTR:
		b.STR = p
	}
}

// Levels returns the stat levels keyed by stat type.
func (b StatBlock) Levels() map[StatType]int {
	out := make(map[StatType]int, len(AllStats))
	for _, s := range AllStats {
		out[s] = b.Get(s).Level
	}
	return out
}
