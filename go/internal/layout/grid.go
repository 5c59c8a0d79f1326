// Package layout projects a sparse building list onto a dense floor/slot grid.
package layout

import (
	"github.com/mcdev12/idoltower/go/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultMinWidth is the narrowest grid ever produced for a non-empty building list.
	DefaultMinWidth = 20

	// DefaultFallbackFootprint is used when a building type has no usable slot footprint.
	DefaultFallbackFootprint = 2

	// OriginSlot is the slot shown in the first grid column.
	OriginSlot = 0

	// MaxFloors and MaxSlots bound the grid. Buildings reaching past them are not placed.
	MaxFloors = 1024
	MaxSlots  = 4096
)

// CellKind tags the variant held by a Cell.
type CellKind uint8

const (
	CellEmpty CellKind = iota
	CellOccupied
	CellElevatorBuildable
)

func (k CellKind) String() string {
	switch k {
	case CellEmpty:
		return "empty"
	case CellOccupied:
		return "occupied"
	case CellElevatorBuildable:
		return "elevator_buildable"
	default:
		return "unknown"
	}
}

// Cell is one floor/slot position. Building is set only for CellOccupied.
type Cell struct {
	Kind     CellKind
	Building *models.Building
}

// Empty returns an unoccupied cell.
func Empty() Cell { return Cell{Kind: CellEmpty} }

// Occupied returns a cell held by b.
func Occupied(b *models.Building) Cell { return Cell{Kind: CellOccupied, Building: b} }

// ElevatorBuildable returns the derived marker for a free cell directly above an elevator.
func ElevatorBuildable() Cell { return Cell{Kind: CellElevatorBuildable} }

// IsEmpty reports whether the cell holds nothing.
func (c Cell) IsEmpty() bool { return c.Kind == CellEmpty }

// IsOccupied reports whether a building holds the cell.
func (c Cell) IsOccupied() bool { return c.Kind == CellOccupied && c.Building != nil }

// Grid is the dense layout. Cells is indexed [floor][slot-OriginSlot].
type Grid struct {
	Cells      [][]Cell
	OriginSlot int
}

// Height returns the number of floors, including the planning floor on top.
func (g Grid) Height() int { return len(g.Cells) }

// Width returns the number of slot columns.
func (g Grid) Width() int {
	if len(g.Cells) == 0 {
		return 0
	}
	return len(g.Cells[0])
}

// At returns the cell at floor and slot. The boolean is false outside the grid.
func (g Grid) At(floor, slot int) (Cell, bool) {
	col := slot - g.OriginSlot
	if floor < 0 || floor >= len(g.Cells) || col < 0 || col >= len(g.Cells[floor]) {
		return Cell{}, false
	}
	return g.Cells[floor][col], true
}

// IsContinuation reports whether the cell at floor and slot is held by the same building as
// the slot to its left. Renderers draw one widget per building and skip continuations.
func (g Grid) IsContinuation(floor, slot int) bool {
	cur, ok := g.At(floor, slot)
	if !ok || !cur.IsOccupied() {
		return false
	}
	prev, ok := g.At(floor, slot-1)
	return ok && prev.IsOccupied() && prev.Building == cur.Building
}

// Builder converts building lists into grids.
type Builder struct {
	minWidth          int
	fallbackFootprint int
}

// Option configures a Builder.
type Option func(*Builder)

// WithMinWidth overrides DefaultMinWidth.
func WithMinWidth(w int) Option {
	return func(b *Builder) {
		if w > 0 {
			b.minWidth = w
		}
	}
}

// WithFallbackFootprint overrides DefaultFallbackFootprint.
func WithFallbackFootprint(fp int) Option {
	return func(b *Builder) {
		if fp > 0 {
			b.fallbackFootprint = fp
		}
	}
}

// NewBuilder creates a grid builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		minWidth:          DefaultMinWidth,
		fallbackFootprint: DefaultFallbackFootprint,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build lays buildings out on a grid one floor taller than the highest built floor.
// Cells of occupied slots point into the buildings slice, which must not be modified
// while the grid is in use. The first building to claim a cell keeps it.
func (gb *Builder) Build(buildings []models.Building, configs models.ConfigIndex) Grid {
	if len(buildings) == 0 {
		return Grid{OriginSlot: OriginSlot}
	}

	spans := make([]slotSpan, len(buildings))
	maxFloor, maxSlot := 0, 0
	for i := range buildings {
		b := &buildings[i]
		span := gb.span(b, configs)
		if !span.placed {
			continue
		}
		spans[i] = span
		maxFloor = max(maxFloor, b.Floor)
		maxSlot = max(maxSlot, span.last)
	}

	width := max(maxSlot-OriginSlot+1, gb.minWidth)
	height := maxFloor + 2

	cells := make([][]Cell, height)
	for f := range cells {
		cells[f] = make([]Cell, width)
	}

	for i := range buildings {
		b := &buildings[i]
		span := spans[i]
		if !span.placed {
			continue
		}

		for slot := span.first; slot <= span.last; slot++ {
			col := slot - OriginSlot
			if col < 0 {
				log.Warn().
					Str("building_id", b.ID.String()).
					Int("slot", slot).
					Msg("slot left of display origin not placed")
				continue
			}

			cell := &cells[b.Floor][col]
			if cell.Kind != CellEmpty {
				holder := ""
				if cell.Building != nil {
					holder = cell.Building.ID.String()
				}
				log.Warn().
					Str("building_id", b.ID.String()).
					Str("occupied_by", holder).
					Int("floor", b.Floor).
					Int("slot", slot).
					Msg("overlapping buildings; keeping first occupant")
				continue
			}
			*cell = Occupied(b)
		}
	}

	// The top floor is never occupied, so every elevator has a row above it.
	for f := 0; f < height-1; f++ {
		for col, cell := range cells[f] {
			if cell.IsOccupied() && cell.Building.IsElevator() && cells[f+1][col].IsEmpty() {
				cells[f+1][col] = ElevatorBuildable()
			}
		}
	}

	return Grid{Cells: cells, OriginSlot: OriginSlot}
}

type slotSpan struct {
	first, last int
	placed      bool
}

// span returns the slots b occupies. Buildings on a negative floor or reaching past the grid
// bounds are reported as not placed and never size the grid.
func (gb *Builder) span(b *models.Building, configs models.ConfigIndex) slotSpan {
	if b.Floor < 0 {
		log.Warn().
			Str("building_id", b.ID.String()).
			Int("floor", b.Floor).
			Msg("building on negative floor not placed")
		return slotSpan{}
	}

	fp := gb.footprint(b, configs)
	if b.Floor >= MaxFloors || b.SlotOrigin <= -MaxSlots || b.SlotOrigin >= MaxSlots ||
		b.Units() > MaxSlots || fp > MaxSlots {
		log.Warn().
			Str("building_id", b.ID.String()).
			Int("floor", b.Floor).
			Int("slot_origin", b.SlotOrigin).
			Int("units", b.Units()).
			Int("footprint", fp).
			Msg("building outside grid bounds not placed")
		return slotSpan{}
	}

	first, last := b.SlotSpan(fp)
	if last >= MaxSlots {
		log.Warn().
			Str("building_id", b.ID.String()).
			Int("first_slot", first).
			Int("last_slot", last).
			Msg("building outside grid bounds not placed")
		return slotSpan{}
	}
	return slotSpan{first: first, last: last, placed: true}
}

func (gb *Builder) footprint(b *models.Building, configs models.ConfigIndex) int {
	if fp, ok := configs.Footprint(b.Type, b.Level); ok {
		return fp
	}
	log.Debug().
		Str("building_id", b.ID.String()).
		Str("type", b.Type).
		Int("fallback", gb.fallbackFootprint).
		Msg("no slot footprint configured; using fallback")
	return gb.fallbackFootprint
}

// Build lays buildings out with the default builder settings.
func Build(buildings []models.Building, configs models.ConfigIndex) Grid {
	return NewBuilder().Build(buildings, configs)
}
