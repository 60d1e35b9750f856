// Package widgets holds the stateless terminal render primitives blocks
// draw with: framed panels, bar charts, sparklines, tables, stat rows,
// stacks, grids and a popup compositor.
//
// Widgets never fetch data or handle keys. Every widget renders into a
// fixed width and height and must not exceed them.
package widgets
