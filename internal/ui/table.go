package ui

import "github.com/icarus-itcs/lazyedge/internal/device"

// Overview sections.
const (
	SectionDevices = 0
	SectionActions = 1
)

// Row heights are kept in layout units and converted to terminal lines.
const (
	deviceRowHeight = 72
	actionRowHeight = 110
	unitsPerLine    = 36
)

// RowKind identifies what an overview row shows.
type RowKind int

const (
	RowPlaceholder RowKind = iota
	RowDevice
	RowAction
)

// Row is one selectable line group of the overview.
type Row struct {
	Section int
	Index   int
	Kind    RowKind
	Device  device.Device
}

const numberOfSections = 2

// numberOfRows returns the row count of a section. The device section
// always has at least the placeholder row.
func numberOfRows(section int, devices []device.Device) int {
	switch section {
	case SectionDevices:
		if len(devices) == 0 {
			return 1
		}
		return len(devices)
	case SectionActions:
		return 1
	}
	return 0
}

// RowHeight returns the height of rows in section, in layout units.
func RowHeight(section int) int {
	if section == SectionActions {
		return actionRowHeight
	}
	return deviceRowHeight
}

// Lines converts a layout height to terminal lines, rounding up.
func Lines(height int) int {
	return (height + unitsPerLine - 1) / unitsPerLine
}

// Rows flattens the sections in display order.
func Rows(devices []device.Device) []Row {
	rows := make([]Row, 0, len(devices)+2)
	for section := 0; section < numberOfSections; section++ {
		for i := 0; i < numberOfRows(section, devices); i++ {
			rows = append(rows, rowAt(section, i, devices))
		}
	}
	return rows
}

func rowAt(section, index int, devices []device.Device) Row {
	row := Row{Section: section, Index: index}
	switch {
	case section == SectionActions:
		row.Kind = RowAction
	case len(devices) == 0:
		row.Kind = RowPlaceholder
	default:
		row.Kind = RowDevice
		row.Device = devices[index]
	}
	return row
}

// PlaceholderText is shown in the device section while it has no rows.
func PlaceholderText(loading bool) string {
	if loading {
		return "Loading devices…"
	}
	return "No devices bookmarked"
}

const actionTitle = "Discover devices"
