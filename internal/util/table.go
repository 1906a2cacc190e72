/**
 * Copyright (c) 2024 Peking University and Peking University
 * Changsha Institute for Computing and Digital Economy
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package util

import (
	"github.com/olekukonko/tablewriter"
)

func SetBorderlessTable(table *tablewriter.Table) {
	table.SetBorder(false)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(true)
	table.SetCenterSeparator(" ")
	table.SetColumnSeparator("")
	table.SetRowSeparator("-")
	table.SetTablePadding(" ")
	table.SetNoWhiteSpace(true)
}

// TrimCell shortens cell to at most width bytes, marking the cut with `...`.
// A non-positive width disables trimming.
func TrimCell(cell string, width int) string {
	if width <= 0 || len(cell) <= width {
		return cell
	}
	if width <= 3 {
		return cell[:width]
	}
	return cell[:width-3] + "..."
}

// TrimTableWidths trims every cell of column j to widths[j]. Columns beyond
// the end of widths are left alone.
func TrimTableWidths(rows [][]string, widths []int) {
	for i, row := range rows {
		for j, cell := range row {
			if j >= len(widths) {
				continue
			}
			rows[i][j] = TrimCell(cell, widths[j])
		}
	}
}
