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

package pbsmon

import (
	"PBSFrontEnd/internal/pbs"
	"PBSFrontEnd/internal/util"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
)

// Column widths of the job table, in the order of pbs.Fields.
var columnWidths = []int{20, 35, 30, 50, 6, 8, 10, 10}

type TableOptions struct {
	Full     bool
	NoHeader bool
}

// PrintJobTable writes jobs as a borderless table. Long cells are cut to
// the column width unless Full is set.
func PrintJobTable(w io.Writer, jobs []pbs.Job, opts TableOptions) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs to display.")
		return
	}

	table := tablewriter.NewWriter(w)
	util.SetBorderlessTable(table)

	tableData := make([][]string, len(jobs))
	for i := range jobs {
		tableData[i] = jobs[i].Row()
	}
	if !opts.Full {
		util.TrimTableWidths(tableData, columnWidths)
	}

	if !opts.NoHeader {
		table.SetHeader(pbs.Fields)
	}
	table.AppendBulk(tableData)
	table.Render()
}

func PrintJobJson(w io.Writer, jobs []pbs.Job) error {
	out, err := pbs.EncodeJobs(jobs)
	if err != nil {
		return util.WrapCmdErr(util.ErrorGeneric, "Failed to encode jobs: %v", err)
	}
	fmt.Fprintln(w, out)
	return nil
}

// PrintFetchResults reports, per server, how many jobs were found or why
// the query failed.
func PrintFetchResults(w io.Writer, results []pbs.ServerResult) {
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "  %-20s %-30s failed: %v\n", r.Server.Name, r.Server.Hostname, r.Err)
			continue
		}
		fmt.Fprintf(w, "  %-20s %-30s %d job(s)\n", r.Server.Name, r.Server.Hostname, len(r.Jobs))
	}
}

func failedServers(results []pbs.ServerResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
