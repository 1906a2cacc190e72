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
	"context"
	"errors"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
)

var separator = strings.Repeat("=", 70)

// Menu entries of the sort prompt, in display order.
var sortChoices = []struct {
	label string
	key   string
}{
	{"JobID", pbs.KeyJobID},
	{"Job Name", pbs.KeyJobName},
	{"CPUs", pbs.KeyCPUs},
	{"Status", pbs.KeyStatus},
	{"Owner", pbs.KeyOwner},
	{"Server", pbs.KeyServer},
	{"Memory", pbs.KeyMemory},
}

func (c *Console) printBanner(title string) {
	c.printf("\n%s\n%s%s\n%s\n", separator, strings.Repeat(" ", max(0, (70-len(title))/2)), title, separator)
}

func (c *Console) printMenu() {
	c.println(separator)
	c.println("         PBS PRO Job Monitor & Submitter")
	c.println(separator)
	c.println("\n[1] Display All Jobs")
	c.println("[2] Display Jobs (Sorted)")
	c.println("[3] Filter Jobs by Status")
	c.println("[4] Filter Jobs by Owner")
	c.println("[5] Submit New Job")
	c.println("[6] Kill Job")
	c.println("[7] View Job Log")
	c.println("[8] Refresh Job List")
	c.println("[0] Exit")
	c.printf("\n%s\n", separator)
}

// refresh fetches all servers and reports the outcome of each.
func (c *Console) refresh(ctx context.Context) {
	c.println("\nFetching jobs from all servers...")
	PrintFetchResults(c.out, c.Manager.FetchAll(ctx))
	c.println()
}

func (c *Console) display(jobs []pbs.Job, sortKey string) {
	if err := pbs.SortJobs(jobs, sortKey); err != nil {
		log.Errorln(err)
		return
	}
	c.println()
	PrintJobTable(c.out, jobs, TableOptions{})
	c.println()
}

// RunMenu shows the startup summary, fetches the job list once and serves
// the numbered menu until the operator exits or the input ends.
func (c *Console) RunMenu(ctx context.Context) error {
	c.printBanner("PBS PRO Job Monitor - Startup")
	c.PrintSummary()
	c.refresh(ctx)

	for {
		c.printMenu()
		choice, err := c.readLine("Enter your choice: ")
		if err != nil {
			return c.menuInputErr(err)
		}

		if choice == "0" {
			c.println("\nGoodbye!")
			return nil
		}
		if err := c.menuAction(ctx, choice); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			c.reportErr(err)
		}

		if _, err := c.readLine("\nPress Enter to continue..."); err != nil {
			return c.menuInputErr(err)
		}
		c.printf("\n\n")
	}
}

func (c *Console) menuInputErr(err error) error {
	if errors.Is(err, io.EOF) {
		c.println()
		return nil
	}
	return util.WrapCmdErr(util.ErrorGeneric, "Reading input failed: %v", err)
}

func (c *Console) reportErr(err error) {
	var cmdErr *util.CmdError
	if errors.As(err, &cmdErr) && cmdErr.Message == "" {
		return
	}
	c.printf("\nError: %v\n", err)
}

func (c *Console) menuAction(ctx context.Context, choice string) error {
	switch choice {
	case "1":
		c.display(c.Manager.Jobs(), pbs.KeyJobID)

	case "2":
		key, err := c.promptSortKey()
		if err != nil {
			return err
		}
		c.display(c.Manager.Jobs(), key)

	case "3":
		status, err := c.readLine("\nEnter status (R/Q): ")
		if err != nil {
			return err
		}
		status = strings.ToUpper(status)
		c.printf("\nJobs with status '%s':\n", status)
		c.display(pbs.FilterByStatus(c.Manager.Jobs(), status), pbs.KeyJobID)

	case "4":
		owner, err := c.readLine("\nEnter owner username: ")
		if err != nil {
			return err
		}
		c.printf("\nJobs owned by '%s':\n", owner)
		c.display(pbs.FilterByOwner(c.Manager.Jobs(), owner), pbs.KeyJobID)

	case "5":
		submitted, err := c.SubmitInteractive(ctx)
		if err != nil {
			return err
		}
		if submitted {
			return c.refreshAfterChange(ctx)
		}

	case "6":
		return c.killInteractive(ctx)

	case "7":
		c.display(c.Manager.Jobs(), pbs.KeyJobID)
		c.printBanner("View Job Log")
		id, err := c.readLine("\nEnter Job ID (or partial ID): ")
		if err != nil {
			return err
		}
		job, err := c.Manager.FindJob(id)
		if err != nil {
			c.println("Refresh the job list first (option 8) if the job is new.")
			return lookupErr(err)
		}
		return c.followJobLog(ctx, job, false)

	case "8":
		c.refresh(ctx)
		c.display(c.Manager.Jobs(), pbs.KeyJobID)

	default:
		c.println("\nInvalid choice. Please try again.")
	}
	return nil
}

func (c *Console) promptSortKey() (string, error) {
	c.println("\nSort by:")
	for i, choice := range sortChoices {
		c.printf("[%d] %s\n", i+1, choice.label)
	}
	answer, err := c.readLine("\nEnter choice: ")
	if err != nil {
		return "", err
	}
	for i, choice := range sortChoices {
		if answer == string(rune('1'+i)) {
			return choice.key, nil
		}
	}
	return pbs.KeyJobID, nil
}

func (c *Console) refreshAfterChange(ctx context.Context) error {
	if _, err := c.readLine("\nPress Enter to refresh job list..."); err != nil {
		return err
	}
	c.refresh(ctx)
	c.display(c.Manager.Jobs(), pbs.KeyJobID)
	return nil
}

func (c *Console) killInteractive(ctx context.Context) error {
	c.printBanner("Kill Job")
	id, err := c.readLine("\nEnter Job ID (or partial ID): ")
	if err != nil {
		return err
	}
	job, err := c.Manager.FindJob(id)
	if err != nil {
		c.println("Refresh the job list first (option 8) if the job is new.")
		return lookupErr(err)
	}
	if err := c.killJob(ctx, job); err != nil {
		return err
	}

	answer, err := c.readLine("\nDelete job directory (y/n): ")
	if err != nil {
		return err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		if err := c.purgeJob(ctx, job); err != nil {
			c.reportErr(err)
		}
	case "n", "no":
		c.printf("Retained job directory: %s\n", job.JobPath)
	default:
		c.println("Invalid choice, job directory retained.")
	}

	return c.refreshAfterChange(ctx)
}
