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

package pbs

import (
	"PBSFrontEnd/internal/util"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const NotAvailable = "N/A"

// Field names of a job record, as emitted by the remote listing script.
const (
	KeyServer  = "Server"
	KeyJobID   = "JobID"
	KeyJobName = "Job_Name"
	KeyJobPath = "Job_Path"
	KeyCPUs    = "CPUs"
	KeyStatus  = "Status"
	KeyOwner   = "Owner"
	KeyMemory  = "Memory"
)

// Fields is the display and encoding order of a job record.
var Fields = []string{KeyServer, KeyJobID, KeyJobName, KeyJobPath, KeyCPUs, KeyStatus, KeyOwner, KeyMemory}

var (
	ErrMalformedOutput = errors.New("malformed job listing")
	ErrUnknownField    = errors.New("unknown job field")
)

// Job is a read-only snapshot of one PBS job as reported by a server.
type Job struct {
	Server  string
	JobID   string
	JobName string
	JobPath string
	CPUs    string
	Status  string
	Owner   string
	Memory  string
}

func (j *Job) Field(key string) string {
	switch key {
	case KeyServer:
		return j.Server
	case KeyJobID:
		return j.JobID
	case KeyJobName:
		return j.JobName
	case KeyJobPath:
		return j.JobPath
	case KeyCPUs:
		return j.CPUs
	case KeyStatus:
		return j.Status
	case KeyOwner:
		return j.Owner
	case KeyMemory:
		return j.Memory
	}
	return ""
}

func (j *Job) Row() []string {
	row := make([]string, len(Fields))
	for i, key := range Fields {
		row[i] = j.Field(key)
	}
	return row
}

func stringField(record gjson.Result, key string) string {
	v := record.Get(key)
	if !v.Exists() || v.Type == gjson.Null {
		return NotAvailable
	}
	return v.String()
}

// ParseJobs decodes the JSON array printed by the listing script. Every job
// is tagged with serverName. Missing fields become N/A.
func ParseJobs(output, serverName string) ([]Job, error) {
	output = strings.TrimSpace(output)
	if output == "" {
		return nil, fmt.Errorf("%w from %s: empty output", ErrMalformedOutput, serverName)
	}
	if !gjson.Valid(output) {
		return nil, fmt.Errorf("%w from %s: invalid JSON", ErrMalformedOutput, serverName)
	}

	listing := gjson.Parse(output)
	if !listing.IsArray() {
		return nil, fmt.Errorf("%w from %s: expected a JSON array", ErrMalformedOutput, serverName)
	}

	jobs := []Job{}
	var parseErr error
	listing.ForEach(func(_, record gjson.Result) bool {
		if !record.IsObject() {
			parseErr = fmt.Errorf("%w from %s: array element is not an object", ErrMalformedOutput, serverName)
			return false
		}
		jobs = append(jobs, Job{
			Server:  serverName,
			JobID:   stringField(record, KeyJobID),
			JobName: stringField(record, KeyJobName),
			JobPath: stringField(record, KeyJobPath),
			CPUs:    stringField(record, KeyCPUs),
			Status:  stringField(record, KeyStatus),
			Owner:   stringField(record, KeyOwner),
			Memory:  stringField(record, KeyMemory),
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return jobs, nil
}

// EncodeJobs renders jobs as a JSON array whose objects keep the order of
// Fields.
func EncodeJobs(jobs []Job) (string, error) {
	doc := `{"jobs":[]}`
	for i := range jobs {
		record := "{}"
		for _, key := range Fields {
			var err error
			record, err = sjson.Set(record, key, jobs[i].Field(key))
			if err != nil {
				return "", err
			}
		}

		var err error
		doc, err = sjson.SetRaw(doc, "jobs.-1", record)
		if err != nil {
			return "", err
		}
	}
	return gjson.Get(doc, "jobs").Raw, nil
}

var fieldAliases = map[string]string{
	"server":  KeyServer,
	"jobid":   KeyJobID,
	"id":      KeyJobID,
	"name":    KeyJobName,
	"jobname": KeyJobName,
	"path":    KeyJobPath,
	"jobpath": KeyJobPath,
	"cpus":    KeyCPUs,
	"cpu":     KeyCPUs,
	"status":  KeyStatus,
	"state":   KeyStatus,
	"owner":   KeyOwner,
	"user":    KeyOwner,
	"memory":  KeyMemory,
	"mem":     KeyMemory,
}

// ParseSortKey accepts a field name in any case, with or without the
// underscore, or one of its short aliases.
func ParseSortKey(s string) (string, error) {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
	if key, ok := fieldAliases[normalized]; ok {
		return key, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
}

func numericOrZero(s string) uint64 {
	if !util.IsDigits(s) {
		return 0
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func memoryOrZero(s string) uint64 {
	n, err := util.ParseMemStringAsByte(s)
	if err != nil {
		return 0
	}
	return n
}

// splitSequence cuts the leading digit run off a job id, so "123[].srv"
// yields "123" and "[].srv".
func splitSequence(id string) (string, string) {
	i := 0
	for i < len(id) && id[i] >= '0' && id[i] <= '9' {
		i++
	}
	return id[:i], id[i:]
}

// jobIDLess orders "9.srv" before "10.srv" by comparing the leading
// sequence number first. Ids without one sort after all numbered ids.
func jobIDLess(a, b string) bool {
	na, restA := splitSequence(a)
	nb, restB := splitSequence(b)
	if (na == "") != (nb == "") {
		return na != ""
	}
	if na != "" {
		trimA := strings.TrimLeft(na, "0")
		trimB := strings.TrimLeft(nb, "0")
		if len(trimA) != len(trimB) {
			return len(trimA) < len(trimB)
		}
		if trimA != trimB {
			return trimA < trimB
		}
		if restA != restB {
			return restA < restB
		}
	}
	return a < b
}

// SortJobs sorts jobs in place by key. CPUs and Memory compare numerically
// with unparsable values treated as zero; equal keys keep their order.
func SortJobs(jobs []Job, key string) error {
	var less func(a, b *Job) bool
	switch key {
	case KeyCPUs:
		less = func(a, b *Job) bool { return numericOrZero(a.CPUs) < numericOrZero(b.CPUs) }
	case KeyMemory:
		less = func(a, b *Job) bool { return memoryOrZero(a.Memory) < memoryOrZero(b.Memory) }
	case KeyJobID:
		less = func(a, b *Job) bool { return jobIDLess(a.JobID, b.JobID) }
	case KeyServer, KeyJobName, KeyJobPath, KeyStatus, KeyOwner:
		less = func(a, b *Job) bool { return a.Field(key) < b.Field(key) }
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, key)
	}

	sort.SliceStable(jobs, func(i, j int) bool { return less(&jobs[i], &jobs[j]) })
	return nil
}

// FilterByStatus keeps jobs whose status code equals status, ignoring case.
func FilterByStatus(jobs []Job, status string) []Job {
	status = strings.TrimSpace(status)
	filtered := []Job{}
	for _, job := range jobs {
		if strings.EqualFold(job.Status, status) {
			filtered = append(filtered, job)
		}
	}
	return filtered
}

// FilterByOwner keeps jobs owned exactly by owner.
func FilterByOwner(jobs []Job, owner string) []Job {
	owner = strings.TrimSpace(owner)
	filtered := []Job{}
	for _, job := range jobs {
		if job.Owner == owner {
			filtered = append(filtered, job)
		}
	}
	return filtered
}
