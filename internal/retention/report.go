package retention

import (
	"sort"
	"time"
)

// ExpiringSoonDays bounds the "expiring soon" bucket of a status report.
const ExpiringSoonDays = 5

// Entry is the subset of a posting the status report needs.
type Entry struct {
	ID           string
	Title        string
	Department   string
	RegisteredOn string
	ExpiresOn    string
}

// DepartmentCount is one row of the per-department breakdown.
type DepartmentCount struct {
	Department string `json:"department"`
	Count      int    `json:"count"`
}

// Flagged identifies a posting listed in a report bucket.
type Flagged struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ExpiresOn string `json:"expiresOn"`
	DaysLeft  int    `json:"daysLeft"`
}

// Report summarises the retention state of a set of postings.
type Report struct {
	Today         string            `json:"today"`
	Total         int               `json:"total"`
	Fresh         int               `json:"preserveFresh"`
	Open          int               `json:"preserveOpen"`
	Stale         int               `json:"deleteStale"`
	ExpiringSoon  []Flagged         `json:"expiringSoon"`
	OldButActive  []Flagged         `json:"oldButActive"`
	Expired       int               `json:"expired"`
	Departments   []DepartmentCount `json:"departments"`
	UnparsedDates int               `json:"unparsedDates"`
}

// Reporter accumulates entries into a Report against a fixed today.
type Reporter struct {
	policy Policy
	today  time.Time
	report Report
	depts  map[string]int
}

func NewReporter(policy Policy, today time.Time) *Reporter {
	today = Day(today)
	return &Reporter{
		policy: policy,
		today:  today,
		report: Report{
			Today:        today.Format("2006-01-02"),
			ExpiringSoon: []Flagged{},
			OldButActive: []Flagged{},
		},
		depts: make(map[string]int),
	}
}

// Add classifies one entry.
func (r *Reporter) Add(e Entry) {
	r.report.Total++
	if e.Department != "" {
		r.depts[e.Department]++
	}
	if _, ok := ParseDate(e.RegisteredOn); !ok {
		r.report.UnparsedDates++
	}

	outcome := r.policy.Evaluate(r.today, e.RegisteredOn, e.ExpiresOn)
	switch outcome {
	case PreserveFresh:
		r.report.Fresh++
	case PreserveOpen:
		r.report.Open++
	case DeleteStale:
		r.report.Stale++
	}

	exp, ok := ParseDate(e.ExpiresOn)
	if !ok {
		return
	}
	days := int(exp.Sub(r.today).Hours() / 24)
	flag := Flagged{ID: e.ID, Title: e.Title, ExpiresOn: e.ExpiresOn, DaysLeft: days}
	switch {
	case days < 0:
		r.report.Expired++
	case days <= ExpiringSoonDays:
		r.report.ExpiringSoon = append(r.report.ExpiringSoon, flag)
	}
	if outcome == PreserveOpen {
		r.report.OldButActive = append(r.report.OldButActive, flag)
	}
}

// Report returns the accumulated report with departments sorted by count.
func (r *Reporter) Report() Report {
	out := r.report
	out.Departments = make([]DepartmentCount, 0, len(r.depts))
	for d, n := range r.depts {
		out.Departments = append(out.Departments, DepartmentCount{Department: d, Count: n})
	}
	sort.Slice(out.Departments, func(i, j int) bool {
		if out.Departments[i].Count != out.Departments[j].Count {
			return out.Departments[i].Count > out.Departments[j].Count
		}
		return out.Departments[i].Department < out.Departments[j].Department
	})
	sort.Slice(out.ExpiringSoon, func(i, j int) bool {
		return out.ExpiringSoon[i].DaysLeft < out.ExpiringSoon[j].DaysLeft
	})
	return out
}

// Classify builds a Report for entries in one call.
func Classify(policy Policy, today time.Time, entries []Entry) Report {
	r := NewReporter(policy, today)
	for _, e := range entries {
		r.Add(e)
	}
	return r.Report()
}
