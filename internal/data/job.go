package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Job role tags grant action permissions beyond employment itself.
const (
	RolePolice    = "police"
	RoleMortician = "mortician"
)

// Job is one employable position listed at the council hall.
type Job struct {
	ID        string `yaml:"id"`
	Title     string `yaml:"title"`
	Building  string `yaml:"building"` // employer building id; shifts accrue inside it
	Wage      int    `yaml:"wage"`     // paid per completed shift
	Vacancies int    `yaml:"vacancies"`
	Role      string `yaml:"role"` // optional role tag
}

// JobTable indexes jobs by id.
type JobTable struct {
	jobs  map[string]*Job
	order []string
}

// Get returns a job, or nil.
func (t *JobTable) Get(id string) *Job { return t.jobs[id] }

// Count returns the number of jobs loaded.
func (t *JobTable) Count() int { return len(t.jobs) }

// All returns jobs in authored order.
func (t *JobTable) All() []*Job {
	out := make([]*Job, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.jobs[id])
	}
	return out
}

type jobListFile struct {
	Jobs []*Job `yaml:"jobs"`
}

// LoadJobTable loads job definitions from a YAML file.
func LoadJobTable(path string) (*JobTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job table: %w", err)
	}
	var f jobListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse job table: %w", err)
	}
	t := &JobTable{jobs: make(map[string]*Job, len(f.Jobs))}
	for _, j := range f.Jobs {
		if j.ID == "" {
			return nil, fmt.Errorf("job with empty id in %s", path)
		}
		if _, dup := t.jobs[j.ID]; dup {
			return nil, fmt.Errorf("duplicate job id %q", j.ID)
		}
		t.jobs[j.ID] = j
		t.order = append(t.order, j.ID)
	}
	return t, nil
}

// DefaultJobTable is the built-in job set used when no YAML override is
// shipped.
func DefaultJobTable() *JobTable {
	defs := []*Job{
		{ID: "police_officer", Title: "Police Officer", Building: "police_station", Wage: 60, Vacancies: 2, Role: RolePolice},
		{ID: "shopkeeper", Title: "Shopkeeper", Building: "shop", Wage: 40, Vacancies: 1},
		{ID: "mortician", Title: "Mortician", Building: "mortuary", Wage: 50, Vacancies: 1, Role: RoleMortician},
		{ID: "clerk", Title: "Council Clerk", Building: "council_hall", Wage: 35, Vacancies: 2},
		{ID: "teller", Title: "Bank Teller", Building: "bank", Wage: 45, Vacancies: 1},
	}
	t := &JobTable{jobs: make(map[string]*Job, len(defs))}
	for _, j := range defs {
		t.jobs[j.ID] = j
		t.order = append(t.order, j.ID)
	}
	return t
}
