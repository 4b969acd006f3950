package handler

import (
	"github.com/opencity/server/internal/data"
	"github.com/opencity/server/internal/event"
	"github.com/opencity/server/internal/net"
	"github.com/opencity/server/internal/world"
)

func init() {
	register("apply_job", handleApplyJob)
	register("quit_job", handleQuitJob)
	register("list_jobs", handleListJobs)
}

// vacanciesLeft counts open seats for a job.
func vacanciesLeft(d *Deps, job *data.Job) int {
	taken := 0
	d.World.Alive(func(r *world.Resident) {
		if r.Employment != nil && r.Employment.JobID == job.ID {
			taken++
		}
	})
	left := job.Vacancies - taken
	if left < 0 {
		left = 0
	}
	return left
}

func handleApplyJob(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	var p struct {
		JobID string `json:"job_id"`
	}
	if err := params(msg, &p); err != nil || p.JobID == "" {
		return fail(msg, ReasonBadParams)
	}
	if r.Building != "council_hall" {
		return fail(msg, ReasonWrongBuilding)
	}
	if r.Employment != nil {
		return fail(msg, "already_employed")
	}
	job := d.Jobs.Get(p.JobID)
	if job == nil {
		return fail(msg, ReasonNotFound)
	}
	if vacanciesLeft(d, job) == 0 {
		return fail(msg, ReasonNoVacancy)
	}

	r.Employment = &world.Employment{JobID: job.ID, OnShift: true}
	r.Dirty = true
	d.Events.Append(event.Record{
		Type:       event.TypeHired,
		ResidentID: r.ID,
		BuildingID: job.Building,
		Payload:    map[string]any{"job": job.ID},
	})
	return ok(msg, map[string]any{
		"job":      job.ID,
		"title":    job.Title,
		"building": job.Building,
		"wage":     job.Wage,
	})
}

// handleQuitJob clears employment and releases any escorted suspect.
func handleQuitJob(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	if r.Employment == nil {
		return fail(msg, ReasonNotFound)
	}
	jobID := r.Employment.JobID
	r.Employment = nil
	if r.CarryingSuspect != "" {
		if s := d.World.Get(r.CarryingSuspect); s != nil {
			s.ArrestedBy = ""
			s.Notify("You have been released.")
		}
		r.CarryingSuspect = ""
	}
	r.Dirty = true
	d.Events.Append(event.Record{
		Type:       event.TypeQuit,
		ResidentID: r.ID,
		Payload:    map[string]any{"job": jobID},
	})
	return ok(msg, nil)
}

func handleListJobs(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	if r.Building != "council_hall" {
		return fail(msg, ReasonWrongBuilding)
	}
	type jobEntry struct {
		ID        string `json:"id"`
		Title     string `json:"title"`
		Building  string `json:"building"`
		Wage      int    `json:"wage"`
		Vacancies int    `json:"vacancies"`
	}
	var list []jobEntry
	for _, job := range d.Jobs.All() {
		list = append(list, jobEntry{
			ID:        job.ID,
			Title:     job.Title,
			Building:  job.Building,
			Wage:      job.Wage,
			Vacancies: vacanciesLeft(d, job),
		})
	}
	return ok(msg, map[string]any{"jobs": list})
}
