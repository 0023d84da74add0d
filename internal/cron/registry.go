package cron

import "context"

// Job is a unit of maintenance work run once per cycle.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds jobs in registration order. Names are unique; a second
// job with a taken name is ignored.
type Registry struct {
	jobs  []Job
	names map[string]struct{}
}

func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{names: map[string]struct{}{}}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

// Register adds job and reports whether it was accepted.
func (r *Registry) Register(job Job) bool {
	if job == nil {
		return false
	}
	if r.names == nil {
		r.names = map[string]struct{}{}
	}
	if _, taken := r.names[job.Name()]; taken {
		return false
	}
	r.names[job.Name()] = struct{}{}
	r.jobs = append(r.jobs, job)
	return true
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}

// Names lists the registered job names in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for _, job := range r.jobs {
		names = append(names, job.Name())
	}
	return names
}
