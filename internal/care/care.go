// Package care derives a care schedule for recommended plants. Each care
// task frequency maps onto a cron schedule whose next activation after the
// request time is the task's due date.
package care

import (
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/verdance/verdance/platform/internal/domain"
)

// Specs maps each frequency to its cron expression.
var Specs = map[domain.CareFrequency]string{
	domain.FrequencyDaily:     "@daily",
	domain.FrequencyWeekly:    "@weekly",
	domain.FrequencyMonthly:   "@monthly",
	domain.FrequencyQuarterly: "0 0 1 1,4,7,10 *",
	domain.FrequencyAnnually:  "@yearly",
}

// Planner computes due dates for care tasks.
type Planner struct {
	schedules map[domain.CareFrequency]cron.Schedule
}

// NewPlanner parses the frequency specs.
func NewPlanner() (*Planner, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedules := make(map[domain.CareFrequency]cron.Schedule, len(Specs))
	for freq, expr := range Specs {
		s, err := parser.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("parse care schedule %s (%q): %w", freq, expr, err)
		}
		schedules[freq] = s
	}
	return &Planner{schedules: schedules}, nil
}

// NextDue returns the first activation of freq strictly after from. The
// result is in from's location.
func (p *Planner) NextDue(freq domain.CareFrequency, from time.Time) (time.Time, bool) {
	s, ok := p.schedules[freq]
	if !ok {
		return time.Time{}, false
	}
	return s.Next(from), true
}

// Plan builds the schedule for plants relative to now. Every frequency has a
// bucket; tasks within a bucket are ordered by due date, then plant name,
// then task. Tasks with an unknown frequency are skipped.
func (p *Planner) Plan(plants []domain.CatalogItem, now time.Time) domain.CareSchedule {
	schedule := make(domain.CareSchedule, len(domain.CareFrequencies))
	for _, freq := range domain.CareFrequencies {
		schedule[freq] = []domain.ScheduledTask{}
	}

	for i := range plants {
		plant := &plants[i]
		for _, task := range plant.CareTasks {
			due, ok := p.NextDue(task.Frequency, now)
			if !ok {
				continue
			}
			schedule[task.Frequency] = append(schedule[task.Frequency], domain.ScheduledTask{
				PlantID:   plant.ID,
				PlantName: plant.Name,
				Task:      task.Task,
				Frequency: task.Frequency,
				DueDate:   due,
			})
		}
	}

	for _, tasks := range schedule {
		sort.SliceStable(tasks, func(i, j int) bool {
			a, b := tasks[i], tasks[j]
			if !a.DueDate.Equal(b.DueDate) {
				return a.DueDate.Before(b.DueDate)
			}
			if a.PlantName != b.PlantName {
				return a.PlantName < b.PlantName
			}
			return a.Task < b.Task
		})
	}
	return schedule
}

// Count returns the number of scheduled tasks across all buckets.
func Count(s domain.CareSchedule) int {
	n := 0
	for _, tasks := range s {
		n += len(tasks)
	}
	return n
}
