// Package pages composes the entity query engine and the remap layer into
// the fixed-shape bundles the desktop UI loads per page, plus the startup
// aggregate that merges several bundles into one deduplicated snapshot.
package pages

import (
	"context"
	"fmt"
	"time"

	"github.com/mhayashi-dev/prodtrack/internal/dates"
	"github.com/mhayashi-dev/prodtrack/internal/query"
	"github.com/mhayashi-dev/prodtrack/internal/remap"
	"github.com/mhayashi-dev/prodtrack/internal/schema"
)

// fieldSets is the default projection per entity kind, including the
// dotted composite keys that the remap layer flattens afterwards.
var fieldSets = map[schema.Kind][]string{
	schema.KindDepartment: {"id", "name", "description"},
	schema.KindStep:       {"id", "name", "color"},
	schema.KindPerson:     {"id", "name", "email", "department", "manager", "subproject"},
	schema.KindSubproject: {
		"id", "name", "start_date", "end_date", "editing", "department", "access", "pmm_status", "last_edit",
	},
	schema.KindPhase: {
		"id", "subproject", "name", "start_date", "end_date", "milestone", "phase_type",
	},
	schema.KindAsset: {
		"id", "phase", "name", "start_date", "end_date", "asset_type", "work_category", "step", "step.color",
	},
	schema.KindTask: {
		"id", "asset", "name", "start_date", "end_date", "assignees", "status",
		"asset.phase.subproject", "asset.work_category",
	},
	schema.KindMilestoneTask: {
		"id", "asset", "name", "start_date", "end_date", "milestone_type",
		"asset.phase.subproject", "asset.asset_type",
	},
	schema.KindPersonWorkload: {
		"id", "task", "person", "name", "week", "man_week", "task.asset.phase.subproject",
	},
	schema.KindPMMWorkload: {
		"id", "subproject", "work_category", "name", "week", "man_week",
	},
	schema.KindWorkCategory: {"id", "name", "description"},
}

// FieldSet returns the default projection for an entity kind.
func FieldSet(kind string) []string {
	return fieldSets[schema.Kind(kind)]
}

// Service runs the page bundles against one query engine.
type Service struct {
	engine   *query.Engine
	observer BundleObserver
}

// NewService creates the page fetch orchestrator. The first non-nil
// observer receives bundle telemetry.
func NewService(engine *query.Engine, observers ...BundleObserver) *Service {
	return &Service{engine: engine, observer: bundleObserverOrNoop(observers)}
}

// Entities fetches every entity of a kind matching the filters, projected
// through the kind's default field set and remapped to flat keys.
func (s *Service) Entities(ctx context.Context, kind string, filters []query.Filter) ([]query.Record, error) {
	records, err := s.engine.Find(ctx, kind, filters, &query.FindOptions{Fields: FieldSet(kind)})
	if err != nil {
		return nil, err
	}
	return query.FormatList(remap.Apply(records)), nil
}

// Entity fetches one entity by id, or nil when it does not exist.
func (s *Service) Entity(ctx context.Context, kind string, id int64) (query.Record, error) {
	record, err := s.engine.FindOne(ctx, kind,
		[]query.Filter{query.Cond{Field: "id", Op: "is", Value: id}}, FieldSet(kind))
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}
	return query.FormatRecord(remap.ApplyOne(record)), nil
}

// DistributePage is the distribute view: every subproject with its phases.
type DistributePage struct {
	Subprojects []query.Record `json:"subprojects"`
	Phases      []query.Record `json:"phases"`
}

func (s *Service) FetchDistributePage(ctx context.Context) (*DistributePage, error) {
	var page *DistributePage
	err := s.observe(ctx, "distribute_page", nil, func() error {
		subprojects, err := s.Entities(ctx, "Subproject", nil)
		if err != nil {
			return err
		}
		phases, err := s.Entities(ctx, "Phase", nil)
		if err != nil {
			return err
		}
		page = &DistributePage{Subprojects: subprojects, Phases: phases}
		return nil
	})
	return page, err
}

// BasicData is the session-independent reference data every page needs.
type BasicData struct {
	Person         []query.Record `json:"person"`
	Steps          []query.Record `json:"steps"`
	WorkCategories []query.Record `json:"workCategories"`
	CurrentUser    query.Record   `json:"currentUser"`
}

func (s *Service) FetchBasicData(ctx context.Context, currentUserID int64) (*BasicData, error) {
	var data *BasicData
	err := s.observe(ctx, "basic_data", map[string]any{"current_user_id": currentUserID}, func() error {
		person, err := s.Entities(ctx, "Person", nil)
		if err != nil {
			return err
		}
		steps, err := s.Entities(ctx, "Step", nil)
		if err != nil {
			return err
		}
		workCategories, err := s.Entities(ctx, "WorkCategory", nil)
		if err != nil {
			return err
		}
		var currentUser query.Record
		if currentUserID != 0 {
			if currentUser, err = s.Entity(ctx, "Person", currentUserID); err != nil {
				return err
			}
		}
		data = &BasicData{Person: person, Steps: steps, WorkCategories: workCategories, CurrentUser: currentUser}
		return nil
	})
	return data, err
}

// ProjectPage is everything belonging to one subproject, fetched down the
// dependent-entity chain.
type ProjectPage struct {
	Phases          []query.Record `json:"phases"`
	Assets          []query.Record `json:"assets"`
	Tasks           []query.Record `json:"tasks"`
	PersonWorkloads []query.Record `json:"personworkloads"`
	PMMWorkloads    []query.Record `json:"pmmworkloads"`
	MilestoneTasks  []query.Record `json:"milestoneTasks"`
}

func emptyProjectPage() *ProjectPage {
	return &ProjectPage{
		Phases:          []query.Record{},
		Assets:          []query.Record{},
		Tasks:           []query.Record{},
		PersonWorkloads: []query.Record{},
		PMMWorkloads:    []query.Record{},
		MilestoneTasks:  []query.Record{},
	}
}

// FetchProjectPage loads the full dependent chain for one subproject. A
// missing subproject degrades to an all-empty bundle so the UI always
// receives a well-shaped object. Every stage short-circuits on an empty
// parent id set instead of issuing a query with an empty "in" list.
func (s *Service) FetchProjectPage(ctx context.Context, projectID int64) (*ProjectPage, error) {
	var page *ProjectPage
	err := s.observe(ctx, "project_page", map[string]any{"project_id": projectID}, func() error {
		subproject, err := s.Entity(ctx, "Subproject", projectID)
		if err != nil {
			return err
		}
		if subproject == nil {
			page = emptyProjectPage()
			return nil
		}

		page = emptyProjectPage()
		if page.Phases, err = s.Entities(ctx, "Phase",
			[]query.Filter{query.Cond{Field: "subproject", Op: "is", Value: projectID}}); err != nil {
			return err
		}

		phaseIDs := collectIDs(page.Phases)
		if len(phaseIDs) > 0 {
			if page.Assets, err = s.Entities(ctx, "Asset",
				[]query.Filter{query.Cond{Field: "phase", Op: "in", Value: phaseIDs}}); err != nil {
				return err
			}
		}

		assetIDs := collectIDs(page.Assets)
		if len(assetIDs) > 0 {
			if page.Tasks, err = s.Entities(ctx, "Task",
				[]query.Filter{query.Cond{Field: "asset", Op: "in", Value: assetIDs}}); err != nil {
				return err
			}
			if page.MilestoneTasks, err = s.Entities(ctx, "MilestoneTask",
				[]query.Filter{query.Cond{Field: "asset", Op: "in", Value: assetIDs}}); err != nil {
				return err
			}
		}

		taskIDs := collectIDs(page.Tasks)
		if len(taskIDs) > 0 {
			if page.PersonWorkloads, err = s.Entities(ctx, "PersonWorkload",
				[]query.Filter{query.Cond{Field: "task", Op: "in", Value: taskIDs}}); err != nil {
				return err
			}
		}

		if page.PMMWorkloads, err = s.Entities(ctx, "PMMWorkload",
			[]query.Filter{query.Cond{Field: "subproject", Op: "is", Value: projectID}}); err != nil {
			return err
		}
		return nil
	})
	return page, err
}

// AssignmentPage is the cross-project assignment view over a date window.
type AssignmentPage struct {
	Tasks           []query.Record `json:"tasks"`
	PersonWorkloads []query.Record `json:"personworkloads"`
	Person          []query.Record `json:"person"`
}

// FetchAssignmentPage returns the tasks overlapping [start, end], the
// workloads whose week falls inside it, and every person.
func (s *Service) FetchAssignmentPage(ctx context.Context, startISO, endISO string) (*AssignmentPage, error) {
	var page *AssignmentPage
	err := s.observe(ctx, "assignment_page", map[string]any{"start": startISO, "end": endISO}, func() error {
		tasks, err := s.assignmentTasks(ctx, startISO, endISO)
		if err != nil {
			return err
		}
		workloads, err := s.assignmentWorkloads(ctx, startISO, endISO)
		if err != nil {
			return err
		}
		person, err := s.Entities(ctx, "Person", nil)
		if err != nil {
			return err
		}
		page = &AssignmentPage{Tasks: tasks, PersonWorkloads: workloads, Person: person}
		return nil
	})
	return page, err
}

// FetchAssignmentTasks returns only the tasks overlapping the window.
func (s *Service) FetchAssignmentTasks(ctx context.Context, startISO, endISO string) ([]query.Record, error) {
	var tasks []query.Record
	err := s.observe(ctx, "assignment_tasks", map[string]any{"start": startISO, "end": endISO}, func() error {
		var err error
		tasks, err = s.assignmentTasks(ctx, startISO, endISO)
		return err
	})
	return tasks, err
}

// FetchAssignmentWorkloads returns only the workloads with week inside the
// window.
func (s *Service) FetchAssignmentWorkloads(ctx context.Context, startISO, endISO string) ([]query.Record, error) {
	var workloads []query.Record
	err := s.observe(ctx, "assignment_workloads", map[string]any{"start": startISO, "end": endISO}, func() error {
		var err error
		workloads, err = s.assignmentWorkloads(ctx, startISO, endISO)
		return err
	})
	return workloads, err
}

func (s *Service) assignmentTasks(ctx context.Context, startISO, endISO string) ([]query.Record, error) {
	start, end, err := parseWindow(startISO, endISO)
	if err != nil {
		return nil, err
	}
	// Interval overlap: task.start <= end AND task.end >= start.
	return s.Entities(ctx, "Task", []query.Filter{
		query.Cond{Field: "start_date", Op: "<=", Value: end},
		query.Cond{Field: "end_date", Op: ">=", Value: start},
	})
}

func (s *Service) assignmentWorkloads(ctx context.Context, startISO, endISO string) ([]query.Record, error) {
	start, end, err := parseWindow(startISO, endISO)
	if err != nil {
		return nil, err
	}
	return s.Entities(ctx, "PersonWorkload", []query.Filter{
		query.Cond{Field: "week", Op: ">=", Value: start},
		query.Cond{Field: "week", Op: "<=", Value: end},
	})
}

func parseWindow(startISO, endISO string) (time.Time, time.Time, error) {
	start, err := dates.ParseDate(startISO)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing window start: %w", err)
	}
	end, err := dates.ParseDate(endISO)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing window end: %w", err)
	}
	return start, end, nil
}

// InitSnapshot is the startup aggregate: several bundles merged by id into
// one deduplicated snapshot per entity type.
type InitSnapshot struct {
	Steps                []query.Record `json:"steps"`
	Subprojects          []query.Record `json:"subprojects"`
	Phases               []query.Record `json:"phases"`
	Person               []query.Record `json:"person"`
	WorkCategories       []query.Record `json:"workCategories"`
	SelectedSubprojectID int64          `json:"selectedSubprojectId"`
	SelectedPersonList   []int64        `json:"selectedPersonList"`
	CurrentUser          query.Record   `json:"currentUser"`
}

// InitLoad fetches the distribute and basic-data bundles and merges their
// entity lists by id (later bundle wins on duplicate ids).
func (s *Service) InitLoad(ctx context.Context, projectID int64, personList []int64, currentUserID int64) (*InitSnapshot, error) {
	var snapshot *InitSnapshot
	err := s.observe(ctx, "init_load", map[string]any{"project_id": projectID}, func() error {
		distribute, err := s.FetchDistributePage(ctx)
		if err != nil {
			return err
		}
		basic, err := s.FetchBasicData(ctx, currentUserID)
		if err != nil {
			return err
		}
		if personList == nil {
			personList = []int64{}
		}
		snapshot = &InitSnapshot{
			Steps:                remap.MergeByID(basic.Steps),
			Subprojects:          remap.MergeByID(distribute.Subprojects),
			Phases:               remap.MergeByID(distribute.Phases),
			Person:               remap.MergeByID(basic.Person),
			WorkCategories:       remap.MergeByID(basic.WorkCategories),
			SelectedSubprojectID: projectID,
			SelectedPersonList:   personList,
			CurrentUser:          basic.CurrentUser,
		}
		return nil
	})
	return snapshot, err
}

func (s *Service) observe(ctx context.Context, name string, fields map[string]any, fn func() error) error {
	start := time.Now()
	err := fn()
	s.observer.ObserveBundle(ctx, BundleEvent{
		Name:      name,
		Duration:  time.Since(start),
		Success:   err == nil,
		Err:       err,
		Fields:    fields,
		StartedAt: start,
	})
	return err
}

func collectIDs(records []query.Record) []int64 {
	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID())
	}
	return ids
}
