// Package seed populates a database with automotive design-themed sample
// data. All rows go through the query engine so the generated data passes
// the same validation as frontend writes.
package seed

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/mhayashi-dev/prodtrack/internal/dates"
	"github.com/mhayashi-dev/prodtrack/internal/query"
	"github.com/mhayashi-dev/prodtrack/internal/schema"
)

// Options tunes the generated data volume.
type Options struct {
	// People is the head count. Defaults to 100.
	People int
	// Subprojects is the vehicle program count. Defaults to 25.
	Subprojects int
	// Seed fixes the random source. Zero means time-based.
	Seed int64
	// Start anchors the schedule. Zero means today.
	Start time.Time
}

// Result counts the created rows per entity.
type Result struct {
	Departments     int
	Steps           int
	People          int
	WorkCategories  int
	Subprojects     int
	Phases          int
	Assets          int
	Tasks           int
	MilestoneTasks  int
	PersonWorkloads int
	PMMWorkloads    int
}

var departmentNames = [][2]string{
	{"Exterior Design", "外装デザイン"},
	{"Interior Design", "内装デザイン"},
	{"CMF", "カラー・素材・仕上げ"},
	{"Engineering", "設計・エンジニアリング"},
	{"Prototype", "試作・モックアップ"},
}

var stepData = [][2]string{
	{"Sketch", "255, 200, 0"},
	{"Clay Modeling", "210, 105, 30"},
	{"Digital Modeling", "70, 130, 180"},
	{"Surfacing", "100, 149, 237"},
	{"Prototyping", "46, 139, 87"},
}

var workCategoryData = [][2]string{
	{"Concept", "コンセプト立案"},
	{"Exterior", "外装"},
	{"Interior", "内装"},
	{"CMF", "カラー素材"},
	{"Aero", "空力"},
	{"Ergonomics", "人間工学"},
	{"HMI", "ヒューマンマシンインターフェース"},
	{"Packaging", "車室パッケージ"},
	{"Lighting", "照明設計"},
	{"Acoustic", "音響"},
}

var personNames = []string{
	"Aiko", "Daichi", "Haruto", "Yuna", "Sora", "Ren", "Mio", "Hinata", "Kaito", "Rin",
	"Yuto", "Saki", "Koji", "Aya", "Tsubasa", "Mei", "Naoki", "Riku", "Sara", "Kei",
}

var vehicleKinds = []string{"Sedan", "SUV", "Coupe", "Hatchback", "EV Crossover", "Wagon", "Pickup"}

var phaseNames = []string{"Concept", "Design Development", "Final Design", "Milestone Review"}

var assetNameSets = map[string][]string{
	"Concept": {
		"Exterior Theme A", "Exterior Theme B", "Interior Mood A", "Interior Mood B",
		"Color Board A", "Proportion Study", "Sketch Board A", "Sketch Board B",
	},
	"Design Development": {
		"Front Fascia", "Rear Fascia", "Instrument Panel", "Seats", "Door Trim",
		"Console Module", "Steering Wheel", "Roof Console",
	},
	"Final Design": {
		"Door Trim Final", "Center Console Final", "Headlamp Final", "Tail Lamp Final",
		"Grille Final", "Wheel Design", "Mirror Housing", "Rear Spoiler",
	},
}

var genericAssetNames = []string{"Generic Asset A", "Generic Asset B", "Generic Asset C", "Generic Asset D"}

var taskNameTemplates = []string{
	"Sketch refinement", "3D blockout", "Surface development", "Detailing", "Prototype fit check",
}

type seeder struct {
	engine *query.Engine
	rng    *rand.Rand
	start  time.Time
	result Result
}

// Run wipes existing data and regenerates the full sample set.
func Run(ctx context.Context, engine *query.Engine, opts Options) (*Result, error) {
	if opts.People <= 0 {
		opts.People = 100
	}
	if opts.Subprojects <= 0 {
		opts.Subprojects = 25
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	if opts.Start.IsZero() {
		opts.Start = time.Now()
	}

	s := &seeder{
		engine: engine,
		rng:    rand.New(rand.NewSource(opts.Seed)),
		start:  opts.Start,
	}
	if err := s.wipe(ctx); err != nil {
		return nil, err
	}
	if err := s.generate(ctx, opts); err != nil {
		return nil, err
	}
	return &s.result, nil
}

// wipe deletes all rows, children before parents.
func (s *seeder) wipe(ctx context.Context) error {
	order := []string{
		string(schema.KindPersonWorkload),
		string(schema.KindPMMWorkload),
		string(schema.KindMilestoneTask),
		string(schema.KindTask),
		string(schema.KindAsset),
		string(schema.KindPhase),
		string(schema.KindSubproject),
		string(schema.KindPerson),
		string(schema.KindDepartment),
		string(schema.KindStep),
		string(schema.KindWorkCategory),
	}
	for _, kind := range order {
		records, err := s.engine.Find(ctx, kind, nil, &query.FindOptions{Fields: []string{"id"}})
		if err != nil {
			return fmt.Errorf("listing %s for wipe: %w", kind, err)
		}
		for _, rec := range records {
			if _, err := s.engine.Delete(ctx, kind, rec.ID()); err != nil {
				return fmt.Errorf("wiping %s: %w", kind, err)
			}
		}
	}
	return nil
}

func (s *seeder) create(ctx context.Context, kind string, data map[string]any) (int64, error) {
	rec, err := s.engine.Create(ctx, kind, data, []string{"id"})
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", kind, err)
	}
	return rec.ID(), nil
}

func (s *seeder) generate(ctx context.Context, opts Options) error {
	departments := make([]int64, 0, len(departmentNames))
	for _, d := range departmentNames {
		id, err := s.create(ctx, "Department", map[string]any{"name": d[0], "description": d[1]})
		if err != nil {
			return err
		}
		departments = append(departments, id)
	}
	s.result.Departments = len(departments)

	steps := make([]int64, 0, len(stepData))
	for _, st := range stepData {
		id, err := s.create(ctx, "Step", map[string]any{"name": st[0], "color": st[1]})
		if err != nil {
			return err
		}
		steps = append(steps, id)
	}
	s.result.Steps = len(steps)

	categories := make([]int64, 0, len(workCategoryData))
	for _, wc := range workCategoryData {
		id, err := s.create(ctx, "WorkCategory", map[string]any{"name": wc[0], "description": wc[1]})
		if err != nil {
			return err
		}
		categories = append(categories, id)
	}
	s.result.WorkCategories = len(categories)

	people := make([]int64, 0, opts.People)
	for i := 0; i < opts.People; i++ {
		name := fmt.Sprintf("%s-%03d", personNames[i%len(personNames)], i+1)
		id, err := s.create(ctx, "Person", map[string]any{
			"name":       name,
			"email":      fmt.Sprintf("%s@studio.example", lowerKebab(name)),
			"department": s.pick(departments),
		})
		if err != nil {
			return err
		}
		people = append(people, id)
	}
	// Roughly half the staff report to someone.
	for _, id := range people {
		if s.rng.Float64() >= 0.5 {
			continue
		}
		mgr := s.pick(people)
		if mgr == id {
			continue
		}
		if _, err := s.engine.Update(ctx, "Person", id, map[string]any{"manager": mgr}); err != nil {
			return fmt.Errorf("assigning manager: %w", err)
		}
	}
	s.result.People = len(people)

	memberships := make(map[int64][]int64)
	subprojects, err := s.generateSubprojects(ctx, opts, people, memberships)
	if err != nil {
		return err
	}
	for personID, subprojectIDs := range memberships {
		if _, err := s.engine.Update(ctx, "Person", personID, map[string]any{"subproject": subprojectIDs}); err != nil {
			return fmt.Errorf("assigning subproject members: %w", err)
		}
	}

	for _, sp := range subprojects {
		if err := s.generateSchedule(ctx, sp, people, categories, steps); err != nil {
			return err
		}
	}
	return nil
}

type subprojectRow struct {
	id    int64
	start time.Time
	end   time.Time
	name  string
}

func (s *seeder) generateSubprojects(ctx context.Context, opts Options, people []int64, memberships map[int64][]int64) ([]subprojectRow, error) {
	subprojects := make([]subprojectRow, 0, opts.Subprojects)
	for i := 0; i < opts.Subprojects; i++ {
		kind := vehicleKinds[s.rng.Intn(len(vehicleKinds))]
		name := fmt.Sprintf("%s MY%d #%02d", kind, 26+i/5, i+1)
		start := s.start.AddDate(0, 0, i*7)
		end := start.AddDate(0, 0, 120+(i%7)*10)
		id, err := s.create(ctx, "Subproject", map[string]any{
			"name":       name,
			"start_date": start.Format(dates.DateLayout),
			"end_date":   end.Format(dates.DateLayout),
			"pmm_status": s.pickStatus(string(schema.PMMPlanning), string(schema.PMMApproved)),
		})
		if err != nil {
			return nil, err
		}
		for _, p := range s.sample(people, 8+s.rng.Intn(8)) {
			memberships[p] = append(memberships[p], id)
		}
		subprojects = append(subprojects, subprojectRow{id: id, start: start, end: end, name: name})
	}
	s.result.Subprojects = len(subprojects)
	return subprojects, nil
}

func (s *seeder) generateSchedule(ctx context.Context, sp subprojectRow, people, categories, steps []int64) error {
	span := int(sp.end.Sub(sp.start).Hours() / 24)
	chunk := span / len(phaseNames)
	if chunk < 20 {
		chunk = 20
	}
	phaseTypes := []string{string(schema.PhaseDesign), string(schema.PhaseProduction), string(schema.PhaseEngineer)}

	for i, pname := range phaseNames {
		ps := sp.start.AddDate(0, 0, max(0, i*chunk-s.rng.Intn(11)))
		pe := sp.start.AddDate(0, 0, (i+1)*chunk-1+s.rng.Intn(11))
		if i == len(phaseNames)-1 {
			pe = sp.end
		}
		milestone := pname == "Milestone Review" || (i == 0 && s.rng.Float64() < 0.5)
		phaseID, err := s.create(ctx, "Phase", map[string]any{
			"subproject": sp.id,
			"name":       pname,
			"start_date": ps.Format(dates.DateLayout),
			"end_date":   pe.Format(dates.DateLayout),
			"phase_type": phaseTypes[s.rng.Intn(len(phaseTypes))],
			"milestone":  milestone,
		})
		if err != nil {
			return err
		}
		s.result.Phases++

		if err := s.generateAssets(ctx, phaseID, pname, ps, pe, people, categories, steps); err != nil {
			return err
		}
	}

	return s.generatePMMWorkloads(ctx, sp, categories)
}

func (s *seeder) generateAssets(ctx context.Context, phaseID int64, phaseName string, ps, pe time.Time, people, categories, steps []int64) error {
	names := assetNameSets[phaseName]
	if names == nil {
		names = genericAssetNames
	}
	perPhase := 3 + s.rng.Intn(3)
	if perPhase > len(names) {
		perPhase = len(names)
	}
	assetTypes := []string{string(schema.AssetExterior), string(schema.AssetInterior), string(schema.AssetCommon)}

	span := max(1, int(pe.Sub(ps).Hours()/24))
	local := max(7, span/perPhase)
	for _, nm := range s.sampleStrings(names, perPhase) {
		offset := 0
		if span > local {
			offset = s.rng.Intn(span - local + 1)
		}
		aStart := ps.AddDate(0, 0, offset)
		aEnd := aStart.AddDate(0, 0, local)
		if aEnd.After(pe) {
			aEnd = pe
		}
		assetID, err := s.create(ctx, "Asset", map[string]any{
			"phase":         phaseID,
			"name":          nm,
			"start_date":    aStart.Format(dates.DateLayout),
			"end_date":      aEnd.Format(dates.DateLayout),
			"asset_type":    assetTypes[s.rng.Intn(len(assetTypes))],
			"work_category": s.pick(categories),
			"step":          s.pick(steps),
		})
		if err != nil {
			return err
		}
		s.result.Assets++

		if err := s.generateTasks(ctx, assetID, nm, aStart, aEnd, people); err != nil {
			return err
		}
	}
	return nil
}

func (s *seeder) generateTasks(ctx context.Context, assetID int64, assetName string, aStart, aEnd time.Time, people []int64) error {
	statuses := []string{string(schema.TaskWaiting), string(schema.TaskInProgress), string(schema.TaskFinished)}
	milestoneTypes := []string{
		string(schema.MilestoneDateReceive), string(schema.MilestoneDateRelease),
		string(schema.MilestoneReview), string(schema.MilestoneDR),
	}

	aspan := max(1, int(aEnd.Sub(aStart).Hours()/24))
	n := 2 + s.rng.Intn(3)
	tspan := max(3, aspan/n)
	for i := 0; i < n; i++ {
		tStart := aStart.AddDate(0, 0, min(i*tspan, max(0, aspan-1)))
		tEnd := tStart.AddDate(0, 0, tspan-1)
		if tEnd.After(aEnd) {
			tEnd = aEnd
		}
		assignees := s.sample(people, 1+s.rng.Intn(3))
		taskID, err := s.create(ctx, "Task", map[string]any{
			"asset":      assetID,
			"name":       fmt.Sprintf("%s %d", taskNameTemplates[s.rng.Intn(len(taskNameTemplates))], i+1),
			"start_date": tStart.Format(dates.DateLayout),
			"end_date":   tEnd.Format(dates.DateLayout),
			"status":     statuses[s.rng.Intn(len(statuses))],
			"assignees":  assignees,
		})
		if err != nil {
			return err
		}
		s.result.Tasks++

		if err := s.generateWorkloads(ctx, taskID, tStart, tEnd, assignees, i); err != nil {
			return err
		}
	}

	for j := 0; j < s.rng.Intn(3); j++ {
		offset := s.rng.Intn(aspan)
		mDate := aStart.AddDate(0, 0, offset).Format(dates.DateLayout)
		if _, err := s.create(ctx, "MilestoneTask", map[string]any{
			"asset":          assetID,
			"name":           fmt.Sprintf("%s Milestone %d", assetName, j+1),
			"start_date":     mDate,
			"end_date":       mDate,
			"milestone_type": milestoneTypes[s.rng.Intn(len(milestoneTypes))],
		}); err != nil {
			return err
		}
		s.result.MilestoneTasks++
	}
	return nil
}

func (s *seeder) generateWorkloads(ctx context.Context, taskID int64, tStart, tEnd time.Time, assignees []int64, taskIndex int) error {
	weeks := mondaysBetween(tStart, tEnd)
	if len(weeks) == 0 || len(assignees) == 0 {
		return nil
	}
	n := 1 + s.rng.Intn(min(2, len(weeks)))
	for i := 0; i < n; i++ {
		wk := weeks[s.rng.Intn(len(weeks))]
		if _, err := s.create(ctx, "PersonWorkload", map[string]any{
			"task":     taskID,
			"person":   assignees[s.rng.Intn(len(assignees))],
			"name":     fmt.Sprintf("Task %d - W%d", taskIndex+1, i+1),
			"week":     wk.Format(dates.DateLayout),
			"man_week": roundTenth(0.2 + s.rng.Float64()*0.8),
		}); err != nil {
			return err
		}
		s.result.PersonWorkloads++
	}
	return nil
}

func (s *seeder) generatePMMWorkloads(ctx context.Context, sp subprojectRow, categories []int64) error {
	for _, wk := range mondaysBetween(sp.start, sp.end) {
		for _, wc := range s.sample(categories, min(4, len(categories))) {
			if _, err := s.create(ctx, "PMMWorkload", map[string]any{
				"subproject":    sp.id,
				"work_category": wc,
				"name":          sp.name,
				"week":          wk.Format(dates.DateLayout),
				"man_week":      roundTenth(1.0 + s.rng.Float64()*4.0),
			}); err != nil {
				return err
			}
			s.result.PMMWorkloads++
		}
	}
	return nil
}

func (s *seeder) pick(ids []int64) int64 {
	return ids[s.rng.Intn(len(ids))]
}

func (s *seeder) pickStatus(choices ...string) string {
	return choices[s.rng.Intn(len(choices))]
}

// sample returns k distinct elements in random order.
func (s *seeder) sample(ids []int64, k int) []int64 {
	if k > len(ids) {
		k = len(ids)
	}
	perm := s.rng.Perm(len(ids))
	out := make([]int64, k)
	for i := 0; i < k; i++ {
		out[i] = ids[perm[i]]
	}
	return out
}

func (s *seeder) sampleStrings(names []string, k int) []string {
	if k > len(names) {
		k = len(names)
	}
	perm := s.rng.Perm(len(names))
	out := make([]string, k)
	for i := 0; i < k; i++ {
		out[i] = names[perm[i]]
	}
	return out
}

func mondaysBetween(start, end time.Time) []time.Time {
	var weeks []time.Time
	for cur := dates.MondayOf(start); !cur.After(end); cur = cur.AddDate(0, 0, 7) {
		weeks = append(weeks, cur)
	}
	return weeks
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

func lowerKebab(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r == ' ':
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
