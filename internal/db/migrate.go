package db

import (
	"database/sql"
	"fmt"
)

// Migrate runs all schema migrations.
//
// Delete rules mirror the entity hierarchy: removing a Subproject cascades
// through phases, assets, tasks and workloads, while lookup references
// (Department, WorkCategory, Step) are nulled out instead of cascading.
func Migrate(db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS departments (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL,
		description TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS steps (
		id    INTEGER PRIMARY KEY AUTOINCREMENT,
		name  TEXT NOT NULL,
		color TEXT NOT NULL DEFAULT '255, 255, 255'
	)`,

	`CREATE TABLE IF NOT EXISTS work_categories (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL,
		description TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS people (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		name          TEXT NOT NULL,
		email         TEXT UNIQUE,
		department_id INTEGER REFERENCES departments(id) ON DELETE SET NULL,
		manager_id    INTEGER REFERENCES people(id) ON DELETE SET NULL
	)`,

	`CREATE TABLE IF NOT EXISTS subprojects (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		name          TEXT NOT NULL,
		start_date    TEXT NOT NULL,
		end_date      TEXT NOT NULL,
		editing_id    INTEGER REFERENCES people(id) ON DELETE SET NULL,
		last_edit     TEXT,
		department_id INTEGER REFERENCES departments(id) ON DELETE SET NULL,
		access        TEXT NOT NULL DEFAULT 'Project Team',
		pmm_status    TEXT NOT NULL DEFAULT 'planning'
	)`,

	`CREATE TABLE IF NOT EXISTS person_subprojects (
		person_id     INTEGER NOT NULL REFERENCES people(id) ON DELETE CASCADE,
		subproject_id INTEGER NOT NULL REFERENCES subprojects(id) ON DELETE CASCADE,
		PRIMARY KEY (person_id, subproject_id)
	)`,

	`CREATE TABLE IF NOT EXISTS phases (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		subproject_id INTEGER NOT NULL REFERENCES subprojects(id) ON DELETE CASCADE,
		name          TEXT NOT NULL,
		start_date    TEXT NOT NULL,
		end_date      TEXT NOT NULL,
		milestone     INTEGER NOT NULL DEFAULT 0,
		phase_type    TEXT NOT NULL DEFAULT 'DESIGN'
	)`,

	`CREATE TABLE IF NOT EXISTS assets (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		phase_id         INTEGER NOT NULL REFERENCES phases(id) ON DELETE CASCADE,
		name             TEXT NOT NULL,
		start_date       TEXT NOT NULL,
		end_date         TEXT NOT NULL,
		asset_type       TEXT NOT NULL DEFAULT 'Common',
		work_category_id INTEGER REFERENCES work_categories(id) ON DELETE SET NULL,
		step_id          INTEGER REFERENCES steps(id) ON DELETE SET NULL
	)`,

	`CREATE TABLE IF NOT EXISTS tasks (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		asset_id   INTEGER NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
		name       TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date   TEXT NOT NULL,
		status     TEXT NOT NULL DEFAULT 'wtg'
	)`,

	`CREATE TABLE IF NOT EXISTS task_assignees (
		task_id   INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		person_id INTEGER NOT NULL REFERENCES people(id) ON DELETE CASCADE,
		PRIMARY KEY (task_id, person_id)
	)`,

	`CREATE TABLE IF NOT EXISTS milestone_tasks (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		asset_id       INTEGER NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
		name           TEXT NOT NULL,
		start_date     TEXT NOT NULL,
		end_date       TEXT NOT NULL,
		milestone_type TEXT NOT NULL DEFAULT 'Review'
	)`,

	`CREATE TABLE IF NOT EXISTS person_workloads (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id   INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		person_id INTEGER NOT NULL REFERENCES people(id) ON DELETE CASCADE,
		name      TEXT NOT NULL,
		week      TEXT NOT NULL,
		man_week  REAL NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS pmm_workloads (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		subproject_id    INTEGER NOT NULL REFERENCES subprojects(id) ON DELETE CASCADE,
		work_category_id INTEGER REFERENCES work_categories(id) ON DELETE SET NULL,
		name             TEXT NOT NULL,
		week             TEXT NOT NULL,
		man_week         REAL NOT NULL DEFAULT 0
	)`,

	`CREATE INDEX IF NOT EXISTS idx_phases_subproject ON phases(subproject_id)`,
	`CREATE INDEX IF NOT EXISTS idx_assets_phase ON assets(phase_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_asset ON tasks(asset_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_dates ON tasks(start_date, end_date)`,
	`CREATE INDEX IF NOT EXISTS idx_milestone_tasks_asset ON milestone_tasks(asset_id)`,
	`CREATE INDEX IF NOT EXISTS idx_person_workloads_task ON person_workloads(task_id)`,
	`CREATE INDEX IF NOT EXISTS idx_person_workloads_week ON person_workloads(week)`,
	`CREATE INDEX IF NOT EXISTS idx_pmm_workloads_subproject ON pmm_workloads(subproject_id)`,
}
