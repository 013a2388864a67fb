package sqlxrepos

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/staffhub/backend/core"
	"github.com/staffhub/backend/core/cases"
)

type tableDef struct {
	name string
	key  string // external identity column
}

var tables = map[cases.Entity]tableDef{
	cases.EntityStudent:   {name: "students", key: "cases_id"},
	cases.EntityStaff:     {name: "staff", key: "cases_id"},
	cases.EntityEnrolment: {name: "enrolments", key: "external_key"},
	cases.EntityParent:    {name: "parents", key: "cases_id"},
	cases.EntityHomeGroup: {name: "home_groups", key: "code"},
	cases.EntityHouse:     {name: "houses", key: "code"},
}

const (
	upsertStudentQuery = `
INSERT INTO students (cases_id, first_name, last_name, date_of_birth, sex, year_level, home_group, house, email, phone, active)
VALUES (:cases_id, :first_name, :last_name, :date_of_birth, :sex, :year_level, :home_group, :house, :email, :phone, :active)
ON CONFLICT (cases_id) DO UPDATE SET
	first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name, date_of_birth = EXCLUDED.date_of_birth,
	sex = EXCLUDED.sex, year_level = EXCLUDED.year_level, home_group = EXCLUDED.home_group, house = EXCLUDED.house,
	email = EXCLUDED.email, phone = EXCLUDED.phone, active = EXCLUDED.active, updated_at = NOW()`

	upsertStaffQuery = `
INSERT INTO staff (cases_id, first_name, last_name, email, employment_type, department, position, phone, active)
VALUES (:cases_id, :first_name, :last_name, :email, :employment_type, :department, :position, :phone, :active)
ON CONFLICT (cases_id) DO UPDATE SET
	first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name, email = EXCLUDED.email,
	employment_type = EXCLUDED.employment_type, department = EXCLUDED.department, position = EXCLUDED.position,
	phone = EXCLUDED.phone, active = EXCLUDED.active, updated_at = NOW()`

	upsertEnrolmentQuery = `
INSERT INTO enrolments (external_key, student_cases_id, class_code, subject, period, teacher_cases_id, room, term, year)
VALUES (:external_key, :student_cases_id, :class_code, :subject, :period, :teacher_cases_id, :room, :term, :year)
ON CONFLICT (external_key) DO UPDATE SET
	subject = EXCLUDED.subject, period = EXCLUDED.period, teacher_cases_id = EXCLUDED.teacher_cases_id,
	room = EXCLUDED.room, updated_at = NOW()`

	upsertParentQuery = `
INSERT INTO parents (cases_id, first_name, last_name, email, phone, relationship, student_cases_id, is_primary_contact)
VALUES (:cases_id, :first_name, :last_name, :email, :phone, :relationship, :student_cases_id, :is_primary_contact)
ON CONFLICT (cases_id) DO UPDATE SET
	first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name, email = EXCLUDED.email, phone = EXCLUDED.phone,
	relationship = EXCLUDED.relationship, student_cases_id = EXCLUDED.student_cases_id,
	is_primary_contact = EXCLUDED.is_primary_contact, updated_at = NOW()`

	upsertHomeGroupQuery = `
INSERT INTO home_groups (code, name, year_level, teacher_id)
VALUES (:code, :name, :year_level, :teacher_id)
ON CONFLICT (code) DO UPDATE SET
	name = EXCLUDED.name, year_level = EXCLUDED.year_level, teacher_id = EXCLUDED.teacher_id, updated_at = NOW()`

	upsertHouseQuery = `
INSERT INTO houses (code, name, description)
VALUES (:code, :name, :description)
ON CONFLICT (code) DO UPDATE SET
	name = EXCLUDED.name, description = EXCLUDED.description, updated_at = NOW()`

	insertSnapshotQuery = `
INSERT INTO etl_snapshots (id, students, staff, enrolments, parents, created_at)
VALUES (:id, :students, :staff, :enrolments, :parents, :created_at)`

	pruneSnapshotsQuery = `
DELETE FROM etl_snapshots WHERE id NOT IN (
	SELECT id FROM etl_snapshots ORDER BY created_at DESC LIMIT $1
)`
)

// enrolmentRow adds the composed identity column.
type enrolmentRow struct {
	cases.Enrolment
	ExternalKey string `db:"external_key"`
}

type casesRepository struct {
	db core.DB
}

var _ cases.Repository = (*casesRepository)(nil)

func NewCasesRepository(db core.DB) *casesRepository {
	return &casesRepository{db: db}
}

func (repo casesRepository) Exists(ctx context.Context, entity cases.Entity, externalID string) (bool, error) {
	tbl, ok := tables[entity]
	if !ok {
		return false, cases.ErrUnknownEntity
	}
	var exists bool
	q := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1)", tbl.name, tbl.key)
	if err := repo.db.GetContext(ctx, &exists, q, externalID); err != nil {
		return false, errors.Wrapf(err, "checking %s %s", entity, externalID)
	}
	return exists, nil
}

func (repo casesRepository) Upsert(ctx context.Context, rec cases.Record) error {
	var (
		query string
		arg   interface{} = rec
	)
	switch r := rec.(type) {
	case cases.Student:
		query = upsertStudentQuery
	case cases.Staff:
		query = upsertStaffQuery
	case cases.Enrolment:
		query = upsertEnrolmentQuery
		arg = enrolmentRow{Enrolment: r, ExternalKey: r.ExternalID()}
	case cases.Parent:
		query = upsertParentQuery
	case cases.HomeGroup:
		query = upsertHomeGroupQuery
	case cases.House:
		query = upsertHouseQuery
	default:
		return cases.ErrUnknownEntity
	}

	if _, err := repo.db.NamedExecContext(ctx, query, arg); err != nil {
		return errors.Wrapf(err, "upserting %s %s", rec.Entity(), rec.ExternalID())
	}
	return nil
}

func (repo casesRepository) count(ctx context.Context, exec core.DBExecutor, entity cases.Entity) (int, error) {
	var n int
	if err := exec.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+tables[entity].name); err != nil {
		return 0, errors.Wrapf(err, "counting %s", entity)
	}
	return n, nil
}

func (repo casesRepository) Snapshot(ctx context.Context) (snap cases.Snapshot, err error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return snap, errors.Wrap(err, "starting transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	snap = cases.Snapshot{ID: uuid.NewString(), CreatedAt: time.Now().UTC()}
	counts := []struct {
		entity cases.Entity
		dst    *int
	}{
		{cases.EntityStudent, &snap.Students},
		{cases.EntityStaff, &snap.Staff},
		{cases.EntityEnrolment, &snap.Enrolments},
		{cases.EntityParent, &snap.Parents},
	}
	for _, c := range counts {
		if *c.dst, err = repo.count(ctx, tx, c.entity); err != nil {
			return snap, err
		}
	}

	if _, err = tx.NamedExecContext(ctx, insertSnapshotQuery, snap); err != nil {
		return snap, errors.Wrap(err, "saving snapshot")
	}
	if _, err = tx.ExecContext(ctx, pruneSnapshotsQuery, cases.SnapshotsKept); err != nil {
		return snap, errors.Wrap(err, "pruning snapshots")
	}
	return snap, errors.Wrap(tx.Commit(), "committing snapshot")
}

// Snapshots returns the most recent snapshots.
func (repo casesRepository) Snapshots(ctx context.Context, limit int) ([]cases.Snapshot, error) {
	order := core.DBOrdering{Field: "created_at"}
	snaps := make([]cases.Snapshot, 0)
	q := fmt.Sprintf("SELECT id, students, staff, enrolments, parents, created_at FROM etl_snapshots ORDER BY %s LIMIT $1", order)
	if err := repo.db.SelectContext(ctx, &snaps, q, limit); err != nil {
		return nil, errors.Wrap(err, "querying snapshots")
	}
	return snaps, nil
}
