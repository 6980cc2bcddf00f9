package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/naraboard/internal/apperr"
	"github.com/kalambet/naraboard/internal/normalize"
	"github.com/kalambet/naraboard/internal/retention"
)

const postingColumns = `id, title, department, registered_on, expires_on, read_count, grade, work_region,
	extra_info, area_code, body, attachments, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosting(row rowScanner) (Posting, error) {
	var p Posting
	var attachments, createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.Title, &p.Department, &p.RegisteredOn, &p.ExpiresOn, &p.ReadCount,
		&p.Grade, &p.WorkRegion, &p.ExtraInfo, &p.AreaCode, &p.Body, &attachments, &createdAt, &updatedAt)
	if err != nil {
		return Posting{}, err
	}
	if err := json.Unmarshal([]byte(attachments), &p.Attachments); err != nil {
		return Posting{}, fmt.Errorf("parsing attachments for %s: %w", p.ID, err)
	}
	if p.Attachments == nil {
		p.Attachments = []Attachment{}
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return Posting{}, fmt.Errorf("parsing created_at for %s: %w", p.ID, err)
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Posting{}, fmt.Errorf("parsing updated_at for %s: %w", p.ID, err)
	}
	return p, nil
}

func (s *Store) GetPosting(id string) (Posting, error) {
	p, err := scanPosting(s.db.QueryRow(`SELECT `+postingColumns+` FROM postings WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Posting{}, ErrNotFound
	}
	return p, err
}

// UpsertPosting merge-writes p. Values absent from p never erase stored ones;
// created_at is kept from the first write and updated_at strictly advances.
// Reports whether the posting was newly created.
func (s *Store) UpsertPosting(p Posting) (bool, error) {
	if strings.TrimSpace(p.ID) == "" {
		return false, apperr.IdentityMissing("posting without id")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback()

	created, err := s.upsertTx(tx, p)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing upsert of %s: %w", p.ID, err)
	}
	return created, nil
}

// BatchUpsert merge-writes all postings in one transaction.
func (s *Store) BatchUpsert(postings []Posting) (created, updated int, err error) {
	for _, p := range postings {
		if strings.TrimSpace(p.ID) == "" {
			return 0, 0, apperr.IdentityMissing("batch contains a posting without id")
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("beginning batch transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range postings {
		isNew, err := s.upsertTx(tx, p)
		if err != nil {
			return 0, 0, err
		}
		if isNew {
			created++
		} else {
			updated++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("committing batch upsert: %w", err)
	}
	return created, updated, nil
}

func (s *Store) upsertTx(tx *sql.Tx, p Posting) (bool, error) {
	now := s.now().UTC()

	existing, err := scanPosting(tx.QueryRow(`SELECT `+postingColumns+` FROM postings WHERE id = ?`, p.ID))
	created := err == sql.ErrNoRows
	if err != nil && !created {
		return false, fmt.Errorf("loading posting %s: %w", p.ID, err)
	}

	var row Posting
	if created {
		row = p
		row.CreatedAt = now
		row.UpdatedAt = now
	} else {
		row = mergePosting(existing, p)
		row.CreatedAt = existing.CreatedAt
		row.UpdatedAt = now
		if !now.After(existing.UpdatedAt) {
			row.UpdatedAt = existing.UpdatedAt.Add(time.Microsecond)
		}
	}
	row.Grade = normalize.OrUnknown(row.Grade)
	row.WorkRegion = normalize.OrUnknown(row.WorkRegion)
	if row.ReadCount < 0 {
		row.ReadCount = 0
	}
	if row.Attachments == nil {
		row.Attachments = []Attachment{}
	}
	for i := range row.Attachments {
		if row.Attachments[i].Size < 0 {
			row.Attachments[i].Size = 0
		}
	}

	attachments, err := json.Marshal(row.Attachments)
	if err != nil {
		return false, fmt.Errorf("marshalling attachments for %s: %w", p.ID, err)
	}

	_, err = tx.Exec(`
		INSERT INTO postings (`+postingColumns+`, registered_day)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title, department = excluded.department,
			registered_on = excluded.registered_on, registered_day = excluded.registered_day,
			expires_on = excluded.expires_on,
			read_count = excluded.read_count, grade = excluded.grade, work_region = excluded.work_region,
			extra_info = excluded.extra_info, area_code = excluded.area_code, body = excluded.body,
			attachments = excluded.attachments, updated_at = excluded.updated_at`,
		row.ID, row.Title, row.Department, row.RegisteredOn, row.ExpiresOn, row.ReadCount,
		row.Grade, row.WorkRegion, row.ExtraInfo, row.AreaCode, row.Body, string(attachments),
		formatTime(row.CreatedAt), formatTime(row.UpdatedAt), registeredDay(row.RegisteredOn),
	)
	if err != nil {
		return false, fmt.Errorf("writing posting %s: %w", p.ID, err)
	}
	return created, nil
}

// registeredDay is the sortable YYYY-MM-DD form of raw, or "" when it does
// not parse.
func registeredDay(raw string) string {
	d, ok := retention.ParseDate(raw)
	if !ok {
		return ""
	}
	return d.Format("2006-01-02")
}

// mergePosting overlays incoming onto existing. Blank strings, the Unknown
// sentinel, a zero read count and an empty attachment list count as absent.
func mergePosting(existing, incoming Posting) Posting {
	out := existing
	pick := func(dst *string, v string) {
		if !normalize.IsUnknown(v) {
			*dst = v
		}
	}
	pick(&out.Title, incoming.Title)
	pick(&out.Department, incoming.Department)
	pick(&out.RegisteredOn, incoming.RegisteredOn)
	pick(&out.ExpiresOn, incoming.ExpiresOn)
	pick(&out.Grade, incoming.Grade)
	pick(&out.WorkRegion, incoming.WorkRegion)
	pick(&out.ExtraInfo, incoming.ExtraInfo)
	pick(&out.AreaCode, incoming.AreaCode)
	pick(&out.Body, incoming.Body)
	if incoming.ReadCount > 0 {
		out.ReadCount = incoming.ReadCount
	}
	if len(incoming.Attachments) > 0 {
		out.Attachments = incoming.Attachments
	}
	return out
}

// ScanPostings returns up to limit postings with id greater than afterID, ordered by id.
func (s *Store) ScanPostings(afterID string, limit int) ([]Posting, error) {
	rows, err := s.db.Query(`SELECT `+postingColumns+` FROM postings WHERE id > ? ORDER BY id ASC LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Posting
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ScanAll walks every posting in id order, batchSize at a time. Iteration stops
// at the first error returned by fn.
func (s *Store) ScanAll(batchSize int, fn func(batch []Posting) error) error {
	if batchSize <= 0 {
		batchSize = 200
	}
	after := ""
	for {
		batch, err := s.ScanPostings(after, batchSize)
		if err != nil {
			return fmt.Errorf("scanning postings after %q: %w", after, err)
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
		after = batch[len(batch)-1].ID
	}
}

// DeletePostings removes ids inside one transaction. Each delete is isolated:
// a failing or missing id is reported in failed and the rest still commit.
func (s *Store) DeletePostings(ids []string) (deleted []string, failed map[string]error, err error) {
	failed = make(map[string]error)
	if len(ids) == 0 {
		return nil, failed, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, nil, fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		res, err := tx.Exec(`DELETE FROM postings WHERE id = ?`, id)
		if err != nil {
			failed[id] = err
			continue
		}
		n, err := res.RowsAffected()
		if err != nil {
			failed[id] = err
			continue
		}
		if n == 0 {
			failed[id] = ErrNotFound
			continue
		}
		deleted = append(deleted, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing delete batch: %w", err)
	}
	return deleted, failed, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListPostings returns a page of postings, newest registration first, plus the
// total number of matches.
func (s *Store) ListPostings(q ListQuery) ([]Posting, int, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}

	where := ""
	var args []any
	if search := strings.TrimSpace(q.Search); search != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(search)) + "%"
		where = ` WHERE LOWER(title) LIKE ? ESCAPE '\' OR LOWER(department) LIKE ? ESCAPE '\'`
		args = append(args, pattern, pattern)
	}

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM postings`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting postings: %w", err)
	}

	args = append(args, q.Limit, (q.Page-1)*q.Limit)
	rows, err := s.db.Query(`SELECT `+postingColumns+` FROM postings`+where+
		` ORDER BY registered_day DESC, id DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing postings: %w", err)
	}
	defer rows.Close()

	out := []Posting{}
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (s *Store) CountPostings() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM postings`).Scan(&n)
	return n, err
}

// Stats summarises the stored postings for the dashboard.
type Stats struct {
	TotalJobs        int `json:"totalJobs"`
	UrgentJobs       int `json:"urgentJobs"`
	RecentJobs       int `json:"recentJobs"`
	TotalDepartments int `json:"totalDepartments"`
}

const (
	urgentWindowDays = 3
	recentWindowDays = 7
)

// StatsAsOf counts postings closing within three days of today, postings
// registered in the last seven days and distinct departments.
func (s *Store) StatsAsOf(today time.Time) (Stats, error) {
	rows, err := s.db.Query(`SELECT department, registered_on, expires_on FROM postings`)
	if err != nil {
		return Stats{}, fmt.Errorf("loading stats rows: %w", err)
	}
	defer rows.Close()

	today = retention.Day(today)
	depts := make(map[string]struct{})
	var st Stats
	for rows.Next() {
		var dept, reg, exp string
		if err := rows.Scan(&dept, &reg, &exp); err != nil {
			return Stats{}, err
		}
		st.TotalJobs++
		if dept != "" {
			depts[dept] = struct{}{}
		}
		if d, ok := retention.ParseDate(exp); ok {
			if days := daysBetween(today, d); days >= 0 && days <= urgentWindowDays {
				st.UrgentJobs++
			}
		}
		if d, ok := retention.ParseDate(reg); ok {
			if days := daysBetween(d, today); days >= 0 && days <= recentWindowDays {
				st.RecentJobs++
			}
		}
	}
	st.TotalDepartments = len(depts)
	return st, rows.Err()
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
