package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"truewater/api/internal/sample"
)

// NewRecord is everything the client supplies; id and dateOfTest come from the database.
type NewRecord struct {
	TestID       string
	TestNumber   int
	Location     sample.Location
	ImageURI     string
	AlgaeContent []sample.Observation
	Explanation  string
}

type SampleRepo struct {
	DB      *sql.DB
	Dialect Dialect

	// PollInterval drives Subscribe; zero means 2s.
	PollInterval time.Duration
	// Wake, when set, triggers an immediate poll (LISTEN/NOTIFY).
	Wake <-chan struct{}
}

func NewSampleRepo(db *sql.DB, d Dialect) *SampleRepo {
	return &SampleRepo{DB: db, Dialect: d}
}

const selectSamples = `select id, test_id, test_number, date_of_test, location_name,
       latitude, longitude, image_uri, algae_content, explanation
from water_samples
order by date_of_test desc, id desc`

// List returns the whole collection, newest first.
func (r *SampleRepo) List(ctx context.Context) ([]sample.Record, error) {
	rows, err := r.DB.QueryContext(ctx, selectSamples)
	if err != nil {
		return nil, classify("list samples", err)
	}
	defer rows.Close()

	out := make([]sample.Record, 0, 16)
	for rows.Next() {
		var (
			id    int64
			rec   sample.Record
			date  any
			algae []byte
		)
		if err := rows.Scan(&id, &rec.TestID, &rec.TestNumber, &date, &rec.Location.Name,
			&rec.Location.Latitude, &rec.Location.Longitude, &rec.ImageURI, &algae, &rec.Explanation); err != nil {
			return nil, classify("scan sample", err)
		}
		rec.ID = strconv.FormatInt(id, 10)
		if rec.DateOfTest, err = parseTime(date); err != nil {
			return nil, classify("scan sample", err)
		}
		if err := json.Unmarshal(algae, &rec.AlgaeContent); err != nil {
			return nil, classify("decode algae_content", err)
		}
		if rec.AlgaeContent == nil {
			rec.AlgaeContent = []sample.Observation{}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list samples", err)
	}
	return out, nil
}

// Create inserts one immutable record and returns its id and server-assigned date.
func (r *SampleRepo) Create(ctx context.Context, in NewRecord) (string, time.Time, error) {
	algae := in.AlgaeContent
	if algae == nil {
		algae = []sample.Observation{}
	}
	js, err := json.Marshal(algae)
	if err != nil {
		return "", time.Time{}, classify("encode algae_content", err)
	}
	q := rebind(r.Dialect, `
insert into water_samples (
  test_id, test_number, location_name, latitude, longitude,
  image_uri, algae_content, explanation
) values (?,?,?,?,?,?,?,?)
returning id, date_of_test`)

	var (
		id   int64
		date any
	)
	err = r.DB.QueryRowContext(ctx, q,
		in.TestID, in.TestNumber, in.Location.Name, in.Location.Latitude, in.Location.Longitude,
		in.ImageURI, string(js), in.Explanation,
	).Scan(&id, &date)
	if err != nil {
		return "", time.Time{}, classify("create sample", err)
	}
	ts, err := parseTime(date)
	if err != nil {
		return "", time.Time{}, classify("create sample", err)
	}
	return strconv.FormatInt(id, 10), ts, nil
}

// Subscribe pushes the full collection once, then again whenever it changes,
// until ctx is done. Records are insert-only, so row count and max id detect change.
func (r *SampleRepo) Subscribe(ctx context.Context, fn func([]sample.Record)) error {
	interval := r.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	var last fingerprint
	push := func() {
		fp, err := r.fingerprint(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("store subscribe: %v", err)
			}
			return
		}
		if fp == last {
			return
		}
		recs, err := r.List(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("store subscribe: %v", err)
			}
			return
		}
		last = fp
		fn(recs)
	}

	last = fingerprint{count: -1}
	push()

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			push()
		case <-r.Wake:
			push()
		}
	}
}

type fingerprint struct {
	count int64
	maxID int64
}

func (r *SampleRepo) fingerprint(ctx context.Context) (fingerprint, error) {
	var fp fingerprint
	err := r.DB.QueryRowContext(ctx, `select count(*), coalesce(max(id), 0) from water_samples`).Scan(&fp.count, &fp.maxID)
	if err != nil {
		return fp, classify("poll samples", err)
	}
	return fp, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999Z",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

// parseTime accepts what either driver hands back for date_of_test.
func parseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return parseTimeString(t)
	case []byte:
		return parseTimeString(string(t))
	default:
		return time.Time{}, fmt.Errorf("unexpected date type %T", v)
	}
}

func parseTimeString(s string) (time.Time, error) {
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}
