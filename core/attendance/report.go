package attendance

import (
	"math"
	"sort"
	"strings"
)

// maxMatrixDays bounds the date axis of a matrix.
const maxMatrixDays = 731

type Summary struct {
	Total      int `json:"total"`
	Present    int `json:"present"`
	Absent     int `json:"absent"`
	Leave      int `json:"leave"`
	PctPresent int `json:"pct_present"`
	PctAbsent  int `json:"pct_absent"`
	PctLeave   int `json:"pct_leave"`
}

func Summarize(records []Record) Summary {
	var s Summary
	for _, r := range records {
		switch r.Status {
		case Present:
			s.Present++
		case Absent:
			s.Absent++
		case Leave:
			s.Leave++
		}
	}
	s.Total = len(records)
	if s.Total == 0 {
		return s
	}
	pct := func(n int) int { return int(math.Round(float64(n) * 100 / float64(s.Total))) }
	s.PctPresent = pct(s.Present)
	s.PctAbsent = pct(s.Absent)
	s.PctLeave = pct(s.Leave)
	return s
}

type (
	Matrix struct {
		Dates []Date      `json:"dates"`
		Rows  []MatrixRow `json:"rows"`
	}

	// MatrixRow holds one status per date of the axis, "" when nothing was recorded.
	MatrixRow struct {
		StudentID int               `json:"student_id"`
		Name      string            `json:"name"`
		PerDate   map[string]string `json:"per_date"` // {YYYY-MM-DD: status}
	}
)

// BuildMatrix lays records out on the continuous from..to axis.
// Only students with at least one record in range get a row.
func BuildMatrix(records []Record, from, to Date) (Matrix, error) {
	if from.IsZero() || to.IsZero() {
		return Matrix{}, fieldError("from", "a date range is required")
	}
	if from.After(to) {
		return Matrix{}, fieldError("from", "must not be after `to`")
	}
	if to.DaysSince(from) >= maxMatrixDays {
		return Matrix{}, fieldError("to", "date range is too long")
	}

	dates := DateRange(from, to)
	rows := make(map[int]*MatrixRow)
	for _, r := range records {
		if !r.Date.Between(from, to) {
			continue
		}
		row, ok := rows[r.StudentID]
		if !ok {
			row = &MatrixRow{StudentID: r.StudentID, PerDate: make(map[string]string, len(dates))}
			for _, d := range dates {
				row.PerDate[d.String()] = ""
			}
			rows[r.StudentID] = row
		}
		if row.Name == "" {
			row.Name = r.StudentName
		}
		row.PerDate[r.Date.String()] = string(r.Status)
	}

	m := Matrix{Dates: dates, Rows: make([]MatrixRow, 0, len(rows))}
	for _, row := range rows {
		m.Rows = append(m.Rows, *row)
	}
	sort.Slice(m.Rows, func(i, j int) bool {
		return byName(m.Rows[i].Name, m.Rows[i].StudentID, m.Rows[j].Name, m.Rows[j].StudentID)
	})
	return m, nil
}

type Absence struct {
	StudentID int    `json:"student_id"`
	Name      string `json:"name"`
	Dates     []Date `json:"dates"`
}

// DateStrings returns the absence dates formatted as YYYY-MM-DD.
func (a Absence) DateStrings() []string {
	out := make([]string, len(a.Dates))
	for i, d := range a.Dates {
		out[i] = d.String()
	}
	return out
}

// BuildAbsences lists every student with at least one Absent record.
func BuildAbsences(records []Record) []Absence {
	byStudent := make(map[int]*Absence)
	seen := make(map[int]map[Date]struct{})
	for _, r := range records {
		if r.Status != Absent {
			continue
		}
		a, ok := byStudent[r.StudentID]
		if !ok {
			a = &Absence{StudentID: r.StudentID, Name: r.StudentName}
			byStudent[r.StudentID] = a
			seen[r.StudentID] = make(map[Date]struct{})
		}
		if _, dup := seen[r.StudentID][r.Date]; dup {
			continue
		}
		seen[r.StudentID][r.Date] = struct{}{}
		a.Dates = append(a.Dates, r.Date)
	}

	out := make([]Absence, 0, len(byStudent))
	for _, a := range byStudent {
		sort.Slice(a.Dates, func(i, j int) bool { return a.Dates[i].Before(a.Dates[j]) })
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		return byName(out[i].Name, out[i].StudentID, out[j].Name, out[j].StudentID)
	})
	return out
}

type ClassGroup struct {
	ClassName string   `json:"class_name"`
	Items     []Record `json:"items"`
}

// GroupByClass groups records by class name, keeping only statusFilter when set.
func GroupByClass(records []Record, statusFilter Status) []ClassGroup {
	idx := make(map[string]int)
	groups := make([]ClassGroup, 0)
	for _, r := range records {
		if statusFilter != "" && r.Status != statusFilter {
			continue
		}
		i, ok := idx[r.ClassName]
		if !ok {
			i = len(groups)
			idx[r.ClassName] = i
			groups = append(groups, ClassGroup{ClassName: r.ClassName})
		}
		groups[i].Items = append(groups[i].Items, r)
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].ClassName < groups[j].ClassName })
	return groups
}

// DateBounds returns the first and last dates of records.
func DateBounds(records []Record) (first, last Date) {
	for _, r := range records {
		if first.IsZero() || r.Date.Before(first) {
			first = r.Date
		}
		if last.IsZero() || r.Date.After(last) {
			last = r.Date
		}
	}
	return first, last
}

func byName(ni string, idi int, nj string, idj int) bool {
	li, lj := strings.ToLower(ni), strings.ToLower(nj)
	if li == lj {
		return idi < idj
	}
	return li < lj
}
