package inmemdb

import (
	"sync"

	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/core/student"
)

type (
	// DB is a process-local store, used by tests and demos.
	DB struct {
		student    *studentTable
		attendance *attendanceTable
	}

	studentTable struct {
		table map[int]*student.Student
		mutex sync.RWMutex
	}

	attendanceKey struct {
		studentID int
		date      attendance.Date
	}

	attendanceTable struct {
		table map[string]*attendance.Record // {id: record}
		keys  map[attendanceKey]string      // unique (student_id, date) index
		mutex sync.RWMutex
	}
)

func Open() *DB {
	db := new(DB)
	db.Reset()
	return db
}

// Reset empties every table.
func (db *DB) Reset() {
	db.student = &studentTable{table: make(map[int]*student.Student)}
	db.attendance = &attendanceTable{
		table: make(map[string]*attendance.Record),
		keys:  make(map[attendanceKey]string),
	}
}

func (db *DB) studentName(studentID int) string {
	t := db.student
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	if s, ok := t.table[studentID]; ok {
		return s.Name
	}
	return ""
}
