package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanList(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		lower bool
		want  []string
	}{
		{name: "empty", in: "", want: []string{}},
		{name: "blanks dropped", in: " , ,", want: []string{}},
		{name: "trimmed", in: " admin: , Teacher: ", want: []string{"admin:", "Teacher:"}},
		{name: "lowered", in: "Admin:,TEACHER:", lower: true, want: []string{"admin:", "teacher:"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CleanList(tc.in, tc.lower))
		})
	}
}
