package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/rollcall/core/student"
)

// rosterFile is the YAML roster format:
//
//	students:
//	  - student_id: 1
//	    name: Alice
//	    class_name: 5A
//	    class_teacher: Mrs Smith
type rosterFile struct {
	Students []student.NewStudent `yaml:"students"`
}

func (cli *commandLine) importRoster(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening roster")
	}
	defer f.Close()

	var roster rosterFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err = dec.Decode(&roster); err != nil {
		return errors.Wrapf(err, "parsing %s", path)
	}

	n, err := cli.students.Import(context.Background(), roster.Students)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d students imported\n", n)
	return nil
}
