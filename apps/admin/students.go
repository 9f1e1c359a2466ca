package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/student"
)

func (cli *commandLine) importStudents(path, classID string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening roster")
	}
	defer f.Close()

	report, err := cli.students.Import(context.Background(), f, classID, cli.validate)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d students enrolled, %d rows skipped\n", report.Created, len(report.Skipped))
	for _, s := range report.Skipped {
		fmt.Fprintf(cli.out, "  row %d: %s\n", s.Row, s.Reason)
	}
	return nil
}

func (cli *commandLine) exportStudents(path, classID string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating roster")
	}

	filter := &student.QueryFilter{ClassID: classID}
	n, err := cli.students.Export(context.Background(), f, filter)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return err
	}
	fmt.Fprintf(cli.out, "%d students written to %s\n", n, path)
	return nil
}
