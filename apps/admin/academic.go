package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) activateYear(id string) error {
	y, err := cli.academic.ActivateYear(context.Background(), id)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "academic year %q is now active\n", y.Name)
	return nil
}
