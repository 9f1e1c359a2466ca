package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/shule/core/academic"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp       = errors.New("help provided")
	errNoDatabase = errors.New("migrations need the postgres storage backend")
)

type commandLine struct {
	db       *sql.DB // nil on the memory backend
	users    user.Repository
	students *student.Service
	academic *academic.Service
	validate *validator.Validate
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                             - run a goose command (up, down, status, ...) on the embedded migrations")
	fmt.Fprintln(cli.out, "  adduser -username USERNAME -email EMAIL [-admin]   - create or update a user, the password is prompted next")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL            - reset user's password")
	fmt.Fprintln(cli.out, "  importstudents -file ROSTER.xlsx -class CLASS_ID  - enroll the students of an XLSX roster")
	fmt.Fprintln(cli.out, "  exportstudents -file ROSTER.xlsx [-class CLASS_ID] - write the students to an XLSX roster")
	fmt.Fprintln(cli.out, "  activateyear -id YEAR_ID                           - make an academic year the active one")
}

// promptPassword reads a password from the terminal without echoing it.
func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Grant the user the owner role.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	importCmd := flag.NewFlagSet("importstudents", flag.ContinueOnError)
	importFile := importCmd.String("file", "", "The XLSX roster to import.")
	importClass := importCmd.String("class", "", "The id of the class to enroll the students into.")

	exportCmd := flag.NewFlagSet("exportstudents", flag.ContinueOnError)
	exportFile := exportCmd.String("file", "", "The XLSX file to write.")
	exportClass := exportCmd.String("class", "", "Only export the students of this class.")

	activateCmd := flag.NewFlagSet("activateyear", flag.ContinueOnError)
	activateID := activateCmd.String("id", "", "The id of the academic year to activate.")

	for _, fs := range []*flag.FlagSet{addUserCmd, resetPasswordCmd, importCmd, exportCmd, activateCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, pwd, *addUserAdmin)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "importstudents":
		if err := importCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *importFile == "" || *importClass == "" {
			importCmd.Usage()
			return errHelp
		}
		return cli.importStudents(*importFile, *importClass)

	case "exportstudents":
		if err := exportCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *exportFile == "" {
			exportCmd.Usage()
			return errHelp
		}
		return cli.exportStudents(*exportFile, *exportClass)

	case "activateyear":
		if err := activateCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *activateID == "" {
			activateCmd.Usage()
			return errHelp
		}
		return cli.activateYear(*activateID)

	default:
		cli.printUsage()
		return errHelp
	}
}
