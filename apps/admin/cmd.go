package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/term"

	echoapi "github.com/trezcool/rollcall/apps/api/echo"
	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/core/student"
	digestsvc "github.com/trezcool/rollcall/services/digest"
)

var (
	isTerminalFunc = term.IsTerminal // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf       *core.Config
	validate   *validator.Validate
	students   *student.Service
	attendance *attendance.Service
	mailer     core.EmailService
	migrate    func(command string, args ...string) error
	out        io.Writer
	outFd      int
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                          - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  importroster -file FILE                         - import (create or update) the students of a YAML roster")
	fmt.Fprintln(cli.out, "  token -username USERNAME -role ROLE[,ROLE]      - issue an API token")
	fmt.Fprintln(cli.out, "  absences -class CLASS -from DATE -to DATE [-email ADDRESS] - list absent students")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	importCmd := flag.NewFlagSet("importroster", flag.ContinueOnError)
	importFile := importCmd.String("file", "", "Path to the YAML roster.")

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenUname := tokenCmd.String("username", "", "The username the token is issued to.")
	tokenRoles := tokenCmd.String("role", echoapi.RoleTeacher, "Comma separated roles: "+strings.Join(echoapi.Roles, ", "))

	absencesCmd := flag.NewFlagSet("absences", flag.ContinueOnError)
	absencesClass := absencesCmd.String("class", "", "Class name (all classes when empty).")
	absencesFrom := absencesCmd.String("from", "", "First date, YYYY-MM-DD.")
	absencesTo := absencesCmd.String("to", "", "Last date, YYYY-MM-DD.")
	absencesEmail := absencesCmd.String("email", "", "Also email the report to these addresses (comma separated).")

	for _, fs := range []*flag.FlagSet{importCmd, tokenCmd, absencesCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2], args[3:]...)
	case "importroster":
		if err := importCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *importFile == "" {
			importCmd.Usage()
			return errHelp
		}
		return cli.importRoster(*importFile)
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if core.CleanString(*tokenUname) == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(*tokenUname, *tokenRoles)
	case "absences":
		if err := absencesCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *absencesFrom == "" || *absencesTo == "" {
			absencesCmd.Usage()
			return errHelp
		}
		return cli.absences(context.Background(), *absencesClass, *absencesFrom, *absencesTo, *absencesEmail)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) token(username, roles string) error {
	list := core.CleanList(roles, true /* lower */)
	for _, r := range list {
		if !echoapi.ValidRole(r) {
			return fmt.Errorf("unknown role %q (known: %s)", r, strings.Join(echoapi.Roles, ", "))
		}
	}
	if len(list) == 0 {
		return errors.New("at least one role is required")
	}

	token, err := echoapi.GenerateToken(cli.conf, echoapi.NewClaims(cli.conf, username, list...))
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}

func (cli *commandLine) absences(ctx context.Context, className, from, to, emails string) error {
	params := attendance.FilterParams{ClassName: className, From: from, To: to, Status: string(attendance.Absent)}
	filter, err := params.Filter(cli.validate)
	if err != nil {
		return err
	}
	records, err := cli.attendance.All(ctx, filter)
	if err != nil {
		return errors.Wrap(err, "listing absences")
	}

	title := filter.From.String() + " to " + filter.To.String()
	if className != "" {
		title = className + ", " + title
	}
	data, total := digestsvc.NewData(title, records)

	if isTerminalFunc(cli.outFd) {
		err = writeTable(cli.out, data)
	} else {
		err = digestsvc.WriteCSV(cli.out, data)
	}
	if err != nil {
		return err
	}

	if emails = core.CleanString(emails); emails != "" {
		to, err := parseAddresses(emails)
		if err != nil {
			return err
		}
		msg, err := digestsvc.NewMessage("Absences "+title, to, data, total)
		if err != nil {
			return err
		}
		cli.mailer.SendMessages(msg)
	}
	return nil
}

func writeTable(w io.Writer, data digestsvc.Data) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Absences for %s\n\n", data.Title)
	fmt.Fprintln(tw, "CLASS\tID\tNAME\tDAYS\tDATES")
	for _, c := range data.Classes {
		for _, s := range c.Absences {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%s\n", c.ClassName, s.StudentID, s.Name, len(s.Dates), strings.Join(s.Dates, ", "))
		}
	}
	return tw.Flush()
}

func stdoutFd() int {
	return int(os.Stdout.Fd())
}
