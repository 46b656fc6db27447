package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"deptattendance/internal/attendance"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	store *attendance.Store
	out   io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  addhod -username USERNAME -branch BRANCH -batch BATCH - create a HOD account; the password is prompted next")
	fmt.Fprintln(cli.out, "  export [-o FILE]                                      - write the whole document as JSON (stdout by default)")
	fmt.Fprintln(cli.out, "  import -i FILE                                        - validate FILE and replace the whole document with it")
	fmt.Fprintln(cli.out, "  reset [-empty]                                        - replace the document with the demo data, or an empty one")
	fmt.Fprintln(cli.out, "  stats -subject CODE -student USERNAME                 - print a student's attendance for a subject")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "addhod":
		fs := cli.flagSet("addhod")
		username := fs.String("username", "", "The HOD's username.")
		branch := fs.String("branch", "", "The HOD's branch.")
		batch := fs.String("batch", "", "The HOD's batch.")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if *username == "" || *branch == "" || *batch == "" {
			fs.Usage()
			return errHelp
		}
		fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			fs.Usage()
			return errHelp
		}
		return cli.addHOD(ctx, attendance.NewHOD{Username: *username, Password: string(pwd), Branch: *branch, Batch: *batch})

	case "export":
		fs := cli.flagSet("export")
		path := fs.String("o", "", "Output file. Defaults to stdout.")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		return cli.export(ctx, *path)

	case "import":
		fs := cli.flagSet("import")
		path := fs.String("i", "", "Document to import.")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if *path == "" {
			fs.Usage()
			return errHelp
		}
		return cli.importFile(ctx, *path)

	case "reset":
		fs := cli.flagSet("reset")
		empty := fs.Bool("empty", false, "Reset to an empty document instead of the demo data.")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if err := cli.store.Reset(ctx, !*empty); err != nil {
			return err
		}
		fmt.Fprintln(cli.out, "document reset")
		return nil

	case "stats":
		fs := cli.flagSet("stats")
		subject := fs.String("subject", "", "The subject code.")
		student := fs.String("student", "", "The student's username.")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if *subject == "" || *student == "" {
			fs.Usage()
			return errHelp
		}
		return cli.stats(ctx, *subject, *student)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) addHOD(ctx context.Context, nh attendance.NewHOD) error {
	if err := cli.store.AddHOD(ctx, nh); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "HOD %q created\n", attendance.CleanString(nh.Username))
	return nil
}

func (cli *commandLine) export(ctx context.Context, path string) error {
	data, err := cli.store.Export(ctx)
	if err != nil {
		return err
	}
	if path == "" {
		_, err = fmt.Fprintln(cli.out, string(data))
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	fmt.Fprintf(cli.out, "document written to %s\n", path)
	return nil
}

func (cli *commandLine) importFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading %s", path)
	}
	if err := cli.store.Import(ctx, data); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "document imported from %s\n", path)
	return nil
}

func (cli *commandLine) stats(ctx context.Context, subject, student string) error {
	st, err := cli.store.ComputeAttendanceStats(ctx, subject, student)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s in %s: %d/%d present (%s%%, %s)\n", student, subject, st.Present, st.Total, st, st.Standing())
	return nil
}
