package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/masomo-live/core"
	"github.com/trezcool/masomo-live/core/liveclass"
	"github.com/trezcool/masomo-live/core/subscription"
)

var (
	isTerminalFunc = term.IsTerminal // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf     *core.Config
	validate *validator.Validate
	liveSvc  *liveclass.Service
	subSvc   *subscription.Service
	migrator func(command string, args ...string) error
	in       io.Reader
	inFd     int
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]  - run a goose command (up, down, status, ...) on the database")
	fmt.Fprintln(cli.out, "  addclass -title TITLE -start RFC3339 -end RFC3339 [-fee N] [-coursefee N] [-free] [-modules A,B] - create a live class")
	fmt.Fprintln(cli.out, "  setlive -id ID [-live=false] - put a class on air (provisions meetings) or take it off air")
	fmt.Fprintln(cli.out, "  deleteclass -id ID [-yes] - delete a class with its subscriptions and payments")
	fmt.Fprintln(cli.out, "  expire - expire lapsed subscriptions now")
	fmt.Fprintln(cli.out, "  token -user ID [-email EMAIL] [-name NAME] [-admin] - mint an API token")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "addclass":
		cmd := cli.newFlagSet("addclass")
		title := cmd.String("title", "", "The class title.")
		description := cmd.String("description", "", "The class description.")
		start := cmd.String("start", "", "When the class starts (RFC3339).")
		end := cmd.String("end", "", "When the class ends (RFC3339).")
		fee := cmd.Int64("fee", 0, "The registration fee, in the currency's minor unit.")
		courseFee := cmd.Int64("coursefee", 0, "The course fee, in the currency's minor unit. Enables the course fee when > 0.")
		free := cmd.Bool("free", false, "Nothing to pay to join.")
		modules := cmd.String("modules", "", "Comma separated module titles, one module per day from the start.")
		firstFree := cmd.Bool("firstfree", false, "The first module is free.")
		duration := cmd.Duration("duration", 2*time.Hour, "How long each module lasts.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *title == "" || *start == "" || *end == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.addClass(addClassOptions{
			title:       *title,
			description: *description,
			start:       *start,
			end:         *end,
			fee:         *fee,
			courseFee:   *courseFee,
			free:        *free,
			modules:     *modules,
			firstFree:   *firstFree,
			duration:    *duration,
		})

	case "setlive":
		cmd := cli.newFlagSet("setlive")
		id := cmd.String("id", "", "The class ID.")
		live := cmd.Bool("live", true, "On air (true) or off air (false).")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *id == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.setLive(*id, *live)

	case "deleteclass":
		cmd := cli.newFlagSet("deleteclass")
		id := cmd.String("id", "", "The class ID.")
		yes := cmd.Bool("yes", false, "Do not ask for confirmation.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *id == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.deleteClass(*id, *yes)

	case "expire":
		return cli.expire()

	case "token":
		cmd := cli.newFlagSet("token")
		userID := cmd.String("user", "", "The user ID.")
		email := cmd.String("email", "", "The user's email.")
		name := cmd.String("name", "", "The user's name.")
		admin := cmd.Bool("admin", false, "Grant admin rights.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *userID == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.token(core.Actor{ID: *userID, Email: *email, Name: *name, IsAdmin: *admin})

	default:
		cli.printUsage()
		return errHelp
	}
}
