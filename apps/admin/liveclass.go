package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-live/core"
	"github.com/trezcool/masomo-live/core/liveclass"
)

var errNotConfirmed = errors.New("deletion not confirmed")

type addClassOptions struct {
	title       string
	description string
	start       string
	end         string
	fee         int64
	courseFee   int64
	free        bool
	modules     string
	firstFree   bool
	duration    time.Duration
}

func (opts addClassOptions) newLiveClass() (liveclass.NewLiveClass, error) {
	start, err := time.Parse(time.RFC3339, opts.start)
	if err != nil {
		return liveclass.NewLiveClass{}, core.NewValidationError(nil, core.FieldError{Field: "start", Error: "must be RFC3339"})
	}
	end, err := time.Parse(time.RFC3339, opts.end)
	if err != nil {
		return liveclass.NewLiveClass{}, core.NewValidationError(nil, core.FieldError{Field: "end", Error: "must be RFC3339"})
	}

	nc := liveclass.NewLiveClass{
		Title:               opts.title,
		Description:         opts.description,
		StartsAt:            start,
		EndsAt:              end,
		RegistrationFee:     opts.fee,
		CourseFee:           opts.courseFee,
		CourseFeeEnabled:    opts.courseFee > 0,
		RegistrationEnabled: true,
		IsFirstModuleFree:   opts.firstFree,
		IsFree:              opts.free,
		IsActive:            true,
	}
	if opts.modules == "" {
		return nc, nil
	}
	for i, title := range strings.Split(opts.modules, ",") {
		modStart := start.Add(time.Duration(i) * 24 * time.Hour)
		nc.Modules = append(nc.Modules, liveclass.NewModule{
			Title:    title,
			StartsAt: modStart,
			EndsAt:   modStart.Add(opts.duration),
		})
	}
	return nc, nil
}

func (cli *commandLine) addClass(opts addClassOptions) error {
	nc, err := opts.newLiveClass()
	if err != nil {
		return err
	}
	cls, err := cli.liveSvc.Create(context.Background(), nc, cli.validate)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "live class %q created: %s\n", cls.Title, cls.ID)
	for _, mod := range cls.Modules {
		fmt.Fprintf(cli.out, "  %d. %s: %s\n", mod.Position, mod.Title, mod.ID)
	}
	return nil
}

func (cli *commandLine) setLive(id string, live bool) error {
	cls, err := cli.liveSvc.SetLive(context.Background(), id, live)
	if err != nil {
		return err
	}
	if !cls.IsOnClassroom {
		fmt.Fprintf(cli.out, "live class %q is off air\n", cls.Title)
		return nil
	}
	fmt.Fprintf(cli.out, "live class %q is on air\n", cls.Title)
	if cls.Meeting != nil {
		fmt.Fprintf(cli.out, "  host link: %s\n", cls.Meeting.HostLink)
	}
	for _, mod := range cls.Modules {
		if mod.Meeting == nil {
			fmt.Fprintf(cli.out, "  %d. %s: no meeting room\n", mod.Position, mod.Title)
			continue
		}
		fmt.Fprintf(cli.out, "  %d. %s: %s\n", mod.Position, mod.Title, mod.Meeting.HostLink)
	}
	return nil
}

// deleteClass asks for confirmation unless yes is set. Without a terminal to ask on, yes is required.
func (cli *commandLine) deleteClass(id string, yes bool) error {
	ctx := context.Background()
	cls, err := cli.liveSvc.Get(ctx, id)
	if err != nil {
		return err
	}

	if !yes {
		if !isTerminalFunc(cli.inFd) {
			return errors.WithMessage(errNotConfirmed, "stdin is not a terminal, use -yes")
		}
		fmt.Fprintf(cli.out, "Delete live class %q with all its subscriptions and payments? [y/N] ", cls.Title)
		answer, _ := bufio.NewReader(cli.in).ReadString('\n')
		if a := core.CleanString(answer, true /* lower */); a != "y" && a != "yes" {
			return errNotConfirmed
		}
	}

	if err = cli.liveSvc.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "live class %q deleted\n", cls.Title)
	return nil
}
