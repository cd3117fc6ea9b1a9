package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/and161185/eventdesk/internal/admin"
	"github.com/and161185/eventdesk/internal/errs"
	"github.com/and161185/eventdesk/internal/guard"
)

func (c *cli) admin(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	if _, err := c.require(ctx, guard.AdminOnly); err != nil {
		return err
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "list":
		return c.adminList(ctx)
	case "create":
		return c.adminCreate(ctx, rest)
	case "update":
		return c.adminUpdate(ctx, rest)
	case "delete":
		return c.adminDelete(ctx, rest)
	case "registrants":
		return c.adminRegistrants(ctx, rest)
	default:
		return errUsage
	}
}

func (c *cli) adminList(ctx context.Context) error {
	v := c.app.Admin.Load(ctx, admin.Create)
	if v.ListErr != nil {
		return &shown{msg: v.ListMessage(), err: v.ListErr}
	}
	if v.Empty() {
		fmt.Fprintln(c.out, admin.EmptyMessage)
		return nil
	}
	printJSON(c.out, eventRows(v.Events))
	return nil
}

// formFlags binds the event form fields to fs.
func formFlags(fs *flag.FlagSet, f *admin.Form) {
	fs.StringVar(&f.Title, "title", f.Title, "title")
	fs.StringVar(&f.Description, "desc", f.Description, "description")
	fs.StringVar(&f.EventDate, "date", f.EventDate, "event date YYYY-MM-DD")
	fs.StringVar(&f.EventTime, "time", f.EventTime, "event time HH:MM")
	fs.StringVar(&f.Location, "location", f.Location, "location")
	fs.IntVar(&f.Capacity, "capacity", f.Capacity, "capacity")
	fs.StringVar(&f.RegistrationDeadline, "deadline", f.RegistrationDeadline, "registration deadline YYYY-MM-DDTHH:MM")
	fs.StringVar(&f.ImageURL, "image", f.ImageURL, "image url")
}

// overlay copies the fields named in set from src onto dst.
func overlay(dst *admin.Form, src admin.Form, set map[string]bool) {
	if set["title"] {
		dst.Title = src.Title
	}
	if set["desc"] {
		dst.Description = src.Description
	}
	if set["date"] {
		dst.EventDate = src.EventDate
	}
	if set["time"] {
		dst.EventTime = src.EventTime
	}
	if set["location"] {
		dst.Location = src.Location
	}
	if set["capacity"] {
		dst.Capacity = src.Capacity
	}
	if set["deadline"] {
		dst.RegistrationDeadline = src.RegistrationDeadline
	}
	if set["image"] {
		dst.ImageURL = src.ImageURL
	}
}

func (c *cli) submit(ctx context.Context, mode admin.Mode, f admin.Form) error {
	v, err := c.app.Admin.Submit(ctx, mode, f)
	if err != nil {
		return &shown{msg: v.Status.Text, err: err}
	}
	fmt.Fprintln(c.out, v.Status.Text)
	return nil
}

func (c *cli) adminCreate(ctx context.Context, args []string) error {
	fs := c.flags("admin create")
	f := admin.NewForm()
	formFlags(fs, &f)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.submit(ctx, admin.Create, f)
}

func (c *cli) adminUpdate(ctx context.Context, args []string) error {
	fs := c.flags("admin update")
	id := fs.Int64("id", 0, "event id")
	var changes admin.Form
	formFlags(fs, &changes)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return errs.Validation("need -id")
	}
	set := map[string]bool{}
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	mode := admin.Edit(*id)
	v := c.app.Admin.Load(ctx, mode)
	if v.TargetErr != nil {
		return &shown{msg: v.TargetMessage(), err: v.TargetErr}
	}
	f := v.Form
	overlay(&f, changes, set)
	return c.submit(ctx, mode, f)
}

func (c *cli) adminDelete(ctx context.Context, args []string) error {
	fs := c.flags("admin delete")
	id := fs.Int64("id", 0, "event id")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return errs.Validation("need -id")
	}

	confirmed := *yes
	if !confirmed {
		answer, err := c.prompt(fmt.Sprintf("Delete event %d? This cannot be undone. [y/N]: ", *id))
		if err != nil {
			return err
		}
		switch strings.ToLower(answer) {
		case "y", "yes":
			confirmed = true
		}
	}

	v, err := c.app.Admin.Delete(ctx, admin.Create, *id, confirmed)
	if err != nil {
		if errors.Is(err, errs.ErrNotConfirmed) {
			return &shown{msg: admin.NotConfirmedMsg, err: err}
		}
		return &shown{msg: v.Status.Text, err: err}
	}
	fmt.Fprintln(c.out, v.Status.Text)
	return nil
}

func (c *cli) adminRegistrants(ctx context.Context, args []string) error {
	fs := c.flags("admin registrants")
	id := fs.Int64("id", 0, "event id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return errs.Validation("need -id")
	}
	regs, err := c.app.API.Registrations.Registrants(ctx, *id)
	if err != nil {
		return show(err, "Failed to load registrants list. Check backend access.")
	}
	printJSON(c.out, registrantRows(regs))
	return nil
}
