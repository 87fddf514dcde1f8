package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"robot-console/message"
	"robot-console/models"
	"robot-console/mqtt"
	"robot-console/services"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string, help *bool) error {
	fs.BoolVar(help, "help", false, "show help")
	fs.BoolVar(help, "h", false, "show help")
	if err := fs.Parse(args); err != nil {
		printUsage()
		return err
	}
	if *help {
		printUsage()
		return errHelp
	}
	return nil
}

func parseID(name, value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return id, nil
}

func (a *app) runList(ctx context.Context, args []string) error {
	fs := newFlagSet("list")
	var (
		help     bool
		language string
		active   string
		filter   models.ListFilter
	)
	fs.StringVar(&language, "language", "", "nelogica or meta_trader")
	fs.StringVar(&active, "active", "", "filter by is_active")
	fs.StringVar(&filter.Search, "search", "", "search text")
	fs.IntVar(&filter.Page, "page", 0, "page number")
	fs.IntVar(&filter.PerPage, "per-page", 0, "page size")
	if err := parseFlags(fs, args, &help); err != nil {
		return err
	}

	filter.Language = models.Language(language)
	if filter.Language != "" && !filter.Language.Valid() {
		return fmt.Errorf("unknown language %q", language)
	}
	if active != "" {
		v, err := strconv.ParseBool(active)
		if err != nil {
			return fmt.Errorf("--active must be a boolean")
		}
		filter.IsActive = &v
	}

	list, err := a.robots.List(ctx, filter)
	if err != nil {
		return err
	}
	if a.opts.jsonOutput {
		return a.printJSON(list)
	}
	a.printRobotList(list)
	return nil
}

func (a *app) runGet(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: robotctl get <robot_id>")
	}
	id, err := parseID("robot_id", args[0])
	if err != nil {
		return err
	}
	robot, err := a.robots.Get(ctx, id)
	if err != nil {
		return err
	}
	if a.opts.jsonOutput {
		return a.printJSON(robot)
	}
	a.printRobot(robot)
	return nil
}

// runApply creates or updates a robot from a YAML manifest.
func (a *app) runApply(ctx context.Context, args []string) error {
	fs := newFlagSet("apply")
	var (
		help   bool
		path   string
		dryRun bool
	)
	fs.StringVar(&path, "f", "", "manifest file")
	fs.BoolVar(&dryRun, "dry-run", false, "print the encoded fields without sending")
	if err := parseFlags(fs, args, &help); err != nil {
		return err
	}
	if path == "" {
		return errors.New("apply requires -f <manifest.yaml>")
	}

	m, err := loadManifest(path)
	if err != nil {
		return err
	}

	buf := services.NewCreateBuffer()
	if m.kind() == models.IntentUpdate {
		current, err := a.robots.Get(ctx, m.ID)
		if err != nil {
			return err
		}
		buf = services.NewUpdateBuffer(current)
	}
	if err := m.applyTo(buf); err != nil {
		return err
	}

	if dryRun {
		return a.printIntent(buf.Intent())
	}

	robot, err := a.robots.SubmitIntent(ctx, buf.Intent())
	if err != nil {
		return err
	}
	if a.opts.jsonOutput {
		return a.printJSON(robot)
	}
	verb := "created"
	if m.kind() == models.IntentUpdate {
		verb = "updated"
	}
	fmt.Fprintf(a.out, "Robot %d %s (version %d)\n", robot.ID, verb, robot.Version)
	return nil
}

func (a *app) runDelete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: robotctl delete <robot_id>")
	}
	id, err := parseID("robot_id", args[0])
	if err != nil {
		return err
	}
	if err := a.robots.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Robot %d deleted\n", id)
	return nil
}

// runDownload saves a robot file. When the download endpoint fails, the
// file URL is printed instead.
func (a *app) runDownload(ctx context.Context, args []string) error {
	fs := newFlagSet("download")
	var (
		help bool
		out  string
	)
	fs.StringVar(&out, "out", "", "output path (default: the file's name)")

	positional, flags := splitPositional(args, 2)
	if err := parseFlags(fs, flags, &help); err != nil {
		return err
	}
	if len(positional) != 2 {
		return errors.New("usage: robotctl download <robot_id> <file_id> [--out <path>]")
	}
	robotID, err := parseID("robot_id", positional[0])
	if err != nil {
		return err
	}
	fileID, err := parseID("file_id", positional[1])
	if err != nil {
		return err
	}

	dl, err := a.robots.Download(ctx, robotID, fileID)
	if err != nil {
		return err
	}
	if dl.Stream == nil {
		fmt.Fprintf(a.out, "Download endpoint unavailable; fetch the file from:\n%s\n", dl.FallbackURL)
		return nil
	}
	defer dl.Stream.Body.Close()

	if out == "" {
		out = filepath.Base(dl.Filename)
		if out == "" || out == "." {
			out = fmt.Sprintf("robot-%d-file-%d", robotID, fileID)
		}
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, dl.Stream.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	fmt.Fprintf(a.out, "Saved %s (%d bytes)\n", out, n)
	return nil
}

// runWatch prints robot change events until interrupted.
func (a *app) runWatch(ctx context.Context, args []string) error {
	fs := newFlagSet("watch")
	var help bool
	if err := parseFlags(fs, args, &help); err != nil {
		return err
	}

	client, err := mqtt.NewClient(a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer client.Disconnect()

	topic := mqtt.EventWildcard(a.cfg.MQTTTopicPrefix)
	err = client.Subscribe(topic, mqtt.RobotEventHandler(a.logger, func(event models.RobotEvent) {
		if a.opts.jsonOutput {
			_ = a.printJSON(event)
			return
		}
		fmt.Fprintf(a.out, "%s robot=%d event=%s version=%d\n",
			event.Timestamp.Format("15:04:05"), event.RobotID, event.Event, event.Version)
	}))
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Watching %s (Ctrl-C to stop)\n", topic)
	<-ctx.Done()
	return nil
}

// splitPositional takes up to n leading arguments that are not flags.
func splitPositional(args []string, n int) (positional, rest []string) {
	for len(args) > 0 && len(positional) < n && !strings.HasPrefix(args[0], "-") {
		positional = append(positional, args[0])
		args = args[1:]
	}
	return positional, args
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printRobotList(list *models.RobotList) {
	w := tabwriter.NewWriter(a.out, 2, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tLANGUAGE\tACTIVE\tVERSION\tTAGS")
	for _, r := range list.Data {
		fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%d\t%s\n", r.ID, r.Name, r.Language, r.IsActive, r.Version, orDash(strings.Join(r.Tags, ",")))
	}
	_ = w.Flush()
	fmt.Fprintf(a.out, "Page %d of %d (%d robots)\n", list.Meta.CurrentPage, list.Meta.LastPage, list.Meta.Total)
}

func (a *app) printRobot(r *models.Robot) {
	fmt.Fprintf(a.out, "ID: %d\n", r.ID)
	fmt.Fprintf(a.out, "Name: %s\n", r.Name)
	fmt.Fprintf(a.out, "Language: %s\n", r.Language)
	fmt.Fprintf(a.out, "Active: %t\n", r.IsActive)
	fmt.Fprintf(a.out, "Version: %d\n", r.Version)
	fmt.Fprintf(a.out, "Tags: %s\n", orDash(strings.Join(r.Tags, ", ")))

	w := tabwriter.NewWriter(a.out, 2, 8, 2, ' ', 0)
	if len(r.Parameters) > 0 {
		fmt.Fprintln(w, "\nKEY\tLABEL\tTYPE\tVALUE")
		for _, p := range r.SortedParameters() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Key, p.Label, p.Type, models.FormatValue(p.Value))
		}
	}
	if len(r.Files) > 0 {
		fmt.Fprintln(w, "\nFILE ID\tNAME\tURL")
		for _, f := range r.Files {
			fmt.Fprintf(w, "%d\t%s\t%s\n", f.ID, f.DisplayName(), orDash(f.URL))
		}
	}
	if primary := r.PrimaryImage(); primary != nil {
		fmt.Fprintln(w, "\nIMAGE ID\tTITLE\tPRIMARY\tURL")
		for _, img := range r.Images {
			title := ""
			if img.Title != nil {
				title = *img.Title
			}
			mark := ""
			if img.ID == primary.ID {
				mark = "*"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", img.ID, orDash(title), orDash(mark), orDash(img.URL))
		}
	}
	_ = w.Flush()
}

// printIntent shows the multipart fields a submission would send. Code
// and binary parts are summarized.
func (a *app) printIntent(intent *models.EditIntent) error {
	payload, err := message.Encode(intent)
	if err != nil {
		return err
	}
	if a.opts.jsonOutput {
		return a.printJSON(payload.Names())
	}
	w := tabwriter.NewWriter(a.out, 2, 8, 2, ' ', 0)
	for _, f := range payload.Fields() {
		switch {
		case f.File != nil:
			fmt.Fprintf(w, "%s\t<%s, %d bytes>\n", f.Name, f.File.Filename, len(f.File.Data))
		case f.Name == "code":
			fmt.Fprintf(w, "%s\t<%d chars>\n", f.Name, len(f.Value))
		default:
			fmt.Fprintf(w, "%s\t%s\n", f.Name, f.Value)
		}
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
