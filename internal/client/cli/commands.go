package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/cyclesync/internal/client/connectivity"
	"github.com/dmitrijs2005/cyclesync/internal/client/models"
	"github.com/dmitrijs2005/cyclesync/internal/client/remote"
	"github.com/dmitrijs2005/cyclesync/internal/common"
	"github.com/dmitrijs2005/cyclesync/internal/netx"
)

var (
	errUsage   = errors.New("usage")
	errOffline = errors.New("not available offline")
)

func usage(s string) error {
	return fmt.Errorf("%w: %s", errUsage, s)
}

func (a *App) dateArg(args []string, i int, def *models.Date) (models.Date, error) {
	if i >= len(args) {
		if def != nil {
			return *def, nil
		}
		return 0, errUsage
	}
	return models.ParseDate(args[i])
}

// LogDay adds or edits the daily log of a date. Empty answers keep the
// current value.
func (a *App) LogDay(ctx context.Context, args []string) error {
	today := models.DateOf(a.now())
	date, err := a.dateArg(args, 0, &today)
	if err != nil {
		return err
	}

	rec, err := a.sync.GetRecordByDate(ctx, a.userID, models.CollectionDailyLogs, date)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		rec = &models.Record{UserID: a.userID, Collection: models.CollectionDailyLogs, Date: date}
	case err != nil:
		return err
	}
	entry, _ := rec.Payload.(models.DailyLog)
	if entry.Flow == "" {
		entry.Flow = models.FlowNone
	}

	flow, err := GetSimpleText(a.reader, fmt.Sprintf("Flow [none/spotting/light/medium/heavy] (%s)", entry.Flow), a.out)
	if err != nil {
		return err
	}
	if flow != "" {
		entry.Flow = models.Flow(flow)
	}

	symptoms, err := GetList(a.reader, "Symptoms", a.out)
	if err != nil {
		return err
	}
	if symptoms != nil {
		entry.Symptoms = symptoms
	}

	mood, err := GetSimpleText(a.reader, "Mood", a.out)
	if err != nil {
		return err
	}
	if mood != "" {
		entry.Mood = mood
	}

	temp, err := GetSimpleText(a.reader, "Temperature °C ('-' clears)", a.out)
	if err != nil {
		return err
	}
	switch temp {
	case "":
	case "-":
		entry.Temperature = nil
	default:
		v, err := strconv.ParseFloat(temp, 64)
		if err != nil {
			return fmt.Errorf("temperature: %w", err)
		}
		entry.Temperature = &v
	}

	notes, err := GetMultiline(a.reader, "Notes", a.out)
	if err != nil {
		return err
	}
	if notes != "" {
		entry.Notes = notes
	}

	rec.Payload = entry
	if err := a.sync.SaveRecord(ctx, rec); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "saved %s for %s\n", rec.ID, date)
	return nil
}

// LogCycle records a cycle starting at args[0] and optionally ending at
// args[1].
func (a *App) LogCycle(ctx context.Context, args []string) error {
	start, err := a.dateArg(args, 0, nil)
	if err != nil {
		return usage("cycle <start> [end]")
	}
	c := models.Cycle{StartDate: start}
	if len(args) > 1 {
		end, err := models.ParseDate(args[1])
		if err != nil {
			return err
		}
		c.EndDate = &end
		c.PeriodLength = int(end-start) + 1
	}

	rec := &models.Record{UserID: a.userID, Collection: models.CollectionCycles, Date: start, Payload: c}
	if err := a.sync.SaveRecord(ctx, rec); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "saved cycle %s starting %s\n", rec.ID, start)
	return nil
}

func (a *App) Show(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("show <id>")
	}
	rec, err := a.sync.GetRecord(ctx, a.userID, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, formatRecord(rec))
	return nil
}

func (a *App) Day(ctx context.Context, args []string) error {
	date, err := a.dateArg(args, 0, nil)
	if err != nil {
		return usage("day <YYYY-MM-DD>")
	}
	rec, err := a.sync.GetRecordByDate(ctx, a.userID, models.CollectionDailyLogs, date)
	if errors.Is(err, common.ErrorNotFound) {
		fmt.Fprintf(a.out, "nothing logged on %s\n", date)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, formatRecord(rec))
	return nil
}

func (a *App) Range(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usage("range <from> <to> [dailyLogs|cycles|insights]")
	}
	from, err := models.ParseDate(args[0])
	if err != nil {
		return err
	}
	to, err := models.ParseDate(args[1])
	if err != nil {
		return err
	}
	coll := models.CollectionDailyLogs
	if len(args) > 2 {
		coll = models.Collection(args[2])
	}

	if coll == models.CollectionInsights {
		if av := a.gate.Availability(connectivity.FeatureInsights); av.Stale {
			fmt.Fprintln(a.out, "(offline: insights may be out of date)")
		}
	}

	recs, err := a.sync.GetRecordsInRange(ctx, a.userID, coll, from, to)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(a.out, "no records")
	}
	for _, r := range recs {
		fmt.Fprintln(a.out, formatRecord(r))
	}
	return nil
}

func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("delete <id>")
	}
	if err := a.sync.DeleteRecord(ctx, a.userID, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted %s\n", args[0])
	return nil
}

func (a *App) Pending(ctx context.Context) error {
	ops, err := a.store.AllOperations(ctx, a.userID)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		fmt.Fprintln(a.out, "nothing to sync")
		return nil
	}
	for _, op := range ops {
		fmt.Fprintln(a.out, formatOperation(op))
	}
	return nil
}

func (a *App) Status(ctx context.Context) error {
	n, err := a.sync.PendingSyncCount(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "connectivity: %s\npending: %d\n", a.sync.CurrentConnectivityState(), n)

	snap := a.gate.Snapshot()
	for _, f := range connectivity.Features() {
		av := snap[f]
		state := "available"
		switch {
		case !av.Allowed:
			state = "unavailable"
		case av.Stale:
			state = "available (stale)"
		}
		fmt.Fprintf(a.out, "  %-12s %s\n", f, state)
	}
	return nil
}

func (a *App) Sync(ctx context.Context) error {
	if a.sync.CurrentConnectivityState() == connectivity.StateOffline {
		return fmt.Errorf("sync: %w, changes stay queued", errOffline)
	}
	if err := a.sync.SyncNow(ctx); err != nil {
		return err
	}
	n, err := a.sync.PendingSyncCount(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "sync complete, %d pending\n", n)
	return nil
}

type exportRecord struct {
	ID         string            `json:"id"`
	Collection models.Collection `json:"collection"`
	Date       string            `json:"date"`
	UpdatedAt  int64             `json:"updatedAt"`
	Payload    models.Payload    `json:"payload"`
}

type exportFile struct {
	UserID      string         `json:"userId"`
	From        string         `json:"from"`
	To          string         `json:"to"`
	GeneratedAt int64          `json:"generatedAt"`
	Records     []exportRecord `json:"records"`
}

// Export uploads every record dated from..to as one JSON document to a
// presigned URL handed out by the server.
func (a *App) Export(ctx context.Context, args []string) error {
	if av := a.gate.Availability(connectivity.FeatureExport); !av.Allowed {
		return fmt.Errorf("export: %w", errOffline)
	}
	if len(args) != 2 {
		return usage("export <from> <to>")
	}
	from, err := models.ParseDate(args[0])
	if err != nil {
		return err
	}
	to, err := models.ParseDate(args[1])
	if err != nil {
		return err
	}

	doc := exportFile{UserID: a.userID, From: from.String(), To: to.String(), GeneratedAt: a.now().Unix()}
	for _, coll := range []models.Collection{models.CollectionDailyLogs, models.CollectionCycles, models.CollectionInsights} {
		recs, err := a.sync.GetRecordsInRange(ctx, a.userID, coll, from, to)
		if err != nil {
			return err
		}
		for _, r := range recs {
			doc.Records = append(doc.Records, exportRecord{
				ID: r.ID, Collection: r.Collection, Date: r.Date.String(), UpdatedAt: r.UpdatedAt, Payload: r.Payload,
			})
		}
	}
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	exp, err := a.account.CreateExport(ctx)
	if err != nil {
		return err
	}
	if err := netx.UploadToPresignedURL(ctx, a.http, exp.URL, "application/json", body); err != nil {
		return err
	}
	a.log.Info(ctx, "export uploaded", "key", exp.Key, "records", len(doc.Records))
	fmt.Fprintf(a.out, "exported %d records to %s\n", len(doc.Records), exp.Key)
	return nil
}

// Profile shows the profile, or edits it with "profile set". The profile
// lives only on the server.
func (a *App) Profile(ctx context.Context, args []string) error {
	if a.sync.CurrentConnectivityState() == connectivity.StateOffline {
		return fmt.Errorf("profile: %w", errOffline)
	}

	p, err := a.account.GetProfile(ctx, a.userID)
	switch {
	case remote.IsNotFound(err):
		p = &models.Profile{}
	case err != nil:
		return err
	}

	if len(args) == 0 {
		fmt.Fprintln(a.out, formatProfile(p))
		return nil
	}
	if args[0] != "set" {
		return usage("profile [set]")
	}

	name, err := GetSimpleText(a.reader, fmt.Sprintf("Display name (%s)", p.DisplayName), a.out)
	if err != nil {
		return err
	}
	if name != "" {
		p.DisplayName = name
	}
	for _, f := range []struct {
		prompt string
		dst    *int
	}{
		{"Usual cycle length", &p.CycleLength},
		{"Usual period length", &p.PeriodLength},
	} {
		v, err := GetSimpleText(a.reader, fmt.Sprintf("%s (%d)", f.prompt, *f.dst), a.out)
		if err != nil {
			return err
		}
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", strings.ToLower(f.prompt), err)
		}
		*f.dst = n
	}
	unit, err := GetSimpleText(a.reader, fmt.Sprintf("Temperature unit C/F (%s)", p.TemperatureUnit), a.out)
	if err != nil {
		return err
	}
	if unit != "" {
		p.TemperatureUnit = strings.ToUpper(unit)
	}

	p.UpdatedAt = a.now().Unix()
	p.V = models.SchemaVersion
	if err := p.Validate(); err != nil {
		return err
	}
	if err := a.account.SaveProfile(ctx, a.userID, p); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "profile saved")
	return nil
}
