// Package notify sends registration receipts through a templating mail relay.
//
// The relay is opaque: it gets a flat set of template parameters, one of
// which is a pre-rendered HTML table body, and answers with a status code.
// Only 200 counts as delivered.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/festreg/internal/config"
	"github.com/Shivanand-hulikatti/festreg/internal/model"
)

// Receipt is the template parameter set the relay renders.
type Receipt struct {
	FirstName string `json:"first_name"`
	Name      string `json:"name"`
	Date      string `json:"date"`
	College   string `json:"college"`
	Total     int    `json:"total"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Events    string `json:"events"`
}

// Notifier delivers a receipt and reports the relay's status code.
type Notifier interface {
	Send(ctx context.Context, r Receipt) (int, error)
}

// Line is one row of the receipt table.
type Line struct {
	Name string
	Fee  int
	Room string
}

// LinesFromEvents snapshots the billed fields of each event.
func LinesFromEvents(events []model.Event) []Line {
	lines := make([]Line, len(events))
	for i, e := range events {
		lines[i] = Line{Name: e.Name, Fee: e.Fee, Room: e.Room}
	}
	return lines
}

const cellStyle = "padding:12px;border-bottom:1px solid #eee;text-align:left"

var tableBody = template.Must(template.New("events").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(
	`<tbody>{{range $i, $l := .}}<tr style="background-color:#fafafa">` +
		`<td style="` + cellStyle + `">{{inc $i}}</td>` +
		`<td style="` + cellStyle + `">{{$l.Name}}</td>` +
		`<td style="` + cellStyle + `">₹{{$l.Fee}}</td>` +
		`<td style="` + cellStyle + `">{{$l.Room}}</td></tr>{{end}}</tbody>`,
))

// RenderEventsTable renders the line items as an HTML <tbody>. Names and rooms
// are escaped.
func RenderEventsTable(lines []Line) (string, error) {
	var buf bytes.Buffer
	if err := tableBody.Execute(&buf, lines); err != nil {
		return "", fmt.Errorf("render events table: %w", err)
	}
	return buf.String(), nil
}

// FormatDate renders t the way an en-IN locale prints a timestamp,
// upper-cased: "16/10/2026, 2:04:05 PM".
func FormatDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return strings.ToUpper(t.In(loc).Format("2/1/2006, 3:04:05 PM"))
}

// FirstName is the first space-separated token of a name.
func FirstName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.IndexByte(name, ' '); i >= 0 {
		return name[:i]
	}
	return name
}

// NewReceipt builds the parameters for a created registration and the exact
// lines it was billed for.
func NewReceipt(reg *model.Registration, lines []Line, loc *time.Location) (Receipt, error) {
	table, err := RenderEventsTable(lines)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{
		FirstName: FirstName(reg.ParticipantName),
		Name:      reg.ParticipantName,
		Date:      FormatDate(reg.CreatedAt, loc),
		College:   reg.CollegeName,
		Total:     reg.AmountPaid,
		Email:     reg.Email,
		Phone:     reg.Phone,
		Events:    table,
	}, nil
}

// New selects a Notifier from configuration.
func New(cfg config.NotifyConfig, log *zap.Logger) (Notifier, error) {
	switch cfg.Driver {
	case config.NotifyEmailJS:
		return NewEmailJS(cfg.EmailJS, cfg.Timeout, log), nil
	case config.NotifyLog, "":
		return NewLogSender(log), nil
	default:
		return nil, fmt.Errorf("unknown notify driver %q", cfg.Driver)
	}
}

// LogSender writes receipts to the log and always reports 200. It is the
// development default.
type LogSender struct {
	log *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(log *zap.Logger) *LogSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSender{log: log.Named("notify")}
}

// Send logs the receipt.
func (s *LogSender) Send(ctx context.Context, r Receipt) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.log.Info("receipt",
		zap.String("email", r.Email),
		zap.String("name", r.Name),
		zap.String("date", r.Date),
		zap.Int("total", r.Total),
	)
	return 200, nil
}
