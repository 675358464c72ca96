package backend

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	fperrors "github.com/legout/flowerpower-sub010/errors"
)

// TriggerKind selects the active Trigger variant.
type TriggerKind string

const (
	TriggerImmediate TriggerKind = "immediate"
	TriggerInterval  TriggerKind = "interval"
	TriggerCron      TriggerKind = "cron"
	TriggerDate      TriggerKind = "date"
)

// Trigger is a normalized schedule specification. Exactly one variant is
// active, selected by Kind; all time fields are timezone-aware, with UTC
// as the explicit default.
type Trigger struct {
	Kind TriggerKind `json:"kind"`

	// Interval fields.
	Period  time.Duration `json:"period,omitempty"`
	StartAt *time.Time    `json:"start_at,omitempty"`
	EndAt   *time.Time    `json:"end_at,omitempty"`

	// Cron fields.
	Expr     string `json:"expr,omitempty"`
	Location string `json:"location,omitempty"`

	// Date field.
	At *time.Time `json:"at,omitempty"`
}

// Immediate returns a run-once-now trigger.
func Immediate() Trigger { return Trigger{Kind: TriggerImmediate} }

// Every returns an interval trigger with the given period.
func Every(period time.Duration) Trigger {
	return Trigger{Kind: TriggerInterval, Period: period}
}

// Cron returns a calendar trigger for a five-field cron expression.
func Cron(expr string) Trigger {
	return Trigger{Kind: TriggerCron, Expr: expr}
}

// Date returns a trigger firing once at the given instant.
func Date(at time.Time) Trigger {
	return Trigger{Kind: TriggerDate, At: &at}
}

// Validate checks that exactly the fields of the active variant are set
// and usable.
func (t Trigger) Validate() error {
	switch t.Kind {
	case TriggerImmediate:
		if t.Period != 0 || t.Expr != "" || t.At != nil {
			return fperrors.Configuration("trigger", "trigger spec", "immediate trigger carries no schedule fields")
		}
	case TriggerInterval:
		if t.Period <= 0 {
			return fperrors.Configuration("trigger.period", "trigger spec", "interval trigger requires a positive period")
		}
		if t.StartAt != nil && t.EndAt != nil && t.EndAt.Before(*t.StartAt) {
			return fperrors.Configuration("trigger.end_at", "trigger spec", "end must not precede start")
		}
	case TriggerCron:
		if t.Expr == "" {
			return fperrors.Configuration("trigger.expr", "trigger spec", "cron trigger requires an expression")
		}
		if _, err := cron.ParseStandard(t.Expr); err != nil {
			return fperrors.Configuration("trigger.expr", "trigger spec", err.Error())
		}
		if t.Location != "" {
			if _, err := time.LoadLocation(t.Location); err != nil {
				return fperrors.Configuration("trigger.location", "trigger spec", err.Error())
			}
		}
	case TriggerDate:
		if t.At == nil {
			return fperrors.Configuration("trigger.at", "trigger spec", "date trigger requires an instant")
		}
	default:
		return fperrors.Configuration("trigger.kind", "trigger spec", fmt.Sprintf("unknown trigger kind %q", t.Kind))
	}
	return nil
}

// Recurring reports whether the trigger can fire more than once.
func (t Trigger) Recurring() bool {
	return t.Kind == TriggerInterval || t.Kind == TriggerCron
}

// NextFire computes the next fire time strictly after the given instant.
// The second return is false when the trigger is exhausted.
func (t Trigger) NextFire(after time.Time) (time.Time, bool) {
	switch t.Kind {
	case TriggerImmediate:
		return after, true
	case TriggerInterval:
		next := after.Add(t.Period)
		if t.StartAt != nil && next.Before(*t.StartAt) {
			next = *t.StartAt
		}
		if t.EndAt != nil && next.After(*t.EndAt) {
			return time.Time{}, false
		}
		return next, true
	case TriggerCron:
		schedule, err := cron.ParseStandard(t.Expr)
		if err != nil {
			return time.Time{}, false
		}
		loc := time.UTC
		if t.Location != "" {
			if l, lerr := time.LoadLocation(t.Location); lerr == nil {
				loc = l
			}
		}
		return schedule.Next(after.In(loc)), true
	case TriggerDate:
		if t.At != nil && t.At.After(after) {
			return *t.At, true
		}
		return time.Time{}, false
	}
	return time.Time{}, false
}

// ParseTriggerSpec parses the command-surface trigger string form:
//
//	now
//	every:30s            every:30s@2026-01-02T15:04:05Z
//	cron:0 2 * * *       cron:0 2 * * *@Europe/Berlin
//	at:2026-01-02T15:04:05Z
func ParseTriggerSpec(spec string) (Trigger, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" || spec == "now" {
		return Immediate(), nil
	}

	kind, rest, found := strings.Cut(spec, ":")
	if !found {
		return Trigger{}, fperrors.Configuration("trigger", "trigger spec", fmt.Sprintf("unrecognized trigger %q", spec))
	}

	switch kind {
	case "every":
		value, start, hasStart := strings.Cut(rest, "@")
		period, err := time.ParseDuration(value)
		if err != nil {
			return Trigger{}, fperrors.Configuration("trigger.period", "trigger spec", err.Error())
		}
		t := Every(period)
		if hasStart {
			at, err := time.Parse(time.RFC3339, start)
			if err != nil {
				return Trigger{}, fperrors.Configuration("trigger.start_at", "trigger spec", err.Error())
			}
			t.StartAt = &at
		}
		return t, t.Validate()
	case "cron":
		expr, loc, hasLoc := strings.Cut(rest, "@")
		t := Cron(strings.TrimSpace(expr))
		if hasLoc {
			t.Location = loc
		}
		return t, t.Validate()
	case "at":
		at, err := time.Parse(time.RFC3339, rest)
		if err != nil {
			return Trigger{}, fperrors.Configuration("trigger.at", "trigger spec", err.Error())
		}
		t := Date(at)
		return t, t.Validate()
	}
	return Trigger{}, fperrors.Configuration("trigger", "trigger spec", fmt.Sprintf("unrecognized trigger kind %q", kind))
}
