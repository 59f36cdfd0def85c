package sessions

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"FxRollup/internal/domain/models"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Session is a compiled, read-only SessionDefinition.
type Session struct {
	Definition models.SessionDefinition
	Location   *time.Location
	Window     SessionWindow
}

// Compile validates def and resolves its timezone and window.
func Compile(def models.SessionDefinition) (*Session, error) {
	if err := validate.Struct(def); err != nil {
		return nil, configurationError(err)
	}
	start, err := ParseTimeOfDay(def.LocalStart)
	if err != nil {
		return nil, &models.ConfigurationError{Field: "start", Reason: "invalid time of day", Err: err}
	}
	end, err := ParseTimeOfDay(def.LocalEnd)
	if err != nil {
		return nil, &models.ConfigurationError{Field: "end", Reason: "invalid time of day", Err: err}
	}
	loc, err := loadLocation(def.Timezone)
	if err != nil {
		return nil, err
	}
	return &Session{Definition: def, Location: loc, Window: NewWindow(start, end)}, nil
}

func loadLocation(name string) (*time.Location, error) {
	if strings.EqualFold(name, "local") {
		return nil, &models.TimezoneResolutionError{Timezone: name, Err: errors.New("host-local zone is not allowed")}
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, &models.TimezoneResolutionError{Timezone: name, Err: err}
	}
	return loc, nil
}

func configurationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &models.ConfigurationError{
			Field:  strings.ToLower(fe.Field()),
			Reason: fmt.Sprintf("failed %s%s", fe.Tag(), paramSuffix(fe.Param())),
		}
	}
	return &models.ConfigurationError{Field: "definition", Reason: "invalid", Err: err}
}

func paramSuffix(p string) string {
	if p == "" {
		return ""
	}
	return "=" + p
}

func (s *Session) ID() int64     { return s.Definition.ID }
func (s *Session) Name() string  { return s.Definition.Name }
func (s *Session) Enabled() bool { return s.Definition.Enabled }

// Matches reports whether the instant ts falls inside the session window
// in the session's local time.
func (s *Session) Matches(ts time.Time) bool {
	return s.Window.Contains(LocalTimeOfDay(ts, s.Location))
}

// AppliesTo reports whether the session is enabled for symbol.
func (s *Session) AppliesTo(symbol string) bool {
	return s.Definition.Enabled && s.Definition.AppliesTo(symbol)
}
