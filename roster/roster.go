// Package roster loads the list of employees who receive check-ins
package roster

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rocketcrew/elonbot/config"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Employee is a member of the roster
type Employee struct {
	SlackID    string `json:"slackId"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Department string `json:"department,omitempty"`
	Active     bool   `json:"active"`
}

// Roster is the list of employees in configuration order
type Roster []Employee

// Load reads the roster from the employees configuration key. The value is either a list of
// maps (from a config file) or a json array (from the environment). Employees are active unless
// configured otherwise
func Load(v *viper.Viper) (r Roster, err error) {
	raw := v.Get(config.EmployeesKey)
	if raw == nil {
		return Roster{}, nil
	}

	if s, ok := raw.(string); ok {
		if strings.TrimSpace(s) == "" {
			return Roster{}, nil
		}

		var decoded []interface{}
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, errors.Wrapf(err, "invalid [%s] json value", config.EmployeesKey)
		}
		raw = decoded
	}

	entries, err := cast.ToSliceE(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "[%s] must be a list", config.EmployeesKey)
	}

	seen := make(map[string]bool)
	r = make(Roster, 0, len(entries))
	for i, entry := range entries {
		e, err := decodeEmployee(entry)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid employee at index [%d]", i)
		}

		if seen[e.SlackID] {
			return nil, fmt.Errorf("duplicate employee slackId [%s]", e.SlackID)
		}
		seen[e.SlackID] = true

		r = append(r, e)
	}

	return r, nil
}

func decodeEmployee(entry interface{}) (e Employee, err error) {
	m, err := cast.ToStringMapE(entry)
	if err != nil {
		return e, err
	}

	fields := make(map[string]interface{}, len(m))
	for k, v := range m {
		fields[strings.ToLower(k)] = v
	}

	e.SlackID = strings.TrimSpace(cast.ToString(fields["slackid"]))
	if e.SlackID == "" {
		return e, errors.New("missing slackId")
	}

	e.Name = strings.TrimSpace(cast.ToString(fields["name"]))
	if e.Name == "" {
		e.Name = e.SlackID
	}

	e.Email = cast.ToString(fields["email"])
	e.Department = cast.ToString(fields["department"])

	e.Active = true
	if active, ok := fields["active"]; ok && active != nil {
		if e.Active, err = cast.ToBoolE(active); err != nil {
			return e, errors.Wrap(err, "invalid active flag")
		}
	}

	return e, nil
}

// Active returns the active employees
func (r Roster) Active() (active Roster) {
	active = make(Roster, 0, len(r))
	for _, e := range r {
		if e.Active {
			active = append(active, e)
		}
	}

	return active
}

// Find returns the employee with the given slack id
func (r Roster) Find(slackID string) (e Employee, ok bool) {
	for _, e := range r {
		if e.SlackID == slackID {
			return e, true
		}
	}

	return Employee{}, false
}
