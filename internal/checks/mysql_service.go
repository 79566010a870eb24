package checks

import (
	"context"
	"strings"

	"kitchenctl/internal/kitchen"
)

type MySQLServiceRunning struct {
	Service string
}

func (MySQLServiceRunning) ID() string    { return "mysql.service" }
func (MySQLServiceRunning) Title() string { return "Ensure the MySQL service is running and enabled" }

func (c MySQLServiceRunning) Run(ctx context.Context, deps kitchen.Deps) (kitchen.CheckOutcome, error) {
	var out kitchen.CheckOutcome

	st, err := deps.Host.Service(c.Service).Status(ctx)
	if err != nil {
		return out, err
	}

	reasons := st.Reasons()
	pass := len(reasons) == 0
	f := kitchen.Finding{
		ResourceType: "service",
		ResourceName: c.Service,
		Pass:         pass,
		Evidence: map[string]string{
			"is_running": yesNo(st.IsRunning),
			"is_enabled": yesNo(st.IsEnabled),
		},
	}
	if !pass {
		f.Reason = strings.Join(reasons, "; ")
		deps.Log.Errorf("%s: %s", deps.Config.Hostname, f.Reason)
	} else {
		deps.Log.Infof("%s: %s running and enabled", deps.Config.Hostname, c.Service)
	}

	out.Findings = append(out.Findings, f)
	return out, nil
}
