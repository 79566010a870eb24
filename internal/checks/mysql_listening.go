package checks

import (
	"context"

	"kitchenctl/internal/kitchen"
)

type MySQLListening struct {
	Socket string
}

func (MySQLListening) ID() string    { return "mysql.listening" }
func (MySQLListening) Title() string { return "Ensure MySQL listens on the loopback port" }

func (c MySQLListening) Run(ctx context.Context, deps kitchen.Deps) (kitchen.CheckOutcome, error) {
	var out kitchen.CheckOutcome

	sock, err := deps.Host.Socket(c.Socket)
	if err != nil {
		return out, err
	}
	listening, err := sock.IsListening(ctx)
	if err != nil {
		return out, err
	}

	f := kitchen.Finding{
		ResourceType: "socket",
		ResourceName: sock.String(),
		Pass:         listening,
		Evidence: map[string]string{
			"is_listening": yesNo(listening),
		},
	}
	if !listening {
		f.Reason = "Nothing listening on " + sock.String()
		deps.Log.Errorf("%s: %s", deps.Config.Hostname, f.Reason)
	} else {
		deps.Log.Infof("%s: %s is listening", deps.Config.Hostname, sock.String())
	}

	out.Findings = append(out.Findings, f)
	return out, nil
}
