package checks

import (
	"context"
	"fmt"
	"strings"

	"kitchenctl/internal/kitchen"
)

// SaltWorkdirOwned verifies the kitchen root is a directory owned by the
// login user, which salt-call needs to run without sudo.
type SaltWorkdirOwned struct{}

func (SaltWorkdirOwned) ID() string    { return "salt.workdir" }
func (SaltWorkdirOwned) Title() string { return "Ensure the kitchen root is owned by the login user" }

func (SaltWorkdirOwned) Run(ctx context.Context, deps kitchen.Deps) (kitchen.CheckOutcome, error) {
	out := kitchen.CheckOutcome{
		Notes: "Ownership is fixed by the salt fixture before each salt-call.",
	}

	root := deps.Config.RootPath
	f := kitchen.Finding{
		ResourceType: "directory",
		ResourceName: root,
	}

	file := deps.Host.File(root)
	exists, err := file.Exists(ctx)
	if err != nil {
		return out, err
	}
	if !exists {
		f.Reason = "Kitchen root does not exist"
		deps.Log.Errorf("%s: %s missing", deps.Config.Hostname, root)
		out.Findings = append(out.Findings, f)
		return out, nil
	}

	isDir, err := file.IsDirectory(ctx)
	if err != nil {
		return out, err
	}
	user, group, err := file.Owner(ctx)
	if err != nil {
		return out, err
	}

	reasons := []string{}
	if !isDir {
		reasons = append(reasons, "not a directory")
	}
	if user != deps.Config.Username {
		reasons = append(reasons, fmt.Sprintf("owned by %s, want %s", user, deps.Config.Username))
	}

	f.Pass = len(reasons) == 0
	f.Evidence = map[string]string{
		"is_directory": yesNo(isDir),
		"owner":        user,
		"group":        group,
	}
	if !f.Pass {
		f.Reason = strings.Join(reasons, "; ")
		deps.Log.Errorf("%s: %s %s", deps.Config.Hostname, root, f.Reason)
	} else {
		deps.Log.Infof("%s: %s owned by %s", deps.Config.Hostname, root, user)
	}

	out.Findings = append(out.Findings, f)
	return out, nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
