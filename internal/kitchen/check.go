package kitchen

import "context"

type Check interface {
	ID() string
	Title() string
	Run(ctx context.Context, deps Deps) (CheckOutcome, error)
}

type CheckOutcome struct {
	Notes    string
	Findings []Finding
}

type Deps struct {
	Config Config
	Host   *Host
	Log    *Logger
}
