package kitchen

import (
	"encoding/json"
	"os"
	"time"
)

type ToolInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type Report struct {
	Timestamp time.Time     `json:"timestamp"`
	RootDir   string        `json:"root_dir"`
	Tool      ToolInfo      `json:"tool"`
	Targets   []TargetInfo  `json:"targets"`
	Summary   Summary       `json:"summary"`
	Results   []CheckResult `json:"results"`
}

type TargetInfo struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	SaltVersion string `json:"salt_version,omitempty"`
}

type Summary struct {
	Total int `json:"total"`
	Pass  int `json:"pass"`
	Fail  int `json:"fail"`
}

type CheckResult struct {
	CheckID    string    `json:"check_id"`
	Title      string    `json:"title"`
	Target     string    `json:"target"`
	Pass       bool      `json:"pass"`
	Error      string    `json:"error,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	LogPath    string    `json:"log_path,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Findings   []Finding `json:"findings,omitempty"`
}

type Finding struct {
	ResourceType string            `json:"resource_type"`
	ResourceName string            `json:"resource_name,omitempty"`
	Pass         bool              `json:"pass"`
	Reason       string            `json:"reason,omitempty"`
	Evidence     map[string]string `json:"evidence,omitempty"`
}

// Add appends results and keeps the summary current.
func (r *Report) Add(results ...CheckResult) {
	r.Results = append(r.Results, results...)
	r.Summary = Summarize(r.Results)
}

// Failed reports whether any check did not pass.
func (r *Report) Failed() bool {
	return r.Summary.Fail > 0
}

func Summarize(results []CheckResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Pass {
			s.Pass++
		} else {
			s.Fail++
		}
	}
	return s
}

func WriteJSONFile(path string, v any) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
