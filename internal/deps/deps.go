package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"reelsight/internal/config"
)

// Requirement names an external binary and the purpose it serves.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is a Requirement after PATH resolution. Command holds the resolved
// path when Available is set.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

// MediaRequirements lists the binaries the extraction stage executes.
func MediaRequirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{Name: "FFmpeg", Command: cfg.Media.FFmpegBinary, Description: "Required for frame extraction"},
		{Name: "FFprobe", Command: cfg.Media.FFprobeBinary, Description: "Required for media inspection"},
	}
}

// Resolve looks the command up on PATH.
func (r Requirement) Resolve() Status {
	r.Command = strings.TrimSpace(r.Command)
	r.Description = strings.TrimSpace(r.Description)
	status := Status{Requirement: r}
	if r.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	resolved, err := exec.LookPath(r.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", r.Command)
		return status
	}
	status.Command = resolved
	status.Available = true
	return status
}

// CheckBinaries resolves every requirement in order.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, len(requirements))
	for i, req := range requirements {
		results[i] = req.Resolve()
	}
	return results
}
