package doctor

import (
	"os/exec"
	"strings"
)

// Status represents the installation status of an external tool
type Status struct {
	Name      string
	Installed bool
	Path      string
	Version   string
	Required  bool
	Purpose   string
}

type tool struct {
	name        string
	versionArgs []string
	required    bool
	purpose     string
}

// Injection backends are optional individually; the inserter falls through
// to the next configured one.
var tools = []tool{
	{"pw-record", []string{"--version"}, true, "microphone capture"},
	{"pw-cli", []string{"--version"}, false, "PipeWire diagnostics"},
	{"pw-play", []string{"--version"}, false, "speech playback (voxd speak)"},
	{"wtype", nil, false, "text injection (Wayland)"},
	{"ydotool", []string{"--version"}, false, "text injection (uinput)"},
	{"wl-copy", []string{"--version"}, false, "clipboard injection"},
	{"notify-send", []string{"--version"}, false, "desktop notifications"},
}

// CheckAll probes every external tool the daemon may shell out to.
func CheckAll() []Status {
	out := make([]Status, 0, len(tools))
	for _, t := range tools {
		out = append(out, check(t))
	}
	return out
}

// Healthy reports whether every required tool is present.
func Healthy(statuses []Status) bool {
	for _, s := range statuses {
		if s.Required && !s.Installed {
			return false
		}
	}
	return true
}

func check(t tool) Status {
	path, err := exec.LookPath(t.name)
	if err != nil {
		return Status{Name: t.name, Required: t.required, Purpose: t.purpose}
	}

	status := Status{
		Name:      t.name,
		Installed: true,
		Path:      path,
		Required:  t.required,
		Purpose:   t.purpose,
	}

	if t.versionArgs != nil {
		// first line of version output, if the tool cooperates
		output, err := exec.Command(path, t.versionArgs...).Output()
		if err == nil {
			lines := strings.Split(string(output), "\n")
			if len(lines) > 0 {
				status.Version = strings.TrimSpace(lines[0])
			}
		}
	}

	return status
}
