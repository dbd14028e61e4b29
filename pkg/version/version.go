package version

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Info describes the running binary.
type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Compiler  string `json:"compiler"`
	Source    string `json:"source,omitempty"`
	Tag       string `json:"tag,omitempty"`
	Branch    string `json:"branch,omitempty"`
	Hash      string `json:"hash,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	Platform  string `json:"platform,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
}

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

// Set with -ldflags at build time
var (
	GitSource   string
	GitTag      string
	GitBranch   string
	GitHash     string
	GoBuildTime string
)

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Version returns the git tag, then the branch, then the short revision
// from the embedded build info, or "dev".
func Version() string {
	if GitTag != "" {
		return GitTag
	}
	if GitBranch != "" {
		return GitBranch
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return s.Value[:min(len(s.Value), 12)]
			}
		}
	}
	return "dev"
}

// Get returns build metadata for the named executable, filling anything not
// set at link time from the embedded build info.
func Get(name string) Info {
	info := Info{
		Name:      name,
		Version:   Version(),
		Compiler:  runtime.Version(),
		Source:    GitSource,
		Tag:       GitTag,
		Branch:    GitBranch,
		Hash:      GitHash,
		BuildTime: GoBuildTime,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	build, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Source == "" {
		info.Source = build.Main.Path
	}
	for _, s := range build.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Hash == "" {
				info.Hash = s.Value
			}
		case "vcs.time":
			if info.BuildTime == "" {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

// UserAgent returns a user agent for outgoing requests, for example
// "transfer/v1.2.0 (linux/amd64)".
func UserAgent(name string) string {
	return fmt.Sprintf("%s/%s (%s/%s)", name, Version(), runtime.GOOS, runtime.GOARCH)
}

// JSON returns indented build metadata for the named executable.
func JSON(name string) []byte {
	data, err := json.MarshalIndent(Get(name), "", "  ")
	if err != nil {
		panic(err)
	}
	return data
}
