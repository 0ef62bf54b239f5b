// Package version хранит сведения о сборке storefront.
package version

import (
	"fmt"
	"runtime/debug"
	"sync"
)

// Значения подставляются при сборке:
//
//	go build -ldflags "-X github.com/vladislavdragonenkov/storefront/internal/version.version=1.2.0"
var (
	version = "dev"
	commit  = ""
	date    = ""
)

// Build описывает собранный бинарник.
type Build struct {
	Version string
	Commit  string
	Date    string
}

// String форматирует сборку для логов и флага -version.
func (b Build) String() string {
	return fmt.Sprintf("storefront %s (commit %s, built %s)", b.Version, b.Commit, b.Date)
}

var current = sync.OnceValue(func() Build {
	return resolve(version, commit, date, debug.ReadBuildInfo)
})

// Current возвращает сведения о сборке. Незаданные через ldflags commit и
// date берутся из VCS-информации, встроенной go build.
func Current() Build { return current() }

func resolve(v, c, d string, read func() (*debug.BuildInfo, bool)) Build {
	b := Build{Version: v, Commit: c, Date: d}
	if b.Commit == "" || b.Date == "" {
		if info, ok := read(); ok {
			for _, s := range info.Settings {
				switch {
				case s.Key == "vcs.revision" && b.Commit == "":
					b.Commit = s.Value
				case s.Key == "vcs.time" && b.Date == "":
					b.Date = s.Value
				}
			}
		}
	}
	if len(b.Commit) > 12 {
		b.Commit = b.Commit[:12]
	}
	if b.Version == "" {
		b.Version = "dev"
	}
	if b.Commit == "" {
		b.Commit = "unknown"
	}
	if b.Date == "" {
		b.Date = "unknown"
	}
	return b
}
