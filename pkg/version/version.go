// Package version holds build information injected with -ldflags:
//
//	go build -ldflags "-X github.com/NicolasHaas/roomspeak/pkg/version.tag=v1.0.0
//	  -X github.com/NicolasHaas/roomspeak/pkg/version.commit=abc1234
//	  -X github.com/NicolasHaas/roomspeak/pkg/version.date=2026-01-01"
package version

var (
	tag    = ""
	commit = "unknown"
	date   = "unknown"
)

// String returns the tag, else the commit, else "dev".
func String() string {
	switch {
	case tag != "":
		return tag
	case commit != "unknown":
		return commit
	}
	return "dev"
}

// Full returns String with the commit and build date where known.
func Full() string {
	switch {
	case tag != "":
		return tag + " (" + commit + ") built " + date
	case commit != "unknown":
		return commit + " built " + date
	}
	return "dev"
}
