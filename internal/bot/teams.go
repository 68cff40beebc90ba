package bot

import "strings"

// nbaTeams is every franchise, in the canonical full-name form both
// providers use.
var nbaTeams = []string{
	"Atlanta Hawks",
	"Boston Celtics",
	"Brooklyn Nets",
	"Charlotte Hornets",
	"Chicago Bulls",
	"Cleveland Cavaliers",
	"Dallas Mavericks",
	"Denver Nuggets",
	"Detroit Pistons",
	"Golden State Warriors",
	"Houston Rockets",
	"Indiana Pacers",
	"Los Angeles Clippers",
	"Los Angeles Lakers",
	"Memphis Grizzlies",
	"Miami Heat",
	"Milwaukee Bucks",
	"Minnesota Timberwolves",
	"New Orleans Pelicans",
	"New York Knicks",
	"Oklahoma City Thunder",
	"Orlando Magic",
	"Philadelphia 76ers",
	"Phoenix Suns",
	"Portland Trail Blazers",
	"Sacramento Kings",
	"San Antonio Spurs",
	"Toronto Raptors",
	"Utah Jazz",
	"Washington Wizards",
}

// isNBATeam reports whether name is one of the canonical franchise names
func isNBATeam(name string) bool {
	for _, t := range nbaTeams {
		if t == name {
			return true
		}
	}
	return false
}

// canonicalTeam resolves a user-typed name to its canonical form
func canonicalTeam(name string) (string, bool) {
	for _, t := range nbaTeams {
		if strings.EqualFold(t, name) {
			return t, true
		}
	}
	return "", false
}
