package sandbox

// Canonical action names understood by the registry.
const (
	ActionSearch     = "search"
	ActionResolveURL = "resolveUrl"
	ActionLyrics     = "lyrics"
	ActionCharts     = "charts"
	ActionSonglist   = "songlist"

	// genericEvent registers a catch-all handler receiving {source, action, info}.
	genericEvent = "request"
)

// actionAliases maps every registration name scripts use in the wild to its canonical action.
var actionAliases = map[string]string{
	"search":         ActionSearch,
	"musicSearch":    ActionSearch,
	"resolveUrl":     ActionResolveURL,
	"musicUrl":       ActionResolveURL,
	"getUrl":         ActionResolveURL,
	"getMusicUrl":    ActionResolveURL,
	"lyrics":         ActionLyrics,
	"lyric":          ActionLyrics,
	"getLyric":       ActionLyrics,
	"charts":         ActionCharts,
	"leaderboard":    ActionCharts,
	"getLeaderboard": ActionCharts,
	"songlist":       ActionSonglist,
	"getSonglist":    ActionSonglist,
}

// lxActions is the action name a catch-all handler expects for each canonical action.
var lxActions = map[string]string{
	ActionSearch:     "musicSearch",
	ActionResolveURL: "musicUrl",
	ActionLyrics:     "lyric",
	ActionCharts:     "leaderboard",
	ActionSonglist:   "songlist",
}

// CanonicalAction normalizes an action alias. Unknown names are returned unchanged.
func CanonicalAction(action string) string {
	if a, ok := actionAliases[action]; ok {
		return a
	}

	return action
}

func lxAction(canonical string) string {
	if a, ok := lxActions[canonical]; ok {
		return a
	}

	return canonical
}
