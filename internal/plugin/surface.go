package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/sync/errgroup"

	"github.com/NamanBalaji/tunedl/internal/errors"
	"github.com/NamanBalaji/tunedl/internal/logger"
	"github.com/NamanBalaji/tunedl/internal/music"
	"github.com/NamanBalaji/tunedl/internal/sandbox"
)

// searchParallelism bounds the fan-out of SearchAll. Requests still serialize on the
// proxy throttle, so this mostly overlaps script execution.
const searchParallelism = 4

// ErrEmptyURL is wrapped by the ResolutionError returned when a handler yields no URL.
var ErrEmptyURL = errors.New("handler returned no playable url")

func (r *Registry) Search(ctx context.Context, source, keyword string, page, limit int) ([]music.Song, error) {
	v, err := r.Invoke(ctx, source, sandbox.ActionSearch, searchParams(keyword, page, limit))
	if err != nil {
		return nil, err
	}

	return songList(v, source), nil
}

// ResolveURL asks the plugin for a playable URL for song at quality.
func (r *Registry) ResolveURL(ctx context.Context, source string, song music.Song, quality string) (string, error) {
	info := song.Map()
	params := map[string]any{
		"musicInfo": info,
		"songInfo":  info,
		"quality":   quality,
		"type":      quality,
	}

	v, err := r.Invoke(ctx, source, sandbox.ActionResolveURL, params)
	if err != nil {
		return "", err
	}

	u := playableURL(v)
	if u == "" {
		return "", errors.NewResolutionError(fmt.Sprintf("%s.%s", source, song.ID), ErrEmptyURL)
	}

	return u, nil
}

func (r *Registry) Lyrics(ctx context.Context, source string, song music.Song) (Lyric, error) {
	info := song.Map()

	v, err := r.Invoke(ctx, source, sandbox.ActionLyrics, map[string]any{"musicInfo": info, "songInfo": info})
	if err != nil {
		return Lyric{}, err
	}

	return lyricOf(v), nil
}

func (r *Registry) Charts(ctx context.Context, source string) ([]Chart, error) {
	v, err := r.Invoke(ctx, source, sandbox.ActionCharts, map[string]any{})
	if err != nil {
		return nil, err
	}

	return chartList(v), nil
}

// Songlist lists the playlists a plugin files under tag, one page at a time.
func (r *Registry) Songlist(ctx context.Context, source, tag string, page int) ([]Playlist, error) {
	v, err := r.Invoke(ctx, source, sandbox.ActionSonglist, map[string]any{"tag": tag, "page": max(page, 1)})
	if err != nil {
		return nil, err
	}

	return playlistList(v), nil
}

// SearchAll runs keyword against every enabled plugin that can search and merges the
// results, best fuzzy matches on "name singer" first. Failing plugins are logged and
// skipped; an error is returned only when every plugin failed.
func (r *Registry) SearchAll(ctx context.Context, keyword string, page, limit int) ([]music.Song, error) {
	targets := r.targets(sandbox.ActionSearch)
	if len(targets) == 0 {
		return nil, errors.NewUnknownPlugin(sandbox.ActionSearch)
	}

	var (
		mu       sync.Mutex
		results  = make([][]music.Song, len(targets))
		failures []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(searchParallelism)

	for i, t := range targets {
		g.Go(func() error {
			params := searchParams(keyword, page, limit)
			params["source"] = t.tag

			v, err := r.Invoke(gctx, t.id, sandbox.ActionSearch, params)
			if err != nil {
				logger.Warnf("Search on %s/%s failed: %v", t.id, t.tag, err)
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
				return nil
			}

			results[i] = songList(v, t.tag)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(failures) == len(targets) {
		return nil, errors.Join(failures...)
	}

	var merged []music.Song
	for _, songs := range results {
		merged = append(merged, songs...)
	}

	return rank(keyword, merged), nil
}

// rank orders songs by fuzzy distance to keyword. Songs that do not match keep their
// original order after the matches.
func rank(keyword string, songs []music.Song) []music.Song {
	if keyword == "" || len(songs) == 0 {
		return songs
	}

	labels := make([]string, len(songs))
	for i, s := range songs {
		labels[i] = s.Name + " " + s.Singer
	}

	ranks := fuzzy.RankFindNormalizedFold(keyword, labels)
	sort.Stable(ranks)

	out := make([]music.Song, 0, len(songs))
	seen := make([]bool, len(songs))
	for _, rk := range ranks {
		out = append(out, songs[rk.OriginalIndex])
		seen[rk.OriginalIndex] = true
	}
	for i, s := range songs {
		if !seen[i] {
			out = append(out, s)
		}
	}

	return out
}

func searchParams(keyword string, page, limit int) map[string]any {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 30
	}

	return map[string]any{
		"keyword": keyword,
		"name":    keyword,
		"page":    page,
		"limit":   limit,
		"type":    "music",
	}
}
