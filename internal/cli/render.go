package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/NamanBalaji/tunedl/internal/engine"
	"github.com/NamanBalaji/tunedl/internal/events"
	"github.com/NamanBalaji/tunedl/internal/music"
	"github.com/NamanBalaji/tunedl/internal/plugin"
	"github.com/NamanBalaji/tunedl/internal/status"
	"github.com/NamanBalaji/tunedl/internal/task"
)

const (
	DefaultWidth = 80
	maxNameLen   = 36
)

// ProgressBar returns a styled progress bar. percent is in [0, 100].
func ProgressBar(width int, percent float64, st status.Status) string {
	if width <= 0 {
		return ""
	}

	percent = min(max(percent, 0), 100)

	filledWidth := int(float64(width) * percent / 100)
	emptyWidth := width - filledWidth

	filled := lipgloss.NewStyle().Foreground(statusColor(st)).Render(strings.Repeat("█", filledWidth))

	return filled + ProgressBarEmptyStyle.Render(strings.Repeat("░", emptyWidth))
}

// TaskItem renders one task over three lines: name and status, bar, sizes.
func TaskItem(t *task.Task, width int) string {
	name := truncate(t.Song.String(), maxNameLen)

	percent := t.Progress
	if t.Status == status.Completed {
		percent = 100
	}

	label := StatusLabel(t.Status)
	pct := lipgloss.NewStyle().Width(8).Align(lipgloss.Right).Render(fmt.Sprintf("%.0f%%", percent))

	gap := max(width-maxNameLen-lipgloss.Width(label)-lipgloss.Width(pct)-3, 2)

	line1 := fmt.Sprintf("%-*s %s%s%s", maxNameLen, name, label, strings.Repeat(" ", gap), pct)
	line2 := ProgressBar(max(width-2, 10), percent, t.Status)

	info := fmt.Sprintf("%s  %s / %s  %s [%s]", IDStyle.Render(t.ID.String()), FormatSize(t.Downloaded), FormatSize(t.TotalSize), t.Source, t.Quality)
	if t.RetryCount > 0 {
		info += fmt.Sprintf("  retries %d", t.RetryCount)
	}

	lines := []string{line1, line2, FaintStyle.Render(info)}
	if t.ErrorMessage != "" && t.Status != status.Completed {
		lines = append(lines, StatusFailed.Render(truncate(t.ErrorMessage, width-2)))
	}

	return ItemStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// TaskList renders tasks one after another, or a placeholder when there are none.
func TaskList(tasks []*task.Task, width int) string {
	if len(tasks) == 0 {
		return FaintStyle.Render("No tasks")
	}

	items := make([]string, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, TaskItem(t, width))
	}

	return strings.Join(items, "\n")
}

// PluginList renders loaded plugins in load order.
func PluginList(plugins []plugin.Plugin) string {
	if len(plugins) == 0 {
		return FaintStyle.Render("No plugins loaded")
	}

	var b strings.Builder
	b.WriteString(HeaderStyle.Render("Plugins") + "\n")

	for _, p := range plugins {
		state := StatusCompleted.Render("enabled")
		if !p.Enabled {
			state = StatusFailed.Render("disabled")
		}

		fmt.Fprintf(&b, "  %s  %s %s  %s\n", IDStyle.Render(p.ID), p.Metadata.Name, FaintStyle.Render("v"+p.Metadata.Version), state)

		if len(p.Metadata.Sources) > 0 {
			fmt.Fprintf(&b, "      sources: %s\n", strings.Join(p.Metadata.Sources, ", "))
		}
		if p.Metadata.Description != "" {
			fmt.Fprintf(&b, "      %s\n", FaintStyle.Render(p.Metadata.Description))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// SongList renders numbered search results.
func SongList(songs []music.Song) string {
	if len(songs) == 0 {
		return FaintStyle.Render("No results")
	}

	var b strings.Builder
	for i, s := range songs {
		fmt.Fprintf(&b, "%3d. %s", i+1, s.Name)
		if s.Singer != "" {
			fmt.Fprintf(&b, " - %s", s.Singer)
		}
		if s.Album != "" {
			b.WriteString(FaintStyle.Render("  (" + s.Album + ")"))
		}
		fmt.Fprintf(&b, "  %s\n", IDStyle.Render(s.Source+":"+s.ID))
	}

	return strings.TrimRight(b.String(), "\n")
}

// Lyrics renders a lyric with its translation, if any.
func Lyrics(l plugin.Lyric) string {
	if l.Translation == "" {
		return l.Lyric
	}

	return l.Lyric + "\n\n" + HeaderStyle.Render("Translation") + "\n" + l.Translation
}

// ChartList renders chart ids and names.
func ChartList(charts []plugin.Chart) string {
	if len(charts) == 0 {
		return FaintStyle.Render("No charts")
	}

	var b strings.Builder
	for _, c := range charts {
		fmt.Fprintf(&b, "  %s  %s\n", IDStyle.Render(c.ID), c.Name)
	}

	return strings.TrimRight(b.String(), "\n")
}

// PlaylistList renders songlist ids, names and owners.
func PlaylistList(lists []plugin.Playlist) string {
	if len(lists) == 0 {
		return FaintStyle.Render("No songlists")
	}

	var b strings.Builder
	for _, p := range lists {
		fmt.Fprintf(&b, "  %s  %s", IDStyle.Render(p.ID), p.Name)
		if p.Author != "" {
			b.WriteString(FaintStyle.Render("  by " + p.Author))
		}
		if p.Count != "" {
			b.WriteString(FaintStyle.Render("  (" + p.Count + " songs)"))
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

// Stats renders per-status counts and bytes plus the live queue figures.
func Stats(st engine.Stats) string {
	var b strings.Builder
	b.WriteString(HeaderStyle.Render("Tasks") + "\n")

	for _, s := range status.All {
		fmt.Fprintf(&b, "  %-26s %4d  %s\n", StatusLabel(s), st.Counts[s], FaintStyle.Render(FormatSize(st.Bytes[s])))
	}

	fmt.Fprintf(&b, "Active %d/%d, queued %d", st.Active, st.MaxConcurrent, st.QueueDepth)

	return b.String()
}

// EventLine renders a scheduler event as one line.
func EventLine(ev events.Event) string {
	ts := FaintStyle.Render(ev.Timestamp.Format(time.TimeOnly))

	switch p := ev.Payload.(type) {
	case events.Progress:
		return fmt.Sprintf("%s %s %s %3.0f%%  %s / %s  %s/s", ts, IDStyle.Render(short(p.TaskID.String())),
			ProgressBar(20, p.Progress, status.Downloading), p.Progress,
			FormatSize(p.DownloadedSize), FormatSize(p.TotalSize), FormatSize(p.Speed))
	case events.Completed:
		return fmt.Sprintf("%s %s %s %s (%s)", ts, IDStyle.Render(short(p.TaskID.String())),
			StatusLabel(status.Completed), p.Filepath, FormatSize(p.FileSize))
	case events.Failed:
		return fmt.Sprintf("%s %s %s %s", ts, IDStyle.Render(short(p.TaskID.String())),
			StatusLabel(status.Failed), p.Error)
	default:
		return fmt.Sprintf("%s %s %v", ts, ev.Kind, ev.Payload)
	}
}

func Error(err error) string {
	return ErrorStyle.Render("error") + " " + err.Error()
}

func Success(msg string) string {
	return SuccessStyle.Render("ok") + " " + msg
}

// FormatSize converts bytes into a human-readable string.
func FormatSize(bytes int64) string {
	const unit = 1000
	if bytes <= 0 {
		return "--"
	}
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	d := float64(bytes)
	exp := 0
	for d >= unit && exp < 6 {
		d /= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", d, "kMGTPE"[exp-1])
}

// FormatDuration returns a short human duration.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)

	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", d/time.Minute, (d%time.Minute)/time.Second)
	default:
		return fmt.Sprintf("%dh %dm", d/time.Hour, (d%time.Hour)/time.Minute)
	}
}

func truncate(s string, n int) string {
	if n <= 3 {
		return s
	}

	r := []rune(s)
	if len(r) <= n {
		return s
	}

	return string(r[:n-3]) + "..."
}

func short(id string) string {
	return id[:min(8, len(id))]
}
