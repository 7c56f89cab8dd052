package config

import "maps"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	TracksChanged   bool        // true if any track was added, removed, or modified
	TrackChanges    []TrackDiff // per-track diffs
	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// TrackDiff describes what changed for a single track between two configs.
type TrackDiff struct {
	Key            string
	SourceChanged  bool
	AddressChanged bool // path, url, or header
	HintChanged    bool
	Added          bool
	Removed        bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Build track lookup maps keyed by name or location.
	oldTracks := make(map[string]*TrackConfig, len(old.Tracks))
	for i := range old.Tracks {
		oldTracks[trackKey(&old.Tracks[i])] = &old.Tracks[i]
	}
	newTracks := make(map[string]*TrackConfig, len(new.Tracks))
	for i := range new.Tracks {
		newTracks[trackKey(&new.Tracks[i])] = &new.Tracks[i]
	}

	// Detect modified and removed tracks.
	for key, oldTr := range oldTracks {
		newTr, exists := newTracks[key]
		if !exists {
			d.TrackChanges = append(d.TrackChanges, TrackDiff{
				Key:     key,
				Removed: true,
			})
			d.TracksChanged = true
			continue
		}
		td := diffTrack(key, oldTr, newTr)
		if td.SourceChanged || td.AddressChanged || td.HintChanged {
			d.TrackChanges = append(d.TrackChanges, td)
			d.TracksChanged = true
		}
	}

	// Detect added tracks.
	for key := range newTracks {
		if _, exists := oldTracks[key]; !exists {
			d.TrackChanges = append(d.TrackChanges, TrackDiff{
				Key:   key,
				Added: true,
			})
			d.TracksChanged = true
		}
	}

	return d
}

// diffTrack compares two track configs with the same key.
func diffTrack(key string, old, new *TrackConfig) TrackDiff {
	td := TrackDiff{Key: key}

	if old.Source != new.Source {
		td.SourceChanged = true
	}

	if old.Path != new.Path || old.URL != new.URL || !maps.Equal(old.Header, new.Header) {
		td.AddressChanged = true
	}

	if old.Hint != new.Hint {
		td.HintChanged = true
	}

	return td
}

// trackKey identifies a track across config versions: its name when set,
// otherwise its location.
func trackKey(t *TrackConfig) string {
	if t.Name != "" {
		return t.Name
	}
	if t.Path != "" {
		return t.Path
	}
	return t.URL
}
