package facts

import "time"

// Int64 returns a pointer to v, for building FileStats literals.
func Int64(v int64) *int64 { return &v }

// Time returns a pointer to t.
func Time(t time.Time) *time.Time { return &t }

// String returns a pointer to s.
func String(s string) *string { return &s }

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// DeriveStats fills the name-derived fields (ext, hidden) of stats from its path
// when they are not already set. Folders never get an extension.
func DeriveStats(stats FileStats) FileStats {
	if stats.Type == "" {
		stats.Type = TypeFile
	}
	if stats.Ext == nil && stats.Type == TypeFile {
		if ext, ok := GetExtension(stats.Path); ok {
			stats.Ext = String(ext)
		}
	}
	if stats.Hidden == nil {
		stats.Hidden = Bool(IsHidden(stats.Path))
	}
	return stats
}
