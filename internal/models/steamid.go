package models

import "regexp"

// SteamID3Pattern matches the canonical [U:1:N] identity used throughout
// persistence. The log substitutes the literal BOT for server bots.
var SteamID3Pattern = regexp.MustCompile(`^\[U:\d:\d+\]$`)

// IsSteamID reports whether s is a canonical steam ID3.
func IsSteamID(s string) bool {
	return SteamID3Pattern.MatchString(s)
}

// NormalizeSteamID maps the log's steam-id group to the persisted identity:
// the empty string for bots, the ID3 form otherwise.
func NormalizeSteamID(s string) string {
	if s == "BOT" {
		return ""
	}
	return s
}
