package store

import (
	"fmt"
	"strings"
)

const maxFolderName = 50

// SanitizeName makes a player name safe to use as a folder name.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ReplaceAll(name, " ", "_") {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > maxFolderName {
		out = out[:maxFolderName]
	}
	if out == "" {
		out = "player"
	}
	return out
}

// MediaPath lays uploads out as game_<game>/<name>_<id8>/round_<n>/prompt_<i>.png.
func MediaPath(img Image) string {
	short := img.PlayerID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("game_%s/%s_%s/round_%d/prompt_%d.png",
		img.GameID, SanitizeName(img.PlayerName), short, img.RoundNumber, img.PromptIndex)
}
