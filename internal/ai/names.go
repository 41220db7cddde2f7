package ai

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
)

var botFirstNames = []string{
	"Ace", "Baron", "Clover", "Duke", "Echo", "Falcon", "Gambit", "Harlow",
	"Indigo", "Jester", "Kestrel", "Lynx", "Maverick", "Nomad", "Onyx",
	"Piper", "Quill", "Raven", "Sable", "Tango", "Umber", "Vesper",
	"Wren", "Xeno", "Yarrow", "Zephyr",
}

var botNouns = []string{
	"Shark", "Hawk", "Otter", "Badger", "Fox", "Owl", "Wolf", "Heron",
	"Viper", "Falcon", "Stag", "Crane",
}

var botAdjectives = []string{
	"Quiet", "Lucky", "Sly", "Bold", "Grim", "Swift", "Crafty", "Idle",
	"Wry", "Stoic",
}

var letters = []rune("ABCDEFGHIJKLMNOPQRSTUVWXYZ")

// RequestedName generates a display name for a bot a lobby owner
// explicitly requested — plainly tagged so it reads as a bot.
func RequestedName() string {
	return "BOT " + pick(botFirstNames)
}

// ClandestineName generates a name indistinguishable from one a human
// might have picked, for bots seeded into a lobby to keep it populated.
func ClandestineName() string {
	var base string
	switch rand.Intn(5) {
	case 0:
		base = pick(botFirstNames)
	case 1:
		base = strings.ToLower(pick(botFirstNames))
	case 2:
		base = pick(botFirstNames) + string(letters[rand.Intn(len(letters))])
	case 3:
		base = pick(botNouns)
	default:
		base = pick(botAdjectives) + pick(botNouns)
	}

	var suffix string
	switch rand.Intn(4) {
	case 0:
		suffix = ""
	case 1:
		digits := strconv.Itoa(rand.Intn(10))
		for rand.Intn(2) == 0 {
			digits += strconv.Itoa(rand.Intn(10))
		}
		suffix = digits
	case 2:
		suffix = strconv.Itoa(80 + rand.Intn(20))
	default:
		suffix = strconv.Itoa(1980 + rand.Intn(21))
	}
	return fmt.Sprintf("%s%s", base, suffix)
}

func pick(options []string) string {
	return options[rand.Intn(len(options))]
}
