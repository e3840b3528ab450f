package consistency

import "strings"

// hedgePhrases is the closed list of explicit uncertainty markers. Precise but
// approximate financial phrasing ("approximately", "around", "about") is not
// hedging and must never be added here.
var hedgePhrases = []string{
	"i'm not sure",
	"i am not sure",
	"not certain",
	"uncertain about",
	"unsure about",
	"unsure whether",
	"might be wrong",
	"could be wrong",
	"may be incorrect",
	"i don't know",
	"i do not know",
	"cannot determine",
	"can't determine",
	"possibly incorrect",
	"potentially wrong",
	"i think it might",
	"i believe it could",
	"it seems like maybe",
	"this could possibly",
	"this might possibly",
}

// HedgePhrases returns a copy of the hedge phrase list.
func HedgePhrases() []string {
	return append([]string(nil), hedgePhrases...)
}

// FindHedge returns the first hedge phrase contained in answer, if any.
func FindHedge(answer string) (string, bool) {
	text := strings.ToLower(strings.ReplaceAll(answer, "’", "'"))
	text = strings.Join(strings.Fields(text), " ")
	for _, p := range hedgePhrases {
		if strings.Contains(text, p) {
			return p, true
		}
	}
	return "", false
}

// IsHedged reports whether answer contains an explicit uncertainty phrase.
func IsHedged(answer string) bool {
	_, ok := FindHedge(answer)
	return ok
}
