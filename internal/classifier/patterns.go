package classifier

import "github.com/xaenox/micronote/internal/models"

// matchOrder is the order patterns are tried in. The first match wins, so
// narrower categories come before broad ones like task and idea.
var matchOrder = []models.NoteType{
	models.NoteBookmark,
	models.NoteShoppingList,
	models.NoteReminder,
	models.NoteEvent,
	models.NoteMeasurement,
	models.NoteRecipe,
	models.NoteContact,
	models.NoteTask,
	models.NoteIdea,
}

// defaultPatterns are written without delimiters and compiled case-insensitively.
// Go's \b is ASCII-only, so word edges around Romanian letters use \p{L}.
var defaultPatterns = map[models.NoteType]string{
	models.NoteBookmark:     `https?://|www\.[\p{L}\d-]+\.`,
	models.NoteShoppingList: `cump[aă]r|de luat|lista de|list[aă] cump|magazin|supermarket|market|(?:^|[^\p{L}])iau(?:[^\p{L}]|$)`,
	models.NoteReminder:     `aminte[sșş]te|reaminte|aminti|nu uita|(?:^|[^\p{L}])(?:remind\p{L}*|alarm[aă]|m[aâ]ine|poim[aâ]ine)(?:[^\p{L}]|$)|peste \d+ (?:minut|or[aăe]|zi)|la ora \d|(?:^|[^\p{L}])la \d{1,2}(?:[:.]\d{2})?(?:[^\d]|$)`,
	models.NoteEvent:        `eveniment|[iî]nt[aâ]lnire|[sșş]edin[tțţ][aă]|concert|petrecere|nunt[aă]|botez|aniversare|conferin[tțţ][aă]|meeting`,
	models.NoteMeasurement:  `\d+(?:[.,]\d+)?\s?(?:kg|cm|mmhg|bpm|kcal|grame|litri)(?:[^\p{L}]|$)|greutate|tensiune|glicemie|puls(?:ul)?(?:[^\p{L}]|$)|m-am c[aâ]nt[aă]rit`,
	models.NoteRecipe:       `re[tțţ]et[aă]|ingrediente|se fierbe|la cuptor|se amestec|mod de preparare`,
	models.NoteContact:      `telefon|nr\.? de tel|e-?mail|contact(?:ul)?(?:[^\p{L}]|$)|\+?\d{10,}`,
	models.NoteTask:         `trebuie|de f[aă]cut|todo|to-do|sarcin[aă]|s[aă] termin|s[aă] fac|de rezolvat`,
	models.NoteIdea:         `idee|idei|m-am g[aâ]ndit|ce-ar fi|ce ar fi dac[aă]|concept|brainstorm`,
}

// DefaultPatterns returns a copy of the built-in pattern set keyed by category name.
func DefaultPatterns() map[string]string {
	out := make(map[string]string, len(defaultPatterns))
	for t, p := range defaultPatterns {
		out[string(t)] = p
	}
	return out
}
