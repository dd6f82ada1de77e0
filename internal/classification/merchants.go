package classification

import (
	"sort"

	"github.com/Veraticus/spice-import/internal/model"
	"github.com/Veraticus/spice-import/internal/textutil"
)

// MerchantDatabaseConfidence is the confidence of a keyword database hit.
const MerchantDatabaseConfidence = 0.90

// MerchantKeyword maps a well-known merchant name to its category.
type MerchantKeyword struct {
	Keyword    string
	CategoryID string
}

// MerchantDatabase looks up well-known merchants by keyword. Longer keywords win, so
// "amazon prime" beats "amazon".
type MerchantDatabase struct {
	entries []MerchantKeyword
}

// NewMerchantDatabase creates a database from the given keywords.
func NewMerchantDatabase(entries []MerchantKeyword) *MerchantDatabase {
	sorted := make([]MerchantKeyword, 0, len(entries))
	for _, e := range entries {
		if e.Keyword == "" || e.CategoryID == "" {
			continue
		}
		sorted = append(sorted, MerchantKeyword{Keyword: textutil.Normalize(textutil.Fold(e.Keyword)), CategoryID: e.CategoryID})
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Keyword) > len(sorted[j].Keyword)
	})
	return &MerchantDatabase{entries: sorted}
}

// Lookup returns the category of the first merchant keyword found in the description.
func (db *MerchantDatabase) Lookup(description string) (*Match, bool) {
	text := textutil.Fold(description)
	for _, e := range db.entries {
		if textutil.ContainsWord(text, e.Keyword) {
			return &Match{
				PatternName: e.Keyword,
				CategoryID:  e.CategoryID,
				Type:        PatternTypeTransfer,
				Source:      model.SourceMerchantDatabase,
				Confidence:  MerchantDatabaseConfidence,
			}, true
		}
	}
	return nil, false
}

// Len returns the number of keywords.
func (db *MerchantDatabase) Len() int {
	return len(db.entries)
}

// DefaultMerchants returns the built-in keyword database.
func DefaultMerchants() []MerchantKeyword {
	byCategory := map[string][]string{
		"groceries": {
			"tesco", "sainsbury", "sainsburys", "asda", "morrisons", "waitrose", "aldi", "lidl", "whole foods",
			"trader joe", "trader joes", "safeway", "kroger", "publix", "costco", "rewe", "edeka", "kaufland",
			"carrefour", "leclerc", "intermarche", "monoprix", "esselunga", "conad", "coop", "mercadona",
			"albert heijn", "jumbo", "migros", "billa", "spar", "woolworths", "coles", "loblaws",
		},
		"dining": {
			"starbucks", "mcdonalds", "mcdonald s", "burger king", "kfc", "subway", "pret a manger", "costa",
			"dunkin", "chipotle", "dominos", "pizza hut", "nandos", "deliveroo", "uber eats", "ubereats",
			"doordash", "grubhub", "just eat", "lieferando", "glovo", "wolt", "restaurant", "cafe", "bistro",
		},
		"transport": {
			"uber", "lyft", "bolt", "free now", "tfl", "transport for london", "deutsche bahn", "db vertrieb",
			"sncf", "trenitalia", "renfe", "amtrak", "mta", "bvg", "ratp", "parking", "parkhaus",
		},
		"fuel": {
			"shell", "bp", "esso", "exxon", "chevron", "texaco", "aral", "total energies", "totalenergies",
			"agip", "eni", "repsol", "tesla supercharger", "ionity",
		},
		"travel": {
			"ryanair", "easyjet", "lufthansa", "british airways", "air france", "klm", "delta", "united airlines",
			"american airlines", "booking com", "airbnb", "expedia", "hotels com", "marriott", "hilton",
		},
		"shopping": {
			"amazon", "amzn", "ebay", "etsy", "zalando", "ikea", "h m", "zara", "primark", "uniqlo", "apple store",
			"best buy", "mediamarkt", "saturn", "target", "walmart", "argos", "john lewis", "decathlon",
		},
		"utilities": {
			"british gas", "octopus energy", "edf", "eon", "e on", "vattenfall", "enel", "iberdrola",
			"thames water", "vodafone", "o2", "ee", "verizon", "at t", "t mobile", "comcast", "telekom",
			"orange", "bt group", "virgin media",
		},
		"subscriptions": {
			"netflix", "spotify", "disney plus", "disney", "amazon prime", "prime video", "hulu", "hbo max",
			"youtube premium", "apple com bill", "itunes", "icloud", "google storage", "dropbox", "adobe",
			"microsoft 365", "openai", "audible", "patreon",
		},
		"health": {
			"boots", "cvs", "walgreens", "rite aid", "apotheke", "pharmacie", "farmacia", "dentist", "clinic",
		},
		"entertainment": {
			"steam", "playstation", "xbox", "nintendo", "ticketmaster", "eventim", "cinema", "odeon", "vue",
			"cineworld", "amc theatres",
		},
		"housing": {
			"landlord", "homebase", "b q", "home depot", "lowes", "bauhaus", "obi", "leroy merlin",
		},
		"taxes": {
			"hmrc", "irs", "finanzamt", "dgfip", "agenzia entrate",
		},
	}

	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	var out []MerchantKeyword
	for _, c := range categories {
		for _, k := range byCategory[c] {
			out = append(out, MerchantKeyword{Keyword: k, CategoryID: c})
		}
	}
	return out
}
