package catalog

import "strings"

// The marketplace's fixed category set, with the keywords used to classify a
// hydrated listing into one of them.
var categoryKeywords = []struct {
	name     string
	keywords []string
}{
	{"Shoes", []string{"shoe", "sneaker", "boot", "sandal", "heel", "loafer"}},
	{"Fashion", []string{"shirt", "dress", "jacket", "hoodie", "jeans", "trouser", "apparel", "wear"}},
	{"Furniture", []string{"sofa", "couch", "table", "chair", "bed", "wardrobe", "shelf", "desk"}},
	{"Electronics", []string{"phone", "laptop", "tv", "speaker", "camera", "charger", "headphone", "console"}},
	{"Jewelry", []string{"ring", "necklace", "bracelet", "earring", "chain", "pendant"}},
	{"Watches", []string{"watch", "timepiece"}},
	{"Home Decor", []string{"lamp", "vase", "curtain", "rug", "mirror", "frame", "decor"}},
}

// DefaultCategory is used when no keyword matches.
const DefaultCategory = "Accessories"

// ClassifyCategory picks a category name for a listing from its name and
// description. Deterministic: first category whose keyword appears wins.
func ClassifyCategory(name, description string) string {
	haystack := strings.ToLower(name + " " + description)
	for _, c := range categoryKeywords {
		for _, kw := range c.keywords {
			if strings.Contains(haystack, kw) {
				return c.name
			}
		}
	}
	return DefaultCategory
}
