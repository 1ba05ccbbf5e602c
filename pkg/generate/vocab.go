package generate

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/TFMV/rawlayer/pkg/draw"
)

var (
	plans         = []string{"basic", "pro", "enterprise"}
	categories    = []string{"apparel", "electronics", "books", "food"}
	currencies    = []string{"USD", "GBP", "EUR"}
	orderStatuses = []string{"placed", "paid", "refunded", "partial_refund", "cancelled"}
	payStatuses   = []string{"paid", "failed", "refunded"}
	eventTypes    = []string{"page_view", "add_to_cart", "checkout_started", "app_action_click"}
	browsers      = []string{"Chrome", "Firefox", "Safari"}
)

var companyPrefixes = []string{
	"acme", "apex", "blue", "bright", "cedar", "core", "crest", "delta", "ember", "summit",
	"granite", "harbor", "iron", "juniper", "keystone", "lumen", "maple", "north", "orbit", "pioneer",
	"quartz", "river", "silver", "terra", "united", "vertex", "willow", "zenith",
}

var companyNouns = []string{
	"analytics", "labs", "systems", "logistics", "foods", "media", "networks", "partners",
	"software", "supply", "ventures", "works", "dynamics", "health", "energy", "digital",
}

var companySuffixes = []string{"inc", "llc", "ltd", "group", "co", "plc"}

var firstNames = []string{
	"james", "mary", "robert", "patricia", "john", "jennifer", "michael", "linda", "david", "elizabeth",
	"william", "barbara", "richard", "susan", "joseph", "jessica", "thomas", "sarah", "charles", "karen",
	"daniel", "nancy", "matthew", "lisa", "anthony", "betty", "mark", "sandra", "priya", "wei",
	"fatima", "mateo", "sofia", "hiroshi", "amara", "lucas", "chloe", "omar", "ingrid", "diego",
}

var lastNames = []string{
	"smith", "johnson", "williams", "brown", "jones", "garcia", "miller", "davis", "rodriguez", "martinez",
	"hernandez", "lopez", "gonzalez", "wilson", "anderson", "thomas", "taylor", "moore", "jackson", "martin",
	"lee", "perez", "thompson", "white", "harris", "clark", "lewis", "walker", "nguyen", "patel",
	"kim", "chen", "okafor", "silva", "novak", "larsen", "tanaka", "haddad", "kowalski", "murphy",
}

var emailDomains = []string{
	"example.com", "example.org", "example.net", "mail.test", "corp.test", "inbox.test",
}

var countries = []string{
	"United States", "United Kingdom", "Germany", "France", "Canada", "Australia", "Japan",
	"Brazil", "India", "Netherlands", "Spain", "Italy", "Sweden", "Singapore", "Mexico",
	"Ireland", "Poland", "South Africa", "New Zealand", "Norway",
}

var countryCodes = []string{
	"US", "GB", "DE", "FR", "CA", "AU", "JP", "BR", "IN", "NL",
	"ES", "IT", "SE", "SG", "MX", "IE", "PL", "ZA", "NZ", "NO",
}

var words = []string{
	"alpha", "anchor", "autumn", "basket", "beacon", "canvas", "circle", "comet", "copper", "crystal",
	"dawn", "desk", "echo", "falcon", "field", "forest", "galaxy", "garden", "glacier", "harvest",
	"horizon", "island", "jacket", "lantern", "ledger", "marble", "meadow", "mirror", "nectar", "ocean",
	"orchard", "pepper", "pixel", "prism", "quill", "ribbon", "rocket", "saddle", "shadow", "signal",
	"spark", "spruce", "stone", "thunder", "timber", "velvet", "voyage", "wander", "window", "yonder",
}

// namer builds human-looking names from the draw stream.
type namer struct {
	title cases.Caser
}

func newNamer() *namer {
	return &namer{title: cases.Title(language.English)}
}

// company draws a prefix, a noun and a legal suffix.
func (n *namer) company(src *draw.Source) string {
	name := draw.Pick(src, companyPrefixes) + " " + draw.Pick(src, companyNouns)
	return n.title.String(name) + " " + strings.ToUpper(draw.Pick(src, companySuffixes))
}

// person draws a first name, a last name and an email domain.
func (n *namer) person(src *draw.Source) (fullName, email string) {
	first := draw.Pick(src, firstNames)
	last := draw.Pick(src, lastNames)
	domain := draw.Pick(src, emailDomains)
	return n.title.String(first + " " + last), first + "." + last + "@" + domain
}

// email draws a person and keeps only the address.
func (n *namer) email(src *draw.Source) string {
	_, e := n.person(src)
	return e
}

func word(src *draw.Source) string {
	return draw.Pick(src, words)
}
