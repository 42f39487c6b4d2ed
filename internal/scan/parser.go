// Package scan reads medicine details from photographed labels.
package scan

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Unknown fills fields the label did not reveal.
const Unknown = "जानकारी नहीं मिली"

// UnknownMedicine names a label whose medicine is not in the catalog.
const UnknownMedicine = "अज्ञात दवा"

//go:embed catalog.yaml
var catalogYAML []byte

type CatalogEntry struct {
	Pattern  string `yaml:"pattern"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`

	re *regexp.Regexp
}

type Catalog struct {
	Medicines []CatalogEntry `yaml:"medicines"`
}

// LoadCatalog parses a YAML catalog and compiles its patterns.
func LoadCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for i := range c.Medicines {
		e := &c.Medicines[i]
		re, err := regexp.Compile("(?i)" + e.Pattern)
		if err != nil {
			return nil, fmt.Errorf("catalog entry %q: %w", e.Name, err)
		}
		e.re = re
	}
	return &c, nil
}

var defaultCatalog = sync.OnceValues(func() (*Catalog, error) {
	return LoadCatalog(catalogYAML)
})

// DefaultCatalog is the embedded catalog.
func DefaultCatalog() *Catalog {
	c, err := defaultCatalog()
	if err != nil {
		panic(err)
	}
	return c
}

// Match returns the first entry whose pattern occurs in text.
func (c *Catalog) Match(text string) (CatalogEntry, bool) {
	for _, e := range c.Medicines {
		if e.re != nil && e.re.MatchString(text) {
			return e, true
		}
	}
	return CatalogEntry{}, false
}

type Field struct {
	Value   string `json:"value"`
	Matched bool   `json:"matched"`
}

// LabelInfo is what could be read off a label.
type LabelInfo struct {
	Name         Field   `json:"name"`
	Category     string  `json:"category,omitempty"`
	Dosage       Field   `json:"dosage"`
	ExpiryDate   Field   `json:"expiryDate"`
	Manufacturer Field   `json:"manufacturer"`
	BatchNumber  Field   `json:"batchNumber"`
	Confidence   float64 `json:"confidence"`
	RawText      string  `json:"rawText"`
}

// Recognized reports whether a catalog medicine was found.
func (l LabelInfo) Recognized() bool {
	return l.Name.Matched
}

var (
	dosagePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d+)\s*mg`),
		regexp.MustCompile(`(?i)(\d+)\s*mcg`),
		regexp.MustCompile(`(?i)(\d+)\s*iu`),
		regexp.MustCompile(`(?i)(\d+)\s*ml`),
		regexp.MustCompile(`(?i)(\d+)\s*tablet`),
		regexp.MustCompile(`(\d+)\s*गोली`),
	}
	expiryPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)exp[iry]*:?\s*(\d{1,2})[/\-](\d{1,2})[/\-](\d{2,4})`),
		regexp.MustCompile(`मियाद:?\s*(\d{1,2})[/\-](\d{1,2})[/\-](\d{2,4})`),
		regexp.MustCompile(`(\d{1,2})[/\-](\d{1,2})[/\-](\d{2,4})`),
	}
	batchPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)batch:?\s*([a-z0-9]+)`),
		regexp.MustCompile(`(?i)lot:?\s*([a-z0-9]+)`),
	}
	manufacturerKeywords = []string{"pvt", "ltd", "pharma", "pharmaceuticals", "labs"}
)

// ParseLabel extracts medicine details from OCR text using the embedded
// catalog.
func ParseLabel(text string) LabelInfo {
	return DefaultCatalog().Parse(text)
}

// Parse extracts medicine details from OCR text.
func (c *Catalog) Parse(text string) LabelInfo {
	clean := strings.ToLower(strings.ReplaceAll(text, "\n", " "))

	info := LabelInfo{
		Name:         Field{Value: UnknownMedicine},
		Dosage:       firstMatch(dosagePatterns, clean, 0),
		ExpiryDate:   firstMatch(expiryPatterns, clean, 0),
		Manufacturer: manufacturer(clean),
		BatchNumber:  firstMatch(batchPatterns, clean, 1),
		Confidence:   0.3,
		RawText:      text,
	}
	if e, ok := c.Match(clean); ok {
		info.Name = Field{Value: e.Name, Matched: true}
		info.Category = e.Category
		info.Confidence = 0.8
	}
	return info
}

// firstMatch returns group of the first pattern that matches: 0 is the
// whole match.
func firstMatch(patterns []*regexp.Regexp, text string, group int) Field {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return Field{Value: m[group], Matched: true}
		}
	}
	return Field{Value: Unknown}
}

// manufacturer takes the word carrying a company keyword and the two words
// before it.
func manufacturer(text string) Field {
	words := strings.Split(text, " ")
	for i, w := range words {
		for _, kw := range manufacturerKeywords {
			if strings.Contains(w, kw) {
				return Field{Value: strings.Join(words[max(0, i-2):i+1], " "), Matched: true}
			}
		}
	}
	return Field{Value: Unknown}
}
