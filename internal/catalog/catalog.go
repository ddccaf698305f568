// Package catalog loads the static recommendation content: education items
// and partner offers. The canonical catalogs are embedded in the binary;
// LoadDir lets operators override them with files on disk without a rebuild.
package catalog

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/spendsense/spendsense/internal/domain"
)

//go:embed education.yaml offers.yaml
var embedded embed.FS

const (
	educationFile = "education.yaml"
	offersFile    = "offers.yaml"

	// MinEducationPerPersona is enforced at load time so the matcher can
	// always satisfy its lower bound of three education items per user.
	MinEducationPerPersona = 3
)

// Constraint is one declarative bound inside an offer's eligibility block.
// A field may carry min, max, equals, or any combination.
type Constraint struct {
	Min    *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max    *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	Equals *bool    `yaml:"equals,omitempty" json:"equals,omitempty"`
}

// EducationItem is one pre-authored education card.
type EducationItem struct {
	ID                string           `yaml:"id" json:"content_id"`
	Title             string           `yaml:"title" json:"title"`
	Category          string           `yaml:"category" json:"category"`
	Personas          []domain.Persona `yaml:"personas" json:"personas"`
	TriggerSignals    []string         `yaml:"trigger_signals" json:"trigger_signals"`
	Summary           string           `yaml:"summary" json:"summary"`
	Body              string           `yaml:"body" json:"body"`
	RationaleTemplate string           `yaml:"rationale_template" json:"rationale_template"`
}

// ForPersona reports whether the item is tagged with the given persona.
func (e EducationItem) ForPersona(p domain.Persona) bool {
	for _, tagged := range e.Personas {
		if tagged == p {
			return true
		}
	}
	return false
}

// PartnerOffer is one partner product with declarative eligibility criteria.
type PartnerOffer struct {
	ID                string                `yaml:"id" json:"offer_id"`
	Title             string                `yaml:"title" json:"title"`
	Partner           string                `yaml:"partner" json:"partner"`
	Summary           string                `yaml:"summary" json:"summary"`
	Eligibility       map[string]Constraint `yaml:"eligibility,omitempty" json:"eligibility,omitempty"`
	RationaleTemplate string                `yaml:"rationale_template" json:"rationale_template"`
	CreditMetadata    map[string]string     `yaml:"credit_metadata,omitempty" json:"credit_metadata,omitempty"`
}

// Catalog bundles both content sets. Slices preserve file order, which the
// matcher relies on for fallback and tiebreak behavior.
type Catalog struct {
	Education []EducationItem
	Offers    []PartnerOffer

	byID map[string]any
}

type educationDoc struct {
	Items []EducationItem `yaml:"items"`
}

type offersDoc struct {
	Offers []PartnerOffer `yaml:"offers"`
}

// Load returns the embedded canonical catalogs.
func Load() (*Catalog, error) {
	eduRaw, err := embedded.ReadFile(educationFile)
	if err != nil {
		return nil, fmt.Errorf("Load: reading embedded %s: %w", educationFile, err)
	}
	offersRaw, err := embedded.ReadFile(offersFile)
	if err != nil {
		return nil, fmt.Errorf("Load: reading embedded %s: %w", offersFile, err)
	}
	c, err := parse(eduRaw, offersRaw)
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	return c, nil
}

// LoadDir reads education.yaml and offers.yaml from dir instead of the
// embedded copies. Both files must be present.
func LoadDir(dir string) (*Catalog, error) {
	eduRaw, err := os.ReadFile(filepath.Join(dir, educationFile))
	if err != nil {
		return nil, fmt.Errorf("LoadDir: reading %s: %w", educationFile, err)
	}
	offersRaw, err := os.ReadFile(filepath.Join(dir, offersFile))
	if err != nil {
		return nil, fmt.Errorf("LoadDir: reading %s: %w", offersFile, err)
	}
	c, err := parse(eduRaw, offersRaw)
	if err != nil {
		return nil, fmt.Errorf("LoadDir: %w", err)
	}
	return c, nil
}

func parse(eduRaw, offersRaw []byte) (*Catalog, error) {
	var edu educationDoc
	if err := yaml.Unmarshal(eduRaw, &edu); err != nil {
		return nil, fmt.Errorf("parsing education catalog: %w", err)
	}
	var off offersDoc
	if err := yaml.Unmarshal(offersRaw, &off); err != nil {
		return nil, fmt.Errorf("parsing offers catalog: %w", err)
	}

	c := &Catalog{
		Education: edu.Items,
		Offers:    off.Offers,
		byID:      make(map[string]any, len(edu.Items)+len(off.Offers)),
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) validate() error {
	if len(c.Education) == 0 {
		return fmt.Errorf("validating catalog: education catalog is empty")
	}
	if len(c.Offers) == 0 {
		return fmt.Errorf("validating catalog: offers catalog is empty")
	}

	perPersona := make(map[domain.Persona]int)
	for i, item := range c.Education {
		if item.ID == "" {
			return fmt.Errorf("validating catalog: education item %d has no id", i)
		}
		if _, dup := c.byID[item.ID]; dup {
			return fmt.Errorf("validating catalog: duplicate content id %q", item.ID)
		}
		c.byID[item.ID] = item
		if item.RationaleTemplate == "" {
			return fmt.Errorf("validating catalog: education item %q has no rationale template", item.ID)
		}
		if len(item.Personas) == 0 {
			return fmt.Errorf("validating catalog: education item %q is tagged with no personas", item.ID)
		}
		for _, p := range item.Personas {
			if !validPersona(p) {
				return fmt.Errorf("validating catalog: education item %q references unknown persona %q", item.ID, p)
			}
			perPersona[p]++
		}
	}
	for _, p := range domain.Personas {
		if perPersona[p] < MinEducationPerPersona {
			return fmt.Errorf("validating catalog: persona %s has %d education items, need at least %d",
				p, perPersona[p], MinEducationPerPersona)
		}
	}

	for i, offer := range c.Offers {
		if offer.ID == "" {
			return fmt.Errorf("validating catalog: offer %d has no id", i)
		}
		if _, dup := c.byID[offer.ID]; dup {
			return fmt.Errorf("validating catalog: duplicate content id %q", offer.ID)
		}
		c.byID[offer.ID] = offer
		if offer.RationaleTemplate == "" {
			return fmt.Errorf("validating catalog: offer %q has no rationale template", offer.ID)
		}
		for field, con := range offer.Eligibility {
			if con.Min == nil && con.Max == nil && con.Equals == nil {
				return fmt.Errorf("validating catalog: offer %q criterion %q declares no bound", offer.ID, field)
			}
			if con.Min != nil && con.Max != nil && *con.Min > *con.Max {
				return fmt.Errorf("validating catalog: offer %q criterion %q has min %v above max %v",
					offer.ID, field, *con.Min, *con.Max)
			}
		}
	}
	return nil
}

// EducationForPersona returns the education items tagged with p, in catalog
// order.
func (c *Catalog) EducationForPersona(p domain.Persona) []EducationItem {
	var out []EducationItem
	for _, item := range c.Education {
		if item.ForPersona(p) {
			out = append(out, item)
		}
	}
	return out
}

// EducationByID returns the education item with the given id.
func (c *Catalog) EducationByID(id string) (EducationItem, bool) {
	item, ok := c.byID[id].(EducationItem)
	return item, ok
}

// OfferByID returns the partner offer with the given id.
func (c *Catalog) OfferByID(id string) (PartnerOffer, bool) {
	offer, ok := c.byID[id].(PartnerOffer)
	return offer, ok
}

func validPersona(p domain.Persona) bool {
	for _, known := range domain.Personas {
		if known == p {
			return true
		}
	}
	return false
}
