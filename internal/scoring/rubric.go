package scoring

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Rubric holds the weighting of the four scoring dimensions.
type Rubric struct {
	MarketFit     float64 `yaml:"market_fit"`
	Accessibility float64 `yaml:"accessibility"`
	Competition   float64 `yaml:"competition"`
	CostProfile   float64 `yaml:"cost_profile"`
}

// DefaultRubric is used when no rubric file is configured.
func DefaultRubric() Rubric {
	return Rubric{
		MarketFit:     0.35,
		Accessibility: 0.25,
		Competition:   0.25,
		CostProfile:   0.15,
	}
}

// LoadRubric reads a rubric from a YAML file and normalizes it.
func LoadRubric(path string) (Rubric, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rubric{}, eris.Wrapf(err, "scoring: read rubric %s", path)
	}

	var r Rubric
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rubric{}, eris.Wrap(err, "scoring: parse rubric")
	}
	if err := r.normalize(); err != nil {
		return Rubric{}, err
	}
	return r, nil
}

// normalize scales the weights to sum to 1.
func (r *Rubric) normalize() error {
	if r.MarketFit < 0 || r.Accessibility < 0 || r.Competition < 0 || r.CostProfile < 0 {
		return eris.New("scoring: rubric weights must be non-negative")
	}
	sum := r.MarketFit + r.Accessibility + r.Competition + r.CostProfile
	if sum <= 0 {
		return eris.New("scoring: rubric weights sum to zero")
	}
	r.MarketFit /= sum
	r.Accessibility /= sum
	r.Competition /= sum
	r.CostProfile /= sum
	return nil
}

// Composite applies the rubric to a set of subscores.
func (r Rubric) Composite(marketFit, accessibility, competition, costProfile float64) float64 {
	return r.MarketFit*marketFit +
		r.Accessibility*accessibility +
		r.Competition*competition +
		r.CostProfile*costProfile
}
