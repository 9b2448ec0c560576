package market

import "fmt"

// Education is one entry of a candidate's education history.
type Education struct {
	School string `json:"school,omitempty" mapstructure:"school"`
	Major  string `json:"major,omitempty" mapstructure:"major"`
	Degree string `json:"degree" mapstructure:"degree"`
}

// Certificate is a language certificate. Level holds either a numeric score
// (TOEIC, IELTS) or a level label (N1, Level 5, HSK-6).
type Certificate struct {
	Language string `json:"certificate_language" mapstructure:"certificate_language"`
	Name     string `json:"certificate_name" mapstructure:"certificate_name"`
	Level    string `json:"certificate_point_level" mapstructure:"certificate_point_level"`
}

// Descriptor is the human readable form stored on a valuation.
func (c Certificate) Descriptor() string {
	return fmt.Sprintf("%s - %s - %s", c.Language, c.Name, c.Level)
}
