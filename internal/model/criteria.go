package model

// Criteria is the PICO+E protocol for one screening project. It is
// replaced wholesale on edit; there is no field-level merging.
type Criteria struct {
	Population        string `json:"population" yaml:"population"`
	Intervention      string `json:"intervention" yaml:"intervention"`
	Comparator        string `json:"comparator" yaml:"comparator"`
	Outcome           string `json:"outcome" yaml:"outcome"`
	StudyDesign       string `json:"study_design" yaml:"study_design"`
	Exclusion         string `json:"exclusion" yaml:"exclusion"`
	AllowMetaAnalysis bool   `json:"allow_meta_analysis" yaml:"allow_meta_analysis"`
}

// IsEmpty reports whether no criterion has been defined yet.
func (c Criteria) IsEmpty() bool {
	return c.Population == "" &&
		c.Intervention == "" &&
		c.Comparator == "" &&
		c.Outcome == "" &&
		c.StudyDesign == "" &&
		c.Exclusion == ""
}

// criteriaAliases maps legacy single-letter protocol keys to canonical
// field setters. Older exports used P/I/C/O/S/E; normalization happens
// once at the ingestion boundary, never at read sites.
var criteriaAliases = map[string]func(*Criteria, string){
	"p": func(c *Criteria, v string) { c.Population = v },
	"i": func(c *Criteria, v string) { c.Intervention = v },
	"c": func(c *Criteria, v string) { c.Comparator = v },
	"o": func(c *Criteria, v string) { c.Outcome = v },
	"s": func(c *Criteria, v string) { c.StudyDesign = v },
	"e": func(c *Criteria, v string) { c.Exclusion = v },
}

// NormalizeCriteria fills empty canonical fields from legacy
// single-letter keys. Canonical values always win over aliases.
func NormalizeCriteria(c Criteria, aliases map[string]string) Criteria {
	for key, val := range aliases {
		set, ok := criteriaAliases[lowerASCII(key)]
		if !ok || val == "" {
			continue
		}
		probe := Criteria{}
		set(&probe, "x")
		if canonicalIsSet(c, probe) {
			continue
		}
		set(&c, val)
	}
	return c
}

// canonicalIsSet reports whether the field marked in probe is already
// populated in c.
func canonicalIsSet(c, probe Criteria) bool {
	switch {
	case probe.Population != "":
		return c.Population != ""
	case probe.Intervention != "":
		return c.Intervention != ""
	case probe.Comparator != "":
		return c.Comparator != ""
	case probe.Outcome != "":
		return c.Outcome != ""
	case probe.StudyDesign != "":
		return c.StudyDesign != ""
	case probe.Exclusion != "":
		return c.Exclusion != ""
	}
	return false
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, ch := range b {
		if ch >= 'A' && ch <= 'Z' {
			b[i] = ch + 32
		}
	}
	return string(b)
}
