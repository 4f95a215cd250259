package patients

// Flag classifies one marker value against its rule.
type Flag string

const (
	FlagNormal   Flag = "normal"
	FlagElevated Flag = "elevated"
	FlagHigh     Flag = "high"
	FlagLow      Flag = "low"
)

// Rule is one row of the fixed clinical threshold table. The table is the
// ground truth for classification and is rendered verbatim into the
// generation prompt, so the narrative can never disagree with it.
type Rule struct {
	Key       string
	Label     string
	Unit      string
	Threshold string // human-readable boundary, as shown to the model and reviewers
	Risks     string // conditions the abnormal value indicates
	Classify  func(v float64) Flag
}

// MarkerRules covers the full twelve-marker panel. Order matters: it drives
// prompt rendering and CSV export column order.
var MarkerRules = []Rule{
	{
		Key: "glucose", Label: "Glucose", Unit: "mg/dL",
		Threshold: "High if >= 126 mg/dL",
		Risks:     "Type 2 Diabetes, Metabolic Syndrome",
		Classify: func(v float64) Flag {
			if v >= 126 {
				return FlagHigh
			}
			return FlagNormal
		},
	},
	{
		Key: "hba1c", Label: "HbA1c", Unit: "%",
		Threshold: "Pre-diabetes if 5.7-6.4%, Diabetes if >= 6.5%",
		Risks:     "Pre-diabetes, Type 2 Diabetes",
		Classify: func(v float64) Flag {
			switch {
			case v >= 6.5:
				return FlagHigh
			case v >= 5.7:
				return FlagElevated
			}
			return FlagNormal
		},
	},
	{
		Key: "total_cholesterol", Label: "Total Cholesterol", Unit: "mg/dL",
		Threshold: "High if > 200 mg/dL",
		Risks:     "Cardiovascular Disease",
		Classify: func(v float64) Flag {
			if v > 200 {
				return FlagHigh
			}
			return FlagNormal
		},
	},
	{
		Key: "ldl", Label: "LDL", Unit: "mg/dL",
		Threshold: "High if > 130 mg/dL",
		Risks:     "Heart disease, Stroke",
		Classify: func(v float64) Flag {
			if v > 130 {
				return FlagHigh
			}
			return FlagNormal
		},
	},
	{
		// Direction reversed vs. the other markers: low HDL is the risk.
		Key: "hdl", Label: "HDL", Unit: "mg/dL",
		Threshold: "Low (high risk) if < 40 mg/dL",
		Risks:     "Low HDL increases CVD risk",
		Classify: func(v float64) Flag {
			if v < 40 {
				return FlagLow
			}
			return FlagNormal
		},
	},
	{
		Key: "triglycerides", Label: "Triglycerides", Unit: "mg/dL",
		Threshold: "High if > 150 mg/dL",
		Risks:     "CVD, Pancreatitis",
		Classify: func(v float64) Flag {
			if v > 150 {
				return FlagHigh
			}
			return FlagNormal
		},
	},
	{
		Key: "alt", Label: "ALT", Unit: "U/L",
		Threshold: "High if > 40 U/L",
		Risks:     "Liver disease, Fatty liver, Cirrhosis",
		Classify: func(v float64) Flag {
			if v > 40 {
				return FlagHigh
			}
			return FlagNormal
		},
	},
	{
		Key: "ast", Label: "AST", Unit: "U/L",
		Threshold: "High if > 35 U/L",
		Risks:     "Liver disease, Fatty liver, Cirrhosis",
		Classify: func(v float64) Flag {
			if v > 35 {
				return FlagHigh
			}
			return FlagNormal
		},
	},
	{
		Key: "creatinine", Label: "Creatinine", Unit: "mg/dL",
		Threshold: "High if > 1.3 mg/dL",
		Risks:     "Kidney disease",
		Classify: func(v float64) Flag {
			if v > 1.3 {
				return FlagHigh
			}
			return FlagNormal
		},
	},
	{
		Key: "urea", Label: "Urea", Unit: "mg/dL",
		Threshold: "High if > 50 mg/dL",
		Risks:     "Kidney disease",
		Classify: func(v float64) Flag {
			if v > 50 {
				return FlagHigh
			}
			return FlagNormal
		},
	},
	{
		Key: "crp", Label: "CRP", Unit: "mg/L",
		Threshold: "High risk if > 3 mg/L",
		Risks:     "Chronic inflammation, CVD, Cancer",
		Classify: func(v float64) Flag {
			if v > 3 {
				return FlagHigh
			}
			return FlagNormal
		},
	},
	{
		Key: "wbc", Label: "WBC", Unit: "x10^9/L",
		Threshold: "High if > 11 x10^9/L",
		Risks:     "Chronic infections, Inflammation, Cancer",
		Classify: func(v float64) Flag {
			if v > 11 {
				return FlagHigh
			}
			return FlagNormal
		},
	},
}

// RuleFor looks up the rule for a marker key.
func RuleFor(key string) *Rule {
	for i := range MarkerRules {
		if MarkerRules[i].Key == key {
			return &MarkerRules[i]
		}
	}
	return nil
}

// MarkerKeys returns the marker keys in table order.
func MarkerKeys() []string {
	keys := make([]string, 0, len(MarkerRules))
	for _, r := range MarkerRules {
		keys = append(keys, r.Key)
	}
	return keys
}

// Finding is the classification of one present marker.
type Finding struct {
	Marker    string  `json:"marker"`
	Label     string  `json:"label"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
	Threshold string  `json:"threshold"`
	Risks     string  `json:"risks"`
	Flag      Flag    `json:"flag"`
}

// Classify maps a panel to per-marker findings. Absent values are excluded
// from the result, not reported as normal.
func Classify(p Panel) []Finding {
	var out []Finding
	for _, r := range MarkerRules {
		v := p.Value(r.Key)
		if v == nil {
			continue
		}
		out = append(out, Finding{
			Marker:    r.Key,
			Label:     r.Label,
			Value:     *v,
			Unit:      r.Unit,
			Threshold: r.Threshold,
			Risks:     r.Risks,
			Flag:      r.Classify(*v),
		})
	}
	return out
}
