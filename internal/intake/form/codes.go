package form

// Fixed code sets for the checkbox-group fields. Keeping these enumerated
// (instead of open string maps) lets validation reject unknown codes and
// keeps the stored payloads queryable.

// ConditionCodes are the medical-history condition checkboxes.
var ConditionCodes = []string{
	"depression",
	"anxiety",
	"bipolar_disorder",
	"ptsd",
	"ocd",
	"adhd",
	"seizure_disorder",
	"stroke",
	"brain_injury",
	"chronic_pain",
	"migraines",
	"heart_disease",
	"high_blood_pressure",
	"diabetes",
	"thyroid_disorder",
	"substance_use",
	"other",
}

// MedicationCodes are the pre-certification medication checkboxes: the
// antidepressant trials insurers require documented before approving TMS.
var MedicationCodes = []string{
	"sertraline",
	"fluoxetine",
	"paroxetine",
	"citalopram",
	"escitalopram",
	"venlafaxine",
	"desvenlafaxine",
	"duloxetine",
	"bupropion",
	"mirtazapine",
	"nortriptyline",
	"amitriptyline",
	"aripiprazole",
	"quetiapine",
	"lithium",
	"lamotrigine",
	"other",
}

var conditionSet = toSet(ConditionCodes)
var medicationSet = toSet(MedicationCodes)

func toSet(codes []string) map[string]bool {
	m := make(map[string]bool, len(codes))
	for _, c := range codes {
		m[c] = true
	}
	return m
}

// KnownCondition reports whether code is a recognised condition checkbox.
func KnownCondition(code string) bool { return conditionSet[code] }

// KnownMedication reports whether code is a recognised medication checkbox.
func KnownMedication(code string) bool { return medicationSet[code] }
