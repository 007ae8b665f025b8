package terminology

import "github.com/ehr/clinicalmerge/internal/platform/fhir"

// VitalSigns maps vital-sign names to LOINC.
var VitalSigns = newTable(fhir.SystemLOINC, []Concept{
	{Code: "8867-4", Display: "Heart rate", Unit: "/min", Terms: []string{"hr", "pulse", "pulse rate", "heart rate"}},
	{Code: "9279-1", Display: "Respiratory rate", Unit: "/min", Terms: []string{"rr", "resp", "respirations", "respiration rate"}},
	{Code: "8310-5", Display: "Body temperature", Unit: "[degF]", Terms: []string{"temp", "temperature", "body temp", "t"}},
	{Code: "8480-6", Display: "Systolic blood pressure", Unit: "mm[Hg]", Terms: []string{"sbp", "systolic", "systolic bp"}},
	{Code: "8462-4", Display: "Diastolic blood pressure", Unit: "mm[Hg]", Terms: []string{"dbp", "diastolic", "diastolic bp"}},
	{Code: "85354-9", Display: "Blood pressure panel", Unit: "mm[Hg]", Terms: []string{"bp", "blood pressure", "b/p"}},
	{Code: "2708-6", Display: "Oxygen saturation in Arterial blood", Unit: "%", Terms: []string{"spo2", "o2 sat", "oxygen saturation", "pulse ox", "sao2"}},
	{Code: "29463-7", Display: "Body weight", Unit: "kg", Terms: []string{"weight", "wt", "body weight"}},
	{Code: "8302-2", Display: "Body height", Unit: "cm", Terms: []string{"height", "ht", "body height", "length"}},
	{Code: "39156-5", Display: "Body mass index", Unit: "kg/m2", Terms: []string{"bmi", "body mass index"}},
	{Code: "9843-4", Display: "Head Occipital-frontal circumference", Unit: "cm", Terms: []string{"head circumference", "ofc", "hc"}},
	{Code: "72514-3", Display: "Pain severity - 0-10 verbal numeric rating", Unit: "{score}", Terms: []string{"pain", "pain score", "pain scale"}},
})

// LabTests maps laboratory test names to LOINC.
var LabTests = newTable(fhir.SystemLOINC, []Concept{
	{Code: "718-7", Display: "Hemoglobin [Mass/volume] in Blood", Unit: "g/dL", Terms: []string{"hemoglobin", "hgb", "hb", "haemoglobin"}},
	{Code: "4544-3", Display: "Hematocrit [Volume Fraction] of Blood", Unit: "%", Terms: []string{"hematocrit", "hct"}},
	{Code: "6690-2", Display: "Leukocytes [#/volume] in Blood", Unit: "10*3/uL", Terms: []string{"wbc", "white blood cell count", "white blood cells", "leukocytes"}},
	{Code: "777-3", Display: "Platelets [#/volume] in Blood", Unit: "10*3/uL", Terms: []string{"platelets", "plt", "platelet count"}},
	{Code: "2345-7", Display: "Glucose [Mass/volume] in Serum or Plasma", Unit: "mg/dL", Terms: []string{"glucose", "blood glucose", "blood sugar", "fasting glucose"}},
	{Code: "4548-4", Display: "Hemoglobin A1c/Hemoglobin.total in Blood", Unit: "%", Terms: []string{"hba1c", "a1c", "hemoglobin a1c", "glycated hemoglobin"}},
	{Code: "2160-0", Display: "Creatinine [Mass/volume] in Serum or Plasma", Unit: "mg/dL", Terms: []string{"creatinine", "creat", "cr"}},
	{Code: "2951-2", Display: "Sodium [Moles/volume] in Serum or Plasma", Unit: "mmol/L", Terms: []string{"sodium", "na"}},
	{Code: "2823-3", Display: "Potassium [Moles/volume] in Serum or Plasma", Unit: "mmol/L", Terms: []string{"potassium", "k"}},
	{Code: "2075-0", Display: "Chloride [Moles/volume] in Serum or Plasma", Unit: "mmol/L", Terms: []string{"chloride", "cl"}},
	{Code: "2028-9", Display: "Carbon dioxide, total [Moles/volume] in Serum or Plasma", Unit: "mmol/L", Terms: []string{"co2", "bicarbonate", "hco3", "total co2"}},
	{Code: "3094-0", Display: "Urea nitrogen [Mass/volume] in Serum or Plasma", Unit: "mg/dL", Terms: []string{"bun", "blood urea nitrogen", "urea nitrogen"}},
	{Code: "17861-6", Display: "Calcium [Mass/volume] in Serum or Plasma", Unit: "mg/dL", Terms: []string{"calcium", "ca"}},
	{Code: "2093-3", Display: "Cholesterol [Mass/volume] in Serum or Plasma", Unit: "mg/dL", Terms: []string{"total cholesterol", "cholesterol", "chol"}},
	{Code: "13457-7", Display: "Cholesterol in LDL [Mass/volume] in Serum or Plasma by calculation", Unit: "mg/dL", Terms: []string{"ldl", "ldl cholesterol", "ldl-c"}},
	{Code: "2085-9", Display: "Cholesterol in HDL [Mass/volume] in Serum or Plasma", Unit: "mg/dL", Terms: []string{"hdl", "hdl cholesterol", "hdl-c"}},
	{Code: "2571-8", Display: "Triglyceride [Mass/volume] in Serum or Plasma", Unit: "mg/dL", Terms: []string{"triglycerides", "trig", "tg"}},
	{Code: "1742-6", Display: "Alanine aminotransferase [Enzymatic activity/volume] in Serum or Plasma", Unit: "U/L", Terms: []string{"alt", "sgpt", "alanine aminotransferase"}},
	{Code: "1920-8", Display: "Aspartate aminotransferase [Enzymatic activity/volume] in Serum or Plasma", Unit: "U/L", Terms: []string{"ast", "sgot", "aspartate aminotransferase"}},
	{Code: "3016-3", Display: "Thyrotropin [Units/volume] in Serum or Plasma", Unit: "m[IU]/L", Terms: []string{"tsh", "thyroid stimulating hormone", "thyrotropin"}},
	{Code: "6301-6", Display: "INR in Platelet poor plasma by Coagulation assay", Unit: "{INR}", Terms: []string{"inr", "pt/inr"}},
	{Code: "1751-7", Display: "Albumin [Mass/volume] in Serum or Plasma", Unit: "g/dL", Terms: []string{"albumin", "alb"}},
	{Code: "1975-2", Display: "Bilirubin.total [Mass/volume] in Serum or Plasma", Unit: "mg/dL", Terms: []string{"total bilirubin", "bilirubin", "tbili"}},
	{Code: "6768-6", Display: "Alkaline phosphatase [Enzymatic activity/volume] in Serum or Plasma", Unit: "U/L", Terms: []string{"alkaline phosphatase", "alk phos", "alp"}},
})

// Conditions maps diagnosis names to ICD-10-CM.
var Conditions = newTable(fhir.SystemICD10CM, []Concept{
	{Code: "I10", Display: "Essential (primary) hypertension", Terms: []string{"hypertension", "htn", "high blood pressure", "essential hypertension"}},
	{Code: "E11.9", Display: "Type 2 diabetes mellitus without complications", Terms: []string{"type 2 diabetes", "type 2 diabetes mellitus", "t2dm", "dm2", "diabetes mellitus type 2", "diabetes"}},
	{Code: "J45.909", Display: "Unspecified asthma, uncomplicated", Terms: []string{"asthma"}},
	{Code: "E78.5", Display: "Hyperlipidemia, unspecified", Terms: []string{"hyperlipidemia", "high cholesterol", "dyslipidemia", "hld"}},
	{Code: "J44.9", Display: "Chronic obstructive pulmonary disease, unspecified", Terms: []string{"copd", "chronic obstructive pulmonary disease", "emphysema"}},
	{Code: "I25.10", Display: "Atherosclerotic heart disease of native coronary artery without angina pectoris", Terms: []string{"coronary artery disease", "cad", "ischemic heart disease"}},
	{Code: "I48.91", Display: "Unspecified atrial fibrillation", Terms: []string{"atrial fibrillation", "afib", "a-fib", "af"}},
	{Code: "I50.9", Display: "Heart failure, unspecified", Terms: []string{"heart failure", "chf", "congestive heart failure"}},
	{Code: "E03.9", Display: "Hypothyroidism, unspecified", Terms: []string{"hypothyroidism"}},
	{Code: "F32.9", Display: "Major depressive disorder, single episode, unspecified", Terms: []string{"depression", "major depressive disorder", "mdd"}},
	{Code: "F41.9", Display: "Anxiety disorder, unspecified", Terms: []string{"anxiety", "anxiety disorder"}},
	{Code: "K21.9", Display: "Gastro-esophageal reflux disease without esophagitis", Terms: []string{"gerd", "acid reflux", "gastroesophageal reflux disease", "reflux"}},
	{Code: "N18.9", Display: "Chronic kidney disease, unspecified", Terms: []string{"chronic kidney disease", "ckd"}},
	{Code: "E66.9", Display: "Obesity, unspecified", Terms: []string{"obesity"}},
	{Code: "M19.90", Display: "Unspecified osteoarthritis, unspecified site", Terms: []string{"osteoarthritis", "oa", "degenerative joint disease"}},
	{Code: "G43.909", Display: "Migraine, unspecified, not intractable, without status migrainosus", Terms: []string{"migraine", "migraines", "migraine headache"}},
})

// Medications maps drug names to RxNorm ingredients.
var Medications = newTable(fhir.SystemRxNorm, []Concept{
	{Code: "6809", Display: "metformin", Terms: []string{"glucophage"}},
	{Code: "29046", Display: "lisinopril", Terms: []string{"zestril", "prinivil"}},
	{Code: "83367", Display: "atorvastatin", Terms: []string{"lipitor"}},
	{Code: "17767", Display: "amlodipine", Terms: []string{"norvasc"}},
	{Code: "6918", Display: "metoprolol", Terms: []string{"lopressor", "toprol", "toprol xl", "metoprolol succinate", "metoprolol tartrate"}},
	{Code: "10582", Display: "levothyroxine", Terms: []string{"synthroid", "levoxyl"}},
	{Code: "7646", Display: "omeprazole", Terms: []string{"prilosec"}},
	{Code: "36567", Display: "simvastatin", Terms: []string{"zocor"}},
	{Code: "52175", Display: "losartan", Terms: []string{"cozaar"}},
	{Code: "5487", Display: "hydrochlorothiazide", Terms: []string{"hctz"}},
	{Code: "435", Display: "albuterol", Terms: []string{"ventolin", "proair", "salbutamol"}},
	{Code: "25480", Display: "gabapentin", Terms: []string{"neurontin"}},
	{Code: "11289", Display: "warfarin", Terms: []string{"coumadin"}},
	{Code: "274783", Display: "insulin glargine", Terms: []string{"lantus", "basaglar"}},
	{Code: "1191", Display: "aspirin", Terms: []string{"asa", "acetylsalicylic acid"}},
	{Code: "4603", Display: "furosemide", Terms: []string{"lasix"}},
	{Code: "36437", Display: "sertraline", Terms: []string{"zoloft"}},
	{Code: "8640", Display: "prednisone", Terms: []string{"deltasone"}},
	{Code: "723", Display: "amoxicillin", Terms: []string{"amoxil"}},
	{Code: "161", Display: "acetaminophen", Terms: []string{"tylenol", "paracetamol", "apap"}},
	{Code: "5640", Display: "ibuprofen", Terms: []string{"advil", "motrin"}},
})

// DrugAllergens maps drug allergen names to RxNorm.
var DrugAllergens = newTable(fhir.SystemRxNorm, []Concept{
	{Code: "70618", Display: "penicillin", Terms: []string{"penicillins", "pcn", "penicillin g"}},
	{Code: "2670", Display: "codeine"},
	{Code: "7052", Display: "morphine"},
	{Code: "10180", Display: "sulfamethoxazole", Terms: []string{"sulfa", "sulfa drugs", "bactrim"}},
	{Code: "723", Display: "amoxicillin"},
	{Code: "1191", Display: "aspirin", Terms: []string{"asa"}},
	{Code: "5640", Display: "ibuprofen"},
})

// SubstanceAllergens maps food and environmental allergens to SNOMED CT.
var SubstanceAllergens = newTable(fhir.SystemSNOMED, []Concept{
	{Code: "256349002", Display: "Peanut - dietary", Terms: []string{"peanut", "peanuts"}},
	{Code: "111088007", Display: "Latex", Terms: []string{"latex", "natural rubber latex"}},
	{Code: "102263004", Display: "Eggs (edible)", Terms: []string{"egg", "eggs"}},
	{Code: "3718001", Display: "Cow's milk", Terms: []string{"milk", "dairy", "cow milk"}},
	{Code: "288328004", Display: "Bee venom", Terms: []string{"bee venom", "bee sting", "bees"}},
})

// Procedures maps procedure names to SNOMED CT.
var Procedures = newTable(fhir.SystemSNOMED, []Concept{
	{Code: "80146002", Display: "Appendectomy", Terms: []string{"appendectomy", "appendicectomy"}},
	{Code: "38102005", Display: "Cholecystectomy", Terms: []string{"cholecystectomy", "gallbladder removal", "lap chole"}},
	{Code: "73761001", Display: "Colonoscopy", Terms: []string{"colonoscopy"}},
	{Code: "609588000", Display: "Total knee replacement", Terms: []string{"total knee replacement", "tkr", "knee replacement", "total knee arthroplasty"}},
	{Code: "232717009", Display: "Coronary artery bypass grafting", Terms: []string{"cabg", "coronary artery bypass", "bypass surgery"}},
	{Code: "11466000", Display: "Cesarean section", Terms: []string{"c-section", "cesarean", "caesarean section"}},
	{Code: "173422009", Display: "Tonsillectomy", Terms: []string{"tonsillectomy"}},
	{Code: "29303009", Display: "Electrocardiographic procedure", Terms: []string{"ecg", "ekg", "electrocardiogram"}},
	{Code: "52734007", Display: "Total replacement of hip", Terms: []string{"hip replacement", "total hip replacement", "tha", "total hip arthroplasty"}},
})

// Specialties maps practitioner specialties to the NUCC provider taxonomy.
var Specialties = newTable(fhir.SystemNUCC, []Concept{
	{Code: "207Q00000X", Display: "Family Medicine", Terms: []string{"family medicine", "family practice", "fp"}},
	{Code: "207R00000X", Display: "Internal Medicine", Terms: []string{"internal medicine", "internist", "im"}},
	{Code: "207RC0000X", Display: "Cardiovascular Disease", Terms: []string{"cardiology", "cardiologist"}},
	{Code: "208000000X", Display: "Pediatrics", Terms: []string{"pediatrics", "pediatrician"}},
	{Code: "207P00000X", Display: "Emergency Medicine", Terms: []string{"emergency medicine", "er physician"}},
	{Code: "2084P0800X", Display: "Psychiatry", Terms: []string{"psychiatry", "psychiatrist"}},
	{Code: "207N00000X", Display: "Dermatology", Terms: []string{"dermatology", "dermatologist"}},
	{Code: "207X00000X", Display: "Orthopaedic Surgery", Terms: []string{"orthopedics", "orthopedic surgery", "orthopaedic surgery", "orthopedist"}},
	{Code: "207V00000X", Display: "Obstetrics & Gynecology", Terms: []string{"obstetrics and gynecology", "ob/gyn", "obgyn", "gynecology"}},
	{Code: "2084N0400X", Display: "Neurology", Terms: []string{"neurology", "neurologist"}},
	{Code: "363L00000X", Display: "Nurse Practitioner", Terms: []string{"nurse practitioner", "np"}},
	{Code: "208600000X", Display: "Surgery", Terms: []string{"general surgery", "surgery", "surgeon"}},
})

// EncounterClasses maps encounter settings to v3 ActCode.
var EncounterClasses = newTable(fhir.SystemActCode, []Concept{
	{Code: "AMB", Display: "ambulatory", Terms: []string{"outpatient", "office visit", "clinic", "office", "ambulatory"}},
	{Code: "EMER", Display: "emergency", Terms: []string{"emergency", "er", "ed", "emergency department", "emergency room"}},
	{Code: "IMP", Display: "inpatient encounter", Terms: []string{"inpatient", "admission", "hospitalization", "hospital"}},
	{Code: "VR", Display: "virtual", Terms: []string{"telehealth", "telemedicine", "virtual", "video visit"}},
	{Code: "HH", Display: "home health", Terms: []string{"home health", "home visit"}},
})

// Reports maps diagnostic report names to LOINC panel codes.
var Reports = newTable(fhir.SystemLOINC, []Concept{
	{Code: "58410-2", Display: "CBC panel - Blood by Automated count", Terms: []string{"cbc", "complete blood count"}},
	{Code: "51990-0", Display: "Basic metabolic panel - Blood", Terms: []string{"bmp", "basic metabolic panel", "chem 7"}},
	{Code: "24323-8", Display: "Comprehensive metabolic 2000 panel - Serum or Plasma", Terms: []string{"cmp", "comprehensive metabolic panel", "chem 14"}},
	{Code: "57698-3", Display: "Lipid panel with direct LDL - Serum or Plasma", Terms: []string{"lipid panel", "lipid profile", "lipids"}},
	{Code: "24325-3", Display: "Hepatic function 2000 panel - Serum or Plasma", Terms: []string{"hepatic function panel", "liver function tests", "lft", "lfts"}},
	{Code: "24356-8", Display: "Urinalysis complete panel - Urine", Terms: []string{"urinalysis", "ua"}},
	{Code: "36643-5", Display: "XR Chest 2 Views", Terms: []string{"chest x-ray", "chest xray", "cxr", "chest radiograph"}},
})

// Orders maps orderable services to LOINC. Lab panels and single tests are
// both orderable.
var Orders = newTable(fhir.SystemLOINC, append(append(
	concepts(Reports),
	concepts(LabTests)...),
	Concept{Code: "24725-4", Display: "CT Head", Terms: []string{"ct head", "head ct", "ct brain"}},
	Concept{Code: "24590-2", Display: "MR Brain", Terms: []string{"mri brain", "brain mri", "mr brain"}},
))

// OrganizationTypes maps organization kinds to the HL7 organization-type system.
var OrganizationTypes = newTable(fhir.SystemOrgType, []Concept{
	{Code: "prov", Display: "Healthcare Provider", Terms: []string{"provider", "clinic", "hospital", "practice", "healthcare provider"}},
	{Code: "dept", Display: "Hospital Department", Terms: []string{"department", "hospital department"}},
	{Code: "ins", Display: "Insurance Company", Terms: []string{"insurance", "insurer", "insurance company"}},
	{Code: "pay", Display: "Payer", Terms: []string{"payer", "payor"}},
	{Code: "govt", Display: "Government", Terms: []string{"government", "public health", "agency"}},
})

// CarePlanCategories maps care plan categories to US Core.
var CarePlanCategories = newTable(fhir.SystemCarePlanCat, []Concept{
	{Code: "assess-plan", Display: "Assessment and Plan of Treatment", Terms: []string{"assessment and plan", "plan of care", "treatment plan", "care plan", "a/p"}},
})

func concepts(t *Table) []Concept {
	out := make([]Concept, 0, len(t.byCode))
	for _, c := range t.byCode {
		out = append(out, c)
	}
	return out
}
