// Package e2e provides end-to-end tests that run uploads, questions and consults through the
// full pipeline with a deterministic embedder and a scripted language model.
package e2e

import "strings"

// CorpusDocument is one uploadable clinical note.
type CorpusDocument struct {
	Filename string
	Phrase   string
	Content  string
}

// QueryTestCase is a question and the file(s) whose chunks must appear among the sources.
type QueryTestCase struct {
	Question      string
	ExpectedFiles []string
	Description   string
}

// Corpus holds documents and question test cases.
type Corpus struct {
	Documents    []CorpusDocument
	TestCases    []QueryTestCase
	TotalDocs    int
	TotalQueries int
}

// BuildCorpus returns one clinical note per topic. Each note carries a signature phrase so
// questions can assert the right note is retrieved.
func BuildCorpus() *Corpus {
	docs := buildDocuments()
	cases := buildQueryTestCases(docs)
	return &Corpus{
		Documents:    docs,
		TestCases:    cases,
		TotalDocs:    len(docs),
		TotalQueries: len(cases),
	}
}

func buildDocuments() []CorpusDocument {
	topics := []struct {
		name    string
		phrase  string
		content string
	}{
		{"asthma", "asthma inhaler salbutamol", "Patient with asthma uses a salbutamol inhaler. Asthma inhaler salbutamol relieves wheeze within minutes."},
		{"diabetes", "type 2 diabetes metformin", "Patient diagnosed with type 2 diabetes. Type 2 diabetes metformin therapy lowers glucose."},
		{"hypertension", "hypertension amlodipine dose", "Patient has stage 1 hypertension. Hypertension amlodipine dose is 5 mg daily."},
		{"migraine", "migraine aura triptan", "Patient reports migraine with visual aura. Migraine aura triptan taken at onset aborts attacks."},
		{"gout", "gout flare colchicine", "Patient presented with a gout flare in the big toe. Gout flare colchicine started the same day."},
		{"anemia", "iron deficiency anemia ferritin", "Blood test shows low hemoglobin. Iron deficiency anemia ferritin level was 8."},
		{"thyroid", "hypothyroidism levothyroxine TSH", "Patient tired with raised TSH. Hypothyroidism levothyroxine TSH recheck in six weeks."},
		{"pneumonia", "community acquired pneumonia amoxicillin", "Chest xray shows lobar consolidation. Community acquired pneumonia amoxicillin for five days."},
		{"uti", "urinary tract infection nitrofurantoin", "Patient has dysuria and frequency. Urinary tract infection nitrofurantoin prescription given."},
		{"eczema", "atopic eczema emollient", "Child patient with dry itchy skin. Atopic eczema emollient applied twice daily."},
		{"reflux", "gastro oesophageal reflux omeprazole", "Patient has heartburn after meals. Gastro oesophageal reflux omeprazole trial for eight weeks."},
		{"kidney", "chronic kidney disease eGFR", "Report shows declining renal function. Chronic kidney disease eGFR stage 3a."},
		{"fracture", "distal radius fracture cast", "Patient fell on an outstretched hand. Distal radius fracture cast for six weeks."},
		{"depression", "major depression sertraline", "Patient reports low mood for months. Major depression sertraline 50 mg started."},
		{"epilepsy", "focal epilepsy lamotrigine", "Patient had two unprovoked seizures. Focal epilepsy lamotrigine titration plan."},
		{"copd", "copd exacerbation prednisolone", "Patient with smoking history and breathlessness. COPD exacerbation prednisolone course."},
		{"atrial", "atrial fibrillation anticoagulation", "ECG test shows irregular rhythm. Atrial fibrillation anticoagulation with apixaban."},
		{"sinusitis", "acute sinusitis nasal steroid", "Patient with facial pain and congestion. Acute sinusitis nasal steroid spray advised."},
		{"psoriasis", "plaque psoriasis topical calcipotriol", "Patient has scaly plaques on elbows. Plaque psoriasis topical calcipotriol ointment."},
		{"lyme", "lyme disease doxycycline", "Patient with erythema migrans after a tick bite. Lyme disease doxycycline for three weeks."},
		{"osteoporosis", "osteoporosis bisphosphonate alendronate", "DEXA scan shows low bone density. Osteoporosis bisphosphonate alendronate weekly."},
		{"glaucoma", "open angle glaucoma latanoprost", "Raised eye pressure found at the clinic. Open angle glaucoma latanoprost drops nightly."},
		{"sciatica", "lumbar sciatica physiotherapy", "Patient with leg pain radiating below the knee. Lumbar sciatica physiotherapy referral."},
		{"tonsillitis", "bacterial tonsillitis penicillin", "Patient with fever and tonsillar exudate. Bacterial tonsillitis penicillin V for ten days."},
		{"vertigo", "benign positional vertigo Epley", "Patient has brief spinning with head turns. Benign positional vertigo Epley manoeuvre performed."},
	}
	docs := make([]CorpusDocument, 0, len(topics))
	for _, tp := range topics {
		docs = append(docs, CorpusDocument{
			Filename: tp.name + "-note.txt",
			Phrase:   tp.phrase,
			Content:  tp.content,
		})
	}
	return docs
}

func buildQueryTestCases(docs []CorpusDocument) []QueryTestCase {
	cases := make([]QueryTestCase, 0, len(docs))
	for _, d := range docs {
		cases = append(cases, QueryTestCase{
			Question:      "What was documented about " + d.Phrase + "?",
			ExpectedFiles: []string{d.Filename},
			Description:   strings.TrimSuffix(d.Filename, ".txt"),
		})
	}
	return cases
}
