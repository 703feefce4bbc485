package normalize

// Record is the canonical case record produced from one provider-format
// source record. ID is the only mandatory field; empty strings load as NULL.
type Record struct {
	ID           string
	Title        string
	Citation     string
	Court        string
	DecisionDate string
	Jurisdiction string
	Reporter     string
	CaseType     string
	RawPath      string // member path the record came from
	FullText     bool   // source carried a case body / plain text
}
