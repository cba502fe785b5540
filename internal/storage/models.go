package storage

// Row types returned by Queries. Dates travel as "2006-01-02" strings at
// this layer; the repository converts to and from core types.

type Category struct {
	ID   int64
	Name string
}

type Contact struct {
	ID       int64
	Name     string
	Document string
}

type Bank struct {
	ID   int64
	Name string
	Code string
}

type PayableEntryRow struct {
	ID           int64
	CreditorID   int64
	CategoryID   int64
	Description  string
	DocumentRef  string
	DueDate      string
	EmissionDate string
	AmountCents  int64
	Dda          int64
	PaymentKind  string
	BankID       int64
	ChequeNumber string
	BatchID      string
}

type BatchRow struct {
	ID        string
	SessionID string
	Total     int64
	Completed int64
	Status    string
}

type BatchOutcomeRow struct {
	BatchID  string
	Sequence int64
	Created  int64
	RecordID int64
	Reason   string
}
