package models

// ExpenseType categorizes an expense.
type ExpenseType string

const (
	ExpenseTypeFood      ExpenseType = "Alimentación"
	ExpenseTypeTransport ExpenseType = "Transporte"
	ExpenseTypeServices  ExpenseType = "Servicios"
	ExpenseTypeLeisure   ExpenseType = "Ocio"
	ExpenseTypeOther     ExpenseType = "Otros"
)

// Valid reports whether t is one of the known expense types.
func (t ExpenseType) Valid() bool {
	switch t {
	case ExpenseTypeFood, ExpenseTypeTransport, ExpenseTypeServices, ExpenseTypeLeisure, ExpenseTypeOther:
		return true
	}
	return false
}

// SplitType is the policy for dividing an expense among participants.
type SplitType string

const (
	// SplitEqual divides the total evenly; owed amounts are recomputed server side.
	SplitEqual SplitType = "Partes iguales"
	// SplitUnequal keeps the per-participant amounts supplied by the client.
	SplitUnequal SplitType = "Partes desiguales"
	// SplitPercentage derives amounts from per-participant percentages.
	SplitPercentage SplitType = "Porcentaje"
)

// Valid reports whether t is one of the known split types.
func (t SplitType) Valid() bool {
	switch t {
	case SplitEqual, SplitUnequal, SplitPercentage:
		return true
	}
	return false
}

// Expense is a single spending event embedded in a Group.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string `json:"id" bson:"id"`

	Description string      `json:"description" bson:"description"`
	Type        ExpenseType `json:"type" bson:"type"`

	// TotalAmount is the full amount paid.
	TotalAmount float64 `json:"totalAmount" bson:"total_amount"`

	// PaidBy is the user ID of the payer.
	PaidBy string `json:"paidBy" bson:"paid_by"`

	SplitType    SplitType     `json:"splitType" bson:"split_type"`
	Participants []Participant `json:"participants" bson:"participants"`
	Images       []Image       `json:"images" bson:"images"`

	// Date is the Unix timestamp of the expense.
	Date int64 `json:"date" bson:"date"`
}

// Participant is a user's stake in one expense.
type Participant struct {
	// ID is the unique identifier of this participant record (UUID format).
	ID string `json:"id" bson:"id"`

	UserID     string  `json:"userId" bson:"user_id"`
	AmountOwed float64 `json:"amountOwed" bson:"amount_owed"`

	// Percentage is only meaningful for percentage splits.
	Percentage float64 `json:"percentage,omitempty" bson:"percentage,omitempty"`

	Paid      bool `json:"paid" bson:"paid"`
	IsDeleted bool `json:"isDeleted" bson:"is_deleted"`
}

// Image is a receipt or group picture kept in the external image store.
type Image struct {
	// PublicID is the key of the blob in the image store.
	PublicID string `json:"publicId" bson:"public_id"`
	URL      string `json:"url" bson:"url"`
}

// FindParticipant resolves a participant by record ID or by user ID.
func (e *Expense) FindParticipant(id string) *Participant {
	for i := range e.Participants {
		if e.Participants[i].ID == id {
			return &e.Participants[i]
		}
	}
	for i := range e.Participants {
		if e.Participants[i].UserID == id {
			return &e.Participants[i]
		}
	}
	return nil
}

// RemoveImages drops the images whose public IDs are listed and returns them.
func (e *Expense) RemoveImages(publicIDs []string) []Image {
	if len(publicIDs) == 0 {
		return nil
	}
	drop := make(map[string]bool, len(publicIDs))
	for _, id := range publicIDs {
		drop[id] = true
	}
	var removed []Image
	kept := e.Images[:0]
	for _, img := range e.Images {
		if drop[img.PublicID] {
			removed = append(removed, img)
			continue
		}
		kept = append(kept, img)
	}
	e.Images = kept
	return removed
}
