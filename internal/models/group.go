package models

// GroupType classifies a group.
type GroupType string

const (
	GroupTypeHome   GroupType = "Hogar"
	GroupTypeTrip   GroupType = "Viaje"
	GroupTypeWork   GroupType = "Trabajo"
	GroupTypeCouple GroupType = "Pareja"
	GroupTypeOther  GroupType = "Otros"
)

// Valid reports whether t is one of the known group types.
func (t GroupType) Valid() bool {
	switch t {
	case GroupTypeHome, GroupTypeTrip, GroupTypeWork, GroupTypeCouple, GroupTypeOther:
		return true
	}
	return false
}

// Group is a named collection of users sharing expenses.
// It is persisted as one document embedding its members and expenses.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string `json:"id" bson:"_id"`

	// Name is the display name of the group (e.g., "Roommates", "Trip").
	Name string `json:"name" bson:"name"`

	Description string    `json:"description" bson:"description"`
	Type        GroupType `json:"type" bson:"type"`

	// Image is the optional group picture.
	Image *Image `json:"image,omitempty" bson:"image,omitempty"`

	// CreatedBy is the user ID of the creator, the only user allowed to delete the group.
	CreatedBy string `json:"createdBy" bson:"created_by"`

	Members  []Member  `json:"members" bson:"members"`
	Expenses []Expense `json:"expenses" bson:"expenses"`

	// Version is incremented on every successful save and used for
	// compare-and-swap writes.
	Version int64 `json:"version" bson:"version"`

	CreatedAt int64 `json:"createdAt" bson:"created_at"`
	UpdatedAt int64 `json:"updatedAt" bson:"updated_at"`
}

// Member is a user's relationship to a group.
type Member struct {
	UserID    string `json:"userId" bson:"user_id"`
	IsDeleted bool   `json:"isDeleted" bson:"is_deleted"`
}

// FindMember returns the member entry for userID, regardless of soft-delete state.
func (g *Group) FindMember(userID string) *Member {
	for i := range g.Members {
		if g.Members[i].UserID == userID {
			return &g.Members[i]
		}
	}
	return nil
}

// IsActiveMember reports whether userID is a member that is not soft-deleted.
func (g *Group) IsActiveMember(userID string) bool {
	m := g.FindMember(userID)
	return m != nil && !m.IsDeleted
}

// EnsureMember makes userID an active member: it reactivates a soft-deleted
// entry or appends a new one. It returns true if the group changed.
func (g *Group) EnsureMember(userID string) bool {
	if m := g.FindMember(userID); m != nil {
		if !m.IsDeleted {
			return false
		}
		m.IsDeleted = false
		return true
	}
	g.Members = append(g.Members, Member{UserID: userID})
	return true
}

// RemoveMemberEntry drops the member entry for userID from the list.
func (g *Group) RemoveMemberEntry(userID string) {
	kept := g.Members[:0]
	for _, m := range g.Members {
		if m.UserID != userID {
			kept = append(kept, m)
		}
	}
	g.Members = kept
}

// FindExpense returns the embedded expense with the given ID.
func (g *Group) FindExpense(expenseID string) *Expense {
	for i := range g.Expenses {
		if g.Expenses[i].ID == expenseID {
			return &g.Expenses[i]
		}
	}
	return nil
}

// RemoveExpense drops the expense with the given ID and returns it.
func (g *Group) RemoveExpense(expenseID string) (Expense, bool) {
	for i, e := range g.Expenses {
		if e.ID == expenseID {
			g.Expenses = append(g.Expenses[:i], g.Expenses[i+1:]...)
			return e, true
		}
	}
	return Expense{}, false
}

// ShouldHardDelete reports whether a member can be removed outright.
// A member with any non-deleted participant record in any expense must be
// soft-deleted instead so past expenses keep a valid reference.
func ShouldHardDelete(userID string, expenses []Expense) bool {
	for _, e := range expenses {
		for _, p := range e.Participants {
			if p.UserID == userID && !p.IsDeleted {
				return false
			}
		}
	}
	return true
}

// UserIDs returns every user ID referenced by the group, without duplicates.
func (g *Group) UserIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	add(g.CreatedBy)
	for _, m := range g.Members {
		add(m.UserID)
	}
	for _, e := range g.Expenses {
		add(e.PaidBy)
		for _, p := range e.Participants {
			add(p.UserID)
		}
	}
	return ids
}
