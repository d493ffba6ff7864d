package models

// UserRef is the display form of a user reference: enough to render a name
// without exposing credentials or contacts.
type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// GroupView is a Group with every user reference resolved.
type GroupView struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Type        GroupType     `json:"type"`
	Image       *Image        `json:"image,omitempty"`
	CreatedBy   UserRef       `json:"createdBy"`
	Members     []MemberView  `json:"members"`
	Expenses    []ExpenseView `json:"expenses"`
	CreatedAt   int64         `json:"createdAt"`
	UpdatedAt   int64         `json:"updatedAt"`
}

// MemberView is a Member with its user resolved.
type MemberView struct {
	User      UserRef `json:"user"`
	IsDeleted bool    `json:"isDeleted"`
}

// ExpenseView is an Expense with payer and participants resolved.
type ExpenseView struct {
	ID           string            `json:"id"`
	GroupID      string            `json:"groupId,omitempty"`
	Description  string            `json:"description"`
	Type         ExpenseType       `json:"type"`
	TotalAmount  float64           `json:"totalAmount"`
	PaidBy       UserRef           `json:"paidBy"`
	SplitType    SplitType         `json:"splitType"`
	Participants []ParticipantView `json:"participants"`
	Images       []Image           `json:"images"`
	Date         int64             `json:"date"`
}

// ParticipantView is a Participant with its user resolved.
type ParticipantView struct {
	ID         string  `json:"id"`
	User       UserRef `json:"user"`
	AmountOwed float64 `json:"amountOwed"`
	Percentage float64 `json:"percentage,omitempty"`
	Paid       bool    `json:"paid"`
	IsDeleted  bool    `json:"isDeleted"`
}

// RefResolver maps a user ID to its display reference.
// Unknown IDs resolve to a bare reference carrying only the ID.
type RefResolver func(userID string) UserRef

// NewRefResolver builds a RefResolver over a set of loaded users.
func NewRefResolver(users map[string]*User) RefResolver {
	return func(userID string) UserRef {
		if u, ok := users[userID]; ok && u != nil {
			return u.Ref()
		}
		return UserRef{ID: userID}
	}
}

// View resolves the group's user references.
func (g *Group) View(resolve RefResolver) GroupView {
	v := GroupView{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		Type:        g.Type,
		Image:       g.Image,
		CreatedBy:   resolve(g.CreatedBy),
		Members:     make([]MemberView, len(g.Members)),
		Expenses:    make([]ExpenseView, len(g.Expenses)),
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
	for i, m := range g.Members {
		v.Members[i] = MemberView{User: resolve(m.UserID), IsDeleted: m.IsDeleted}
	}
	for i := range g.Expenses {
		v.Expenses[i] = g.Expenses[i].View(resolve)
	}
	return v
}

// View resolves the expense's user references.
func (e *Expense) View(resolve RefResolver) ExpenseView {
	v := ExpenseView{
		ID:           e.ID,
		Description:  e.Description,
		Type:         e.Type,
		TotalAmount:  e.TotalAmount,
		PaidBy:       resolve(e.PaidBy),
		SplitType:    e.SplitType,
		Participants: make([]ParticipantView, len(e.Participants)),
		Images:       e.Images,
		Date:         e.Date,
	}
	if v.Images == nil {
		v.Images = []Image{}
	}
	for i, p := range e.Participants {
		v.Participants[i] = ParticipantView{
			ID:         p.ID,
			User:       resolve(p.UserID),
			AmountOwed: p.AmountOwed,
			Percentage: p.Percentage,
			Paid:       p.Paid,
			IsDeleted:  p.IsDeleted,
		}
	}
	return v
}
