package calculator

import (
	"sort"

	"github.com/mmynk/splitledger/internal/models"
)

// MemberBalance represents the balance information for one group member.
type MemberBalance struct {
	UserID     string  `json:"userId"`
	NetBalance float64 `json:"netBalance"` // Positive = owed money, Negative = owes money
	TotalPaid  float64 `json:"totalPaid"`  // Outstanding amount others owe this member
	TotalOwed  float64 `json:"totalOwed"`  // Outstanding amount this member owes
}

// DebtEdge represents a debt from one person to another.
type DebtEdge struct {
	From   string  `json:"from"` // Person who owes
	To     string  `json:"to"`   // Person who is owed
	Amount float64 `json:"amount"`
}

// CalculateGroupBalances computes outstanding balances across a group's expenses.
//
// Algorithm:
//   - For each expense: every unpaid, non-deleted participant other than the
//     payer owes the payer its share
//   - Paid shares are already settled and do not count
//   - Aggregate: net_balance = total_paid - total_owed
//   - Debt matrix: simplified using greedy matching, largest amounts first
func CalculateGroupBalances(expenses []models.Expense) ([]MemberBalance, []DebtEdge) {
	balances := make(map[string]*MemberBalance)
	get := func(id string) *MemberBalance {
		if _, exists := balances[id]; !exists {
			balances[id] = &MemberBalance{UserID: id}
		}
		return balances[id]
	}

	for _, expense := range expenses {
		// Skip expenses without payer (can't calculate balances)
		if expense.PaidBy == "" {
			continue
		}
		for _, p := range expense.Participants {
			if p.IsDeleted || p.Paid || p.UserID == expense.PaidBy {
				continue
			}
			get(expense.PaidBy).TotalPaid += p.AmountOwed
			get(p.UserID).TotalOwed += p.AmountOwed
		}
	}

	memberBalances := make([]MemberBalance, 0, len(balances))
	var creditors, debtors []MemberBalance
	for _, bal := range balances {
		bal.NetBalance = bal.TotalPaid - bal.TotalOwed
		memberBalances = append(memberBalances, *bal)
		if bal.NetBalance > 0.005 {
			creditors = append(creditors, *bal)
		} else if bal.NetBalance < -0.005 {
			debtors = append(debtors, *bal)
		}
	}

	sort.Slice(memberBalances, func(i, j int) bool {
		return memberBalances[i].UserID < memberBalances[j].UserID
	})
	sort.Slice(creditors, func(i, j int) bool {
		if creditors[i].NetBalance != creditors[j].NetBalance {
			return creditors[i].NetBalance > creditors[j].NetBalance
		}
		return creditors[i].UserID < creditors[j].UserID
	})
	sort.Slice(debtors, func(i, j int) bool {
		if debtors[i].NetBalance != debtors[j].NetBalance {
			return debtors[i].NetBalance < debtors[j].NetBalance
		}
		return debtors[i].UserID < debtors[j].UserID
	})

	// Match debtors with creditors to minimize transactions
	var debtEdges []DebtEdge
	i, j := 0, 0
	debtorBalance := make(map[string]float64)
	creditorBalance := make(map[string]float64)

	for _, debtor := range debtors {
		debtorBalance[debtor.UserID] = -debtor.NetBalance // Make positive
	}
	for _, creditor := range creditors {
		creditorBalance[creditor.UserID] = creditor.NetBalance
	}

	for i < len(debtors) && j < len(creditors) {
		debtor := debtors[i].UserID
		creditor := creditors[j].UserID

		// Amount to settle is minimum of what debtor owes and creditor is owed
		amount := debtorBalance[debtor]
		if creditorBalance[creditor] < amount {
			amount = creditorBalance[creditor]
		}

		if amount > 0.01 { // Avoid floating point noise
			debtEdges = append(debtEdges, DebtEdge{
				From:   debtor,
				To:     creditor,
				Amount: amount,
			})
		}

		debtorBalance[debtor] -= amount
		creditorBalance[creditor] -= amount

		// Move to next debtor/creditor if fully settled
		if debtorBalance[debtor] < 0.01 {
			i++
		}
		if creditorBalance[creditor] < 0.01 {
			j++
		}
	}

	return memberBalances, debtEdges
}
