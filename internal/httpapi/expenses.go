package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mmynk/splitledger/internal/apperr"
	"github.com/mmynk/splitledger/internal/middleware"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/service"
)

type expenseRequest struct {
	Description    *string                            `json:"description"`
	Type           *string                            `json:"type"`
	TotalAmount    *float64                           `json:"totalAmount"`
	PaidBy         *string                            `json:"paidBy"`
	SplitType      *string                            `json:"splitType"`
	Date           flexTime                           `json:"date"`
	Participants   flexList[service.ParticipantInput] `json:"participants"`
	ImagesToRemove flexList[string]                   `json:"imagesToRemove"`
}

type participantFlagRequest struct {
	ParticipantID string `json:"participantId"`
	Paid          *bool  `json:"paid"`
	IsDeleted     *bool  `json:"isDeleted"`
}

type reminderResponse struct {
	Notified int `json:"notified"`
}

// expenseNumericFields are the multipart fields decoded as numbers.
var expenseNumericFields = []string{"totalAmount"}

func (req expenseRequest) input() service.ExpenseInput {
	in := service.ExpenseInput{Participants: req.Participants.Items}
	if req.Description != nil {
		in.Description = *req.Description
	}
	if req.Type != nil {
		in.Type = models.ExpenseType(*req.Type)
	}
	if req.TotalAmount != nil {
		in.TotalAmount = *req.TotalAmount
	}
	if req.PaidBy != nil {
		in.PaidBy = *req.PaidBy
	}
	if req.SplitType != nil {
		in.SplitType = models.SplitType(*req.SplitType)
	}
	if req.Date.Set {
		in.Date = req.Date.Unix
	}
	return in
}

func (req expenseRequest) update() service.ExpenseUpdate {
	u := service.ExpenseUpdate{
		Description:    req.Description,
		TotalAmount:    req.TotalAmount,
		PaidBy:         req.PaidBy,
		ImagesToRemove: req.ImagesToRemove.Items,
	}
	if req.Type != nil {
		t := models.ExpenseType(*req.Type)
		u.Type = &t
	}
	if req.SplitType != nil {
		s := models.SplitType(*req.SplitType)
		u.SplitType = &s
	}
	if req.Date.Set {
		u.Date = &req.Date.Unix
	}
	if req.Participants.Set {
		u.Participants = req.Participants.Items
		if u.Participants == nil {
			u.Participants = []service.ParticipantInput{}
		}
	}
	return u
}

// AddExpense records an expense in a group.
func AddExpense(ledger *service.LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req expenseRequest
		if err := decodeBody(w, r, &req, expenseNumericFields...); err != nil {
			WriteError(w, r, err)
			return
		}
		images, closeFiles, err := formFiles(r)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		defer closeFiles()

		res, err := ledger.AddExpense(r.Context(), mux.Vars(r)["groupId"], req.input(), images)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeOK(w, http.StatusCreated, "expense added", res)
	}
}

// UpdateExpense changes the provided expense fields and images.
func UpdateExpense(ledger *service.LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req expenseRequest
		if err := decodeBody(w, r, &req, expenseNumericFields...); err != nil {
			WriteError(w, r, err)
			return
		}
		images, closeFiles, err := formFiles(r)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		defer closeFiles()

		vars := mux.Vars(r)
		res, err := ledger.UpdateExpense(r.Context(), vars["groupId"], vars["expenseId"], req.update(), images, middleware.GetUserID(r.Context()))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "expense updated", res)
	}
}

// DeleteExpense removes an expense.
func DeleteExpense(ledger *service.LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		group, err := ledger.DeleteExpense(r.Context(), vars["groupId"], vars["expenseId"])
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "expense deleted", group)
	}
}

// AddParticipant adds one participant to an expense.
func AddParticipant(ledger *service.LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.ParticipantInput
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, r, err)
			return
		}

		vars := mux.Vars(r)
		res, err := ledger.AddParticipant(r.Context(), vars["groupId"], vars["expenseId"], req)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "participant added", res)
	}
}

// UpdateParticipantPaid sets a participant's paid flag.
func UpdateParticipantPaid(ledger *service.LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req participantFlagRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, r, err)
			return
		}
		if req.Paid == nil {
			WriteError(w, r, apperr.Validation("paid is required"))
			return
		}

		vars := mux.Vars(r)
		res, err := ledger.UpdateParticipantPaid(r.Context(), vars["groupId"], vars["expenseId"], req.ParticipantID, *req.Paid)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "participant updated", res)
	}
}

// SoftDeleteParticipant flags a participant as deleted. An explicit
// isDeleted=false restores it.
func SoftDeleteParticipant(ledger *service.LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req participantFlagRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, r, err)
			return
		}
		isDeleted := true
		if req.IsDeleted != nil {
			isDeleted = *req.IsDeleted
		}

		vars := mux.Vars(r)
		res, err := ledger.SoftDeleteParticipant(r.Context(), vars["groupId"], vars["expenseId"], req.ParticipantID, isDeleted)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "participant updated", res)
	}
}

// FindExpense returns one expense with its group ID.
func FindExpense(ledger *service.LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		expense, err := ledger.FindByID(r.Context(), vars["expenseId"])
		if err != nil {
			WriteError(w, r, err)
			return
		}
		if expense.GroupID != vars["groupId"] {
			WriteError(w, r, apperr.NotFound("expense", vars["expenseId"]))
			return
		}
		writeOK(w, http.StatusOK, "expense found", expense)
	}
}

// SendReminder sends payment reminders and reports how many were due.
func SendReminder(ledger *service.LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		count, err := ledger.SendReminder(r.Context(), vars["groupId"], vars["expenseId"])
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "reminder sent", reminderResponse{Notified: count})
	}
}
