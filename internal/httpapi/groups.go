package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mmynk/splitledger/internal/apperr"
	"github.com/mmynk/splitledger/internal/media"
	"github.com/mmynk/splitledger/internal/middleware"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/service"
)

type groupRequest struct {
	Name        *string          `json:"name"`
	Type        *string          `json:"type"`
	Description *string          `json:"description"`
	Members     flexList[string] `json:"members"`
}

type memberRequest struct {
	UserID   string `json:"userId"`
	MemberID string `json:"memberId"`
}

// groupImage returns the single uploaded group image, if any.
func groupImage(r *http.Request) (*media.File, func(), error) {
	files, closeFiles, err := formFiles(r)
	if err != nil {
		return nil, closeFiles, err
	}
	switch len(files) {
	case 0:
		return nil, closeFiles, nil
	case 1:
		return &files[0], closeFiles, nil
	default:
		closeFiles()
		return nil, func() {}, apperr.Validation("at most %d images allowed", media.MaxGroupImages)
	}
}

// CreateGroup creates a group owned by the caller.
func CreateGroup(groups *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req groupRequest
		if err := decodeBody(w, r, &req); err != nil {
			WriteError(w, r, err)
			return
		}
		image, closeFiles, err := groupImage(r)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		defer closeFiles()

		in := service.GroupInput{MemberIDs: req.Members.Items}
		if req.Name != nil {
			in.Name = *req.Name
		}
		if req.Type != nil {
			in.Type = models.GroupType(*req.Type)
		}
		if req.Description != nil {
			in.Description = *req.Description
		}

		group, err := groups.Create(r.Context(), middleware.GetUserID(r.Context()), in, image)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeOK(w, http.StatusCreated, "group created", group)
	}
}

// ListGroups returns the caller's groups.
func ListGroups(groups *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := groups.ListForUser(r.Context(), middleware.GetUserID(r.Context()))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "groups found", list)
	}
}

// GetGroup returns one group.
func GetGroup(groups *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group, err := groups.Get(r.Context(), mux.Vars(r)["groupId"])
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "group found", group)
	}
}

// EditGroup updates the provided group fields.
func EditGroup(groups *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req groupRequest
		if err := decodeBody(w, r, &req); err != nil {
			WriteError(w, r, err)
			return
		}
		image, closeFiles, err := groupImage(r)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		defer closeFiles()

		update := service.GroupUpdate{
			Name:        req.Name,
			Description: req.Description,
			Image:       image,
		}
		if req.Type != nil {
			t := models.GroupType(*req.Type)
			update.Type = &t
		}

		group, err := groups.Edit(r.Context(), mux.Vars(r)["groupId"], update)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "group updated", group)
	}
}

// DeleteGroup deletes a group. Only its creator may do so.
func DeleteGroup(groups *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := groups.Delete(r.Context(), mux.Vars(r)["groupId"], middleware.GetUserID(r.Context()))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "group deleted", nil)
	}
}

// GroupBalances returns the outstanding balances of a group.
func GroupBalances(groups *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		balances, err := groups.Balances(r.Context(), mux.Vars(r)["groupId"])
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "balances computed", balances)
	}
}

// ListMembers returns a group's member list.
func ListMembers(groups *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		members, err := groups.ListMembers(r.Context(), mux.Vars(r)["groupId"])
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "members found", members)
	}
}

// AddMember adds a user to a group.
func AddMember(groups *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req memberRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, r, err)
			return
		}

		group, err := groups.AddMember(r.Context(), mux.Vars(r)["groupId"], req.UserID)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "member added", group)
	}
}

// RemoveMember removes or soft-deletes a member.
func RemoveMember(groups *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req memberRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, r, err)
			return
		}

		group, err := groups.RemoveMember(r.Context(), mux.Vars(r)["groupId"], req.MemberID)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "member removed", group)
	}
}
