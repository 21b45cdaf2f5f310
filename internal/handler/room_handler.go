package handler

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"moviechat/internal/app/chat"
	"moviechat/internal/app/db"
	"moviechat/internal/pkg/auth/jwt"
	"moviechat/internal/pkg/errs"
	"moviechat/internal/pkg/logx"
	"moviechat/internal/pkg/req"
	"moviechat/internal/pkg/resp"
)

const maxRoomNameLength = 100

// CreateRoomInput is the body of the create-room call.
type CreateRoomInput struct {
	chat.CreateRoomRequest
}

func (in *CreateRoomInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || utf8.RuneCountInString(in.Name) > maxRoomNameLength {
		return errs.NewError(errs.ErrInvalidParams)
	}
	return nil
}

// HandleListRooms lists the rooms the caller belongs to.
func HandleListRooms(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		resp.RespondSuccess(w, r, deps.DB.RoomsFor(identity.ID))
	}
}

// HandleCreateRoom creates a room with the caller as creator and announces it to the members.
func HandleCreateRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		var input CreateRoomInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		for _, id := range input.Members {
			if _, err := deps.DB.UserByID(id); err != nil {
				logx.Warn("create room: unknown member", "member_id", id)
				resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
				return
			}
		}

		room := deps.DB.CreateRoom(identity.ID, input.CreateRoomRequest)
		deps.Chat.NotifyRoomAdded(room)

		logx.Info("Room created", "room_id", room.ID, "creator", identity.ID, "members", len(room.Members))
		resp.RespondCreated(w, r, room)
	}
}

// HandleRoomHistory returns the messages of a room the caller belongs to.
func HandleRoomHistory(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		roomID := chi.URLParam(r, "roomId")

		if _, err := deps.DB.Room(roomID, identity.ID); err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrRoomNotFound))
			return
		}

		resp.RespondSuccess(w, r, deps.DB.RoomHistory(roomID))
	}
}

// HandleLeaveRoom removes the caller from a room.
func HandleLeaveRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		roomID := chi.URLParam(r, "roomId")

		room, err := deps.DB.LeaveRoom(roomID, identity.ID)
		if err != nil {
			if db.IsNotFound(err) {
				resp.RespondError(w, r, errs.NewError(errs.ErrRoomNotFound))
				return
			}
			logx.Error(err, "leave room failed", "room_id", roomID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, room)
	}
}

// HandleDirectHistory returns the direct messages between the caller and a peer.
func HandleDirectHistory(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		peerID := chi.URLParam(r, "peerId")

		if _, err := deps.DB.UserByID(peerID); err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrNotFound))
			return
		}

		resp.RespondSuccess(w, r, deps.DB.DirectHistory(identity.ID, peerID))
	}
}
