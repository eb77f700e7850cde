package audit

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// Audit actions for the chat server.
const (
	ActionConnect       = "chat.connect"
	ActionCreateRoom    = "chat.create_room"
	ActionJoinRoom      = "chat.join_room"
	ActionLeaveRoom     = "chat.leave_room"
	ActionDisconnect    = "chat.disconnect"
	ActionRoomExpired   = "chat.room_expired"
	ActionForceRecovery = "persistence.force_recovery"
)

const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log writes an audit entry through the context logger, so request and
// connection ids carried by ctx are included. room may be empty.
func Log(ctx context.Context, action, room, msg string) {
	l := log.Ctx(ctx)
	entry(&l, action, room).Msg(msg)
}

// LogWithDetail is Log with a free-form detail such as a display name.
func LogWithDetail(ctx context.Context, action, room, detail, msg string) {
	l := log.Ctx(ctx)
	entry(&l, action, room).Str(FieldDetail, detail).Msg(msg)
}

func entry(l *zerolog.Logger, action, room string) *zerolog.Event {
	evt := l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action)
	if room != "" {
		evt = evt.Str(log.FieldRoom, room)
	}
	return evt
}
