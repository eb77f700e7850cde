package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/weiawesome/wes-io-chat/internal/audit"
	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/idgen"
	"github.com/weiawesome/wes-io-chat/internal/room"
	"github.com/weiawesome/wes-io-chat/internal/session"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

const (
	MaxDisplayNameLength = 50
	MaxRoomNameLength    = 100
	MaxTopicLength       = 200

	DefaultMaxBodyLength = 1000

	activityTimeout = 2 * time.Second
)

type Options struct {
	MaxBodyLength int
}

type chatService struct {
	transport Transport
	sessions  *session.Registry
	rooms     *room.Registry
	ids       *idgen.Allocator
	persister Persister
	tracker   ActivityTracker
	opts      Options
	now       func() time.Time

	// mu serializes membership changes and message sends so registry
	// updates stay paired and per-room delivery order matches the order
	// messages reach the persister.
	mu sync.Mutex

	// stopped and touches.Add are guarded by mu.
	stopped bool
	touches sync.WaitGroup
}

// NewChatService wires the coordinator. tracker may be nil.
func NewChatService(
	transport Transport,
	sessions *session.Registry,
	rooms *room.Registry,
	ids *idgen.Allocator,
	persister Persister,
	tracker ActivityTracker,
	opts Options,
) ChatService {
	if opts.MaxBodyLength <= 0 {
		opts.MaxBodyLength = DefaultMaxBodyLength
	}
	return &chatService{
		transport: transport,
		sessions:  sessions,
		rooms:     rooms,
		ids:       ids,
		persister: persister,
		tracker:   tracker,
		opts:      opts,
		now:       time.Now,
	}
}

func (s *chatService) HandleConnect(ctx context.Context, connID string) error {
	if !s.sessions.Register(connID) {
		return nil
	}

	audit.Log(ctx, audit.ActionConnect, "", "connection opened")

	return s.transport.SendTo(connID, &domain.WelcomeMessage{
		Type:         domain.MsgTypeWelcome,
		ConnectionID: connID,
		Timestamp:    s.now().UnixMilli(),
	})
}

func (s *chatService) HandleCreateRoom(ctx context.Context, connID, roomName, displayName, topic string) error {
	roomName, displayName, err := s.validateNames(roomName, displayName)
	if err == nil && utf8.RuneCountInString(strings.TrimSpace(topic)) > MaxTopicLength {
		err = domain.NewValidationError("topic", "must be at most 200 characters")
	}
	if err != nil {
		return s.reject(connID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions.Get(connID)
	if !ok {
		return s.unknownSession(ctx, connID)
	}
	if sess.CurrentRoom == roomName && sess.DisplayName == displayName {
		rm, _ := s.rooms.Get(roomName)
		return s.transport.SendTo(connID, createResult(domain.CreateResultJoinedExisting, rm))
	}
	if sess.InRoom() {
		s.leaveLocked(ctx, sess)
	}

	rm, res := s.rooms.Create(roomName, displayName, topic)
	if res == domain.Created {
		s.transport.JoinGroup(connID, rm.Name)
		s.sessions.UpdateActivity(connID, rm.Name, displayName)
		s.persister.SaveRoom(rm.Record())
		s.touch(rm.Name)

		audit.LogWithDetail(ctx, audit.ActionCreateRoom, rm.Name, displayName, "room created")
		return s.transport.SendTo(connID, createResult(domain.CreateResultCreated, rm))
	}

	// The room exists: join it instead of failing.
	rm, err = s.rooms.Join(roomName, displayName)
	if err != nil {
		return s.reject(connID, err)
	}
	s.transport.JoinGroup(connID, rm.Name)
	s.sessions.UpdateActivity(connID, rm.Name, displayName)
	s.touch(rm.Name)

	audit.LogWithDetail(ctx, audit.ActionJoinRoom, rm.Name, displayName, "joined existing room on create")
	if err := s.transport.SendTo(connID, createResult(domain.CreateResultJoinedExisting, rm)); err != nil {
		return err
	}
	return s.transport.SendToGroup(rm.Name, domain.NewMemberEvent(domain.MsgTypeUserJoined, rm.Name, displayName, s.now().UnixMilli()), connID)
}

func (s *chatService) HandleJoinRoom(ctx context.Context, connID, roomName, displayName string) error {
	roomName, displayName, err := s.validateNames(roomName, displayName)
	if err != nil {
		return s.reject(connID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions.Get(connID)
	if !ok {
		return s.unknownSession(ctx, connID)
	}
	if _, ok := s.rooms.Get(roomName); !ok {
		return s.reject(connID, domain.ErrRoomNotFound)
	}
	if sess.CurrentRoom == roomName && sess.DisplayName == displayName {
		rm, _ := s.rooms.Get(roomName)
		return s.transport.SendTo(connID, roomJoined(rm))
	}
	if sess.InRoom() {
		s.leaveLocked(ctx, sess)
	}

	rm, err := s.rooms.Join(roomName, displayName)
	if err != nil {
		return s.reject(connID, err)
	}
	s.transport.JoinGroup(connID, rm.Name)
	s.sessions.UpdateActivity(connID, rm.Name, displayName)
	s.touch(rm.Name)

	audit.LogWithDetail(ctx, audit.ActionJoinRoom, rm.Name, displayName, "joined room")
	if err := s.transport.SendTo(connID, roomJoined(rm)); err != nil {
		return err
	}
	return s.transport.SendToGroup(rm.Name, domain.NewMemberEvent(domain.MsgTypeUserJoined, rm.Name, displayName, s.now().UnixMilli()), connID)
}

// HandleRoomMessage broadcasts body to the sender's room, sender included,
// and hands it to the persister. The author is the session's display name.
func (s *chatService) HandleRoomMessage(ctx context.Context, connID, roomName, displayName, body string) error {
	roomName = domain.NormalizeRoomName(roomName)
	if roomName == "" {
		return s.reject(connID, domain.NewValidationError("room_name", "must not be empty"))
	}
	if strings.TrimSpace(body) == "" {
		return s.reject(connID, domain.NewValidationError("body", "must not be empty"))
	}
	if utf8.RuneCountInString(body) > s.opts.MaxBodyLength {
		return s.reject(connID, domain.NewValidationError("body", "exceeds maximum length"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions.Get(connID)
	if !ok {
		return s.unknownSession(ctx, connID)
	}
	if sess.CurrentRoom != roomName {
		return s.reject(connID, errNotInRoom)
	}
	if name := strings.TrimSpace(displayName); name != "" && name != sess.DisplayName {
		l := log.Ctx(ctx)
		l.Debug().
			Str(log.FieldDisplayName, name).
			Str("session_display_name", sess.DisplayName).
			Msg("room_message display name differs from session, using session")
	}

	msg := &domain.ChatMessage{
		MessageID:  s.ids.Next(),
		RoomName:   roomName,
		AuthorName: sess.DisplayName,
		Body:       body,
		CreatedAt:  s.now().UTC(),
	}

	if err := s.transport.SendToGroup(roomName, msg.Out(), ""); err != nil {
		return err
	}
	s.persister.SaveMessage(msg.Record())
	s.touch(roomName)

	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldRoom, roomName).Str(log.FieldMessageID, msg.MessageID).Msg("room message accepted")
	return nil
}

func (s *chatService) HandleLeaveRoom(ctx context.Context, connID, roomName, displayName string) error {
	roomName = domain.NormalizeRoomName(roomName)

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions.Get(connID)
	if !ok {
		return s.unknownSession(ctx, connID)
	}
	if roomName != "" {
		if _, ok := s.rooms.Get(roomName); !ok {
			return s.reject(connID, domain.ErrRoomNotFound)
		}
	}
	if !sess.InRoom() || (roomName != "" && sess.CurrentRoom != roomName) {
		return s.reject(connID, errNotInRoom)
	}

	left := sess.CurrentRoom
	s.leaveLocked(ctx, sess)

	return s.transport.SendTo(connID, &domain.RoomLeftMessage{
		Type:     domain.MsgTypeRoomLeft,
		RoomName: left,
	})
}

func (s *chatService) HandleListRooms(ctx context.Context, connID string) error {
	return s.transport.SendTo(connID, &domain.RoomListMessage{
		Type:  domain.MsgTypeRoomList,
		Rooms: s.ListRooms(),
	})
}

// HandleDisconnect removes the session and its room membership. Repeated
// calls are no-ops.
func (s *chatService) HandleDisconnect(ctx context.Context, connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions.Get(connID)
	if !ok {
		return nil
	}
	if sess.InRoom() {
		s.leaveLocked(ctx, sess)
	}
	s.sessions.Remove(connID)

	audit.Log(ctx, audit.ActionDisconnect, sess.CurrentRoom, "connection closed")
	return nil
}

// leaveLocked must be called with s.mu held. The display name is removed
// from the room only when no other session in the room still uses it.
func (s *chatService) leaveLocked(ctx context.Context, sess domain.Session) {
	roomName := sess.CurrentRoom

	s.transport.LeaveGroup(sess.ConnectionID, roomName)
	s.sessions.ClearRoom(sess.ConnectionID)

	if s.sessions.NameInRoom(roomName, sess.DisplayName, sess.ConnectionID) {
		return
	}

	_, removed, err := s.rooms.Leave(roomName, sess.DisplayName)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoom, roomName).Msg("session pointed at missing room")
		return
	}
	if !removed {
		l := log.Ctx(ctx)
		l.Warn().Str(log.FieldRoom, roomName).Str(log.FieldDisplayName, sess.DisplayName).Msg("session display name was not a room member")
		return
	}

	audit.LogWithDetail(ctx, audit.ActionLeaveRoom, roomName, sess.DisplayName, "left room")
	if err := s.transport.SendToGroup(roomName, domain.NewMemberEvent(domain.MsgTypeUserLeft, roomName, sess.DisplayName, s.now().UnixMilli()), sess.ConnectionID); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoom, roomName).Msg("failed to broadcast user_left")
	}
}

func (s *chatService) ListRooms() []domain.RoomSummary {
	out := []domain.RoomSummary{}
	for rm := range s.rooms.List() {
		out = append(out, rm.Summary())
	}
	return out
}

func (s *chatService) GetRoom(name string) (domain.RoomSummary, bool) {
	rm, ok := s.rooms.Get(name)
	if !ok {
		return domain.RoomSummary{}, false
	}
	return rm.Summary(), true
}

// ExpireIdleRooms deletes empty rooms whose last activity is before cutoff
// and returns their names.
func (s *chatService) ExpireIdleRooms(ctx context.Context, cutoff time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []string
	for rm := range s.rooms.List() {
		if s.rooms.DeleteIdle(rm.Name, cutoff) {
			expired = append(expired, rm.Name)
			audit.Log(ctx, audit.ActionRoomExpired, rm.Name, "idle room deleted")
		}
	}
	return expired
}

// CheckConsistency compares room membership with live sessions.
func (s *chatService) CheckConsistency() []Inconsistency {
	s.mu.Lock()
	defer s.mu.Unlock()

	var issues []Inconsistency
	for rm := range s.rooms.List() {
		sessions := s.sessions.InRoom(rm.Name)
		names := make(map[string]bool, len(sessions))
		for _, sess := range sessions {
			names[sess.DisplayName] = true
			if !rm.HasMember(sess.DisplayName) {
				issues = append(issues, Inconsistency{
					Kind:         InconsistencyMissingMember,
					Room:         rm.Name,
					DisplayName:  sess.DisplayName,
					ConnectionID: sess.ConnectionID,
				})
			}
		}
		for _, member := range rm.Members {
			if !names[member] {
				issues = append(issues, Inconsistency{
					Kind:        InconsistencyOrphanMember,
					Room:        rm.Name,
					DisplayName: member,
				})
			}
		}
	}
	return issues
}

func (s *chatService) Start(ctx context.Context) error {
	l := log.Ctx(ctx)
	l.Info().Int("max_body_length", s.opts.MaxBodyLength).Msg("chat service started")
	return nil
}

// Stop waits for in-flight activity updates. Activity recorded after Stop
// is not sent to the tracker.
func (s *chatService) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.touches.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// touch records activity on room. The tracker call runs in the background.
// Callers hold s.mu.
func (s *chatService) touch(roomName string) {
	s.rooms.Touch(roomName)
	if s.tracker == nil || s.stopped {
		return
	}

	at := s.now()
	s.touches.Add(1)
	go func() {
		defer s.touches.Done()
		ctx, cancel := context.WithTimeout(context.Background(), activityTimeout)
		defer cancel()
		if err := s.tracker.Touch(ctx, roomName, at); err != nil {
			l := log.L()
			l.Debug().Err(err).Str(log.FieldRoom, roomName).Msg("activity update failed")
		}
	}()
}

var errNotInRoom = errors.New("not in room")

func (s *chatService) validateNames(roomName, displayName string) (string, string, error) {
	roomName = domain.NormalizeRoomName(roomName)
	displayName = strings.TrimSpace(displayName)

	switch {
	case roomName == "":
		return "", "", domain.NewValidationError("room_name", "must not be empty")
	case utf8.RuneCountInString(roomName) > MaxRoomNameLength:
		return "", "", domain.NewValidationError("room_name", "must be at most 100 characters")
	case displayName == "":
		return "", "", domain.NewValidationError("display_name", "must not be empty")
	case utf8.RuneCountInString(displayName) > MaxDisplayNameLength:
		return "", "", domain.NewValidationError("display_name", "must be at most 50 characters")
	}
	return roomName, displayName, nil
}

// reject reports err to the connection and returns it.
func (s *chatService) reject(connID string, err error) error {
	var code string
	switch {
	case errors.Is(err, errNotInRoom):
		code = domain.ErrCodeNotInRoom
	case errors.Is(err, domain.ErrRoomNotFound):
		code = domain.ErrCodeNotFound
	case domain.IsValidationError(err):
		code = domain.ErrCodeValidationError
	default:
		code = domain.ErrCodeInternalError
	}

	if sendErr := s.transport.SendTo(connID, domain.NewErrorMessage(code, err.Error())); sendErr != nil {
		return errors.Join(err, sendErr)
	}
	return err
}

func (s *chatService) unknownSession(ctx context.Context, connID string) error {
	l := log.Ctx(ctx)
	l.Warn().Msg("event for unknown session")
	return domain.ErrSessionNotFound
}

func createResult(result string, rm domain.Room) *domain.CreateRoomResultMessage {
	members := rm.Members
	if members == nil {
		members = []string{}
	}
	return &domain.CreateRoomResultMessage{
		Type:     domain.MsgTypeCreateRoomResult,
		Result:   result,
		RoomName: rm.Name,
		Topic:    rm.Topic,
		Creator:  rm.Creator,
		Members:  members,
	}
}

func roomJoined(rm domain.Room) *domain.RoomJoinedMessage {
	members := rm.Members
	if members == nil {
		members = []string{}
	}
	return &domain.RoomJoinedMessage{
		Type:     domain.MsgTypeRoomJoined,
		RoomName: rm.Name,
		Topic:    rm.Topic,
		Members:  members,
	}
}
