package game

import (
	"context"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/ankianan/passingstone/go/internal/roster"
	"github.com/google/uuid"
)

const (
	ServiceName = "passingstone.v1.GameService"

	CreateRoomProcedure   = "/" + ServiceName + "/CreateRoom"
	JoinRoomProcedure     = "/" + ServiceName + "/JoinRoom"
	StartRoundProcedure   = "/" + ServiceName + "/StartRound"
	PassProcedure         = "/" + ServiceName + "/Pass"
	TossProcedure         = "/" + ServiceName + "/Toss"
	ClaimProcedure        = "/" + ServiceName + "/Claim"
	SubmitGuessProcedure  = "/" + ServiceName + "/SubmitGuess"
	RoundExpiredProcedure = "/" + ServiceName + "/RoundExpired"
	GetSnapshotProcedure  = "/" + ServiceName + "/GetSnapshot"
	HistoryProcedure      = "/" + ServiceName + "/History"
	LeaderboardProcedure  = "/" + ServiceName + "/Leaderboard"
)

// GameApp defines what the service layer needs from the game application
type GameApp interface {
	CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.RoomSnapshot, error)
	JoinRoom(ctx context.Context, req JoinRoomRequest) (*models.RoomSnapshot, error)
	StartRound(ctx context.Context, roomID, caller uuid.UUID) (*models.Room, error)
	Pass(ctx context.Context, roomID, caller uuid.UUID, dir roster.Direction) (*models.Room, error)
	Toss(ctx context.Context, roomID, caller uuid.UUID) (*models.Room, error)
	Claim(ctx context.Context, roomID, caller uuid.UUID) (*models.Room, error)
	SubmitGuess(ctx context.Context, roomID, voter, guessed uuid.UUID) (*models.Guess, error)
	RoundExpired(ctx context.Context, roomID uuid.UUID) (*models.Room, error)
	Snapshot(ctx context.Context, roomID uuid.UUID) (*models.RoomSnapshot, error)
}

// HistoryApp defines the read side the service exposes
type HistoryApp interface {
	ForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.HistoryEntry, error)
	Leaderboard(ctx context.Context, limit int) ([]models.ScoreEntry, error)
}

// Service implements the GameService RPCs
type Service struct {
	app     GameApp
	history HistoryApp
}

// NewService creates a new game service
func NewService(app GameApp, history HistoryApp) *Service {
	return &Service{
		app:     app,
		history: history,
	}
}

// NewGameServiceHandler builds an HTTP handler serving every GameService
// procedure. It returns the path to mount the handler on.
func NewGameServiceHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)

	handlers := map[string]http.Handler{
		CreateRoomProcedure:   connect.NewUnaryHandler(CreateRoomProcedure, svc.CreateRoom, opts...),
		JoinRoomProcedure:     connect.NewUnaryHandler(JoinRoomProcedure, svc.JoinRoom, opts...),
		StartRoundProcedure:   connect.NewUnaryHandler(StartRoundProcedure, svc.StartRound, opts...),
		PassProcedure:         connect.NewUnaryHandler(PassProcedure, svc.Pass, opts...),
		TossProcedure:         connect.NewUnaryHandler(TossProcedure, svc.Toss, opts...),
		ClaimProcedure:        connect.NewUnaryHandler(ClaimProcedure, svc.Claim, opts...),
		SubmitGuessProcedure:  connect.NewUnaryHandler(SubmitGuessProcedure, svc.SubmitGuess, opts...),
		RoundExpiredProcedure: connect.NewUnaryHandler(RoundExpiredProcedure, svc.RoundExpired, opts...),
		GetSnapshotProcedure:  connect.NewUnaryHandler(GetSnapshotProcedure, svc.GetSnapshot, opts...),
		HistoryProcedure:      connect.NewUnaryHandler(HistoryProcedure, svc.History, opts...),
		LeaderboardProcedure:  connect.NewUnaryHandler(LeaderboardProcedure, svc.Leaderboard, opts...),
	}

	return "/" + ServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := handlers[r.URL.Path]; ok {
			h.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}

// CreateRoom opens a room with the caller as creator
func (s *Service) CreateRoom(ctx context.Context, req *connect.Request[CreateRoomMsg]) (*connect.Response[SnapshotReply], error) {
	caller, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	if req.Msg.DisplayName == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("display_name is required"))
	}

	snap, err := s.app.CreateRoom(ctx, CreateRoomRequest{
		CreatorID:   caller,
		DisplayName: req.Msg.DisplayName,
		Metadata:    req.Msg.Metadata,
	})
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&SnapshotReply{Snapshot: snap}), nil
}

// JoinRoom joins the waiting room with the given code
func (s *Service) JoinRoom(ctx context.Context, req *connect.Request[JoinRoomMsg]) (*connect.Response[SnapshotReply], error) {
	caller, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	if req.Msg.Code == "" || req.Msg.DisplayName == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("code and display_name are required"))
	}

	snap, err := s.app.JoinRoom(ctx, JoinRoomRequest{
		Code:          req.Msg.Code,
		ParticipantID: caller,
		DisplayName:   req.Msg.DisplayName,
		Metadata:      req.Msg.Metadata,
	})
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&SnapshotReply{Snapshot: snap}), nil
}

func (s *Service) StartRound(ctx context.Context, req *connect.Request[RoomMsg]) (*connect.Response[RoomReply], error) {
	return s.roomIntent(ctx, req.Msg.RoomID, s.app.StartRound)
}

func (s *Service) Pass(ctx context.Context, req *connect.Request[PassMsg]) (*connect.Response[RoomReply], error) {
	if !req.Msg.Direction.Valid() {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("unknown direction %q", req.Msg.Direction))
	}
	return s.roomIntent(ctx, req.Msg.RoomID, func(ctx context.Context, roomID, caller uuid.UUID) (*models.Room, error) {
		return s.app.Pass(ctx, roomID, caller, req.Msg.Direction)
	})
}

func (s *Service) Toss(ctx context.Context, req *connect.Request[RoomMsg]) (*connect.Response[RoomReply], error) {
	return s.roomIntent(ctx, req.Msg.RoomID, s.app.Toss)
}

func (s *Service) Claim(ctx context.Context, req *connect.Request[RoomMsg]) (*connect.Response[RoomReply], error) {
	return s.roomIntent(ctx, req.Msg.RoomID, s.app.Claim)
}

// RoundExpired is idempotent; late or duplicate reports return the current room
func (s *Service) RoundExpired(ctx context.Context, req *connect.Request[RoomMsg]) (*connect.Response[RoomReply], error) {
	return s.roomIntent(ctx, req.Msg.RoomID, func(ctx context.Context, roomID, _ uuid.UUID) (*models.Room, error) {
		return s.app.RoundExpired(ctx, roomID)
	})
}

func (s *Service) SubmitGuess(ctx context.Context, req *connect.Request[GuessMsg]) (*connect.Response[GuessReply], error) {
	caller, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	roomID, err := parseID("room_id", req.Msg.RoomID)
	if err != nil {
		return nil, err
	}
	guessed, err := parseID("guessed_id", req.Msg.GuessedID)
	if err != nil {
		return nil, err
	}

	guess, err := s.app.SubmitGuess(ctx, roomID, caller, guessed)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&GuessReply{Guess: guess}), nil
}

func (s *Service) GetSnapshot(ctx context.Context, req *connect.Request[RoomMsg]) (*connect.Response[SnapshotReply], error) {
	roomID, err := parseID("room_id", req.Msg.RoomID)
	if err != nil {
		return nil, err
	}
	snap, err := s.app.Snapshot(ctx, roomID)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&SnapshotReply{Snapshot: snap}), nil
}

// History lists the caller's past rooms, newest first
func (s *Service) History(ctx context.Context, req *connect.Request[ListMsg]) (*connect.Response[HistoryReply], error) {
	caller, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.history.ForUser(ctx, caller, req.Msg.Limit)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&HistoryReply{Entries: entries}), nil
}

func (s *Service) Leaderboard(ctx context.Context, req *connect.Request[ListMsg]) (*connect.Response[LeaderboardReply], error) {
	entries, err := s.history.Leaderboard(ctx, req.Msg.Limit)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&LeaderboardReply{Entries: entries}), nil
}

func (s *Service) roomIntent(
	ctx context.Context,
	rawRoomID string,
	intent func(ctx context.Context, roomID, caller uuid.UUID) (*models.Room, error),
) (*connect.Response[RoomReply], error) {
	caller, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	roomID, err := parseID("room_id", rawRoomID)
	if err != nil {
		return nil, err
	}

	room, err := intent(ctx, roomID, caller)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&RoomReply{Room: room}), nil
}

func callerID(ctx context.Context) (uuid.UUID, error) {
	id, ok := SessionFromContext(ctx)
	if !ok {
		return uuid.Nil, connect.NewError(connect.CodeUnauthenticated, fmt.Errorf("no session"))
	}
	return id, nil
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid %s: %w", field, err))
	}
	return id, nil
}
