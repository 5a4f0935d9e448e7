package rpc

import (
	"net"
	"net/rpc"

	"github.com/wfunc/quizduel/logger"
	"github.com/wfunc/quizduel/models"
	"github.com/wfunc/quizduel/services"
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
}

// NewServer creates a new RPC server. Services are registered by the
// caller before Start.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
	}, nil
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Check if the error is due to the listener being closed.
			if _, ok := err.(*net.OpError); ok {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// MatchLister is the slice of the match manager the RPC surface needs.
type MatchLister interface {
	LiveMatches() []models.MatchSummary
}

// DuelService exposes operational queries over net/rpc.
type DuelService struct {
	progression *services.ProgressionService
	matches     MatchLister
}

func NewDuelService(progression *services.ProgressionService, matches MatchLister) *DuelService {
	return &DuelService{progression: progression, matches: matches}
}

// Arguments and replies follow the net/rpc signature rules: exported
// types, reply passed by pointer.
type GetUserArgs struct {
	UserID string
}

type GetUserReply struct {
	User  *models.UserProfile
	Stats *services.UserStats
}

func (ds *DuelService) GetUserWithStats(args *GetUserArgs, reply *GetUserReply) error {
	user, stats, err := ds.progression.GetUserWithStats(args.UserID)
	if err != nil {
		return err
	}
	reply.User = user
	reply.Stats = stats
	return nil
}

type ListLiveMatchesArgs struct{}

type ListLiveMatchesReply struct {
	Matches []models.MatchSummary
}

func (ds *DuelService) ListLiveMatches(_ *ListLiveMatchesArgs, reply *ListLiveMatchesReply) error {
	reply.Matches = ds.matches.LiveMatches()
	return nil
}
