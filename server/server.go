package server

import (
	"errors"
	"net/http"
	"net/rpc"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wfunc/quizduel/broadcast"
	"github.com/wfunc/quizduel/challenge"
	"github.com/wfunc/quizduel/config"
	"github.com/wfunc/quizduel/logger"
	"github.com/wfunc/quizduel/match"
	"github.com/wfunc/quizduel/monitor"
	"github.com/wfunc/quizduel/network"
	"github.com/wfunc/quizduel/persistence"
	"github.com/wfunc/quizduel/presence"
	"github.com/wfunc/quizduel/questions"
	"github.com/wfunc/quizduel/room"
	quizduel_rpc "github.com/wfunc/quizduel/rpc"
	"github.com/wfunc/quizduel/services"
	"github.com/wfunc/quizduel/session"
	"github.com/wfunc/quizduel/timer"
)

type QuizServer struct {
	addr           string
	jwtSecret      []byte
	upgrader       websocket.Upgrader
	roomManager    *room.Manager
	sessionManager *session.Manager
	presence       *presence.Tracker
	timers         *timer.Manager
	broadcaster    broadcast.Broadcaster
	matches        *match.Manager
	negotiator     *challenge.Negotiator
	progression    *services.ProgressionService
	monitor        *monitor.Monitor
	rpcServer      *quizduel_rpc.Server
	handlers       map[uint16]handlerFunc
	mutex          sync.Mutex
	shutdownChan   chan struct{}
}

func NewQuizServer(cfg *config.Config, db persistence.Database, mon *monitor.Monitor) *QuizServer {
	s := &QuizServer{
		addr:           cfg.Server.HTTPAddress,
		jwtSecret:      []byte(cfg.Server.JWTSecret),
		roomManager:    room.NewRoomManager(),
		sessionManager: session.NewManager(),
		presence:       presence.NewTracker(),
		timers:         timer.NewManager(0),
		monitor:        mon,
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	// 初始化广播器
	s.broadcaster = broadcast.NewRoomBroadcaster(s.roomManager, s.sessionManager)

	s.progression = services.NewProgressionService(db)
	settlement := services.NewSettlementService(cfg.Game, db, s.progression)
	loader := questions.NewFileLoader(cfg.Game.QuestionsDir, cfg.Game.MaxQuestions)

	s.matches = match.NewManager(
		cfg.Game, db, loader,
		s.roomManager, s.sessionManager, s.presence, s.timers,
		s.broadcaster, settlement, mon,
	)
	s.negotiator = challenge.NewNegotiator(s.sessionManager, s.presence, s.matches)
	s.handlers = s.buildHandlerTable()

	// 初始化RPC服务器
	rpcServer, err := quizduel_rpc.NewServer(cfg.Server.RPCAddress)
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	s.rpcServer = rpcServer

	// 注册RPC服务
	duelService := quizduel_rpc.NewDuelService(s.progression, s.matches)
	rpc.Register(duelService)

	return s
}

func (s *QuizServer) Start() error {
	go s.rpcServer.Start()

	http.HandleFunc("/ws", s.handleWebSocket)
	logger.Log.Infof("Quiz server listening on %s", s.addr)
	return http.ListenAndServe(s.addr, nil)
}

func (s *QuizServer) Shutdown() {
	close(s.shutdownChan)
	s.timers.Stop()
	s.rpcServer.Stop()
}

func (s *QuizServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, err := s.authenticate(r)
	if err != nil {
		logger.Log.Infof("Rejected connection from %s: %v", r.RemoteAddr, err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn, identity)
}

var errNoToken = errors.New("no token presented")

// authenticate verifies the connection's bearer token before the
// upgrade. The identity comes from the token subject, never from any
// client-supplied field.
func (s *QuizServer) authenticate(r *http.Request) (string, error) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			raw = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if raw == "" {
		return "", errNoToken
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", err
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", jwt.ErrTokenInvalidSubject
	}
	return subject, nil
}

func (s *QuizServer) handleConnection(conn *websocket.Conn, identity string) {
	wsConn := network.NewWSConnection(conn)
	sess := session.NewSession(uuid.New().String(), wsConn)

	// Last connect wins: a prior connection of this identity loses its
	// index entry and dies on its own read loop.
	s.sessionManager.Register(identity, sess)
	s.monitor.IncOnlinePlayers()

	logger.Log.Infof("New connection from %s, user %s, session ID: %s",
		wsConn.RemoteAddr(), identity, sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed for user %s, session ID: %s", identity, sess.GetID())
		s.sessionManager.Remove(sess)
		s.matches.HandleDisconnect(sess)
		s.monitor.DecOnlinePlayers()
		wsConn.Close()
	}()

	s.matches.CheckOngoing(sess)

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := wsConn.ReadPacket()
			if err != nil {
				return
			}
			s.handlePacket(sess, packet)
		}
	}
}
