package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	socketio "github.com/googollee/go-socket.io"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/kiliankoe/promptcraft/internal/game"
	"github.com/kiliankoe/promptcraft/internal/metrics"
)

// SessionCookie holds the player identity. It is issued by the HTTP layer
// before the client opens its socket.
const SessionCookie = "session_id"

// ConnCtx is attached to every socket on connect.
type ConnCtx struct {
	Identity string
	Limiter  *rate.Limiter
}

// sendQueue is how many notifications a socket may have pending before it
// is considered stalled and dropped.
const sendQueue = 64

type outgoing struct {
	event   string
	payload any
}

// peer owns the send queue of one socket. Only writePump calls Emit on the
// underlying connection.
type peer struct {
	conn socketio.Conn
	send chan outgoing
}

func (p *peer) writePump() {
	for m := range p.send {
		p.conn.Emit(m.event, m.payload)
	}
}

// enqueue must be called with the server's read lock held so the queue
// cannot be closed underneath it.
func (p *peer) enqueue(event string, payload any) bool {
	select {
	case p.send <- outgoing{event: event, payload: payload}:
		return true
	default:
		return false
	}
}

// Server routes Socket.IO events to the game session and delivers the
// session's notifications back to the sockets.
type Server struct {
	sess *game.Session
	log  zerolog.Logger

	mu    sync.RWMutex
	conns map[string]*peer // socket ID -> peer

	promptRate  rate.Limit
	promptBurst int

	// ctx bounds in-flight generations; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc
}

func New(log zerolog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		log:         log.With().Str("component", "ws").Logger(),
		conns:       make(map[string]*peer),
		promptRate:  rate.Limit(1),
		promptBurst: 5,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Bind attaches the session the handlers act on. The session is constructed
// with this Server as its Notifier, so the two are wired in two steps.
func (srv *Server) Bind(sess *game.Session) { srv.sess = sess }

// SetPromptLimit overrides the per-connection prompt token bucket.
func (srv *Server) SetPromptLimit(r rate.Limit, burst int) {
	srv.promptRate = r
	srv.promptBurst = burst
}

// Emit implements game.Notifier. It never blocks; a socket whose queue is
// full is dropped.
func (srv *Server) Emit(connID, event string, payload any) {
	srv.mu.RLock()
	p := srv.conns[connID]
	queued := p != nil && p.enqueue(event, payload)
	srv.mu.RUnlock()
	if p == nil {
		srv.log.Debug().Str("sid", connID).Str("event", event).Msg("emit to unknown socket")
		return
	}
	if !queued {
		srv.drop(p)
	}
}

// Broadcast implements game.Notifier.
func (srv *Server) Broadcast(event string, payload any) {
	var stalled []*peer
	srv.mu.RLock()
	for _, p := range srv.conns {
		if !p.enqueue(event, payload) {
			stalled = append(stalled, p)
		}
	}
	srv.mu.RUnlock()
	for _, p := range stalled {
		srv.drop(p)
	}
}

// drop forgets a socket that stopped reading and closes it. The disconnect
// handler then marks the player offline; a reconnect replays the state.
func (srv *Server) drop(p *peer) {
	sid := p.conn.ID()
	srv.mu.Lock()
	if srv.conns[sid] != p {
		srv.mu.Unlock()
		return
	}
	delete(srv.conns, sid)
	close(p.send)
	srv.mu.Unlock()

	metrics.SlowSocketsDroppedTotal.Inc()
	srv.log.Warn().Str("sid", sid).Msg("send queue full, dropping socket")
	go func() {
		if err := p.conn.Close(); err != nil {
			srv.log.Debug().Str("sid", sid).Err(err).Msg("close stalled socket")
		}
	}()
}

// Close cancels generations that are still running.
func (srv *Server) Close() { srv.cancel() }

// Mount attaches the Socket.IO server with its handlers to the given Gin engine.
func (srv *Server) Mount(r *gin.Engine) *socketio.Server {
	io := socketio.NewServer(nil)

	io.OnConnect("/", func(s socketio.Conn) error {
		srv.connect(s)
		return nil
	})

	io.OnEvent("/", "join_game", func(s socketio.Conn, payload struct {
		Name string `json:"name"`
	}) {
		srv.joinGame(s, payload.Name)
	})

	io.OnEvent("/", "assign_teams", func(s socketio.Conn) {
		srv.check(s, srv.sess.AssignTeams(identity(s)))
	})

	io.OnEvent("/", "start_game", func(s socketio.Conn) {
		srv.check(s, srv.sess.StartGame(identity(s)))
	})

	io.OnEvent("/", "send_prompt", func(s socketio.Conn, payload struct {
		Prompt string `json:"prompt"`
	}) {
		srv.sendPrompt(s, payload.Prompt)
	})

	io.OnEvent("/", "round_timer_check", func(s socketio.Conn) {
		srv.sess.Tick()
	})

	io.OnEvent("/", "select_image", func(s socketio.Conn, payload struct {
		ImageIndex int `json:"image_index"`
	}) {
		srv.check(s, srv.sess.SelectImage(identity(s), payload.ImageIndex))
	})

	io.OnEvent("/", "check_selection_status", func(s socketio.Conn) {
		srv.sess.CheckSelection()
	})

	io.OnEvent("/", "cast_vote", func(s socketio.Conn, payload struct {
		VotedFor string `json:"voted_for"`
		PromptID string `json:"prompt_id"`
	}) {
		srv.check(s, srv.sess.CastVote(identity(s), payload.VotedFor, payload.PromptID))
	})

	io.OnEvent("/", "next_round", func(s socketio.Conn) {
		srv.check(s, srv.sess.NextRound(identity(s)))
	})

	io.OnEvent("/", "skip_voting", func(s socketio.Conn) {
		srv.check(s, srv.sess.SkipVoting(identity(s)))
	})

	io.OnEvent("/", "admin_get_status", func(s socketio.Conn) {
		srv.sess.AdminStatus(identity(s))
	})

	io.OnEvent("/", "admin_end_round", func(s socketio.Conn) {
		srv.check(s, srv.sess.EndRoundEarly(identity(s)))
	})

	io.OnEvent("/", "restart_game", func(s socketio.Conn) {
		srv.check(s, srv.sess.Restart(identity(s)))
	})

	io.OnEvent("/", "back_to_home", func(s socketio.Conn) {
		srv.check(s, srv.sess.BackToHome(identity(s)))
	})

	io.OnEvent("/", "clear_lobby", func(s socketio.Conn) {
		srv.check(s, srv.sess.ClearLobby(identity(s)))
	})

	io.OnEvent("/", "remove_player", func(s socketio.Conn, payload struct {
		SessionID string `json:"session_id"`
	}) {
		srv.check(s, srv.sess.RemovePlayer(identity(s), payload.SessionID))
	})

	io.OnError("/", func(s socketio.Conn, e error) {
		sid := ""
		if s != nil {
			sid = s.ID()
		}
		srv.log.Error().Str("sid", sid).Err(e).Msg("socket error")
	})

	io.OnDisconnect("/", func(s socketio.Conn, reason string) {
		srv.disconnect(s)
		srv.log.Info().Str("sid", s.ID()).Str("reason", reason).Msg("socket disconnected")
	})

	go func() {
		if err := io.Serve(); err != nil {
			srv.log.Error().Err(err).Msg("socket.io serve")
		}
	}()

	r.GET("/socket.io/*any", gin.WrapH(io))
	r.POST("/socket.io/*any", gin.WrapH(io))

	return io
}

func (srv *Server) connect(s socketio.Conn) {
	id := identityFromHeader(s.RemoteHeader())
	if id == "" {
		// no cookie: the socket still works but cannot survive a reload
		id = uuid.NewString()
		srv.log.Warn().Str("sid", s.ID()).Msg("socket without session cookie")
	}
	s.SetContext(&ConnCtx{Identity: id, Limiter: rate.NewLimiter(srv.promptRate, srv.promptBurst)})
	p := &peer{conn: s, send: make(chan outgoing, sendQueue)}
	go p.writePump()
	srv.mu.Lock()
	srv.conns[s.ID()] = p
	srv.mu.Unlock()
	srv.log.Info().Str("sid", s.ID()).Str("identity", id).Msg("socket connected")
}

func (srv *Server) disconnect(s socketio.Conn) {
	srv.mu.Lock()
	if p, ok := srv.conns[s.ID()]; ok {
		delete(srv.conns, s.ID())
		close(p.send)
	}
	srv.mu.Unlock()
	srv.sess.Disconnect(s.ID())
}

func (srv *Server) joinGame(s socketio.Conn, name string) {
	id := identity(s)
	if err := srv.sess.Join(id, s.ID(), name); err != nil {
		srv.fail(s, err)
		return
	}
	srv.log.Info().Str("sid", s.ID()).Str("identity", id).Msg("join_game")
}

// sendPrompt runs the submission on its own goroutine. Generation can take
// many seconds and the socket keeps serving ticks in the meantime.
func (srv *Server) sendPrompt(s socketio.Conn, prompt string) {
	ctx, ok := s.Context().(*ConnCtx)
	if !ok {
		return
	}
	if !ctx.Limiter.Allow() {
		metrics.RateLimitedTotal.Inc()
		srv.Emit(s.ID(), game.EvtError, game.Message{Message: "Slow down"})
		return
	}
	go func() {
		if err := srv.sess.SubmitPrompt(srv.ctx, ctx.Identity, prompt); err != nil {
			srv.fail(s, err)
		}
	}()
}

func (srv *Server) check(s socketio.Conn, err error) {
	if err != nil {
		srv.fail(s, err)
	}
}

// fail reports a rejected action to the socket that sent it.
func (srv *Server) fail(s socketio.Conn, err error) {
	srv.log.Debug().Str("sid", s.ID()).Err(err).Msg("action rejected")
	event := game.EvtError
	if errors.Is(err, game.ErrSelfVote) {
		event = game.EvtSelfVoteError
	}
	srv.Emit(s.ID(), event, game.Message{Message: game.UserMessage(err)})
}

func identity(s socketio.Conn) string {
	if ctx, ok := s.Context().(*ConnCtx); ok {
		return ctx.Identity
	}
	return ""
}

func identityFromHeader(h http.Header) string {
	c, err := (&http.Request{Header: h}).Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

// SessionCookieMiddleware issues the identity cookie to browsers that do not
// carry one yet.
func SessionCookieMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if v, err := c.Cookie(SessionCookie); err != nil || v == "" {
			id := uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(SessionCookie, id, 0, "/", "", false, true)
			// make the fresh identity visible to handlers in this request
			c.Request.AddCookie(&http.Cookie{Name: SessionCookie, Value: id})
		}
		c.Next()
	}
}
