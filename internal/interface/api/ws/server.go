// Package ws sirve el feed en vivo de auditoría: un WebSocket que retransmite
// los eventos del bus y acepta mensajes de consola, más una pequeña API JSON.
package ws

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"akrasiaBot/internal/app/events"
	"akrasiaBot/internal/domain"
	"akrasiaBot/internal/usecase/commands"
)

const (
	defaultAuditLimit = 20
	maxAuditLimit     = 200
	consoleGuildName  = "console"

	// ConsolePrefix separa los IDs de usuarios y guilds de la consola de los
	// de Discord: un cliente no puede hacerse pasar por un usuario real.
	ConsolePrefix = "console:"
)

// ConsoleID devuelve raw dentro del espacio de nombres de la consola.
func ConsoleID(raw string) string {
	if strings.HasPrefix(raw, ConsolePrefix) {
		return raw
	}
	return ConsolePrefix + raw
}

func IsConsoleID(id string) bool {
	return strings.HasPrefix(id, ConsolePrefix)
}

type Config struct {
	Addr     string
	Bus      *events.Bus
	Sessions domain.SessionFactory
	// Catalog devuelve los comandos registrados para /api/commands.
	Catalog        func() []commands.CommandDescriptor
	AllowedOrigins []string
	// Token es el secreto compartido que da acceso a la actividad de Discord
	// (feed completo y /api/audit de cualquier guild). Vacío: solo se ve la
	// actividad de la consola.
	Token string
}

// Server expone /ws/audit y la API. También es el Sender de la plataforma
// consola: las respuestas a mensajes de consola vuelven por el mismo socket.
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*wsClient
	handler domain.MessageHandler
	httpSrv *http.Server
}

type wsClient struct {
	id      string
	conn    *websocket.Conn
	trusted bool
	mu      sync.Mutex
	userID  string
}

func (c *wsClient) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type consoleReply struct {
	ChannelID string `json:"channel_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Text      string `json:"text"`
}

type incomingPayload struct {
	Text     string `json:"text"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	GuildID  string `json:"guild_id"`
}

func NewServer(cfg Config) *Server {
	return &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[string]*wsClient),
	}
}

func (s *Server) SetHandler(h domain.MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *Server) getHandler() domain.MessageHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handler
}

func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Handler construye el router HTTP.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/api/health", s.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/ws/audit", s.handleWS)
		r.Get("/api/audit", s.handleAudit)
		r.Get("/api/commands", s.handleCommands)
	})
	return r
}

type trustedKey struct{}

// authenticate marca la petición como de confianza si trae el token
// configurado (cabecera Authorization: Bearer o ?token=). Sin token la
// petición sigue, pero sin confianza; un token incorrecto se rechaza.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trusted := false
		if got := requestToken(r); got != "" {
			if s.cfg.Token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Token)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			trusted = true
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), trustedKey{}, trusted)))
	})
}

func requestToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func isTrusted(r *http.Request) bool {
	trusted, _ := r.Context().Value(trustedKey{}).(bool)
	return trusted
}

// Start levanta el HTTP server y el reenvío del bus; se bloquea hasta que
// ctx se cancela.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.Bus != nil {
		go s.forward(ctx)
	}

	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("ws: shutdown error")
		}
		s.closeClients()
	}()

	log.Info().Str("addr", s.cfg.Addr).Msg("ws: audit feed listening")
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// forward retransmite a todos los clientes lo que llega por el bus.
func (s *Server) forward(ctx context.Context) {
	topics := map[string]string{
		events.TopicAuditEntry:  "audit",
		events.TopicDispatch:    "dispatch",
		events.TopicChatMessage: "message",
		events.TopicAppError:    "error",
	}

	var wg sync.WaitGroup
	for topic, kind := range topics {
		ch, unsubscribe := s.cfg.Bus.Subscribe(topic)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer unsubscribe()
			for {
				select {
				case <-ctx.Done():
					return
				case payload, ok := <-ch:
					if !ok {
						return
					}
					s.broadcast(envelope{Type: kind, Data: payload})
				}
			}
		}()
	}
	wg.Wait()
}

func (s *Server) broadcast(env envelope) {
	public := consoleVisible(env.Data)
	for _, c := range s.snapshot() {
		if !c.trusted && !public {
			continue
		}
		if err := c.writeJSON(env); err != nil {
			log.Warn().Err(err).Str("client_id", c.id).Msg("ws: removing client due to write error")
			s.drop(c)
		}
	}
}

// consoleVisible indica si un evento del bus pertenece a la consola y puede
// ir a clientes sin token.
func consoleVisible(payload any) bool {
	switch p := payload.(type) {
	case events.AuditEntryDTO:
		return IsConsoleID(p.GuildID) || IsConsoleID(p.UserID)
	case events.DispatchDTO:
		return IsConsoleID(p.UserID)
	case events.ChatMessageDTO:
		return p.Platform == string(domain.PlatformConsole)
	default:
		return false
	}
}

func (s *Server) snapshot() []*wsClient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*wsClient, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	return out
}

func (s *Server) drop(c *wsClient) {
	s.mu.Lock()
	_, ok := s.clients[c.id]
	delete(s.clients, c.id)
	s.mu.Unlock()
	if ok {
		c.conn.Close()
	}
}

func (s *Server) closeClients() {
	for _, c := range s.snapshot() {
		s.drop(c)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws: upgrade error")
		return
	}

	client := &wsClient{id: uuid.NewString(), conn: conn, trusted: isTrusted(r)}
	s.mu.Lock()
	s.clients[client.id] = client
	count := len(s.clients)
	s.mu.Unlock()

	log.Info().Str("remote", r.RemoteAddr).Bool("trusted", client.trusted).Int("clients", count).Msg("ws: new connection")
	go s.readLoop(client)
}

func (s *Server) readLoop(client *wsClient) {
	defer func() {
		s.drop(client)
		log.Info().Int("clients", s.ClientCount()).Msg("ws: connection closed")
	}()

	for {
		msgType, data, err := client.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("ws: read error")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if err := s.dispatchIncoming(client, data); err != nil {
			log.Warn().Err(err).Str("client_id", client.id).Msg("ws: incoming dispatch error")
		}
	}
}

func (s *Server) dispatchIncoming(client *wsClient, data []byte) error {
	handler := s.getHandler()
	if handler == nil {
		return nil
	}

	msg, err := consoleMessage(client, data)
	if err != nil {
		return err
	}
	client.mu.Lock()
	client.userID = msg.AuthorID
	client.mu.Unlock()

	return handler(context.Background(), msg)
}

// consoleMessage convierte un frame de texto en un mensaje de la plataforma
// consola. Un frame que no es JSON se toma entero como texto. Los IDs de
// usuario y guild del frame se meten en el espacio de nombres de la consola,
// así que el cliente solo es administrador de sus propios guilds de consola.
func consoleMessage(client *wsClient, data []byte) (domain.Message, error) {
	payload := incomingPayload{}
	if err := json.Unmarshal(data, &payload); err != nil {
		payload = incomingPayload{Text: string(data)}
	}
	payload.Text = strings.TrimSpace(payload.Text)
	if payload.Text == "" {
		return domain.Message{}, fmt.Errorf("ws: empty incoming text")
	}

	userID := strings.TrimSpace(payload.UserID)
	if userID == "" {
		userID = client.id
	}
	userID = ConsoleID(userID)
	username := strings.TrimSpace(payload.Username)
	if username == "" {
		username = "web-user"
	}

	msg := domain.Message{
		ID:         uuid.NewString(),
		Platform:   domain.PlatformConsole,
		ChannelID:  client.id,
		AuthorID:   userID,
		AuthorName: username,
		Text:       payload.Text,
		CreatedAt:  time.Now().UTC(),
	}
	if guildID := strings.TrimSpace(payload.GuildID); guildID != "" {
		msg.GuildID = ConsoleID(guildID)
		msg.GuildName = consoleGuildName
		msg.Member = &domain.Member{UserID: userID, Name: username, IsAdministrator: true}
	} else {
		msg.IsPrivate = true
	}
	return msg, nil
}

// SendMessage responde al cliente cuyo id es channelID.
func (s *Server) SendMessage(_ context.Context, platform domain.Platform, channelID, text string) error {
	if platform != domain.PlatformConsole {
		return fmt.Errorf("ws: unsupported platform %s", platform)
	}
	s.mu.RLock()
	client, ok := s.clients[channelID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("ws: no console client %s", channelID)
	}
	if err := client.writeJSON(envelope{Type: "reply", Data: consoleReply{ChannelID: channelID, Text: text}}); err != nil {
		s.drop(client)
		return fmt.Errorf("ws: write reply: %w", err)
	}
	return nil
}

// SendDirect envía a todos los clientes que han hablado como userID.
func (s *Server) SendDirect(_ context.Context, platform domain.Platform, userID, text string) error {
	if platform != domain.PlatformConsole {
		return fmt.Errorf("ws: unsupported platform %s", platform)
	}
	sent := 0
	for _, c := range s.snapshot() {
		c.mu.Lock()
		owner := c.userID
		c.mu.Unlock()
		if owner != userID {
			continue
		}
		if err := c.writeJSON(envelope{Type: "direct", Data: consoleReply{UserID: userID, Text: text}}); err != nil {
			s.drop(c)
			continue
		}
		sent++
	}
	if sent == 0 {
		return fmt.Errorf("ws: no console client for user %s", userID)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "audit log unavailable")
		return
	}
	q := r.URL.Query()
	guildID := strings.TrimSpace(q.Get("guild"))
	if guildID == "" {
		writeError(w, http.StatusBadRequest, "guild is required")
		return
	}
	if !isTrusted(r) && !IsConsoleID(guildID) {
		writeError(w, http.StatusForbidden, "a token is required for non-console guilds")
		return
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := s.cfg.Sessions.Open(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "couldn't open session")
		return
	}
	defer session.Close()

	entries, err := session.QueryAuditLog(r.Context(), domain.AuditQuery{
		GuildID: guildID,
		Search:  q.Get("search"),
		Limit:   limit,
	})
	if err != nil {
		log.Error().Err(err).Str("guild_id", guildID).Msg("ws: audit query failed")
		writeError(w, http.StatusInternalServerError, "audit query failed")
		return
	}

	out := make([]events.AuditEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, events.NewAuditEntryDTO(*e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCommands(w http.ResponseWriter, _ *http.Request) {
	var out []commands.CommandDescriptor
	if s.cfg.Catalog != nil {
		out = s.cfg.Catalog()
	}
	if out == nil {
		out = []commands.CommandDescriptor{}
	}
	writeJSON(w, http.StatusOK, out)
}

func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultAuditLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return min(n, maxAuditLimit), nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
