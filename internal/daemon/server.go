// Package daemon wires the security-and-execution kernel (C1-C7, C9) to
// the session protocol (C8): workspaces, run contexts, the tool registry,
// event fan-out, and the daemon process lifecycle.
package daemon

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/session"
	"github.com/wardenhq/warden/internal/tool"
	"github.com/wardenhq/warden/internal/version"
)

// heartbeatInterval is the global keepalive cadence (§4.7: "a tick event
// is broadcast every 30s to every authenticated session").
const heartbeatInterval = 30 * time.Second

// Server is the §4.7 session protocol endpoint: it accepts connections on
// a loopback listener, authenticates each one, and dispatches `connect`,
// `tools.list`, `tools.call` and `ping` against the shared Registry and a
// per-connection RunContext. The reference transport is raw newline-
// delimited JSON over TCP (see the session.Codec doc for why this repo
// doesn't pull in a websocket library).
type Server struct {
	Registry *tool.Registry
	Token    string
	DataDir  string

	// cfgMu guards workspaces/approvals/commands, which a config reload
	// swaps wholesale: each is itself immutable once built, so a connection
	// that already resolved a *Workspace or policy value keeps it unchanged
	// for the life of its session (§3); only sessions that connect after a
	// reload observe the new values.
	cfgMu      sync.RWMutex
	workspaces *WorkspaceSet
	approvals  ApprovalPolicy
	commands   CommandPolicy

	listener net.Listener

	mu       sync.Mutex
	sessions map[*clientSession]struct{}

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewServer builds a Server from its wired dependencies. Call Serve to
// accept connections.
func NewServer(registry *tool.Registry, workspaces *WorkspaceSet, token string, approvals ApprovalPolicy, commands CommandPolicy, dataDir string) *Server {
	return &Server{
		Registry:   registry,
		workspaces: workspaces,
		Token:      token,
		approvals:  approvals,
		commands:   commands,
		DataDir:    dataDir,
		sessions:   make(map[*clientSession]struct{}),
		stopCh:     make(chan struct{}),
	}
}

// Workspaces returns the workspace set currently in effect.
func (s *Server) Workspaces() *WorkspaceSet {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.workspaces
}

// Approvals returns the approval policy currently in effect.
func (s *Server) Approvals() ApprovalPolicy {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.approvals
}

// Commands returns the command policy currently in effect.
func (s *Server) Commands() CommandPolicy {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.commands
}

// ApplyReload rebuilds the workspace set and approval/command policies from
// a freshly loaded config and swaps them in atomically, then broadcasts the
// config.reloaded event advertised in the connect handshake. Sessions
// already connected keep the *Workspace and policy values they resolved at
// connect time; only connections made afterward see cfg.
func (s *Server) ApplyReload(cfg *config.Config) {
	workspaces, err := NewWorkspaceSet(cfg)
	if err != nil {
		log.Printf("warden: config reload rejected: %v", err)
		return
	}

	s.cfgMu.Lock()
	s.workspaces = workspaces
	s.approvals = ApprovalPolicyFromConfig(cfg.Approvals)
	s.commands = CommandPolicyFromConfig(cfg.Commands)
	s.cfgMu.Unlock()

	s.broadcast(session.NewEvent("config.reloaded", map[string]any{"ts": time.Now().UTC()}))
}

// Serve binds addr and accepts connections until Stop is called. Blocks.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	log.Printf("warden: listening on %s", ln.Addr())

	s.wg.Add(1)
	go s.heartbeatLoop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return nil
			default:
				return err
			}
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Addr returns the bound listener address, or nil if Serve hasn't started.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every live connection, then waits for all
// connection goroutines to finish (§5: "client disconnect cancels all
// in-flight work for that session: best-effort").
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.listener != nil {
			s.listener.Close()
		}
		s.mu.Lock()
		for cs := range s.sessions {
			cs.conn.Close()
		}
		s.mu.Unlock()
	})
	s.wg.Wait()
}

func (s *Server) heartbeatLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.broadcast(session.NewEvent("tick", map[string]any{"ts": time.Now().UTC()}))
		}
	}
}

// broadcast snapshots the live, authenticated session set under the
// registry lock and sends outside it, per §5/§9: "no lock is held across
// I/O" and a slow peer must never block the others or the sender.
func (s *Server) broadcast(evt session.Event) {
	s.mu.Lock()
	recipients := make([]*clientSession, 0, len(s.sessions))
	for cs := range s.sessions {
		if cs.isAuthenticated() {
			recipients = append(recipients, cs)
		}
	}
	s.mu.Unlock()

	for _, cs := range recipients {
		cs.sendEvent(evt)
	}
}

func (s *Server) register(cs *clientSession) {
	s.mu.Lock()
	s.sessions[cs] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) unregister(cs *clientSession) {
	s.mu.Lock()
	delete(s.sessions, cs)
	s.mu.Unlock()
}

// clientSession is the server-side state for one accepted connection
// (§3's Session entity): the codec, the authenticated flag, the client
// name, and the per-session event sequence counter. Its bound RunContext
// is created on successful `connect` and closed on disconnect.
type clientSession struct {
	server *Server
	conn   net.Conn
	codec  *session.Codec

	mu            sync.Mutex
	authenticated bool
	clientName    string
	runCtx        *RunContext

	seq uint64
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	cs := &clientSession{server: s, conn: conn, codec: session.NewCodec(conn)}
	s.register(cs)
	defer func() {
		s.unregister(cs)
		if cs.runCtxSnapshot() != nil {
			cs.runCtxSnapshot().Close()
		}
	}()

	for {
		line, err := cs.codec.ReadFrame()
		if err != nil {
			if err == session.ErrPayloadTooLarge {
				// best-effort notice; the connection is no longer usable
				// once a frame this large has been seen.
				cs.codec.WriteFrame(session.NewErrorResponse(nil, session.WireError{Code: session.WireCodePayloadTooLarge, Message: "frame exceeds size limit"}))
			}
			if err != io.EOF {
				log.Printf("warden: session %s read error: %v", cs.label(), err)
			}
			return
		}
		if len(line) == 0 {
			continue
		}

		frame := append([]byte(nil), line...)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			cs.handleFrame(frame)
		}()
	}
}

func (cs *clientSession) runCtxSnapshot() *RunContext {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.runCtx
}

func (cs *clientSession) isAuthenticated() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.authenticated
}

func (cs *clientSession) label() string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.clientName != "" {
		return cs.clientName
	}
	return cs.conn.RemoteAddr().String()
}

func (cs *clientSession) nextSeq() uint64 {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.seq++
	return cs.seq
}

func (cs *clientSession) sendEvent(evt session.Event) {
	evt.Seq = cs.nextSeq()
	if err := cs.codec.WriteFrame(evt); err != nil {
		log.Printf("warden: session %s: write event: %v", cs.label(), err)
	}
}

func (cs *clientSession) sendResponse(resp session.Response) {
	if err := cs.codec.WriteFrame(resp); err != nil {
		log.Printf("warden: session %s: write response: %v", cs.label(), err)
	}
}

// handleFrame decodes one request frame and dispatches it. Requests on the
// same session may be handled concurrently (§5: "the protocol imposes no
// ordering across methods of a single session"); only frame writes are
// serialized, by the codec.
func (cs *clientSession) handleFrame(raw []byte) {
	var req session.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		cs.sendResponse(session.NewErrorResponse(nil, session.WireError{Code: session.WireCodeParseError, Message: err.Error()}))
		return
	}
	if req.Type != "req" || req.Method == "" {
		cs.sendResponse(session.NewErrorResponse(req.ID, session.WireError{Code: session.WireCodeInvalidRequest, Message: "malformed request frame"}))
		return
	}

	if req.Method != "connect" && !cs.isAuthenticated() {
		cs.sendResponse(session.NewErrorResponse(req.ID, session.WireError{Code: session.WireCodeUnauthorized, Message: "connect required before other methods"}))
		return
	}

	switch req.Method {
	case "connect":
		cs.handleConnect(req)
	case "ping":
		cs.sendResponse(session.NewResponse(req.ID, map[string]any{"pong": true}))
	case "tools.list":
		cs.handleToolsList(req)
	case "tools.call":
		cs.handleToolsCall(req)
	case "approvals.list":
		cs.handleApprovalsList(req)
	case "approvals.decide":
		cs.handleApprovalsDecide(req)
	default:
		cs.sendResponse(session.NewErrorResponse(req.ID, session.WireError{Code: session.WireCodeMethodNotFound, Message: "unknown method " + req.Method}))
	}
}

func (cs *clientSession) handleConnect(req session.Request) {
	var params session.ConnectParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			cs.sendResponse(session.NewErrorResponse(req.ID, session.WireError{Code: session.WireCodeInvalidRequest, Message: "invalid connect params"}))
			return
		}
	}

	if !session.TokensEqual(params.Token, cs.server.Token) {
		cs.sendResponse(session.NewErrorResponse(req.ID, session.WireError{Code: session.WireCodeAuthFailed, Message: "authentication failed"}))
		cs.conn.Close()
		return
	}

	ws, ok := cs.server.Workspaces().Resolve("")
	if !ok {
		cs.sendResponse(session.NewErrorResponse(req.ID, session.WireError{Code: string(tool.CodeInternalError), Message: "no default workspace configured"}))
		return
	}

	rc, err := NewRunContext(ws, cs.server.Approvals(), cs.server.Commands(), cs.server.DataDir)
	if err != nil {
		cs.sendResponse(session.NewErrorResponse(req.ID, session.WireError{Code: string(tool.CodeInternalError), Message: err.Error()}))
		return
	}

	clientName := ""
	if params.Client != nil {
		clientName = params.Client.Name
	}

	cs.mu.Lock()
	cs.authenticated = true
	cs.clientName = clientName
	cs.runCtx = rc
	cs.mu.Unlock()

	cs.sendResponse(session.NewResponse(req.ID, helloPayload{
		Protocol: session.ProtocolVersion,
		Server: helloServer{
			Name:    "wardend",
			Version: version.Version,
		},
		Workspace: helloWorkspace{
			Name: ws.Name,
			Root: ws.Root,
			Tier: ws.Tier.String(),
		},
		Tools: wireDescriptors(cs.server.Registry.VisibleAt(ws.Tier)),
		Features: helloFeatures{
			Methods: []string{"connect", "tools.list", "tools.call", "ping", "approvals.list", "approvals.decide"},
			Events:  []string{"tool", "tick", "config.reloaded"},
		},
	}))
}

type helloPayload struct {
	Protocol  int              `json:"protocol"`
	Server    helloServer      `json:"server"`
	Workspace helloWorkspace   `json:"workspace"`
	Tools     []wireDescriptor `json:"tools"`
	Features  helloFeatures    `json:"features"`
}

type helloServer struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type helloWorkspace struct {
	Name string `json:"name"`
	Root string `json:"root"`
	Tier string `json:"tier"`
}

type helloFeatures struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

type wireDescriptor struct {
	Name             string `json:"name"`
	Tier             string `json:"tier"`
	RequiresApproval bool   `json:"requiresApproval"`
	Summary          string `json:"summary"`
}

func wireDescriptors(ds []tool.Descriptor) []wireDescriptor {
	out := make([]wireDescriptor, len(ds))
	for i, d := range ds {
		out[i] = wireDescriptor{Name: d.Name, Tier: d.Tier.String(), RequiresApproval: d.RequiresApproval, Summary: d.Summary}
	}
	return out
}

func (cs *clientSession) handleToolsList(req session.Request) {
	rc := cs.runCtxSnapshot()
	cs.sendResponse(session.NewResponse(req.ID, map[string]any{
		"tools": wireDescriptors(cs.server.Registry.VisibleAt(rc.Workspace.Tier)),
	}))
}

type toolsCallParams struct {
	Name   string          `json:"name"`
	Params json.RawMessage `json:"params"`
}

// handleToolsCall implements the §5 ordering guarantee: tool.start is sent
// before the implementation observes any externally visible side effect,
// tool.result after completion, and the response frame after tool.result.
func (cs *clientSession) handleToolsCall(req session.Request) {
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		cs.sendResponse(session.NewErrorResponse(req.ID, session.WireError{Code: session.WireCodeInvalidRequest, Message: "invalid tools.call params"}))
		return
	}

	rc := cs.runCtxSnapshot()
	toolCallID := uuid.NewString()
	start := time.Now()

	cs.sendEvent(session.NewEvent("tool", map[string]any{
		"toolCallId": toolCallID,
		"phase":      "start",
		"tool":       params.Name,
	}))

	rc.IncrToolCall()
	result, tErr := cs.server.Registry.Dispatch(context.Background(), params.Name, rc.Workspace.Tier, rc, params.Params)

	entry := auditEntryFor(rc.RunID, params.Name, params.Params, result, tErr, time.Since(start))
	rc.Audit.Record(entry)

	cs.sendEvent(session.NewEvent("tool", map[string]any{
		"toolCallId": toolCallID,
		"phase":      "result",
		"tool":       params.Name,
		"ok":         tErr == nil,
	}))

	if tErr != nil {
		cs.sendResponse(session.NewErrorResponse(req.ID, session.WireError{Code: string(tErr.Code), Message: tErr.Message, Details: tErr.Details}))
		return
	}
	cs.sendResponse(session.NewResponse(req.ID, result))
}

type approvalsDecideParams struct {
	ID       string `json:"id"`
	Approved bool   `json:"approved"`
}

func (cs *clientSession) handleApprovalsList(req session.Request) {
	rc := cs.runCtxSnapshot()
	cs.sendResponse(session.NewResponse(req.ID, map[string]any{"approvals": rc.Approvals.List()}))
}

func (cs *clientSession) handleApprovalsDecide(req session.Request) {
	var params approvalsDecideParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		cs.sendResponse(session.NewErrorResponse(req.ID, session.WireError{Code: session.WireCodeInvalidRequest, Message: "invalid approvals.decide params"}))
		return
	}
	rc := cs.runCtxSnapshot()
	ok := rc.Approvals.Decide(params.ID, params.Approved)
	cs.sendResponse(session.NewResponse(req.ID, map[string]any{"resolved": ok}))
}
