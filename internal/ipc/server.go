package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	writeTimeout   = 2 * time.Second
	maxIntentBytes = 1 << 20
)

// Intent 客户端发来的一行 JSON 请求
type Intent struct {
	Type    string          `json:"type"`
	Client  uuid.UUID       `json:"-"`
	Payload json.RawMessage `json:"-"`
}

// Decode 把整行 JSON 解码到 v
func (i Intent) Decode(v any) error {
	return json.Unmarshal(i.Payload, v)
}

// Handler 处理请求，返回值非 nil 时只回复给发送方
type Handler func(ctx context.Context, in Intent) (any, error)

type errorReply struct {
	Type   string `json:"type"`
	Intent string `json:"intent"`
	Error  string `json:"error"`
}

type client struct {
	id      uuid.UUID
	conn    net.Conn
	writeMu sync.Mutex
}

func (c *client) write(line []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := c.conn.Write(line)
	return err
}

// Server 本地 unix socket：向展示端广播 JSON 行事件，读取展示端发来的请求
type Server struct {
	socketPath   string
	lockFilePath string
	handler      Handler

	listener        net.Listener
	clientConns     map[uuid.UUID]*client
	clientConnsLock sync.Mutex

	// 每种消息类型保留最新一条，新连接时补发
	retained     map[string][]byte
	retainOrder  []string
	retainedLock sync.Mutex

	lock     *instanceLock
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewServer(socketPath string, handler Handler) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		socketPath:   socketPath,
		lockFilePath: socketPath + ".lock",
		handler:      handler,
		clientConns:  make(map[uuid.UUID]*client),
		retained:     make(map[string][]byte),
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (s *Server) Start() error {
	lock, err := acquireInstanceLock(s.lockFilePath)
	if err != nil {
		return err
	}
	s.lock = lock

	if err := os.RemoveAll(s.socketPath); err != nil {
		s.lock.release()
		return err
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		s.lock.release()
		return err
	}
	s.listener = listener

	log.Info().Str("socket_path", s.socketPath).Msg("IPC server listening")

	s.wg.Add(1)
	go s.acceptConnections()

	return nil
}

func (s *Server) acceptConnections() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Error().Err(err).Msg("Failed to accept IPC connection")
			continue
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	c := &client{id: uuid.New(), conn: conn}
	s.clientConnsLock.Lock()
	s.clientConns[c.id] = c
	s.clientConnsLock.Unlock()

	log.Info().Str("client", c.id.String()).Msg("Presentation client connected")

	s.retainedLock.Lock()
	initial := make([][]byte, 0, len(s.retainOrder))
	for _, kind := range s.retainOrder {
		initial = append(initial, s.retained[kind])
	}
	s.retainedLock.Unlock()
	for _, line := range initial {
		if err := c.write(line); err != nil {
			log.Error().Err(err).Msg("Failed to send initial state")
			break
		}
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxIntentBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		s.dispatch(c, append([]byte(nil), line...))
	}

	s.removeClient(c)
	log.Info().Str("client", c.id.String()).Msg("Presentation client disconnected")
}

func (s *Server) dispatch(c *client, line []byte) {
	var in Intent
	if err := json.Unmarshal(line, &in); err != nil || in.Type == "" {
		s.reply(c, errorReply{Type: "error", Error: "invalid intent"})
		return
	}
	in.Client = c.id
	in.Payload = line

	if s.handler == nil {
		return
	}
	reply, err := s.handler(s.ctx, in)
	if err != nil {
		log.Debug().Err(err).Str("intent", in.Type).Msg("Intent failed")
		s.reply(c, errorReply{Type: "error", Intent: in.Type, Error: err.Error()})
		return
	}
	if reply != nil {
		s.reply(c, reply)
	}
}

func (s *Server) reply(c *client, v any) {
	line, err := encodeLine(v)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode reply")
		return
	}
	if err := c.write(line); err != nil {
		log.Error().Err(err).Msg("Failed to write reply, removing client")
		s.removeClient(c)
	}
}

func (s *Server) removeClient(c *client) {
	s.clientConnsLock.Lock()
	if _, ok := s.clientConns[c.id]; ok {
		delete(s.clientConns, c.id)
		c.conn.Close()
	}
	s.clientConnsLock.Unlock()
}

func encodeLine(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Broadcast 把事件发给所有客户端，并作为该类型的最新状态保留
func (s *Server) Broadcast(kind string, v any) {
	line, err := encodeLine(v)
	if err != nil {
		log.Error().Err(err).Str("type", kind).Msg("Failed to encode event")
		return
	}

	s.retainedLock.Lock()
	if _, ok := s.retained[kind]; !ok {
		s.retainOrder = append(s.retainOrder, kind)
	}
	s.retained[kind] = line
	s.retainedLock.Unlock()

	s.writeAll(line)
}

// Notify 发给所有客户端但不保留，用于一次性指令
func (s *Server) Notify(v any) {
	line, err := encodeLine(v)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode notification")
		return
	}
	s.writeAll(line)
}

func (s *Server) writeAll(line []byte) {
	s.clientConnsLock.Lock()
	clients := make([]*client, 0, len(s.clientConns))
	for _, c := range s.clientConns {
		clients = append(clients, c)
	}
	s.clientConnsLock.Unlock()

	for _, c := range clients {
		if err := c.write(line); err != nil {
			log.Error().Err(err).Msg("Failed to write to client, removing")
			s.removeClient(c)
		}
	}
}

// Send 只发给指定客户端
func (s *Server) Send(id uuid.UUID, v any) error {
	s.clientConnsLock.Lock()
	c, ok := s.clientConns[id]
	s.clientConnsLock.Unlock()
	if !ok {
		return fmt.Errorf("client %s not connected", id)
	}
	line, err := encodeLine(v)
	if err != nil {
		return err
	}
	return c.write(line)
}

// Clients 已连接的客户端数量
func (s *Server) Clients() int {
	s.clientConnsLock.Lock()
	defer s.clientConnsLock.Unlock()
	return len(s.clientConns)
}

func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}

	s.clientConnsLock.Lock()
	for id, c := range s.clientConns {
		c.conn.Close()
		delete(s.clientConns, id)
	}
	s.clientConnsLock.Unlock()

	s.wg.Wait()
	os.Remove(s.socketPath)
	s.lock.release()
}
