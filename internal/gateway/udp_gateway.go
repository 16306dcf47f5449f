package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/meshcom-gateway/meshcom-server/internal/metrics"
	"github.com/meshcom-gateway/meshcom-server/internal/models"
	"github.com/meshcom-gateway/meshcom-server/pkg/meshcom"
)

// 发送路径错误
var (
	ErrTransportUnavailable = errors.New("transport unavailable")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrAlreadyBound         = errors.New("gateway already bound")
)

// Publisher 发布已接受消息的事件
type Publisher interface {
	Name() string
	Publish(ev models.MessageEvent) error
}

// EventRecorder 记录网关事件日志
type EventRecorder interface {
	LogEvent(event *models.EventLog)
}

// Options 网关会话参数
type Options struct {
	BindAddr      string
	DefaultTarget string
	DefaultPort   int
	ReadBuffer    int
	NotifyQueue   int // 每个监听器的队列长度

	Publishers []Publisher
	Events     EventRecorder
	Metrics    *metrics.Metrics

	// Now 返回当前时间，测试时可替换
	Now func() time.Time
}

// State 最近一条已接受消息，五个字段同时更新
type State struct {
	LastMessage     *string    `json:"last_message"`
	LastSource      *string    `json:"last_source"`
	LastDestination *string    `json:"last_destination"`
	LastMessageID   *string    `json:"last_message_id"`
	LastTimestamp   *time.Time `json:"last_timestamp"`
}

// Session 处理 MeshCom UDP 协议
type Session struct {
	identity meshcom.Identity
	opts     Options
	metrics  *metrics.Metrics

	conn atomic.Pointer[net.UDPConn]

	mu        sync.Mutex
	state     State
	lastRaw   []byte
	lastRawAt time.Time
	listeners []*listenerEntry
	nextID    uint64

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSession 创建网关会话，Bind 之前不能发送
func NewSession(identity meshcom.Identity, opts Options) *Session {
	if opts.ReadBuffer <= 0 {
		opts.ReadBuffer = 65507
	}
	if opts.NotifyQueue <= 0 {
		opts.NotifyQueue = 256
	}
	if opts.DefaultPort == 0 {
		opts.DefaultPort = 1799
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewMetrics(prometheus.NewRegistry())
	}

	return &Session{
		identity: identity,
		opts:     opts,
		metrics:  opts.Metrics,
		done:     make(chan struct{}),
	}
}

// Identity 返回网关身份
func (s *Session) Identity() meshcom.Identity {
	return s.identity
}

// Bind 绑定 UDP 端口
func (s *Session) Bind() error {
	select {
	case <-s.done:
		return ErrTransportUnavailable
	default:
	}

	if s.conn.Load() != nil {
		return ErrAlreadyBound
	}

	addr, err := net.ResolveUDPAddr("udp", s.opts.BindAddr)
	if err != nil {
		return fmt.Errorf("resolve bind address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen udp: %w", err)
	}

	if !s.conn.CompareAndSwap(nil, conn) {
		conn.Close()
		return ErrAlreadyBound
	}

	groups := s.identity.Groups()
	log.Info().
		Str("addr", conn.LocalAddr().String()).
		Str("my_call", s.identity.Callsign()).
		Strs("groups", groups).
		Msg("MeshCom UDP 网关已绑定")

	s.logEvent(models.EventTypeGatewayUp, models.EventLevelInfo, "MeshCom UDP gateway started", models.Variables{
		"addr":    conn.LocalAddr().String(),
		"my_call": s.identity.Callsign(),
		"groups":  groups,
	})

	return nil
}

// LocalAddr 返回已绑定地址，未绑定时为 nil
func (s *Session) LocalAddr() *net.UDPAddr {
	conn := s.conn.Load()
	if conn == nil {
		return nil
	}
	return conn.LocalAddr().(*net.UDPAddr)
}

// Start 绑定并运行接收循环，直到 ctx 取消
func (s *Session) Start(ctx context.Context) error {
	if err := s.Bind(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve 运行接收循环；数据包逐个同步处理
func (s *Session) Serve(ctx context.Context) error {
	conn := s.conn.Load()
	if conn == nil {
		return ErrTransportUnavailable
	}

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	buf := make([]byte, s.opts.ReadBuffer)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if s.closed() {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return nil
			}
			log.Error().Err(err).Msg("读取 UDP 包错误")
			continue
		}

		s.handleDatagram(buf[:n], addr)
	}
}

// handleDatagram 处理接收到的包，坏数据只记录日志
func (s *Session) handleDatagram(data []byte, addr *net.UDPAddr) {
	s.metrics.PacketsReceived.Inc()

	now := s.opts.Now()
	raw := make([]byte, len(data))
	copy(raw, data)

	s.mu.Lock()
	s.lastRaw = raw
	s.lastRawAt = now
	s.mu.Unlock()

	log.Debug().
		Str("addr", addrString(addr)).
		Int("size", len(data)).
		Msg("收到 UDP 包")

	msg, err := s.identity.Process(data, now)
	if err != nil {
		reason := meshcom.ReasonOf(err)
		s.metrics.PacketsDiscarded.WithLabelValues(string(reason)).Inc()

		ev := log.Debug()
		if errors.Is(err, meshcom.ErrInvalidJSON) || errors.Is(err, meshcom.ErrNotObject) {
			ev = log.Warn()
		}
		ev.Err(err).
			Str("addr", addrString(addr)).
			Str("reason", string(reason)).
			Msg("丢弃数据包")
		return
	}

	s.accept(msg)
}

// accept 更新状态、发布事件并分发通知
func (s *Session) accept(msg *meshcom.Message) {
	text := msg.Text
	src := msg.Source
	dst := msg.Destination
	id := msg.MessageID
	ts := msg.ObservedAt

	s.mu.Lock()
	s.state = State{
		LastMessage:     &text,
		LastSource:      &src,
		LastDestination: &dst,
		LastMessageID:   &id,
		LastTimestamp:   &ts,
	}
	listeners := make([]*listenerEntry, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	s.metrics.MessagesAccepted.Inc()

	log.Info().
		Str("src", src).
		Str("dst", dst).
		Str("msg_id", id).
		Str("msg", text).
		Msg("收到 MeshCom 消息")

	ev := models.NewMessageEvent(msg, s.identity.Callsign())
	for _, p := range s.opts.Publishers {
		if err := p.Publish(ev); err != nil {
			s.metrics.PublishErrors.WithLabelValues(p.Name()).Inc()
			log.Error().Err(err).Str("publisher", p.Name()).Msg("发布消息事件失败")
		}
	}

	s.enqueue(listeners, msg)
}

// State 返回最近一条消息的快照
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastRaw 返回最近收到的原始数据包及时间
func (s *Session) LastRaw() ([]byte, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRaw, s.lastRawAt
}

// SendMessage 发送文本消息到 MeshCom 节点，不等待确认
func (s *Session) SendMessage(target, dst, text string) error {
	conn := s.conn.Load()
	if conn == nil {
		s.metrics.SendErrors.WithLabelValues("transport_unavailable").Inc()
		return ErrTransportUnavailable
	}

	dst = strings.TrimSpace(dst)
	text = strings.TrimSpace(text)

	if dst == "" {
		s.metrics.SendErrors.WithLabelValues("invalid_argument").Inc()
		return fmt.Errorf("%w: empty destination", ErrInvalidArgument)
	}
	if text == "" {
		s.metrics.SendErrors.WithLabelValues("invalid_argument").Inc()
		return fmt.Errorf("%w: empty text", ErrInvalidArgument)
	}

	addr, err := s.resolveTarget(target)
	if err != nil {
		s.metrics.SendErrors.WithLabelValues("invalid_argument").Inc()
		return err
	}

	if truncated, ok := meshcom.Truncate(text, meshcom.MaxTextLength); ok {
		log.Warn().
			Int("length", len([]rune(text))).
			Int("max", meshcom.MaxTextLength).
			Str("dst", dst).
			Msg("消息过长，已截断")
		s.metrics.MessagesTruncated.Inc()
		text = truncated
	}

	payload, err := meshcom.NewTextFrame(dst, text).Marshal()
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	n, err := conn.WriteToUDP(payload, addr)
	if errors.Is(err, net.ErrClosed) {
		// 发送过程中会话已关闭
		s.metrics.SendErrors.WithLabelValues("transport_unavailable").Inc()
		return ErrTransportUnavailable
	}
	if err != nil {
		s.metrics.SendErrors.WithLabelValues("write").Inc()
		log.Error().
			Err(err).
			Str("target", addr.String()).
			Str("dst", dst).
			Msg("发送消息失败")
		s.logEvent(models.EventTypeSendError, models.EventLevelError, err.Error(), models.Variables{
			"target": addr.String(),
			"dst":    dst,
		})
		return fmt.Errorf("send datagram: %w", err)
	}

	s.metrics.MessagesSent.Inc()

	log.Info().
		Str("target", addr.String()).
		Str("dst", dst).
		Int("bytes", n).
		Msg("消息已发送")

	s.logEvent(models.EventTypeMessageSent, models.EventLevelInfo, "Message sent", models.Variables{
		"target": addr.String(),
		"dst":    dst,
		"msg":    text,
	})

	return nil
}

// resolveTarget 解析目标地址；缺省使用配置的目标和端口
func (s *Session) resolveTarget(target string) (*net.UDPAddr, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		target = s.opts.DefaultTarget
	}
	if target == "" {
		return nil, fmt.Errorf("%w: no target address", ErrInvalidArgument)
	}

	if _, _, err := net.SplitHostPort(target); err != nil {
		target = net.JoinHostPort(strings.Trim(target, "[]"), strconv.Itoa(s.opts.DefaultPort))
	}

	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, fmt.Errorf("%w: target %q: %v", ErrInvalidArgument, target, err)
	}
	return addr, nil
}

// Close 关闭 socket，不等待监听器；已排队的通知继续执行，需要时调用 Wait
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		close(s.done)
		s.mu.Unlock()

		conn := s.conn.Swap(nil)
		if conn == nil {
			return
		}
		err = conn.Close()

		log.Info().Msg("MeshCom UDP 网关已停止")
		s.logEvent(models.EventTypeGatewayDown, models.EventLevelInfo, "MeshCom UDP gateway stopped", nil)
	})
	return err
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) logEvent(t models.EventType, level models.EventLevel, description string, details models.Variables) {
	if s.opts.Events == nil {
		return
	}
	s.opts.Events.LogEvent(&models.EventLog{
		CreatedAt:   s.opts.Now().UTC(),
		Type:        t,
		Level:       level,
		Description: description,
		Details:     details,
	})
}

func addrString(addr *net.UDPAddr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
