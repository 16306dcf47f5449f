package gateway

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/meshcom-gateway/meshcom-server/pkg/meshcom"
)

// Listener 在消息被接受后调用；msg 只读
type Listener func(msg *meshcom.Message)

// listenerEntry 每个监听器独占一个队列和协程，慢监听器不影响其他监听器
type listenerEntry struct {
	id    uint64
	fn    Listener
	queue chan *meshcom.Message
	stop  chan struct{}
}

// RegisterListener 注册监听器，返回的函数用于注销，可重复调用
func (s *Session) RegisterListener(fn Listener) func() {
	e := &listenerEntry{
		fn:    fn,
		queue: make(chan *meshcom.Message, s.opts.NotifyQueue),
		stop:  make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed() {
		s.mu.Unlock()
		return func() {}
	}
	s.nextID++
	e.id = s.nextID
	s.listeners = append(s.listeners, e)
	count := len(s.listeners)
	s.wg.Add(1)
	s.mu.Unlock()

	s.metrics.Listeners.Set(float64(count))

	go s.run(e)

	return func() {
		s.unregister(e.id)
	}
}

func (s *Session) unregister(id uint64) {
	s.mu.Lock()
	var removed *listenerEntry
	for i, e := range s.listeners {
		if e.id == id {
			removed = e
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			break
		}
	}
	count := len(s.listeners)
	s.mu.Unlock()

	if removed == nil {
		return
	}
	close(removed.stop)
	s.metrics.Listeners.Set(float64(count))
}

// ListenerCount 返回当前监听器数量
func (s *Session) ListenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// enqueue 按接收顺序放入各监听器队列；队列满时丢弃，不阻塞接收
func (s *Session) enqueue(listeners []*listenerEntry, msg *meshcom.Message) {
	for _, e := range listeners {
		select {
		case e.queue <- msg:
		default:
			s.metrics.NotificationsDropped.Inc()
			log.Warn().
				Uint64("listener", e.id).
				Str("src", msg.Source).
				Msg("监听器队列已满，丢弃通知")
		}
	}
}

// run 依次执行单个监听器的通知，保证该监听器内的顺序
func (s *Session) run(e *listenerEntry) {
	defer s.wg.Done()

	for {
		select {
		case msg := <-e.queue:
			s.invoke(e.fn, msg)
		case <-e.stop:
			return
		case <-s.done:
			// 关闭前已排队的通知照常执行
			for {
				select {
				case msg := <-e.queue:
					s.invoke(e.fn, msg)
				default:
					return
				}
			}
		}
	}
}

// Wait 等待所有监听器协程退出，须在 Close 之后调用
func (s *Session) Wait(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// invoke 单个监听器 panic 不影响其他监听器
func (s *Session) invoke(fn Listener, msg *meshcom.Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("src", msg.Source).
				Msg("监听器执行失败")
		}
	}()
	fn(msg)
}
