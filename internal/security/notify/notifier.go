package notify

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Topic 通知主题
type Topic string

const (
	TopicPolicyCreated     Topic = "policy_created"
	TopicPolicyUpdated     Topic = "policy_updated"
	TopicSecurityEvent     Topic = "security_event"
	TopicSecurityViolation Topic = "security_violation"
)

// Subscriber 通知订阅者；同一订阅者按发布顺序收到通知
type Subscriber interface {
	Notify(topic Topic, payload interface{})
}

// SubscriberFunc 函数形式的订阅者
type SubscriberFunc func(topic Topic, payload interface{})

// Notify implements Subscriber.
func (f SubscriberFunc) Notify(topic Topic, payload interface{}) {
	f(topic, payload)
}

// Notifier 显式订阅者列表，同步按序投递（至少一次，进程内）
type Notifier struct {
	mu          sync.RWMutex
	subscribers []Subscriber
}

// NewNotifier 创建新的通知器
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe 注册订阅者
func (n *Notifier) Subscribe(sub Subscriber) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.subscribers = append(n.subscribers, sub)
}

// Publish 同步通知全部订阅者；单个订阅者 panic 不影响其他订阅者
func (n *Notifier) Publish(topic Topic, payload interface{}) {
	n.mu.RLock()
	subs := make([]Subscriber, len(n.subscribers))
	copy(subs, n.subscribers)
	n.mu.RUnlock()

	for _, sub := range subs {
		deliver(sub, topic, payload)
	}
}

func deliver(sub Subscriber, topic Topic, payload interface{}) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("topic", string(topic)).Msg("Notification subscriber panicked")
		}
	}()
	sub.Notify(topic, payload)
}
