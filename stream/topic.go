package stream

import (
	"fmt"
	"strings"
	"sync"
)

// Topic names follow a pattern:
//
//	job:<jobID>        — events for a specific job
//	session:<sessionID> — events for every job in a session
//	jobs               — all job lifecycle events
//	firehose           — everything

const (
	TopicJobs     = "jobs"
	TopicFirehose = "firehose"
)

// JobTopic returns the topic name for a specific job.
func JobTopic(jobID string) string { return "job:" + jobID }

// SessionTopic returns the topic name for a session.
func SessionTopic(sessionID string) string { return "session:" + sessionID }

// TopicRegistry maps topic names to their subscriber sets. Safe for
// concurrent use; sends happen outside the lock so a slow subscriber
// never blocks registration.
type TopicRegistry struct {
	mu     sync.RWMutex
	topics map[string]map[string]*Subscriber // topic → subscriberID → subscriber
}

// NewTopicRegistry creates an empty topic registry.
func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{topics: make(map[string]map[string]*Subscriber)}
}

// Subscribe puts the subscriber on a topic, creating the topic on first
// use.
func (tr *TopicRegistry) Subscribe(topic string, sub *Subscriber) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.topics[topic] == nil {
		tr.topics[topic] = make(map[string]*Subscriber)
	}
	tr.topics[topic][sub.ID()] = sub
	sub.addTopic(topic)
}

// Unsubscribe takes the subscriber off one topic.
func (tr *TopicRegistry) Unsubscribe(topic, subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.detachLocked(topic, subscriberID)
}

// UnsubscribeAll takes the subscriber off every topic it is on.
func (tr *TopicRegistry) UnsubscribeAll(subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	for topic := range tr.topics {
		tr.detachLocked(topic, subscriberID)
	}
}

// detachLocked removes one subscriber from one topic and garbage-collects
// the topic when it empties. Caller holds tr.mu.
func (tr *TopicRegistry) detachLocked(topic, subscriberID string) {
	subs := tr.topics[topic]
	if sub, ok := subs[subscriberID]; ok {
		sub.removeTopic(topic)
		delete(subs, subscriberID)
	}
	if len(subs) == 0 {
		delete(tr.topics, topic)
	}
}

// snapshot collects the deduplicated subscriber set across the given
// topics under the read lock.
func (tr *TopicRegistry) snapshot(topics ...string) map[string]*Subscriber {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	targets := make(map[string]*Subscriber)
	for _, topic := range topics {
		for id, sub := range tr.topics[topic] {
			targets[id] = sub
		}
	}
	return targets
}

// Publish delivers an event to every subscriber on the topic and
// returns how many accepted it.
func (tr *TopicRegistry) Publish(topic string, evt *Event) int {
	return tr.deliver(tr.snapshot(topic), evt)
}

// Broadcast delivers an event across several topics at once. A
// subscriber on more than one of them receives the event only once.
func (tr *TopicRegistry) Broadcast(topics []string, evt *Event) int {
	return tr.deliver(tr.snapshot(topics...), evt)
}

func (tr *TopicRegistry) deliver(targets map[string]*Subscriber, evt *Event) int {
	delivered := 0
	for _, sub := range targets {
		if sub.send(evt) {
			delivered++
		}
	}
	return delivered
}

// TopicCount returns the number of topics with at least one subscriber.
func (tr *TopicRegistry) TopicCount() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.topics)
}

// SubscriberCount returns the number of subscribers on a topic.
func (tr *TopicRegistry) SubscriberCount(topic string) int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.topics[topic])
}

// resolveTopics returns all topics an event should be published to:
// the firehose, the all-jobs topic, the job's own topic, and the
// session topic when the job belongs to a session.
func resolveTopics(evt *Event, sessionID string) []string {
	topics := []string{TopicFirehose, TopicJobs}

	if evt.Topic != "" {
		topics = append(topics, evt.Topic)
	}
	if sessionID != "" {
		topics = append(topics, SessionTopic(sessionID))
	}

	return topics
}

// ParseTopicEntity extracts the entity type and ID from a topic string.
// For example, "job:job_abc123" returns ("job", "job_abc123").
// Returns ("", "") for global topics like "jobs" or "firehose".
func ParseTopicEntity(topic string) (entityType, entityID string) {
	idx := strings.IndexByte(topic, ':')
	if idx < 0 {
		return "", ""
	}
	return topic[:idx], topic[idx+1:]
}

// ValidateTopic checks whether a topic string is valid.
func ValidateTopic(topic string) error {
	switch topic {
	case TopicJobs, TopicFirehose:
		return nil
	}

	entityType, entityID := ParseTopicEntity(topic)
	if entityType == "" || entityID == "" {
		return fmt.Errorf("stream: invalid topic %q", topic)
	}

	switch entityType {
	case "job", "session":
		return nil
	default:
		return fmt.Errorf("stream: unknown topic entity type %q", entityType)
	}
}
