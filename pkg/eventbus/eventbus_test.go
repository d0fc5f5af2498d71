package eventbus

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/k4lantar4/remnabot/pkg/logging"
)

type botActivated struct {
	name string
}

type botDeactivated struct {
	name string
}

func TestPublisher_Publish_NoSubscribers(t *testing.T) {
	logBuffer := bytes.Buffer{}
	log := logrus.New()
	log.SetOutput(&logBuffer)
	log.SetLevel(logrus.WarnLevel)
	publisher := NewEventPublisher(log)
	publisher.Subscribe(func(e *botActivated) {
		t.Error("should not be called")
	})
	publisher.Publish(&botDeactivated{name: "support-bot"})

	if output := logBuffer.String(); output == "" {
		t.Error("should have logged")
	} else if !strings.Contains(output, "eventbus.Publish: no matching subscribers") {
		t.Errorf("should have contained no matching subscribers but got: %q", output)
	}
}

func TestPublisher_Subscribe(t *testing.T) {
	publisher := NewEventPublisher(logging.ConsoleLogger(logrus.WarnLevel))
	called := false
	var name string
	publisher.Subscribe(func(e *botActivated) {
		called = true
		name = e.name
	})
	publisher.Publish(&botActivated{name: "support-bot"})
	if !called {
		t.Error("should be called")
	}
	if name != "support-bot" {
		t.Errorf("expected: %v, got: %v", "support-bot", name)
	}
}

func TestPublisher_HandlerPanicDoesNotStopOthers(t *testing.T) {
	publisher := NewEventPublisher(logging.ConsoleLogger(logrus.PanicLevel))
	called := false
	publisher.Subscribe(func(e *botActivated) {
		panic("boom")
	})
	publisher.Subscribe(func(e *botActivated) {
		called = true
	})
	publisher.Publish(&botActivated{name: "support-bot"})
	if !called {
		t.Error("second subscriber should still be called")
	}
}

func TestPublisher_Unsubscribe(t *testing.T) {
	publisher := NewEventPublisher(logging.ConsoleLogger(logrus.PanicLevel))
	handler := func(e *botActivated) {
		t.Error("should not be called after unsubscribe")
	}
	publisher.Subscribe(handler)
	if publisher.SubscribersCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", publisher.SubscribersCount())
	}
	publisher.Unsubscribe(handler)
	if publisher.SubscribersCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", publisher.SubscribersCount())
	}
}
