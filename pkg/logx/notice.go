package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	noticeQueueSize   = 256
	noticeMaxMessage  = 500
	noticeMaxFieldLen = 300
)

// Notice is a log record flattened for display, e.g. as a dashboard toast
// saying the client switched to offline mode.
type Notice struct {
	Time      time.Time
	Level     Level
	Component string // the "comp" field, if any
	Message   string
	Fields    map[string]string
}

type NoticeFunc func(n Notice)

// noticeSink is a zerolog.LevelWriter that rate-limits qualifying records and
// hands them to the hook on its own goroutine. It never blocks logging.
type noticeSink struct {
	mu       sync.Mutex
	hook     NoticeFunc
	limiter  *rate.Limiter
	minLevel zerolog.Level
	cancel   context.CancelFunc

	queue chan Notice
	once  sync.Once
	wg    sync.WaitGroup
}

func (n *noticeSink) init() {
	n.queue = make(chan Notice, noticeQueueSize)
	n.minLevel = zerolog.Disabled
}

func (n *noticeSink) setHook(fn NoticeFunc) {
	n.mu.Lock()
	n.hook = fn
	n.mu.Unlock()
}

// configure sets the threshold and rate. zerolog.Disabled turns the sink off.
// The worker starts on first enable and runs until stop.
func (n *noticeSink) configure(minLevel zerolog.Level, perSec int) {
	perSec = max(1, perSec)
	n.mu.Lock()
	n.minLevel = minLevel
	n.limiter = rate.NewLimiter(rate.Limit(perSec), perSec)
	n.mu.Unlock()
	if minLevel == zerolog.Disabled {
		return
	}
	n.once.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		n.mu.Lock()
		n.cancel = cancel
		n.mu.Unlock()
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.run(ctx)
		}()
	})
}

func (n *noticeSink) stop() {
	n.mu.Lock()
	cancel := n.cancel
	n.cancel = nil
	n.mu.Unlock()
	if cancel != nil {
		cancel()
		n.wg.Wait()
	}
}

func (n *noticeSink) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-n.queue:
			n.mu.Lock()
			hook := n.hook
			n.mu.Unlock()
			if hook != nil {
				hook(rec)
			}
		}
	}
}

func (n *noticeSink) Write(p []byte) (int, error) {
	return n.WriteLevel(zerolog.NoLevel, p)
}

func (n *noticeSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	n.mu.Lock()
	hook, lim, minLevel := n.hook, n.limiter, n.minLevel
	n.mu.Unlock()

	if hook == nil || lim == nil || level < minLevel || !lim.Allow() {
		return len(p), nil
	}
	rec, ok := decodeNotice(level, p)
	if !ok {
		return len(p), nil
	}
	select {
	case n.queue <- rec:
	default:
		// hook is behind; drop
	}
	return len(p), nil
}

// decodeNotice flattens one zerolog JSON line.
func decodeNotice(level zerolog.Level, p []byte) (Notice, bool) {
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		s := strings.TrimSpace(string(p))
		if s == "" {
			return Notice{}, false
		}
		return Notice{Time: time.Now(), Level: level, Message: truncate(s, noticeMaxMessage)}, true
	}

	rec := Notice{Level: level, Fields: map[string]string{}}
	for k, v := range m {
		switch k {
		case zerolog.MessageFieldName:
			rec.Message, _ = v.(string)
		case zerolog.TimestampFieldName:
			if s, ok := v.(string); ok {
				rec.Time, _ = time.Parse(consoleTimeFormat, s)
			}
		case "comp":
			rec.Component = fmt.Sprint(v)
		case zerolog.LevelFieldName, zerolog.CallerFieldName:
		default:
			rec.Fields[k] = truncate(fmt.Sprint(v), noticeMaxFieldLen)
		}
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	return rec, true
}

func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	if maxN < 10 {
		return s[:maxN]
	}
	return s[:maxN-3] + "..."
}
