// Package twin implements the persona layer: the tool handlers the model
// drives, notification fan-out to the owner, and correction detection on
// the inbound activity path.
package twin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"twind/internal/channel"
	"twind/internal/docstore"
	"twind/internal/store"
	"twind/internal/subchat"
	"twind/internal/types"
)

// Sentinel returned by notify when no channel has credentials configured.
const noChannelsConfigured = "No notification channels configured"

const correctionMarker = "actually i would say"

// Target pairs a channel adapter with the owner address on that channel.
type Target struct {
	Adapter channel.Adapter
	To      string
}

// Config holds the persona-level settings the handlers need.
type Config struct {
	// Persona namespaces all store access.
	Persona string

	// OwnerName is how the owner is referred to in notifications and
	// inbox titles.
	OwnerName string

	// ConfidenceThreshold (0-100): responses below it carry a disclaimer.
	ConfidenceThreshold int
}

// Twin wires the persona handlers to their backing services.
type Twin struct {
	cfg     Config
	store   *store.Store
	docs    *docstore.Store
	engine  *subchat.Engine
	targets []Target
	log     *zap.Logger

	mu sync.Mutex
	// pendingLearn maps a suspended learn_from_correction call to the
	// correction row it appended, so resumption can flip the processed flag.
	pendingLearn map[string]int64
}

// New creates a Twin. Targets may be empty; notify then audits without
// delivering.
func New(cfg Config, st *store.Store, docs *docstore.Store, engine *subchat.Engine, targets []Target, log *zap.Logger) *Twin {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.OwnerName == "" {
		cfg.OwnerName = "Art"
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 75
	}
	return &Twin{
		cfg:          cfg,
		store:        st,
		docs:         docs,
		engine:       engine,
		targets:      targets,
		log:          log.Named("twin"),
		pendingLearn: make(map[string]int64),
	}
}

// Notify composes one notification body, sends it through every configured
// channel best-effort, and unconditionally appends an audit record. The
// audit happens even when every delivery fails.
func (t *Twin) Notify(ctx context.Context, summary, requester, twinResponse string, needsApproval bool) string {
	body := t.composeNotification(summary, requester, twinResponse, needsApproval)

	var statuses []string
	for _, target := range t.targets {
		text := body
		if target.Adapter.Name() == "email" {
			text = fmt.Sprintf("Subject: Digital Twin: %s\n%s", truncate(summary, 50), body)
		}
		status, err := target.Adapter.Send(ctx, target.To, text)
		label := channelLabel(target.Adapter.Name())
		if err != nil {
			t.log.Warn("notification delivery failed",
				zap.String("channel", target.Adapter.Name()),
				zap.Error(err))
			statuses = append(statuses, fmt.Sprintf("%s: send failed (%v)", label, err))
			continue
		}
		statuses = append(statuses, fmt.Sprintf("%s: %s", label, status))
	}

	if err := t.store.AppendConversation(t.cfg.Persona, store.ConversationRecord{
		Requester:     requester,
		Summary:       summary,
		TwinResponse:  twinResponse,
		NeedsApproval: needsApproval,
	}); err != nil {
		t.log.Error("conversation audit failed", zap.Error(err))
	}

	if len(statuses) == 0 {
		return noChannelsConfigured
	}
	return strings.Join(statuses, "; ")
}

func (t *Twin) composeNotification(summary, requester, twinResponse string, needsApproval bool) string {
	marker := "✅ FYI - handled autonomously"
	if needsApproval {
		marker = "⚠️ NEEDS YOUR APPROVAL"
	}
	return fmt.Sprintf(
		"🤖 Digital Twin Update\n\nRequest from: %s\nSummary: %s\n\nTwin response:\n%s\n\n%s",
		requester, summary, twinResponse, marker)
}

// OnActivity handles one inbound channel event: correction-aware inbox
// posting. Events the twin already responded to autonomously are skipped.
func (t *Twin) OnActivity(ev types.ActivityEvent) {
	if ev.AlreadyPosted {
		return
	}

	title := fmt.Sprintf("Digital Twin request from @%s: %s", ev.Author, truncate(ev.Text, 100))
	if strings.Contains(strings.ToLower(ev.Text), correctionMarker) {
		title = fmt.Sprintf("⚠️ CORRECTION from %s: %s", t.cfg.OwnerName, truncate(ev.Text, 100))
	}

	details, err := json.Marshal(map[string]string{
		"channel": ev.Channel,
		"author":  ev.Author,
		"text":    ev.Text,
	})
	if err != nil {
		t.log.Error("inbox details encode failed", zap.Error(err))
		return
	}

	if _, err := t.store.PostInbox(t.cfg.Persona, title, string(details), "digital_twin_"+ev.Channel); err != nil {
		t.log.Error("inbox post failed", zap.Error(err))
		return
	}
	t.log.Info("posted inbox item", zap.String("channel", ev.Channel), zap.String("author", ev.Author))
}

// OnResume runs when a suspended tool call resumes. A resumed
// learn_from_correction call marks its correction row processed.
func (t *Twin) OnResume(callID string) {
	t.mu.Lock()
	correctionID, ok := t.pendingLearn[callID]
	if ok {
		delete(t.pendingLearn, callID)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	if err := t.store.MarkCorrectionProcessed(correctionID); err != nil {
		t.log.Error("failed to mark correction processed",
			zap.Int64("correction_id", correctionID),
			zap.Error(err))
	}
}

func channelLabel(name string) string {
	switch name {
	case "telegram":
		return "Telegram"
	case "email":
		return "Email"
	default:
		return name
	}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
